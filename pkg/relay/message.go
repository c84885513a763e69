package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MessageType is the wire discriminator carried in every frame's "type" field.
type MessageType string

// Message types by direction.
const (
	// Agent -> relay
	TypeAgentRegister MessageType = "agent:register"
	TypeAgentMessage  MessageType = "agent:message"
	TypeAgentTyping   MessageType = "agent:typing"

	// Client -> relay
	TypeClientPair       MessageType = "client:pair"
	TypeClientMessage    MessageType = "client:message"
	TypeClientDisconnect MessageType = "client:disconnect"

	// Relay -> either side
	TypeRelayCode               MessageType = "relay:code"
	TypeRelayPaired             MessageType = "relay:paired"
	TypeRelayMessage            MessageType = "relay:message"
	TypeRelayTyping             MessageType = "relay:typing"
	TypeRelayAgentDisconnected  MessageType = "relay:agent-disconnected"
	TypeRelayClientDisconnected MessageType = "relay:client-disconnected"
	TypeRelayError              MessageType = "relay:error"
)

// Ensure all message types implement Message.
var (
	_ Message = (*AgentRegister)(nil)
	_ Message = (*AgentMessage)(nil)
	_ Message = (*AgentTyping)(nil)
	_ Message = (*ClientPair)(nil)
	_ Message = (*ClientMessage)(nil)
	_ Message = (*ClientDisconnect)(nil)
	_ Message = (*RelayCode)(nil)
	_ Message = (*RelayPaired)(nil)
	_ Message = (*RelayMessage)(nil)
	_ Message = (*RelayTyping)(nil)
	_ Message = (*RelayAgentDisconnected)(nil)
	_ Message = (*RelayClientDisconnected)(nil)
	_ Message = (*RelayError)(nil)
)

// Message is the interface for all wire messages.
type Message interface {
	isMessage()
	messageType() MessageType
}

// AgentRegister announces an agent and requests a pairing code.
type AgentRegister struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName,omitempty"`
}

func (*AgentRegister) isMessage()               {}
func (*AgentRegister) messageType() MessageType { return TypeAgentRegister }

// AgentMessage carries one agent turn, scoped to the agent's current session.
type AgentMessage struct {
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text"`
}

func (*AgentMessage) isMessage()               {}
func (*AgentMessage) messageType() MessageType { return TypeAgentMessage }

// AgentTyping is a best-effort typing indicator for the bound client.
type AgentTyping struct {
	SessionID string `json:"sessionId,omitempty"`
	Active    bool   `json:"active"`
}

func (*AgentTyping) isMessage()               {}
func (*AgentTyping) messageType() MessageType { return TypeAgentTyping }

// ClientPair redeems a pairing code.
type ClientPair struct {
	Code string `json:"code"`
}

func (*ClientPair) isMessage()               {}
func (*ClientPair) messageType() MessageType { return TypeClientPair }

// ClientMessage carries one user turn to the bound agent.
type ClientMessage struct {
	Text string `json:"text"`
}

func (*ClientMessage) isMessage()               {}
func (*ClientMessage) messageType() MessageType { return TypeClientMessage }

// ClientDisconnect ends the session without closing the transport,
// leaving the client free to pair again.
type ClientDisconnect struct{}

func (*ClientDisconnect) isMessage()               {}
func (*ClientDisconnect) messageType() MessageType { return TypeClientDisconnect }

// RelayCode delivers a freshly issued pairing code to a registered agent.
type RelayCode struct {
	Code string `json:"code"`
}

func (*RelayCode) isMessage()               {}
func (*RelayCode) messageType() MessageType { return TypeRelayCode }

// RelayPaired confirms pairing to both sides. The client copy carries the
// agent's display name; the agent copy carries only the session id.
type RelayPaired struct {
	SessionID string `json:"sessionId"`
	AgentName string `json:"agentName,omitempty"`
}

func (*RelayPaired) isMessage()               {}
func (*RelayPaired) messageType() MessageType { return TypeRelayPaired }

// RelayMessage is a forwarded conversation turn. The timestamp is stamped
// by the relay, not the sender, so both peers trust a single clock.
type RelayMessage struct {
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func (*RelayMessage) isMessage()               {}
func (*RelayMessage) messageType() MessageType { return TypeRelayMessage }

// RelayTyping is a forwarded typing indicator.
type RelayTyping struct {
	Active bool `json:"active"`
}

func (*RelayTyping) isMessage()               {}
func (*RelayTyping) messageType() MessageType { return TypeRelayTyping }

// RelayAgentDisconnected notifies a client that its agent went away.
type RelayAgentDisconnected struct{}

func (*RelayAgentDisconnected) isMessage()               {}
func (*RelayAgentDisconnected) messageType() MessageType { return TypeRelayAgentDisconnected }

// RelayClientDisconnected notifies an agent that its client went away.
type RelayClientDisconnected struct {
	SessionID string `json:"sessionId"`
}

func (*RelayClientDisconnected) isMessage()               {}
func (*RelayClientDisconnected) messageType() MessageType { return TypeRelayClientDisconnected }

// RelayError reports a protocol error to the offending connection.
// The transport stays open.
type RelayError struct {
	Error ErrorCode `json:"error"`
}

func (*RelayError) isMessage()               {}
func (*RelayError) messageType() MessageType { return TypeRelayError }

// Encode serializes a message as a flat JSON frame with the "type"
// discriminator spliced in front of the message's own fields.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	frame := []byte(`{"type":` + strconv.Quote(string(m.messageType())))
	if len(body) > 2 {
		// Non-empty object: replace its opening brace with a comma.
		frame = append(frame, ',')
		frame = append(frame, body[1:]...)
		return frame, nil
	}
	return append(frame, '}'), nil
}

// Decode parses a frame into its concrete message type.
//
// Malformed JSON or a missing "type" field yields ErrInvalidFrame; a
// well-formed frame with an unrecognized type yields ErrUnknownType.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, ErrInvalidFrame
	}
	if probe.Type == "" {
		return nil, ErrInvalidFrame
	}

	var m Message
	switch probe.Type {
	case TypeAgentRegister:
		m = new(AgentRegister)
	case TypeAgentMessage:
		m = new(AgentMessage)
	case TypeAgentTyping:
		m = new(AgentTyping)
	case TypeClientPair:
		m = new(ClientPair)
	case TypeClientMessage:
		m = new(ClientMessage)
	case TypeClientDisconnect:
		m = new(ClientDisconnect)
	case TypeRelayCode:
		m = new(RelayCode)
	case TypeRelayPaired:
		m = new(RelayPaired)
	case TypeRelayMessage:
		m = new(RelayMessage)
	case TypeRelayTyping:
		m = new(RelayTyping)
	case TypeRelayAgentDisconnected:
		m = new(RelayAgentDisconnected)
	case TypeRelayClientDisconnected:
		m = new(RelayClientDisconnected)
	case TypeRelayError:
		m = new(RelayError)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, probe.Type)
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, ErrInvalidFrame
	}
	return m, nil
}
