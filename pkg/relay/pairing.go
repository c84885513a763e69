package relay

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	// CodeLength is the fixed width of pairing codes, in decimal digits.
	CodeLength = 6

	// CodeTTL bounds how long an unclaimed code stays redeemable.
	CodeTTL = 5 * time.Minute

	// SweepInterval is how often expired codes are reaped even if
	// nobody ever tries to claim them.
	SweepInterval = time.Minute
)

var codeSpace = big.NewInt(1_000_000) // 10^CodeLength

// PairingEntry is one outstanding invitation from a registered agent.
type PairingEntry struct {
	Code      string
	AgentConn ConnID
	AgentID   string
	AgentName string
	CreatedAt time.Time
}

// PairingLedger issues collision-free, time-bounded pairing codes and
// redeems each at most once.
type PairingLedger struct {
	mu      sync.Mutex
	pending map[string]*PairingEntry

	now func() time.Time
}

// NewPairingLedger creates an empty ledger.
func NewPairingLedger() *PairingLedger {
	return &PairingLedger{
		pending: make(map[string]*PairingEntry),
		now:     time.Now,
	}
}

// Register allocates a fresh code for the given agent connection and
// returns it. Any prior pending entry for the same connection is replaced,
// keeping at most one outstanding code per agent.
func (l *PairingLedger) Register(agentConn ConnID, agentID, agentName string) string {
	if agentName == "" {
		agentName = "Agent"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for code, e := range l.pending {
		if e.AgentConn == agentConn {
			delete(l.pending, code)
		}
	}

	code := l.generateCode()
	l.pending[code] = &PairingEntry{
		Code:      code,
		AgentConn: agentConn,
		AgentID:   agentID,
		AgentName: agentName,
		CreatedAt: l.now(),
	}
	return code
}

// generateCode picks a random fixed-width decimal code not currently
// pending. Caller must hold l.mu.
func (l *PairingLedger) generateCode() string {
	for {
		n, err := rand.Int(rand.Reader, codeSpace)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken.
			panic(fmt.Sprintf("relay: generate pairing code: %v", err))
		}
		code := fmt.Sprintf("%0*d", CodeLength, n)
		if _, taken := l.pending[code]; !taken {
			return code
		}
	}
}

// Claim redeems a code. Success and failure alike remove the entry, so a
// code redeems at most once even under concurrent attempts. Unknown and
// expired codes both return ErrCodeNotFound.
func (l *PairingLedger) Claim(code string) (*PairingEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.pending[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	delete(l.pending, code)
	if l.now().Sub(entry.CreatedAt) > CodeTTL {
		return nil, ErrCodeNotFound
	}
	return entry, nil
}

// RemoveByAgent drops any pending entry owned by a disconnecting agent, so
// codes never outlive their issuer.
func (l *PairingLedger) RemoveByAgent(agentConn ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for code, e := range l.pending {
		if e.AgentConn == agentConn {
			delete(l.pending, code)
		}
	}
}

// Sweep deletes all expired entries and reports how many were removed.
// The server calls this on a fixed interval to bound memory used by
// abandoned codes.
func (l *PairingLedger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for code, e := range l.pending {
		if now.Sub(e.CreatedAt) > CodeTTL {
			delete(l.pending, code)
			removed++
		}
	}
	return removed
}

// PendingCount returns the number of outstanding codes.
func (l *PairingLedger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
