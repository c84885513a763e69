// Package relayclient is the client library for the Hotbutter Voice relay.
//
// It implements both peer roles over the same transport and reconnection
// driver: an agent process registers and receives a pairing code, a client
// redeems a code and exchanges messages. Lost transports are re-established
// automatically with bounded exponential backoff; the client role stops
// after a fixed number of consecutive failures, the agent role retries
// indefinitely at the schedule ceiling.
package relayclient
