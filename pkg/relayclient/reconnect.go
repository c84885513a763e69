package relayclient

import "time"

// reconnectDelays is the shared backoff schedule. Attempts beyond the
// schedule length reuse the last value.
var reconnectDelays = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// MaxReconnectAttempts caps consecutive client-role reconnect attempts.
// The agent role retries indefinitely.
const MaxReconnectAttempts = 10

// backoffDelay returns the delay for a zero-based attempt index.
func backoffDelay(delays []time.Duration, attempt int) time.Duration {
	if attempt >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt]
}
