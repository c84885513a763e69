// Package relay implements the Hotbutter Voice pairing relay.
//
// The relay binds one agent connection to one browser client connection
// through a short-lived numeric pairing code and forwards typed JSON
// messages between the two sides for the lifetime of the session.
//
// An agent process connects to /ws/agent and registers; the relay issues a
// six-digit pairing code. A browser client connects to /ws/client and
// submits the code; the relay redeems it, creates a session, and from then
// on forwards agent:message / client:message frames between the pair until
// either side disconnects.
//
// Usage:
//
//	srv := relay.New(relay.Config{})
//	http.ListenAndServe(":3000", srv.Handler())
package relay
