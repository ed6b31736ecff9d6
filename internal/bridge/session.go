// Package bridge establishes an authorized session with a Hue bridge:
// discovery with ordered fallbacks, a status probe, and the link-button
// registration handshake.
package bridge

import "fmt"

// Session is an address+token pair authorized to issue fixture commands.
// A session created from discovery alone has an empty token until the
// registration handshake succeeds.
type Session struct {
	Address string
	Token   string
}

// NewSession creates an unauthenticated session for the given address.
func NewSession(address string) *Session {
	return &Session{Address: address}
}

// RestoreSession recreates a session from a cached address+token pair.
func RestoreSession(address, token string) *Session {
	return &Session{Address: address, Token: token}
}

// Authorized reports whether the session carries an access token.
func (s *Session) Authorized() bool {
	return s.Token != ""
}

// BaseURL returns the authenticated command base path.
func (s *Session) BaseURL() string {
	return fmt.Sprintf("http://%s/api/%s/", s.Address, s.Token)
}
