package service

import "fmt"

// WSConfig holds the WebSocket URL base for API responses.
type WSConfig struct {
	BaseURL string
}

// WSURL returns the WebSocket URL for a session (e.g.
// wss://host/ws/session/sessionID).
func (c *WSConfig) WSURL(sessionID string) string {
	if c == nil || c.BaseURL == "" {
		return fmt.Sprintf("/ws/session/%s", sessionID)
	}
	base := c.BaseURL
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return fmt.Sprintf("%s/ws/session/%s", base, sessionID)
}
