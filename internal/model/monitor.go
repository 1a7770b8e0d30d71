package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy", "idle"
	Connections ConnectionStats `json:"connections"` // Session stats
	Online      []string        `json:"online"`      // Identities currently addressable
	Clients     []ClientInfo    `json:"clients"`     // List of connected sessions
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnected  int `json:"totalConnected"`  // Sessions with an open socket
	TotalIdentified int `json:"totalIdentified"` // Sessions that declared an identity
	TotalOnline     int `json:"totalOnline"`     // Distinct identities in the roster
	TotalSuperseded int `json:"totalSuperseded"` // Identified sessions replaced by a newer one
}

// ClientInfo contains information about a connected client
type ClientInfo struct {
	ClientID    string `json:"clientId"`
	Identity    string `json:"identity,omitempty"`
	Active      bool   `json:"active"` // Registered session for its identity
	ConnectedAt string `json:"connectedAt"`
}
