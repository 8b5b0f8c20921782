package domain

// Session is the cached, token-bearing record of an authenticated actor,
// stored under its role ID.
type Session struct {
	Role          Role   `json:"role"`
	RoleID        string `json:"role_id"`
	Region        string `json:"region"`
	CurrentRegion string `json:"current_region"`
	Token         string `json:"token,omitempty"`
	Online        bool   `json:"online"`
	SocketID      string `json:"socketid"`
}

// Offline returns the snapshot kept after logout. It preserves the
// identity and region fields so region redirects and presence queries
// still see the last known region.
func (s Session) Offline() Session {
	return Session{
		Role:          s.Role,
		RoleID:        s.RoleID,
		Region:        s.Region,
		CurrentRegion: s.CurrentRegion,
		Online:        false,
	}
}

// Identity is the set of fields a session token is bound to.
type Identity struct {
	Region string `json:"region"`
	RoleID string `json:"role_id"`
	Role   Role   `json:"role"`
}
