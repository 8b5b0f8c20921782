package api

import (
	"encoding/json"

	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/service/account"
)

// AuthResponse is returned by confirm, login and refresh.
type AuthResponse struct {
	Token   string          `json:"token"`
	Session domain.Session  `json:"session"`
	Profile json.RawMessage `json:"profile,omitempty"`
	// Match holds the login prefetch and is null when it was skipped.
	Match json.RawMessage `json:"match"`
}

func newAuthResponse(res *account.AuthResult) AuthResponse {
	sess := res.Session
	sess.Token = ""
	return AuthResponse{
		Token:   res.Token,
		Session: sess,
		Profile: res.Profile,
		Match:   res.Match,
	}
}

// PubkeyResponse carries the auth backend's public key.
type PubkeyResponse struct {
	Pubkey string `json:"pubkey"`
}

// RelationResponse reports the outcome of a follow or contact change.
type RelationResponse struct {
	TargetID string `json:"target_id"`
	Changed  bool   `json:"changed"`
}

// RelationListResponse lists the IDs in a follow or contact set.
type RelationListResponse struct {
	Relation domain.Relation `json:"relation"`
	IDs      []string        `json:"ids"`
}

// WebhookResponse acknowledges a forwarded payment event.
type WebhookResponse struct {
	RoleID string `json:"role_id"`
}
