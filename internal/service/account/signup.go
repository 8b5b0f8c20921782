package account

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/phrazzld/match-gateway/internal/backend"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/region"
	"github.com/phrazzld/match-gateway/internal/session"
)

// SignupRequest starts a registration.
type SignupRequest struct {
	Email string          `json:"email" validate:"required,email"`
	Meta  json.RawMessage `json:"meta" validate:"required"`
	// Region is where the account will be registered.
	Region string `json:"region" validate:"required"`
}

// SignupResult acknowledges a dispatched confirm code.
type SignupResult struct {
	Email string `json:"email"`
	// TestingConfirmCode is only set when confirm codes are exposed for tests.
	TestingConfirmCode string `json:"testing_confirm_code,omitempty"`
}

// Signup claims the email, asks the auth backend to mail a confirm code and
// records the pending confirmation.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	email := normalizeEmail(req.Email)
	authURL, err := s.regions.Resolve(region.Auth, req.Region)
	if err != nil {
		return nil, err
	}

	claim, won, err := s.cache.ClaimSignup(ctx, email)
	if err != nil {
		return nil, domain.ServerError("failed to check signup state", err)
	}
	if !won {
		return nil, s.existingSignupError(ctx, email)
	}

	code := confirmCode(s.now())
	_, err = s.backend.Post(ctx, authURL+"/signup/email", map[string]string{
		"email":        email,
		"confirm_code": code,
		"region":       req.Region,
	})
	if err != nil {
		if domain.IsKind(err, domain.KindDuplicate) {
			registered := req.Region
			if r, ok := domain.AsError(err).Data["region"].(string); ok && r != "" {
				registered = r
			}
			if perr := s.cache.PutDuplicate(ctx, email, registered); perr != nil {
				s.logger.Warn("failed to record duplicate signup marker", "error", perr)
			}
			return nil, domain.DuplicateError("duplicate user").WithData("region", registered)
		}
		if rerr := s.cache.ReleaseClaim(ctx, email, claim); rerr != nil {
			s.logger.Warn("failed to release signup claim", "error", rerr)
		}
		return nil, err
	}

	// The dispatch may outlive the claim; a newer claim then wins.
	pending := session.PendingSignup{ConfirmCode: code, Meta: req.Meta, Email: email}
	filled, err := s.cache.FillClaim(ctx, email, claim, pending)
	if err != nil {
		return nil, domain.ServerError("failed to record pending signup", err)
	}
	if !filled {
		return nil, domain.DuplicateError("duplicate in progress")
	}

	s.logger.Debug("signup confirm code dispatched", "region", req.Region)
	res := &SignupResult{Email: email}
	if s.opts.ExposeConfirmCode {
		res.TestingConfirmCode = code
	}
	return res, nil
}

// existingSignupError explains a lost claim: a known registration or a
// signup already in flight.
func (s *Service) existingSignupError(ctx context.Context, email string) error {
	m, err := s.cache.SignupMarker(ctx, email)
	if err == nil && m.State == session.MarkerDuplicate {
		return domain.DuplicateError("duplicate user").WithData("region", m.Region)
	}
	return domain.DuplicateError("duplicate in progress")
}

// ConfirmRequest completes a registration.
type ConfirmRequest struct {
	Email       string `json:"email" validate:"required,email"`
	ConfirmCode string `json:"confirm_code" validate:"required,len=6,numeric"`
	Region      string `json:"region" validate:"required"`
}

// AuthResult is returned by flows that mint a session.
type AuthResult struct {
	Token   string          `json:"token"`
	Session domain.Session  `json:"session"`
	Profile json.RawMessage `json:"profile"`
	// Match is the login prefetch; null when skipped or failed.
	Match json.RawMessage `json:"match"`
}

type registration struct {
	Role   string `json:"role"`
	RoleID string `json:"role_id"`
	Region string `json:"region"`
}

// ConfirmSignup checks the code, closes the confirmation window, registers
// the account and caches its first session.
func (s *Service) ConfirmSignup(ctx context.Context, req ConfirmRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	authURL, err := s.regions.Resolve(region.Auth, req.Region)
	if err != nil {
		return nil, err
	}

	m, err := s.cache.SignupMarker(ctx, email)
	if err != nil {
		return nil, domain.ServerError("failed to read signup state", err)
	}
	switch m.State {
	case session.MarkerAbsent:
		return nil, domain.NotFoundError("signup not found")
	case session.MarkerPlaceholder:
		return nil, domain.DuplicateError("duplicate in progress")
	case session.MarkerDuplicate:
		return nil, domain.DuplicateError("duplicate user").WithData("region", m.Region)
	}
	if m.Pending.ConfirmCode != req.ConfirmCode {
		return nil, domain.ClientError("wrong confirm_code")
	}

	closed, err := s.cache.ClosePending(ctx, email, m)
	if err != nil {
		return nil, domain.ServerError("failed to close signup window", err)
	}
	if !closed {
		return nil, domain.DuplicateError("duplicate in progress")
	}

	pubkey, err := s.Pubkey(ctx, req.Region)
	if err != nil {
		return nil, err
	}
	res, err := s.backend.Post(ctx, authURL+"/signup", map[string]any{
		"email":  m.Pending.Email,
		"meta":   m.Pending.Meta,
		"pubkey": pubkey,
		"region": req.Region,
	})
	if err != nil {
		return nil, err
	}

	var reg registration
	if err := res.Decode(&reg); err != nil {
		return nil, err
	}
	if reg.Region == "" {
		reg.Region = req.Region
	}
	return s.startSession(ctx, reg, req.Region, res.Data)
}

// startSession mints a token and caches the online session. The flow only
// succeeds once the session record is written.
func (s *Service) startSession(ctx context.Context, reg registration, currentRegion string, profile json.RawMessage) (*AuthResult, error) {
	if reg.RoleID == "" {
		return nil, domain.ServerError("backend returned no role_id", nil)
	}
	role, err := domain.ParseRole(reg.Role)
	if err != nil {
		return nil, domain.ServerError("backend returned an invalid role", err)
	}

	id := domain.Identity{Region: reg.Region, RoleID: reg.RoleID, Role: role}
	token, _, err := s.tokens.Issue(ctx, id)
	if err != nil {
		return nil, domain.ServerError("failed to issue token", err)
	}

	sess := domain.Session{
		Role:          role,
		RoleID:        reg.RoleID,
		Region:        reg.Region,
		CurrentRegion: currentRegion,
		Token:         token,
		Online:        true,
		SocketID:      "",
	}
	if err := s.cache.PutSession(ctx, sess); err != nil {
		return nil, domain.ServerError("failed to cache session", err)
	}
	return &AuthResult{Token: token, Session: sess, Profile: profile}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// backendPubkey is the auth backend's public key payload.
type backendPubkey struct {
	Pubkey string `json:"pubkey"`
}

// Pubkey returns the current public key, reading through the cache to the
// auth backend of region.
func (s *Service) Pubkey(ctx context.Context, regionCode string) (string, error) {
	key, ok, err := s.cache.Pubkey(ctx)
	if err != nil {
		s.logger.Warn("pubkey cache read failed, asking backend", "error", err)
	}
	if ok {
		return key, nil
	}

	authURL, err := s.regions.Resolve(region.Auth, regionCode)
	if err != nil {
		return "", err
	}
	res, err := s.backend.Get(ctx, authURL+"/pubkey", nil)
	if err != nil {
		return "", err
	}
	var pk backendPubkey
	if err := res.Decode(&pk); err != nil {
		return "", err
	}
	if pk.Pubkey == "" {
		return "", domain.ServerError("backend returned an empty pubkey", nil)
	}
	if err := s.cache.PutPubkey(ctx, pk.Pubkey); err != nil {
		s.logger.Warn("failed to cache pubkey", "error", err)
	}
	return pk.Pubkey, nil
}

var _ Backend = (*backend.Client)(nil)
