package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/service/account"
)

// AccountService is the account flow surface the handlers use.
type AccountService interface {
	Pubkey(ctx context.Context, region string) (string, error)
	Signup(ctx context.Context, req account.SignupRequest) (*account.SignupResult, error)
	ConfirmSignup(ctx context.Context, req account.ConfirmRequest) (*account.AuthResult, error)
	Login(ctx context.Context, req account.LoginRequest) (*account.AuthResult, error)
	Logout(ctx context.Context, roleID, token string) error
	Refresh(ctx context.Context, role domain.Role, roleID, token string) (*account.AuthResult, error)
	Session(ctx context.Context, roleID string) (domain.Session, error)
}

var _ AccountService = (*account.Service)(nil)

// AuthHandler serves the signup, login and session endpoints.
type AuthHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts AccountService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{accounts: accounts, logger: logger.With("component", "auth_handler")}
}

// Pubkey handles GET /api/auth/pubkey.
func (h *AuthHandler) Pubkey(w http.ResponseWriter, r *http.Request) {
	region, err := requestRegion(r, r.URL.Query().Get("region"))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	key, err := h.accounts.Pubkey(r.Context(), region)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, PubkeyResponse{Pubkey: key})
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, decodeError())
		return
	}
	region, err := requestRegion(r, req.Region)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	req.Region = region
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, validationError(err))
		return
	}

	res, err := h.accounts.Signup(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, res)
}

// ConfirmSignup handles POST /api/auth/signup/confirm.
func (h *AuthHandler) ConfirmSignup(w http.ResponseWriter, r *http.Request) {
	var req account.ConfirmRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, decodeError())
		return
	}
	region, err := requestRegion(r, req.Region)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	req.Region = region
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, validationError(err))
		return
	}

	res, err := h.accounts.ConfirmSignup(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	h.respondAuth(w, r, res)
}

// loginRegion is the optional region field of a login body.
type loginRegion struct {
	Region string `json:"region"`
}

// Login handles POST /api/auth/login. The body is forwarded to the auth
// backend as is.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	body, err := shared.ReadBody(r)
	if err != nil {
		HandleAPIError(w, r, decodeError())
		return
	}
	var lr loginRegion
	if !isJSONObject(body) || json.Unmarshal(body, &lr) != nil {
		HandleAPIError(w, r, decodeError())
		return
	}
	region, err := requestRegion(r, lr.Region)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), account.LoginRequest{CurrentRegion: region, Credentials: body})
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	h.respondAuth(w, r, res)
}

// Logout handles POST /api/{role}/{role_id}/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	_, roleID, err := pathRole(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if err := h.accounts.Logout(r.Context(), roleID, token); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, nil)
}

// Refresh handles POST /api/{role}/{role_id}/refresh. It is not behind the
// auth middleware because recently expired tokens are accepted.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	role, roleID, err := pathRole(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	res, err := h.accounts.Refresh(r.Context(), role, roleID, token)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	h.respondAuth(w, r, res)
}

// Session handles GET /api/{role}/{role_id}/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	_, roleID, err := pathRole(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	sess, err := h.accounts.Session(r.Context(), roleID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, sess)
}

func (h *AuthHandler) respondAuth(w http.ResponseWriter, r *http.Request, res *account.AuthResult) {
	if res.Session.Region != "" {
		w.Header().Set(shared.RegisterRegionHeader, res.Session.Region)
	}
	shared.RespondOK(w, r, newAuthResponse(res))
}
