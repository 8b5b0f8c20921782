package account

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/phrazzld/match-gateway/internal/backend"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/region"
)

// LoginRequest carries the caller's declared region and the credentials,
// which are forwarded to the auth backend untouched.
type LoginRequest struct {
	CurrentRegion string
	Credentials   json.RawMessage
}

// maxLoginAttempts bounds the login to the declared region plus one
// redirect to the registered region.
const maxLoginAttempts = 2

// Login authenticates against the declared region's auth backend. If the
// backend answers that the account lives in another region, the login is
// retried there once; a second redirect is returned as an error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	target := req.CurrentRegion
	var (
		res *backend.Result
		err error
	)
	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		res, err = s.tryLogin(ctx, target, req.Credentials)
		if err == nil {
			break
		}
		registered, wrong := backend.WrongRegion(err)
		if !wrong || attempt == maxLoginAttempts {
			return nil, err
		}
		s.logger.Debug("login redirected to registered region",
			"from", target,
			"to", registered)
		if s.metrics != nil {
			s.metrics.LoginRedirects.Inc()
		}
		target = registered
	}

	var reg registration
	if err := res.Decode(&reg); err != nil {
		return nil, err
	}
	if reg.Region == "" {
		reg.Region = target
	}

	result, err := s.startSession(ctx, reg, req.CurrentRegion, res.Data)
	if err != nil {
		return nil, err
	}
	result.Match = s.prefetchMatches(ctx, target, result.Session.Role, result.Session.RoleID)
	return result, nil
}

func (s *Service) tryLogin(ctx context.Context, regionCode string, credentials json.RawMessage) (*backend.Result, error) {
	authURL, err := s.regions.Resolve(region.Auth, regionCode)
	if err != nil {
		return nil, err
	}
	return s.backend.Post(ctx, authURL+"/login", credentials)
}

// prefetchMatches fetches the first match records from the match backend of
// regionCode. Failures degrade to null: login success does not depend on it.
func (s *Service) prefetchMatches(ctx context.Context, regionCode string, role domain.Role, roleID string) json.RawMessage {
	if s.opts.PrefetchSize <= 0 {
		return nil
	}
	matchURL, err := s.regions.Resolve(region.Match, regionCode)
	if err != nil {
		s.logger.Warn("match prefetch skipped: no match backend for region", "region", regionCode)
		return nil
	}

	target := matchURL + "/" + string(role) + "/" + url.PathEscape(roleID) + "/matches"
	res, err := s.backend.Get(ctx, target, url.Values{"size": {strconv.Itoa(s.opts.PrefetchSize)}})
	if err != nil {
		s.logger.Warn("match prefetch failed", "region", regionCode, "error", err)
		return nil
	}
	return res.Data
}
