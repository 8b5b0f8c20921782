// Package payment caches payment status snapshots and routes provider
// webhooks back to the actor whose checkout produced them.
package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/phrazzld/match-gateway/internal/backend"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/region"
	"github.com/phrazzld/match-gateway/internal/session"
)

// Backend is the subset of the backend client payments need.
type Backend interface {
	Get(ctx context.Context, target string, query url.Values) (*backend.Result, error)
	Post(ctx context.Context, target string, body any) (*backend.Result, error)
}

var _ Backend = (*backend.Client)(nil)

// Service serves payment status and checkout.
type Service struct {
	cache   *session.Cache
	backend Backend
	regions *region.Directory
	logger  *slog.Logger
}

// NewService wires the payment flows.
func NewService(cache *session.Cache, b Backend, regions *region.Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:   cache,
		backend: b,
		regions: regions,
		logger:  logger.With("component", "payment_service"),
	}
}

// Status returns the payment snapshot of the actor, reading through the
// cache to the payment backend of regionCode.
func (s *Service) Status(ctx context.Context, role domain.Role, roleID, regionCode string) (json.RawMessage, error) {
	snapshot, ok, err := s.cache.Payment(ctx, roleID)
	if err != nil {
		s.logger.Warn("payment cache read failed, asking backend", "error", err)
	}
	if ok {
		return snapshot, nil
	}

	base, err := s.actorURL(role, roleID, regionCode)
	if err != nil {
		return nil, err
	}
	res, err := s.backend.Get(ctx, base+"/status", nil)
	if err != nil {
		return nil, err
	}
	if isNull(res.Data) {
		return nil, domain.ServerError("backend returned no payment status", nil)
	}
	if err := s.cache.PutPayment(ctx, roleID, res.Data); err != nil {
		s.logger.Warn("failed to cache payment status", "error", err)
	}
	return res.Data, nil
}

type checkout struct {
	CustomerID string `json:"customer_id"`
}

// Checkout opens a checkout for the actor and remembers which actor the
// provider customer belongs to, so the webhook can find it.
func (s *Service) Checkout(ctx context.Context, role domain.Role, roleID, regionCode string, body json.RawMessage) (json.RawMessage, error) {
	base, err := s.actorURL(role, roleID, regionCode)
	if err != nil {
		return nil, err
	}
	res, err := s.backend.Post(ctx, base+"/checkout", body)
	if err != nil {
		return nil, err
	}
	var c checkout
	if err := res.Decode(&c); err != nil {
		return nil, err
	}
	if c.CustomerID == "" {
		return nil, domain.ServerError("backend returned no customer_id", nil)
	}
	if err := s.cache.PutPaymentHandling(ctx, c.CustomerID, roleID); err != nil {
		return nil, domain.ServerError("failed to record checkout", err)
	}
	if err := s.cache.DropPayment(ctx, roleID); err != nil {
		s.logger.Warn("failed to drop payment snapshot", "error", err)
	}
	return res.Data, nil
}

// HandleWebhook forwards a provider event to the payment backend of
// regionCode and invalidates the snapshot of the actor behind customerID.
// It returns that actor's role ID.
func (s *Service) HandleWebhook(ctx context.Context, regionCode, customerID string, payload json.RawMessage) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", domain.ClientError("missing customer_id")
	}
	roleID, ok, err := s.cache.PaymentHandling(ctx, customerID)
	if err != nil {
		return "", domain.ServerError("failed to read checkout record", err)
	}
	if !ok {
		return "", domain.NotFoundError("unknown customer")
	}

	paymentURL, err := s.regions.Resolve(region.Payment, regionCode)
	if err != nil {
		return "", err
	}
	if _, err := s.backend.Post(ctx, paymentURL+"/webhook", payload); err != nil {
		return "", err
	}
	if err := s.cache.DropPayment(ctx, roleID); err != nil {
		return "", domain.ServerError("failed to drop payment snapshot", err)
	}
	s.logger.Debug("payment webhook forwarded", "region", regionCode)
	return roleID, nil
}

func (s *Service) actorURL(role domain.Role, roleID, regionCode string) (string, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return "", err
	}
	paymentURL, err := s.regions.Resolve(region.Payment, regionCode)
	if err != nil {
		return "", err
	}
	return paymentURL + "/" + string(role) + "/" + url.PathEscape(roleID), nil
}

func isNull(data json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(data))
	return trimmed == "" || trimmed == "null"
}
