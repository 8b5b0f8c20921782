package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/service/payment"
)

// PaymentService is the payment surface the handlers use.
type PaymentService interface {
	Status(ctx context.Context, role domain.Role, roleID, region string) (json.RawMessage, error)
	Checkout(ctx context.Context, role domain.Role, roleID, region string, body json.RawMessage) (json.RawMessage, error)
	HandleWebhook(ctx context.Context, region, customerID string, payload json.RawMessage) (string, error)
}

var _ PaymentService = (*payment.Service)(nil)

// PaymentHandler serves payment status, checkout and the provider webhook.
type PaymentHandler struct {
	payments PaymentService
	logger   *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(payments PaymentService, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{payments: payments, logger: logger.With("component", "payment_handler")}
}

// Status handles GET /api/{role}/{role_id}/payment.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	status, err := h.payments.Status(r.Context(), actor.Role, actor.RoleID, actor.Region)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, status)
}

// Checkout handles POST /api/{role}/{role_id}/payment/checkout.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	body, err := shared.ReadBody(r)
	if err != nil {
		HandleAPIError(w, r, decodeError())
		return
	}
	out, err := h.payments.Checkout(r.Context(), actor.Role, actor.RoleID, actor.Region, body)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, out)
}

type webhookEvent struct {
	CustomerID string `json:"customer_id"`
}

// Webhook handles POST /api/payment/webhook. The region comes from the
// region query parameter or the current_region header.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := shared.ReadBody(r)
	if err != nil {
		HandleAPIError(w, r, decodeError())
		return
	}
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		HandleAPIError(w, r, decodeError())
		return
	}
	region, err := requestRegion(r, r.URL.Query().Get("region"))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	roleID, err := h.payments.HandleWebhook(r.Context(), region, ev.CustomerID, body)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondOK(w, r, WebhookResponse{RoleID: roleID})
}
