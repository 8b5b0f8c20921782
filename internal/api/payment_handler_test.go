package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

type fakePayments struct {
	region, customer string
	payload          json.RawMessage
	err              error
}

func (f *fakePayments) Status(_ context.Context, _ domain.Role, _, region string) (json.RawMessage, error) {
	f.region = region
	return json.RawMessage(`{"active":true}`), f.err
}

func (f *fakePayments) Checkout(_ context.Context, _ domain.Role, _, _ string, body json.RawMessage) (json.RawMessage, error) {
	f.payload = body
	return json.RawMessage(`{"customer_id":"cus_1"}`), f.err
}

func (f *fakePayments) HandleWebhook(_ context.Context, region, customerID string, payload json.RawMessage) (string, error) {
	f.region, f.customer, f.payload = region, customerID, payload
	return "c-1", f.err
}

func TestPaymentStatusUsesRegisteredRegion(t *testing.T) {
	t.Parallel()

	f := &fakePayments{}
	h := NewPaymentHandler(f, logger.Discard())
	w := httptest.NewRecorder()
	h.Status(w, withClaims(httptest.NewRequest(http.MethodGet, "/api/teacher/t-1/payment", nil)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jp", f.region)
	assert.JSONEq(t, `{"code":"0","msg":"ok","data":{"active":true}}`, w.Body.String())
}

func TestPaymentStatusRequiresClaims(t *testing.T) {
	t.Parallel()

	h := NewPaymentHandler(&fakePayments{}, logger.Discard())
	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/api/teacher/t-1/payment", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentWebhook(t *testing.T) {
	t.Parallel()

	f := &fakePayments{}
	h := NewPaymentHandler(f, logger.Discard())
	body := `{"customer_id":"cus_1","type":"paid"}`
	w := httptest.NewRecorder()
	h.Webhook(w, httptest.NewRequest(http.MethodPost, "/api/payment/webhook?region=us", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "us", f.region)
	assert.Equal(t, "cus_1", f.customer)
	assert.JSONEq(t, body, string(f.payload))

	w = httptest.NewRecorder()
	h.Webhook(w, httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code, "a webhook needs a region")

	w = httptest.NewRecorder()
	h.Webhook(w, httptest.NewRequest(http.MethodPost, "/api/payment/webhook?region=us", strings.NewReader("[")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
