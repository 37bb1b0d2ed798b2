package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payment-service/internal/models"
	"payment-service/internal/service"
	"payment-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	payments := store.NewMemoryStore()
	index := store.NewMemoryIndex(0)
	t.Cleanup(func() { _ = index.Close() })

	creation := service.NewCreationService(payments, index, nil, time.Hour)
	reconciler := service.NewReconciler(payments, nil, service.ReconcilerConfig{TerminalOverride: true})
	query := service.NewQueryService(payments)

	router := gin.New()
	NewHandler(creation, reconciler, query).SetupRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func paymentBody(key string) map[string]interface{} {
	return map[string]interface{}{
		"amount":         "50000",
		"currency":       "COP",
		"payment_method": models.MethodPSE,
		"bank":           "banco_azul",
		"customer": map[string]string{
			"email":    "maria@example.com",
			"name":     "Maria Gomez",
			"document": "CC-1020304050",
		},
		"redirect_url":    "https://shop.example.com/return",
		"idempotency_key": key,
	}
}

func webhookBody(paymentID, status string, ts time.Time) map[string]interface{} {
	return map[string]interface{}{
		"payment_id": paymentID,
		"status":     status,
		"timestamp":  ts.Format(time.RFC3339),
		"signature":  "sig-unverified",
	}
}

func TestCreatePaymentEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/payments", paymentBody("k1"), nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["payment_id"])
	assert.Contains(t, body["redirect_url"], body["payment_id"].(string))

	// Replay with the same key: 200, same record.
	w2, body2 := doJSON(t, router, http.MethodPost, "/payments", paymentBody("k1"), nil)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, body["payment_id"], body2["payment_id"])
}

func TestCreatePaymentHeaderKeyWins(t *testing.T) {
	router := newTestRouter(t)

	headers := map[string]string{"Idempotency-Key": "header-key"}
	w, body := doJSON(t, router, http.MethodPost, "/payments", paymentBody("body-key"), headers)
	require.Equal(t, http.StatusCreated, w.Code)

	// Same header key replays even with a different body key.
	w2, body2 := doJSON(t, router, http.MethodPost, "/payments", paymentBody("other-body-key"), headers)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, body["payment_id"], body2["payment_id"])
}

func TestCreatePaymentValidation(t *testing.T) {
	router := newTestRouter(t)

	body := paymentBody("k1")
	body["payment_method"] = "WIRE"

	w, _ := doJSON(t, router, http.MethodPost, "/payments", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPaymentEndpoint(t *testing.T) {
	router := newTestRouter(t)

	_, created := doJSON(t, router, http.MethodPost, "/payments", paymentBody("k1"), nil)
	id := created["payment_id"].(string)

	w, body := doJSON(t, router, http.MethodGet, "/payments/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, body["payment_id"])
	assert.Equal(t, "pending", body["status"])

	w404, _ := doJSON(t, router, http.MethodGet, "/payments/pay_missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w404.Code)
}

func TestWebhookLifecycle(t *testing.T) {
	router := newTestRouter(t)

	_, created := doJSON(t, router, http.MethodPost, "/payments", paymentBody("k1"), nil)
	id := created["payment_id"].(string)
	ts := time.Now().UTC().Add(time.Minute)

	// Apply.
	w, body := doJSON(t, router, http.MethodPost, "/webhooks", webhookBody(id, "approved", ts), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approved", body["new_status"])

	// Exact retransmission.
	w, body = doJSON(t, router, http.MethodPost, "/webhooks", webhookBody(id, "approved", ts), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["duplicate"])

	// Stale notification.
	w, body = doJSON(t, router, http.MethodPost, "/webhooks", webhookBody(id, "expired", ts.Add(-time.Second)), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["out_of_order"])

	// Status unchanged through it all.
	_, got := doJSON(t, router, http.MethodGet, "/payments/"+id, nil, nil)
	assert.Equal(t, "approved", got["status"])
	assert.Equal(t, float64(1), got["applied_event_count"])
}

func TestWebhookUnknownPayment(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/webhooks",
		webhookBody("pay_missing00000000", "approved", time.Now()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookBadInput(t *testing.T) {
	router := newTestRouter(t)

	_, created := doJSON(t, router, http.MethodPost, "/payments", paymentBody("k1"), nil)
	id := created["payment_id"].(string)

	bad := webhookBody(id, "approved", time.Now())
	bad["timestamp"] = "not-a-timestamp"
	w, _ := doJSON(t, router, http.MethodPost, "/webhooks", bad, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/webhooks", webhookBody(id, "refunded", time.Now()), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteEndpoints(t *testing.T) {
	router := newTestRouter(t)

	_, created := doJSON(t, router, http.MethodPost, "/payments", paymentBody("k1"), nil)
	id := created["payment_id"].(string)

	w, _ := doJSON(t, router, http.MethodDelete, "/payments/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/payments/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for i := 0; i < 3; i++ {
		doJSON(t, router, http.MethodPost, "/payments", paymentBody(fmt.Sprintf("bulk-%d", i)), nil)
	}

	w, _ = doJSON(t, router, http.MethodDelete, "/payments", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	_, health := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, float64(0), health["payments_count"])
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/payments", paymentBody("k1"), nil)

	w, body := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["payments_count"])
}
