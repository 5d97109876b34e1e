// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package webhooks_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/webhooks"
)

// memDeliveries records delivery rows in memory.
type memDeliveries struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*registry.WebhookDelivery
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{rows: map[uuid.UUID]*registry.WebhookDelivery{}}
}

func (m *memDeliveries) Insert(ctx context.Context, d registry.WebhookDelivery) (*registry.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := d
	m.rows[d.ID] = &copied
	return &copied, nil
}

func (m *memDeliveries) Update(ctx context.Context, id uuid.UUID, req registry.UpdateDeliveryRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return registry.ErrNotFound.New("delivery")
	}
	row.Status = req.Status
	row.Attempts = req.Attempts
	row.LastAttemptAt = req.LastAttemptAt
	row.LastError = req.LastError
	row.LastStatusCode = req.LastStatusCode
	row.DeliveredAt = req.DeliveredAt
	return nil
}

func (m *memDeliveries) List(ctx context.Context, limit int) ([]registry.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []registry.WebhookDelivery
	for _, row := range m.rows {
		out = append(out, *row)
	}
	return out, nil
}

func (m *memDeliveries) byStatus(status registry.DeliveryStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.Status == status {
			count++
		}
	}
	return count
}

func newService(t *testing.T, url string, deliveries registry.WebhookDeliveries, cooldown time.Duration) *webhooks.Service {
	svc := webhooks.NewService(zaptest.NewLogger(t), webhooks.Config{
		URL:      url,
		Secret:   "test-secret",
		Cooldown: cooldown,
	}, deliveries)
	svc.TestSetSleep(func(ctx context.Context, d time.Duration) error { return nil })
	return svc
}

func TestDeliverSuccess(t *testing.T) {
	ctx := context.Background()
	var gotEvent, gotSignature string
	var gotBody []byte
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get("X-Tessera-Event")
		gotSignature = r.Header.Get("X-Tessera-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	deliveries := newMemDeliveries()
	svc := newService(t, receiver.URL, deliveries, time.Minute)

	require.NoError(t, svc.Deliver(ctx, webhooks.EventContractPublished, map[string]string{"k": "v"}))
	assert.Equal(t, webhooks.EventContractPublished, gotEvent)
	assert.True(t, webhooks.VerifySignature("test-secret", gotBody, gotSignature))
	assert.Equal(t, 1, deliveries.byStatus(registry.DeliveryDelivered))
}

func TestDeliverRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer receiver.Close()

	deliveries := newMemDeliveries()
	svc := newService(t, receiver.URL, deliveries, time.Minute)

	err := svc.Deliver(ctx, webhooks.EventProposalCreated, nil)
	require.Error(t, err)
	assert.Equal(t, webhooks.MaxAttempts, attempts)
	assert.Equal(t, 1, deliveries.byStatus(registry.DeliveryFailed))
}

func TestDeliverRecoversMidRetry(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	deliveries := newMemDeliveries()
	svc := newService(t, receiver.URL, deliveries, time.Minute)

	require.NoError(t, svc.Deliver(ctx, webhooks.EventProposalApproved, nil))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, deliveries.byStatus(registry.DeliveryDelivered))
}

func TestCircuitBreakerOpensAndDrains(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	healthy := false
	received := 0
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		received++
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	deliveries := newMemDeliveries()
	svc := newService(t, receiver.URL, deliveries, 50*time.Millisecond)

	// Five consecutive failed deliveries trip the breaker.
	for i := 0; i < webhooks.BreakerThreshold; i++ {
		err := svc.Deliver(ctx, webhooks.EventContractPublished, map[string]int{"n": i})
		require.Error(t, err)
	}
	assert.True(t, svc.BreakerOpen())

	// While open, events go to the dead-letter queue instead.
	require.NoError(t, svc.Deliver(ctx, webhooks.EventContractPublished, map[string]int{"n": 99}))
	assert.Equal(t, 1, svc.DeadLetterLen())

	mu.Lock()
	healthy = true
	mu.Unlock()

	// After the cooldown, a probe closes the circuit and drains the
	// queue.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, svc.Deliver(ctx, webhooks.EventContractPublished, map[string]int{"n": 100}))
	require.NoError(t, svc.Close())

	assert.False(t, svc.BreakerOpen())
	assert.Zero(t, svc.DeadLetterLen())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, received, "probe plus drained event")
}

func TestDeadLetterBounded(t *testing.T) {
	ctx := context.Background()
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer receiver.Close()

	svc := newService(t, receiver.URL, newMemDeliveries(), time.Hour)
	for i := 0; i < webhooks.BreakerThreshold; i++ {
		_ = svc.Deliver(ctx, "e", nil)
	}
	require.True(t, svc.BreakerOpen())

	for i := 0; i < webhooks.DeadLetterMax+25; i++ {
		require.NoError(t, svc.Deliver(ctx, "e", i))
	}
	assert.Equal(t, webhooks.DeadLetterMax, svc.DeadLetterLen())
}

func TestSign(t *testing.T) {
	sig := webhooks.Sign("secret", []byte(`{"a":1}`))
	assert.Contains(t, sig, "sha256=")
	assert.True(t, webhooks.VerifySignature("secret", []byte(`{"a":1}`), sig))
	assert.False(t, webhooks.VerifySignature("other", []byte(`{"a":1}`), sig))
}

func TestValidateURL(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	svc := webhooks.NewService(log, webhooks.Config{URL: "http://example.com"}, nil)
	assert.NoError(t, svc.ValidateURL(ctx, "http://93.184.216.34/hook"))
	assert.Error(t, svc.ValidateURL(ctx, "ftp://example.com/hook"))
	assert.Error(t, svc.ValidateURL(ctx, "http:///nohost"))
	assert.Error(t, svc.ValidateURL(ctx, "http://127.0.0.1/hook"))
	assert.Error(t, svc.ValidateURL(ctx, "http://10.1.2.3/hook"))
	assert.Error(t, svc.ValidateURL(ctx, "http://169.254.0.1/hook"))
	assert.Error(t, svc.ValidateURL(ctx, "http://[::1]/hook"))

	production := webhooks.NewService(log, webhooks.Config{URL: "https://example.com", Production: true}, nil)
	assert.Error(t, production.ValidateURL(ctx, "http://93.184.216.34/hook"))

	allowlisted := webhooks.NewService(log, webhooks.Config{
		URL:            "https://hooks.example.com",
		AllowedDomains: []string{"example.com"},
	}, nil)
	assert.Error(t, allowlisted.ValidateURL(ctx, "https://evil.test/hook"))
	assert.Error(t, allowlisted.ValidateURL(ctx, "https://notexample.com/hook"))
}
