// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package webhooks delivers HMAC-signed event notifications with
// retries, SSRF guards, a circuit breaker, and a bounded dead-letter
// queue.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"tessera.io/tessera/tessera/registry"
)

var mon = monkit.Package()

// Error is the default error class for the webhooks package.
var Error = errs.Class("webhooks")

const (
	// MaxAttempts bounds delivery retries for one event.
	MaxAttempts = 3
	// MaxConcurrent bounds in-flight deliveries process-wide.
	MaxConcurrent = 10
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit.
	BreakerThreshold = 5
	// DeadLetterMax bounds the dead-letter queue; the oldest entry is
	// dropped when full.
	DeadLetterMax = 100
	// maxErrorLen caps last_error stored on a delivery row.
	maxErrorLen = 500
)

// retryDelays are the sleeps between delivery attempts.
var retryDelays = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}

// Config configures the webhook pipeline.
type Config struct {
	URL            string        `help:"receiver URL for webhook notifications" default:""`
	Secret         string        `help:"shared secret for HMAC signatures" default:""`
	AllowedDomains []string      `help:"hostnames (or subdomain suffixes) the receiver URL may resolve to"`
	Production     bool          `help:"require https receiver URLs" default:"false"`
	DNSTimeout     time.Duration `help:"timeout for resolving the receiver hostname" default:"5s"`
	RequestTimeout time.Duration `help:"per-attempt HTTP timeout" default:"30s"`
	Cooldown       time.Duration `help:"circuit breaker open duration" default:"60s"`
}

// Envelope is the wire format of every webhook notification.
type Envelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Event kinds.
const (
	EventProposalCreated       = "proposal.created"
	EventProposalAcknowledged  = "proposal.acknowledged"
	EventProposalApproved      = "proposal.approved"
	EventProposalRejected      = "proposal.rejected"
	EventProposalForceApproved = "proposal.force_approved"
	EventProposalWithdrawn     = "proposal.withdrawn"
	EventProposalSuperseded    = "proposal.superseded"
	EventContractPublished     = "contract.published"
)

// queued is one event waiting in the dead-letter queue.
type queued struct {
	event   string
	payload interface{}
}

// Service schedules and performs webhook deliveries.
//
// architecture: Service
type Service struct {
	log        *zap.Logger
	config     Config
	deliveries registry.WebhookDeliveries
	client     *http.Client
	sem        *semaphore.Weighted
	breaker    *gobreaker.CircuitBreaker
	nowFn      func() time.Time
	sleepFn    func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	dead []queued

	wg sync.WaitGroup
}

// NewService creates the webhook pipeline. A nil service or an empty
// receiver URL disables delivery.
func NewService(log *zap.Logger, config Config, deliveries registry.WebhookDeliveries) *Service {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.DNSTimeout <= 0 {
		config.DNSTimeout = 5 * time.Second
	}
	if config.Cooldown <= 0 {
		config.Cooldown = time.Minute
	}
	s := &Service{
		log:        log,
		config:     config,
		deliveries: deliveries,
		client: &http.Client{
			Timeout: config.RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		sem:     semaphore.NewWeighted(MaxConcurrent),
		nowFn:   time.Now,
		sleepFn: sleep,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhooks",
		MaxRequests: 1,
		Timeout:     config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BreakerThreshold
		},
		OnStateChange: s.onStateChange,
	})
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TestSetSleep overrides retry sleeps, for tests.
func (s *Service) TestSetSleep(fn func(ctx context.Context, d time.Duration) error) { s.sleepFn = fn }

// Enabled reports whether a receiver URL is configured.
func (s *Service) Enabled() bool { return s != nil && s.config.URL != "" }

// Send schedules a fire-and-forget delivery. It never blocks the
// caller; backpressure is exerted by the in-flight semaphore inside
// the spawned task.
func (s *Service) Send(event string, payload interface{}) {
	if !s.Enabled() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Deliveries outlive the originating request.
		if err := s.Deliver(context.Background(), event, payload); err != nil {
			s.log.Warn("webhook delivery failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

// Close waits for in-flight deliveries to settle.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.wg.Wait()
	return nil
}

// Deliver performs one delivery synchronously, honoring the breaker,
// the semaphore, and the retry policy.
func (s *Service) Deliver(ctx context.Context, event string, payload interface{}) (err error) {
	defer mon.Task()(&ctx)(&err)
	if !s.Enabled() {
		return nil
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.attempt(ctx, event, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.enqueueDeadLetter(event, payload)
		return nil
	}
	return err
}

func (s *Service) attempt(ctx context.Context, event string, payload interface{}) (err error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Error.Wrap(err)
	}
	defer s.sem.Release(1)

	if err := s.ValidateURL(ctx, s.config.URL); err != nil {
		return err
	}

	now := s.nowFn().UTC()
	body, err := json.Marshal(Envelope{Event: event, Timestamp: now, Payload: payload})
	if err != nil {
		return Error.Wrap(err)
	}

	delivery, err := s.insertDelivery(ctx, event, body)
	if err != nil {
		return err
	}

	var lastErr error
	var lastStatus *int
	for i := 0; i < MaxAttempts; i++ {
		if i > 0 {
			if err := s.sleepFn(ctx, retryDelays[i-1]); err != nil {
				lastErr = err
				break
			}
		}
		status, err := s.post(ctx, body, event, now)
		attemptAt := s.nowFn().UTC()
		if err == nil && status < 300 {
			s.updateDelivery(ctx, delivery, registry.UpdateDeliveryRequest{
				Status:         registry.DeliveryDelivered,
				Attempts:       i + 1,
				LastAttemptAt:  &attemptAt,
				LastStatusCode: &status,
				DeliveredAt:    &attemptAt,
			})
			mon.Counter("webhook_delivered").Inc(1)
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = Error.New("receiver returned status %d", status)
			lastStatus = &status
		}
		s.updateDelivery(ctx, delivery, registry.UpdateDeliveryRequest{
			Status:         registry.DeliveryPending,
			Attempts:       i + 1,
			LastAttemptAt:  &attemptAt,
			LastError:      truncateError(lastErr),
			LastStatusCode: lastStatus,
		})
	}

	attemptAt := s.nowFn().UTC()
	s.updateDelivery(ctx, delivery, registry.UpdateDeliveryRequest{
		Status:         registry.DeliveryFailed,
		Attempts:       MaxAttempts,
		LastAttemptAt:  &attemptAt,
		LastError:      truncateError(lastErr),
		LastStatusCode: lastStatus,
	})
	mon.Counter("webhook_failed").Inc(1)
	return Error.Wrap(lastErr)
}

func (s *Service) post(ctx context.Context, body []byte, event string, timestamp time.Time) (status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return 0, Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tessera-Event", event)
	req.Header.Set("X-Tessera-Timestamp", timestamp.Format(time.RFC3339))
	if s.config.Secret != "" {
		req.Header.Set("X-Tessera-Signature", Sign(s.config.Secret, body))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, resp.Body.Close()) }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// Sign computes the sha256 HMAC signature header value for a body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header against a body.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func (s *Service) insertDelivery(ctx context.Context, event string, body []byte) (*registry.WebhookDelivery, error) {
	if s.deliveries == nil {
		return nil, nil
	}
	delivery, err := s.deliveries.Insert(ctx, registry.WebhookDelivery{
		ID:        uuid.New(),
		EventType: event,
		Payload:   body,
		URL:       s.config.URL,
		Status:    registry.DeliveryPending,
	})
	if err != nil {
		// The delivery still proceeds; the row is bookkeeping.
		s.log.Warn("failed to record webhook delivery", zap.Error(err))
		return nil, nil
	}
	return delivery, nil
}

func (s *Service) updateDelivery(ctx context.Context, delivery *registry.WebhookDelivery, req registry.UpdateDeliveryRequest) {
	if s.deliveries == nil || delivery == nil {
		return
	}
	if err := s.deliveries.Update(ctx, delivery.ID, req); err != nil {
		s.log.Warn("failed to update webhook delivery", zap.Error(err))
	}
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}

func (s *Service) onStateChange(name string, from, to gobreaker.State) {
	s.log.Info("webhook circuit state change",
		zap.String("from", from.String()), zap.String("to", to.String()))
	if to == gobreaker.StateClosed {
		s.drainDeadLetters()
	}
}

func (s *Service) enqueueDeadLetter(event string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dead) >= DeadLetterMax {
		dropped := s.dead[0]
		s.dead = s.dead[1:]
		s.log.Warn("dead-letter queue full, dropping oldest event", zap.String("event", dropped.event))
	}
	s.dead = append(s.dead, queued{event: event, payload: payload})
	mon.Counter("webhook_dead_lettered").Inc(1)
}

func (s *Service) drainDeadLetters() {
	s.mu.Lock()
	drained := s.dead
	s.dead = nil
	s.mu.Unlock()
	if len(drained) == 0 {
		return
	}
	s.log.Info("draining webhook dead-letter queue", zap.Int("count", len(drained)))
	for _, q := range drained {
		s.Send(q.event, q.payload)
	}
}

// DeadLetterLen reports the current dead-letter queue depth.
func (s *Service) DeadLetterLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dead)
}

// BreakerOpen reports whether the circuit is currently open.
func (s *Service) BreakerOpen() bool {
	return s.breaker.State() == gobreaker.StateOpen
}
