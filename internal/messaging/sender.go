// Package messaging owns the outbound SMS gateway and the append-only
// message log. The gateway is an interface so the job executor, the
// conversation state machine and tests all share the same send contract.
package messaging

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"lettings_triage_backend/platform/logger"

	"golang.org/x/time/rate"
)

// SendInput is the outbound send contract: from, to, body.
type SendInput struct {
	From string
	To   string
	Body string
}

// SendResult carries the provider's message id back for the message log.
type SendResult struct {
	ProviderMessageID string
	Provider          string
}

// Sender sends one SMS. Implementations: Twilio REST, mock, rate-limited
// decorator. A test double is just another implementation.
type Sender interface {
	SendSms(ctx context.Context, input SendInput) (SendResult, error)
}

// MockSender logs sends instead of performing them. Selected when provider
// credentials are absent or MOCK_TWILIO is set.
type MockSender struct {
	log *logger.Logger
}

func NewMockSender(log *logger.Logger) *MockSender {
	return &MockSender{log: log}
}

func (s *MockSender) SendSms(_ context.Context, input SendInput) (SendResult, error) {
	id := fmt.Sprintf("MOCK_%d_%06d", time.Now().UnixMilli(), rand.Intn(1_000_000))
	s.log.SmsSent("mock", input.From, input.To, id)
	return SendResult{ProviderMessageID: id, Provider: "mock"}, nil
}

// RateLimitedSender wraps another Sender with a token-bucket limiter so a
// burst of due jobs cannot flood the provider.
type RateLimitedSender struct {
	inner   Sender
	limiter *rate.Limiter
}

func NewRateLimitedSender(inner Sender, perSecond float64) *RateLimitedSender {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &RateLimitedSender{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (s *RateLimitedSender) SendSms(ctx context.Context, input SendInput) (SendResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return SendResult{}, err
	}
	return s.inner.SendSms(ctx, input)
}
