package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"beacon/internal/logger"
	"beacon/pkg/errors"
	"beacon/pkg/metrics"
)

// SentryPayload is the relevant subset of an alerting webhook delivery. The
// interesting event sits under data.event; deliveries without one are
// acknowledged and dropped.
type SentryPayload struct {
	Data *SentryData `json:"data"`
}

type SentryData struct {
	Event *SentryEvent `json:"event"`
}

type SentryEvent struct {
	WebURL    string      `json:"web_url"`
	Title     string      `json:"title"`
	User      *SentryUser `json:"user"`
	Level     string      `json:"level"`
	Platform  string      `json:"platform"`
	Timestamp float64     `json:"timestamp"`
	Project   int64       `json:"project"`
	Logger    string      `json:"logger"`
	Release   string      `json:"release"`
	Culprit   string      `json:"culprit"`
	Tags      [][2]string `json:"tags"`
}

type SentryUser struct {
	ID string `json:"id"`
}

// Notifier forwards an alert event to the operator channel.
type Notifier interface {
	Notify(ctx context.Context, event *SentryEvent) error
}

// SentryService verifies and relays incoming alerting webhooks.
type SentryService struct {
	clientSecret string
	notifier     Notifier
	logger       logger.Logger
}

func NewSentryService(clientSecret string, notifier Notifier, log logger.Logger) *SentryService {
	return &SentryService{
		clientSecret: clientSecret,
		notifier:     notifier,
		logger:       log,
	}
}

// VerifySignature checks the hex HMAC-SHA256 of the raw request body against
// the signature carried in the delivery header.
func (s *SentryService) VerifySignature(body []byte, signature string) error {
	if signature == "" {
		return errors.ErrUnauthorized.WithMessage("Missing webhook signature")
	}
	if s.clientSecret == "" {
		return errors.ErrInternal.WithMessage("Webhook client secret not configured")
	}

	mac := hmac.New(sha256.New, []byte(s.clientSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return errors.ErrUnauthorized.WithMessage("Webhook signature verification failed")
	}
	return nil
}

// Process verifies the delivery and relays its event, if any, to the
// notifier. The raw body is authenticated before it is parsed.
func (s *SentryService) Process(ctx context.Context, body []byte, signature string) error {
	if err := s.VerifySignature(body, signature); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("rejected").Inc()
		s.logger.WarnwCtx(ctx, "Sentry webhook signature verification failed")
		return err
	}

	var payload SentryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("invalid").Inc()
		return errors.ErrInvalidPayloadShape.WithCause(err).WithMessage("Invalid webhook payload")
	}

	if payload.Data == nil || payload.Data.Event == nil {
		metrics.WebhookRequestsTotal.WithLabelValues("empty").Inc()
		s.logger.DebugwCtx(ctx, "Sentry webhook carried no event, dropped")
		return nil
	}

	if err := s.notifier.Notify(ctx, payload.Data.Event); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("relay_failed").Inc()
		s.logger.ErrorwCtx(ctx, "Failed to relay Sentry event", "error", err)
		return errors.ErrInternal.WithCause(err).WithMessage("Failed to process event")
	}

	metrics.WebhookRequestsTotal.WithLabelValues("relayed").Inc()
	return nil
}

// Environment extracts the environment tag from the event's tag pairs.
func (e *SentryEvent) Environment() string {
	for _, tag := range e.Tags {
		if tag[0] == "environment" {
			return tag[1]
		}
	}
	return "unknown"
}
