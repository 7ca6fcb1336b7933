package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
)

const (
	defaultHTTPStatusThreshold = 300
)

// WebhookNotifier pushes elevated-risk audit events to the security
// monitoring endpoint. Fire-and-forget: delivery problems are logged only.
type WebhookNotifier struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
}

func NewWebhookNotifier(log *zap.SugaredLogger, webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		client:     &http.Client{},
		log:        log,
		webhookURL: webhookURL,
	}
}

func (s *WebhookNotifier) NotifySecurityEvent(ctx context.Context, event models.AuditEvent) {
	go func() {
		if s.webhookURL == "" {
			return
		}

		payload, err := json.Marshal(event)
		if err != nil {
			s.log.Errorw("failed to marshal webhook payload", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create webhook request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send webhook", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= defaultHTTPStatusThreshold {
			s.log.Warnw("webhook returned non-2xx status", "status", resp.StatusCode, "event", event.Type)
		}
	}()
}
