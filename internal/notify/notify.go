// Package notify delivers analysis outcome notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

const (
	eventAnalysisComplete = "analysis.complete"
	eventHighRisk         = "analysis.high_risk"
)

// event is the webhook payload.
type event struct {
	Event        string    `json:"event"`
	UserID       string    `json:"user_id"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	RiskScore    int       `json:"risk_score"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// WebhookNotifier posts analysis events to a configured endpoint, typically
// the user-facing backend that fans them out as emails or push messages.
type WebhookNotifier struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWebhookNotifier(endpoint string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (n *WebhookNotifier) NotifyAnalysisComplete(ctx context.Context, userID, documentID, documentName string, riskScore int) error {
	return n.post(ctx, event{
		Event:        eventAnalysisComplete,
		UserID:       userID,
		DocumentID:   documentID,
		DocumentName: documentName,
		RiskScore:    riskScore,
		OccurredAt:   time.Now().UTC(),
	})
}

func (n *WebhookNotifier) NotifyHighRisk(ctx context.Context, userID, documentID, documentName string, riskScore int) error {
	return n.post(ctx, event{
		Event:        eventHighRisk,
		UserID:       userID,
		DocumentID:   documentID,
		DocumentName: documentName,
		RiskScore:    riskScore,
		OccurredAt:   time.Now().UTC(),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, ev event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build notification request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "deliver %s", ev.Event)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Newf("notification endpoint returned %d for %s", resp.StatusCode, ev.Event)
	}

	n.logger.Debug("notification delivered",
		zap.String("event", ev.Event),
		zap.String("document_id", ev.DocumentID),
	)
	return nil
}

// Nop discards all notifications. Used when no endpoint is configured.
type Nop struct{}

func (Nop) NotifyAnalysisComplete(ctx context.Context, userID, documentID, documentName string, riskScore int) error {
	return nil
}

func (Nop) NotifyHighRisk(ctx context.Context, userID, documentID, documentName string, riskScore int) error {
	return nil
}

var (
	_ domain.NotificationSender = (*WebhookNotifier)(nil)
	_ domain.NotificationSender = Nop{}
)
