package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-service/internal/config"
	"github.com/spec-kit/visit-service/internal/events"
)

// NotificationService forwards committed events to the configured webhook.
// Delivery happens off the request path; a failed delivery is logged and
// never affects the mutation that produced the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	client     *resty.Client
	wg         sync.WaitGroup
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		client:     client,
	}
}

// RegisterHandlers subscribes to every event type.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.SubscribeAll(n.handleEvent)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("visit_id", event.VisitID),
		zap.String("actor_id", event.Actor.ID))
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.Deliver(context.WithoutCancel(ctx), event); err != nil {
			n.logger.Warn("webhook delivery failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}()
	return nil
}

// Deliver posts one event to the webhook. The event id doubles as the
// idempotency key so receivers can drop retried duplicates.
func (n *NotificationService) Deliver(ctx context.Context, event events.Event) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", event.ID).
		SetBody(event).
		Post(n.cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook responded %d", resp.StatusCode())
	}
	n.logger.Debug("webhook delivered",
		zap.String("event_id", event.ID),
		zap.Int("status_code", resp.StatusCode()))
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (n *NotificationService) Wait() {
	n.wg.Wait()
}
