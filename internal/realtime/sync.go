package realtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/visit-service/internal/events"
)

// Sync turns committed domain events into broker signals and feeds received
// signals into the local hub.
type Sync struct {
	broker Broker
	hub    *Hub
	logger *zap.Logger
}

// NewSync wires a broker to a hub.
func NewSync(broker Broker, hub *Hub, logger *zap.Logger) *Sync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sync{broker: broker, hub: hub, logger: logger}
}

// RegisterHandlers subscribes to every event type on the dispatcher.
func (s *Sync) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.SubscribeAll(s.handleEvent)
}

func (s *Sync) handleEvent(ctx context.Context, event events.Event) error {
	sig, ok := SignalFor(event)
	if !ok {
		return nil
	}
	if err := s.broker.Publish(context.WithoutCancel(ctx), sig); err != nil {
		s.logger.Warn("realtime publish failed",
			zap.String("visit_id", sig.VisitID),
			zap.String("table", sig.Table),
			zap.Error(err))
	}
	return nil
}

// Run forwards broker signals to the hub until ctx is done.
func (s *Sync) Run(ctx context.Context) error {
	s.logger.Info("realtime listener started")
	defer s.logger.Info("realtime listener stopped")
	return s.broker.Listen(ctx, s.hub.Broadcast)
}

// Hub exposes the local fan-out hub.
func (s *Sync) Hub() *Hub {
	return s.hub
}
