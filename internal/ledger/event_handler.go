package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/richxcame/driver-ledger/pkg/eventbus"
	"github.com/richxcame/driver-ledger/pkg/logger"
	"go.uber.org/zap"
)

// EventHandler records driver earnings when rides complete.
type EventHandler struct {
	service *Service
}

// NewEventHandler creates an event handler backed by the ledger service.
func NewEventHandler(service *Service) *EventHandler {
	return &EventHandler{service: service}
}

// RegisterSubscriptions subscribes to ride completion events on the bus.
func (h *EventHandler) RegisterSubscriptions(ctx context.Context, bus *eventbus.Bus) error {
	if err := bus.Subscribe(ctx, eventbus.SubjectRideCompleted, "ledger-ride-completed", h.handleRideCompleted); err != nil {
		return fmt.Errorf("subscribe to %s: %w", eventbus.SubjectRideCompleted, err)
	}
	logger.Info("ledger: subscribed to ride completion events for driver earnings")
	return nil
}

func (h *EventHandler) handleRideCompleted(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.RideCompletedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal ride completed: %w", err)
	}

	if data.FareAmount <= 0 {
		logger.Warn("ledger: ride completed with zero fare, skipping earnings record",
			zap.String("ride_id", data.RideID.String()),
		)
		return nil
	}

	txn, breakdown, err := h.service.RecordRideEarning(ctx, data.DriverID, data.RideID, data.FareAmount, data.Currency)
	if err != nil {
		logger.Error("ledger: failed to record driver earning",
			zap.String("ride_id", data.RideID.String()),
			zap.String("driver_id", data.DriverID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("record driver earning: %w", err)
	}

	logger.Info("ledger: driver earning recorded",
		zap.String("ride_id", data.RideID.String()),
		zap.String("driver_id", data.DriverID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.Int64("gross", breakdown.GrossAmount),
		zap.Int64("commission", breakdown.Commission),
		zap.Int64("net", breakdown.NetAmount),
	)
	return nil
}
