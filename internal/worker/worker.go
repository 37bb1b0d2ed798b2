package worker

import (
	"context"
	"errors"
	"log"

	"payment-service/internal/broker"
	"payment-service/internal/models"
	"payment-service/internal/service"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes provider notifications from the broker and
// feeds them to the reconciler. Delivery is at-least-once; the reconciler
// is the component that makes redelivery and reordering harmless.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	reconciler   *service.Reconciler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, reconciler *service.Reconciler) *NotificationWorker {
	w := &NotificationWorker{
		consumer:   consumer,
		reconciler: reconciler,
		logger:     util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnProviderNotification(w.handleNotification)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleNotification(ctx context.Context, event *models.NotificationEvent) error {
	util.NotificationsReceivedTotal.WithLabelValues("broker").Inc()

	result, err := w.reconciler.Apply(ctx, event)
	if errors.Is(err, store.ErrNotFound) {
		// Orphan notification: commit and move on, retrying cannot
		// make a payment exist that was never created.
		w.logger.Warn("Notification for unknown payment",
			zap.String("payment_id", event.PaymentID),
			zap.String("status", event.Status))
		return nil
	}
	if service.IsValidation(err) {
		w.logger.Warn("Malformed notification dropped",
			zap.String("payment_id", event.PaymentID),
			zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	if result.Duplicate || result.OutOfOrder {
		w.logger.Info("Notification acknowledged without mutation",
			zap.String("payment_id", event.PaymentID),
			zap.Bool("duplicate", result.Duplicate),
			zap.Bool("out_of_order", result.OutOfOrder))
	}
	return nil
}
