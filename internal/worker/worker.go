package worker

import (
	"context"
	"encoding/json"

	"ingest-service/internal/broker"
	"ingest-service/internal/redisclient"
	"ingest-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CatalogWorker keeps the redis product-membership cache in step with the
// provisioning path by consuming ProductCreated events.
type CatalogWorker struct {
	consumer *broker.Consumer
	cache    *redisclient.Client
	logger   *zap.Logger
}

// NewCatalogWorker creates a new catalog worker
func NewCatalogWorker(consumer *broker.Consumer, cache *redisclient.Client) *CatalogWorker {
	return &CatalogWorker{
		consumer: consumer,
		cache:    cache,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *CatalogWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *CatalogWorker) Stop() error {
	w.logger.Info("Stopping catalog worker")
	return w.consumer.Close()
}

func (w *CatalogWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var base broker.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		w.logger.Error("Failed to unmarshal event", zap.Error(err))
		return nil // poison message, commit and move on
	}
	if base.EventType != broker.EventTypeProductCreated {
		return nil
	}

	var event broker.ProductCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Error("Failed to unmarshal ProductCreated event", zap.Error(err))
		return nil
	}

	if err := w.cache.AddProducts(ctx, event.TenantID, []uuid.UUID{event.ProductID}); err != nil {
		w.logger.Error("Failed to cache product",
			zap.String("tenant_id", event.TenantID.String()),
			zap.String("product_id", event.ProductID.String()),
			zap.Error(err))
		return err
	}
	return nil
}
