package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"ingest-service/config"
	"ingest-service/internal/broker"
	"ingest-service/internal/models"
	"ingest-service/internal/store"

	"github.com/google/uuid"
)

// Seeder: the provisioning path. Bulk-creates tenants and their product
// catalogs, then announces the products so the service's catalog worker
// can warm its cache. Runs before ingest traffic begins.

var categories = []string{"Electronics", "Clothing", "Toys", "Beauty"}

func main() {
	var (
		numTenants  = flag.Int("tenants", 3, "number of tenants to create")
		numProducts = flag.Int("products", 1000, "products per tenant")
		batchSize   = flag.Int("batch", 1000, "products per insert batch")
		publish     = flag.Bool("publish", true, "publish ProductCreated events")
	)
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var publisher *broker.EventPublisher
	if *publish {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
	}

	for i := 0; i < *numTenants; i++ {
		name := fmt.Sprintf("Tenant_%d", i+1)
		tenant := &models.Tenant{
			ID:   uuid.New(),
			Name: name,
			Slug: fmt.Sprintf("tenant-%d", i+1),
		}
		if err := db.CreateTenant(ctx, tenant); err != nil {
			log.Fatalf("Failed to create tenant %s: %v", name, err)
		}

		// The insert is idempotent on slug; re-runs must seed products for
		// the existing row, not a fresh id.
		existing, err := db.GetTenantBySlug(ctx, tenant.Slug)
		if err != nil {
			log.Fatalf("Failed to load tenant %s: %v", tenant.Slug, err)
		}

		ids := seedProducts(ctx, db, existing.ID, *numProducts, *batchSize)
		log.Printf("Seeded tenant %s (%s) with %d products", existing.Name, existing.ID, len(ids))

		if publisher != nil {
			if err := publisher.PublishProductsCreated(ctx, existing.ID, ids); err != nil {
				log.Printf("Failed to publish catalog events for %s: %v", existing.Slug, err)
			}
		}
	}
}

func seedProducts(ctx context.Context, db *store.Store, tenantID uuid.UUID, total, batchSize int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, total)
	batch := make([]models.Product, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := db.CreateProducts(ctx, batch); err != nil {
			log.Fatalf("Failed to insert products: %v", err)
		}
		batch = batch[:0]
	}

	for i := 0; i < total; i++ {
		id := uuid.New()
		ids = append(ids, id)
		batch = append(batch, models.Product{
			ID:         id,
			TenantID:   tenantID,
			Title:      fmt.Sprintf("Product %d", i+1),
			Category:   categories[rand.Intn(len(categories))],
			PriceCents: int64(rand.Intn(99000) + 1000),
			Stock:      rand.Intn(10000),
		})
		if len(batch) >= batchSize {
			flush()
		}
	}
	flush()
	return ids
}
