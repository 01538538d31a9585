package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stock_monitor/models"
)

// MongoDB database and collection names
const (
	MongoDBName             = "stock_monitor"
	MongoSnapshotCollection = "snapshot_summary"
)

// MongoMirror pushes a read-optimized copy of the latest snapshot set to
// MongoDB Atlas after each run, so dashboards can read it without touching
// the primary Postgres store. Mirroring is best-effort: a mirror failure
// never fails the run.
type MongoMirror struct {
	client   *mongo.Client
	database *mongo.Database
}

// mongoSnapshotSummary is the single mirrored document, replaced each run.
type mongoSnapshotSummary struct {
	ID        string          `bson:"_id"`
	UpdatedAt time.Time       `bson:"updated_at"`
	Count     int             `bson:"count"`
	Snapshots []mongoSnapshot `bson:"snapshots"`
}

// mongoSnapshot flattens decimal columns to plain numbers for BSON.
type mongoSnapshot struct {
	Symbol         string    `bson:"symbol"`
	CurrentPrice   float64   `bson:"current_price"`
	PreviousClose  float64   `bson:"previous_close"`
	ChangePercent  float64   `bson:"change_percent"`
	ShortMA        *float64  `bson:"short_ma,omitempty"`
	LongMA         *float64  `bson:"long_ma,omitempty"`
	CrossoverState string    `bson:"crossover_state"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toMongoSnapshot(snap models.StockSnapshot) mongoSnapshot {
	doc := mongoSnapshot{
		Symbol:         snap.Symbol,
		CurrentPrice:   snap.CurrentPrice.InexactFloat64(),
		PreviousClose:  snap.PreviousClose.InexactFloat64(),
		ChangePercent:  snap.ChangePercent.InexactFloat64(),
		CrossoverState: snap.CrossoverState,
		UpdatedAt:      snap.UpdatedAt,
	}
	if snap.ShortMA.Valid {
		v := snap.ShortMA.Decimal.InexactFloat64()
		doc.ShortMA = &v
	}
	if snap.LongMA.Valid {
		v := snap.LongMA.Decimal.InexactFloat64()
		doc.LongMA = &v
	}
	return doc
}

// NewMongoMirror connects to MongoDB. Returns (nil, nil) when uri is empty,
// which disables mirroring.
func NewMongoMirror(ctx context.Context, uri string) (*MongoMirror, error) {
	if uri == "" {
		log.Println("MONGODB_URI not set, snapshot mirroring disabled")
		return nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	log.Println("MongoDB snapshot mirror connected")
	return &MongoMirror{
		client:   client,
		database: client.Database(MongoDBName),
	}, nil
}

// MirrorSnapshots replaces the mirrored snapshot summary document.
func (m *MongoMirror) MirrorSnapshots(ctx context.Context, snapshots map[string]models.StockSnapshot) error {
	if m == nil {
		return nil
	}

	docs := make([]mongoSnapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		docs = append(docs, toMongoSnapshot(snap))
	}

	summary := mongoSnapshotSummary{
		ID:        "latest",
		UpdatedAt: time.Now().UTC(),
		Count:     len(docs),
		Snapshots: docs,
	}

	coll := m.database.Collection(MongoSnapshotCollection)
	opts := options.Replace().SetUpsert(true)

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := coll.ReplaceOne(writeCtx, bson.M{"_id": summary.ID}, summary, opts); err != nil {
		return fmt.Errorf("failed to mirror snapshots: %w", err)
	}

	log.Printf("Mirrored %d snapshots to MongoDB", len(docs))
	return nil
}

// Close disconnects from MongoDB.
func (m *MongoMirror) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}
