package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// =============================================================================
// MongoDB Analysis Archive
// =============================================================================

const (
	collectionArchive = "analysis_archive"

	// Records larger than this are stored gzip-compressed.
	archiveCompressionThreshold = 1024

	DefaultArchiveRetention = 90 * 24 * time.Hour
)

// Archive kinds
const (
	KindExchange = "exchange"
	KindAnalysis = "analysis"
	KindHandoff  = "handoff"
)

// ArchiveAdapter keeps an append-only copy of every triage decision for
// audits and for re-tuning the pattern catalog.
type ArchiveAdapter struct {
	collection *mongo.Collection
	retention  time.Duration
	now        func() time.Time
}

var _ out.TriageRecorder = (*ArchiveAdapter)(nil)

func NewArchiveAdapter(db *mongo.Database, retention time.Duration) *ArchiveAdapter {
	if retention <= 0 {
		retention = DefaultArchiveRetention
	}
	return &ArchiveAdapter{
		collection: db.Collection(collectionArchive),
		retention:  retention,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *ArchiveAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "combined_risk", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// archiveDocument represents the MongoDB document structure.
type archiveDocument struct {
	Kind           string `bson:"kind"`
	ConversationID string `bson:"conversation_id,omitempty"`

	// Denormalized for querying
	Severity     string   `bson:"severity,omitempty"`
	Sentiment    string   `bson:"sentiment,omitempty"`
	CombinedRisk string   `bson:"combined_risk,omitempty"`
	Categories   []string `bson:"categories,omitempty"`
	Status       string   `bson:"status,omitempty"`

	// Full record as JSON, possibly gzip-compressed
	Record       []byte `bson:"record"`
	IsCompressed bool   `bson:"is_compressed"`

	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func (a *ArchiveAdapter) RecordExchange(ctx context.Context, rec *domain.ExchangeRecord) error {
	doc, err := a.document(KindExchange, rec.ConversationID, rec.Assessment, rec)
	if err != nil {
		return err
	}
	doc.Status = string(rec.Status)
	return a.insert(ctx, doc)
}

func (a *ArchiveAdapter) RecordAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error {
	doc, err := a.document(KindAnalysis, rec.ConversationID, rec.Assessment, rec)
	if err != nil {
		return err
	}
	return a.insert(ctx, doc)
}

func (a *ArchiveAdapter) RecordHandoff(ctx context.Context, h *domain.HandoffRecord) error {
	record, compressed, err := encodeRecord(h)
	if err != nil {
		return err
	}
	now := a.now()
	return a.insert(ctx, &archiveDocument{
		Kind:           KindHandoff,
		ConversationID: h.ConversationID,
		Severity:       string(h.HarassmentSeverity),
		Categories:     h.TriggerCategories,
		Status:         string(h.Status),
		Record:         record,
		IsCompressed:   compressed,
		CreatedAt:      now,
		ExpiresAt:      now.Add(a.retention),
	})
}

func (a *ArchiveAdapter) document(kind, convID string, as domain.Assessment, v any) (*archiveDocument, error) {
	record, compressed, err := encodeRecord(v)
	if err != nil {
		return nil, err
	}
	now := a.now()
	return &archiveDocument{
		Kind:           kind,
		ConversationID: convID,
		Severity:       string(as.Harassment.Severity),
		Sentiment:      string(as.Sentiment.Sentiment),
		CombinedRisk:   string(as.CombinedRisk),
		Categories:     as.Harassment.Categories,
		Record:         record,
		IsCompressed:   compressed,
		CreatedAt:      now,
		ExpiresAt:      now.Add(a.retention),
	}, nil
}

func (a *ArchiveAdapter) insert(ctx context.Context, doc *archiveDocument) error {
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive %s: %w", doc.Kind, err)
	}
	return nil
}

// =============================================================================
// Compression
// =============================================================================

func encodeRecord(v any) ([]byte, bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal record: %w", err)
	}
	if len(data) < archiveCompressionThreshold {
		return data, false, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, false, err
	}
	if err := gz.Close(); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

func decodeRecord(data []byte, compressed bool, v any) error {
	if compressed {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer gz.Close()
		if data, err = io.ReadAll(gz); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, v)
}
