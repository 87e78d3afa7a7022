package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bandwatch/internal/model"
)

const (
	collectionRules    = "alert_rules"
	collectionEvents   = "alert_events"
	collectionCounters = "counters"
)

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type ruleDoc struct {
	ID                      int64     `bson:"_id"`
	Name                    string    `bson:"name"`
	Kind                    string    `bson:"kind"`
	Enabled                 bool      `bson:"enabled"`
	EntityID                *string   `bson:"entity_id"`
	ThresholdBytes          int64     `bson:"threshold_bytes,omitempty"`
	OfflineThresholdMinutes int       `bson:"offline_threshold_minutes,omitempty"`
	Channels                []string  `bson:"notification_channels"`
	Severity                string    `bson:"severity"`
	UpdatedAt               time.Time `bson:"updated_at"`
}

type eventDoc struct {
	ID          int64      `bson:"_id"`
	RuleID      int64      `bson:"rule_id"`
	Kind        string     `bson:"kind"`
	Message     string     `bson:"message"`
	Severity    string     `bson:"severity"`
	EntityID    *string    `bson:"entity_id"`
	TriggeredAt time.Time  `bson:"triggered_at"`
	ResolvedAt  *time.Time `bson:"resolved_at,omitempty"`
	Status      string     `bson:"status"`
}

func NewMongo(uri, database string) (Store, error) {
	if database == "" {
		database = "bandwatch"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	return &mongoStore{client: client, db: client.Database(database)}, nil
}

func (s *mongoStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}
	_, err := s.db.Collection(collectionRules).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "enabled", Value: 1}},
			Options: options.Index().SetName("enabled"),
		},
	})
	if err != nil {
		return fmt.Errorf("create rule indexes: %w", err)
	}
	_, err = s.db.Collection(collectionEvents).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "rule_id", Value: 1},
			{Key: "entity_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "triggered_at", Value: -1},
		},
		Options: options.Index().SetName("open_events"),
	})
	if err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}
	return nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// nextID hands out sequential ids so events keep integer identities across drivers.
func (s *mongoStore) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(collectionCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return counter.Seq, nil
}

func (s *mongoStore) ListEnabledRules(ctx context.Context) ([]model.AlertRule, error) {
	cursor, err := s.db.Collection(collectionRules).Find(ctx,
		bson.M{"enabled": true},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []model.AlertRule
	for cursor.Next(ctx) {
		var d ruleDoc
		if err := cursor.Decode(&d); err != nil {
			slog.Warn("skipping unreadable alert rule", "driver", "mongodb", "err", err)
			continue
		}
		rule := model.AlertRule{
			ID:                      d.ID,
			Name:                    d.Name,
			Kind:                    model.RuleKind(d.Kind),
			Enabled:                 d.Enabled,
			ThresholdBytesPerSec:    d.ThresholdBytes,
			OfflineThresholdMinutes: d.OfflineThresholdMinutes,
			Severity:                model.Severity(d.Severity),
		}
		if d.EntityID != nil {
			rule.EntityID = *d.EntityID
		}
		for _, c := range d.Channels {
			rule.NotificationChannels = append(rule.NotificationChannels, model.ChannelKind(c))
		}
		out = append(out, rule)
	}
	return out, cursor.Err()
}

func (s *mongoStore) SaveRule(ctx context.Context, rule model.AlertRule) (int64, error) {
	coll := s.db.Collection(collectionRules)
	var existing ruleDoc
	err := coll.FindOne(ctx, bson.M{"name": rule.Name}).Decode(&existing)
	id := existing.ID
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		if id, err = s.nextID(ctx, collectionRules); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	}
	doc := ruleDoc{
		ID:                      id,
		Name:                    rule.Name,
		Kind:                    string(rule.Kind),
		Enabled:                 rule.Enabled,
		EntityID:                optionalString(rule.EntityID),
		ThresholdBytes:          rule.ThresholdBytesPerSec,
		OfflineThresholdMinutes: rule.OfflineThresholdMinutes,
		Severity:                string(rule.Severity),
		UpdatedAt:               nowUTC(),
	}
	for _, k := range rule.NotificationChannels {
		doc.Channels = append(doc.Channels, string(k))
	}
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *mongoStore) CreateEvent(ctx context.Context, ev model.NewEvent) (int64, error) {
	id, err := s.nextID(ctx, collectionEvents)
	if err != nil {
		return 0, err
	}
	triggered := ev.TriggeredAt
	if triggered.IsZero() {
		triggered = nowUTC()
	}
	_, err = s.db.Collection(collectionEvents).InsertOne(ctx, eventDoc{
		ID:          id,
		RuleID:      ev.RuleID,
		Kind:        string(ev.Kind),
		Message:     ev.Message,
		Severity:    string(ev.Severity),
		EntityID:    optionalString(ev.EntityID),
		TriggeredAt: triggered.UTC(),
		Status:      string(model.StatusTriggered),
	})
	if err != nil {
		return 0, fmt.Errorf("create event for rule %d: %w", ev.RuleID, err)
	}
	return id, nil
}

func (s *mongoStore) FindOpenEvent(ctx context.Context, ruleID int64, entityID string, since time.Time) (*model.AlertEvent, error) {
	filter := bson.M{
		"rule_id":      ruleID,
		"status":       string(model.StatusTriggered),
		"triggered_at": bson.M{"$gte": since.UTC()},
		"entity_id":    optionalString(entityID),
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "triggered_at", Value: -1}})
	return s.findEvent(ctx, filter, opts)
}

func (s *mongoStore) GetEvent(ctx context.Context, id int64) (*model.AlertEvent, error) {
	return s.findEvent(ctx, bson.M{"_id": id})
}

func (s *mongoStore) findEvent(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*model.AlertEvent, error) {
	var doc eventDoc
	err := s.db.Collection(collectionEvents).FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev := &model.AlertEvent{
		ID:          doc.ID,
		RuleID:      doc.RuleID,
		Kind:        model.RuleKind(doc.Kind),
		Message:     doc.Message,
		Severity:    model.Severity(doc.Severity),
		TriggeredAt: doc.TriggeredAt.UTC(),
		ResolvedAt:  doc.ResolvedAt,
		Status:      model.Status(doc.Status),
	}
	if doc.EntityID != nil {
		ev.EntityID = *doc.EntityID
	}
	return ev, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
