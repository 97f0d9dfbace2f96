// Package mongostore is the MongoDB store backend. Identity equivalence is
// expressed with a strength 1 collation (case and accent insensitive) on every
// unique index and every query, so the database itself enforces one cooldown
// record per voter and server.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/minelist/status-sync/store"
)

const (
	collectionServers   = "servers"
	collectionCooldowns = "cooldowns"
	collectionVotes     = "votes"
	collectionUsers     = "users"
)

var identityCollation = &options.Collation{
	Locale:   "en",
	Strength: 1,
}

type Store struct {
	client *mongo.Client

	servers   *mongo.Collection
	cooldowns *mongo.Collection
	votes     *mongo.Collection
	users     *mongo.Collection
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		servers:   db.Collection(collectionServers),
		cooldowns: db.Collection(collectionCooldowns),
		votes:     db.Collection(collectionVotes),
		users:     db.Collection(collectionUsers),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := func() *options.IndexOptions {
		return options.Index().SetUnique(true).SetCollation(identityCollation)
	}

	for coll, models := range map[*mongo.Collection][]mongo.IndexModel{
		s.servers: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: unique()},
		},
		s.cooldowns: {
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "serverSlug", Value: 1}}, Options: unique()},
		},
		s.users: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique()},
		},
		s.votes: {
			{
				Keys:    bson.D{{Key: "serverSlug", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetCollation(identityCollation),
			},
		},
	} {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on '%s': %w",
				coll.Name(), err,
			)
		}
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func enabled(filter bson.M) bson.M {
	filter["disabled"] = bson.M{"$ne": true}
	return filter
}

func (s *Store) ListEnabledServers(ctx context.Context) ([]store.ServerRecord, error) {
	cur, err := s.servers.Find(ctx, enabled(bson.M{}))
	if err != nil {
		return nil, err
	}
	out := make([]store.ServerRecord, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindServer(ctx context.Context, slug string) (*store.ServerRecord, error) {
	var rec store.ServerRecord
	err := s.servers.FindOne(ctx,
		enabled(bson.M{"slug": slug}),
		options.FindOne().SetCollation(identityCollation),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) PutServer(ctx context.Context, rec store.ServerRecord) error {
	if store.Fold(rec.Slug) == "" {
		return errors.New("server slug must not be empty")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	update := bson.M{
		"$set": bson.M{
			"name":                rec.Name,
			"address":             rec.Address,
			"online":              rec.Online,
			"players":             rec.Players,
			"maxPlayers":          rec.MaxPlayers,
			"lastStatusSync":      rec.LastStatusSync,
			"voteCooldownMs":      rec.VoteCooldownMs,
			"secret":              rec.Secret,
			"votingRewardEnabled": rec.VotingRewardEnabled,
			"disabled":            rec.Disabled,
		},
		"$setOnInsert": bson.M{
			"vote":      int64(0),
			"createdAt": createdAt,
		},
	}
	_, err := s.servers.UpdateOne(ctx,
		bson.M{"slug": rec.Slug},
		update,
		options.Update().SetUpsert(true).SetCollation(identityCollation),
	)
	return err
}

func (s *Store) UpdateServerStatus(ctx context.Context, slug string, upd store.StatusUpdate) error {
	res, err := s.servers.UpdateOne(ctx,
		bson.M{"slug": slug},
		bson.M{"$set": bson.M{
			"online":         upd.Online,
			"players":        upd.Players,
			"maxPlayers":     upd.MaxPlayers,
			"lastStatusSync": upd.LastStatusSync,
		}},
		options.Update().SetCollation(identityCollation),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementVotes(ctx context.Context, slug string) (int64, error) {
	var rec store.ServerRecord
	err := s.servers.FindOneAndUpdate(ctx,
		bson.M{"slug": slug},
		bson.M{"$inc": bson.M{"vote": int64(1)}},
		options.FindOneAndUpdate().
			SetCollation(identityCollation).
			SetReturnDocument(options.After).
			SetProjection(bson.M{"vote": 1}),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return rec.Vote, nil
}

// ClaimCooldown upserts the cooldown record only when the previous vote is
// older than window. A record inside the window does not match the filter,
// so the upsert attempts an insert that the unique index rejects.
func (s *Store) ClaimCooldown(
	ctx context.Context, username, slug string, now time.Time, window time.Duration,
) (store.Claim, error) {
	cutoff := now.Add(-window).UnixMilli()

	err := s.cooldowns.FindOneAndUpdate(ctx,
		bson.M{
			"username":    username,
			"serverSlug":  slug,
			"lastVotedAt": bson.M{"$lte": cutoff},
		},
		bson.M{"$set": bson.M{"lastVotedAt": now.UnixMilli()}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetCollation(identityCollation).
			SetReturnDocument(options.After),
	).Err()
	if err == nil {
		return store.Claim{Claimed: true, LastVotedAt: now}, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return store.Claim{}, err
	}

	rec, err := s.GetCooldown(ctx, username, slug)
	if err != nil {
		return store.Claim{}, err
	}
	return store.Claim{LastVotedAt: time.UnixMilli(rec.LastVotedAt)}, nil
}

func (s *Store) GetCooldown(ctx context.Context, username, slug string) (*store.CooldownRecord, error) {
	var rec store.CooldownRecord
	err := s.cooldowns.FindOne(ctx,
		bson.M{"username": username, "serverSlug": slug},
		options.FindOne().SetCollation(identityCollation),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) EnsureUser(ctx context.Context, username string, now time.Time) (bool, error) {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$setOnInsert": bson.M{"createdAt": now}},
		options.Update().SetUpsert(true).SetCollation(identityCollation),
	)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

func (s *Store) AppendVoteEvent(ctx context.Context, evt store.VoteEvent) error {
	_, err := s.votes.InsertOne(ctx, evt)
	return err
}

func (s *Store) ListVoteEvents(ctx context.Context, slug string, limit int) ([]store.VoteEvent, error) {
	opts := options.Find().
		SetCollation(identityCollation).
		SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.votes.Find(ctx, bson.M{"serverSlug": slug}, opts)
	if err != nil {
		return nil, err
	}
	out := make([]store.VoteEvent, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
