// Package leveldbstore is the embedded store backend. Records are JSON documents
// under prefixed keys built from folded identities; read-modify-write
// operations run inside a leveldb transaction, which admits one writer at a
// time and so makes upserts and increments atomic.
package leveldbstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/minelist/status-sync/store"
)

var (
	prefixServer   = []byte("srv:")
	prefixCooldown = []byte("cd:")
	prefixUser     = []byte("usr:")
	prefixEvent    = []byte("evt:")
)

type Store struct {
	db *leveldb.DB
}

var _ store.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at '%s': %w",
			path, err,
		)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a store that lives in memory only.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func serverKey(slug string) []byte {
	return append(bytes.Clone(prefixServer), store.Fold(slug)...)
}

func cooldownKey(username, slug string) []byte {
	k := append(bytes.Clone(prefixCooldown), store.Fold(username)...)
	k = append(k, 0)
	return append(k, store.Fold(slug)...)
}

func userKey(username string) []byte {
	return append(bytes.Clone(prefixUser), store.Fold(username)...)
}

func eventPrefix(slug string) []byte {
	k := append(bytes.Clone(prefixEvent), store.Fold(slug)...)
	return append(k, 0)
}

func eventKey(evt store.VoteEvent) []byte {
	k := eventPrefix(evt.ServerSlug)
	return append(k, fmt.Sprintf("%020d:%s", evt.Timestamp.UnixNano(), evt.ID)...)
}

// update runs fn inside a transaction and commits it when fn succeeds.
func (s *Store) update(ctx context.Context, fn func(tr *leveldb.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := fn(tr); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		// a failed commit keeps the write lock until the transaction is discarded
		tr.Discard()
		return err
	}
	return nil
}

func getJSON[T any](get func([]byte) ([]byte, error), key []byte) (*T, error) {
	b, err := get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("failed to decode record '%s': %w",
			string(key), err,
		)
	}
	return &v, nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	return s.db.Get(key, nil)
}

func txGet(tr *leveldb.Transaction) func([]byte) ([]byte, error) {
	return func(key []byte) ([]byte, error) {
		return tr.Get(key, nil)
	}
}

func putJSON(tr *leveldb.Transaction, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tr.Put(key, b, nil)
}

func (s *Store) ListEnabledServers(ctx context.Context) ([]store.ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(util.BytesPrefix(prefixServer), nil)
	defer it.Release()

	out := make([]store.ServerRecord, 0)
	for it.Next() {
		var rec store.ServerRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record '%s': %w",
				string(it.Key()), err,
			)
		}
		if rec.Disabled {
			continue
		}
		out = append(out, rec)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindServer(ctx context.Context, slug string) (*store.ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := getJSON[store.ServerRecord](s.get, serverKey(slug))
	if err != nil {
		return nil, err
	}
	if rec.Disabled {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) PutServer(ctx context.Context, rec store.ServerRecord) error {
	if store.Fold(rec.Slug) == "" {
		return errors.New("server slug must not be empty")
	}
	return s.update(ctx, func(tr *leveldb.Transaction) error {
		key := serverKey(rec.Slug)
		cur, err := getJSON[store.ServerRecord](txGet(tr), key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = time.Now().UTC()
			}
		case err != nil:
			return err
		default:
			rec.Vote = cur.Vote
			rec.CreatedAt = cur.CreatedAt
		}
		return putJSON(tr, key, rec)
	})
}

func (s *Store) UpdateServerStatus(ctx context.Context, slug string, upd store.StatusUpdate) error {
	return s.update(ctx, func(tr *leveldb.Transaction) error {
		key := serverKey(slug)
		rec, err := getJSON[store.ServerRecord](txGet(tr), key)
		if err != nil {
			return err
		}
		rec.Online = upd.Online
		rec.Players = upd.Players
		rec.MaxPlayers = upd.MaxPlayers
		rec.LastStatusSync = upd.LastStatusSync
		return putJSON(tr, key, rec)
	})
}

func (s *Store) IncrementVotes(ctx context.Context, slug string) (int64, error) {
	var votes int64
	err := s.update(ctx, func(tr *leveldb.Transaction) error {
		key := serverKey(slug)
		rec, err := getJSON[store.ServerRecord](txGet(tr), key)
		if err != nil {
			return err
		}
		rec.Vote++
		votes = rec.Vote
		return putJSON(tr, key, rec)
	})
	return votes, err
}

func (s *Store) ClaimCooldown(
	ctx context.Context, username, slug string, now time.Time, window time.Duration,
) (store.Claim, error) {
	var claim store.Claim
	err := s.update(ctx, func(tr *leveldb.Transaction) error {
		key := cooldownKey(username, slug)
		rec, err := getJSON[store.CooldownRecord](txGet(tr), key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			rec = &store.CooldownRecord{
				Username:   username,
				ServerSlug: slug,
			}
		case err != nil:
			return err
		default:
			last := time.UnixMilli(rec.LastVotedAt)
			if now.Sub(last) < window {
				claim = store.Claim{LastVotedAt: last}
				return nil
			}
		}
		rec.LastVotedAt = now.UnixMilli()
		claim = store.Claim{Claimed: true, LastVotedAt: now}
		return putJSON(tr, key, rec)
	})
	return claim, err
}

func (s *Store) GetCooldown(ctx context.Context, username, slug string) (*store.CooldownRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return getJSON[store.CooldownRecord](s.get, cooldownKey(username, slug))
}

func (s *Store) EnsureUser(ctx context.Context, username string, now time.Time) (bool, error) {
	created := false
	err := s.update(ctx, func(tr *leveldb.Transaction) error {
		key := userKey(username)
		_, err := getJSON[store.UserRecord](txGet(tr), key)
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		created = true
		return putJSON(tr, key, store.UserRecord{
			Username:  username,
			CreatedAt: now,
		})
	})
	return created, err
}

func (s *Store) AppendVoteEvent(ctx context.Context, evt store.VoteEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.db.Put(eventKey(evt), b, nil)
}

func (s *Store) ListVoteEvents(ctx context.Context, slug string, limit int) ([]store.VoteEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(util.BytesPrefix(eventPrefix(slug)), nil)
	defer it.Release()

	out := make([]store.VoteEvent, 0)
	for ok := it.Last(); ok && (limit <= 0 || len(out) < limit); ok = it.Prev() {
		var evt store.VoteEvent
		if err := json.Unmarshal(it.Value(), &evt); err != nil {
			return nil, fmt.Errorf("failed to decode record '%s': %w",
				string(it.Key()), err,
			)
		}
		out = append(out, evt)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
