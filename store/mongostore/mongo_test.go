package mongostore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minelist/status-sync/store"
)

// newTestStore connects to the database named by STATUS_SYNC_MONGO_URI and
// uses a throwaway database that is dropped after the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("STATUS_SYNC_MONGO_URI")
	if uri == "" {
		t.Skip("STATUS_SYNC_MONGO_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database := fmt.Sprintf("status_sync_test_%s", uuid.NewString()[:8])
	s, err := Open(ctx, uri, database)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.client.Database(database).Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestClaimCooldown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.UnixMilli(1_700_000_000_000)

	c, err := s.ClaimCooldown(ctx, "Bob", "alpha", t0, time.Second)
	require.NoError(t, err)
	assert.True(t, c.Claimed)

	c, err = s.ClaimCooldown(ctx, "BOB", "Alpha", t0.Add(500*time.Millisecond), time.Second)
	require.NoError(t, err)
	assert.False(t, c.Claimed)
	assert.Equal(t, t0.UnixMilli(), c.LastVotedAt.UnixMilli())

	c, err = s.ClaimCooldown(ctx, "bob", "alpha", t0.Add(1500*time.Millisecond), time.Second)
	require.NoError(t, err)
	assert.True(t, c.Claimed)
}

func TestIncrementVotesConcurrently(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutServer(ctx, store.ServerRecord{Slug: "alpha"}))

	const voters = 25
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementVotes(ctx, "ALPHA")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.FindServer(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(voters), rec.Vote)
}

func TestEnsureUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.EnsureUser(ctx, "Steve", time.Now())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureUser(ctx, "steve", time.Now())
	require.NoError(t, err)
	assert.False(t, created)
}
