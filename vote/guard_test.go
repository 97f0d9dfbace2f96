package vote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minelist/status-sync/notify"
	"github.com/minelist/status-sync/store"
	"github.com/minelist/status-sync/store/leveldbstore"
)

type fakeClock struct {
	mx  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.now = t
}

type fakeNotifier struct {
	mx     sync.Mutex
	events []notify.Event
	err    error
	panics bool
}

func (n *fakeNotifier) Broadcast(_ context.Context, evt notify.Event) error {
	if n.panics {
		panic("notifier exploded")
	}
	n.mx.Lock()
	defer n.mx.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

func (n *fakeNotifier) Close() error { return nil }

// faultyStore fails selected operations of an otherwise working store.
type faultyStore struct {
	Store

	failClaim     bool
	failIncrement bool
	failEvents    bool
}

func (s *faultyStore) ClaimCooldown(ctx context.Context, username, slug string, now time.Time, window time.Duration) (store.Claim, error) {
	if s.failClaim {
		return store.Claim{}, errors.New("storage down")
	}
	return s.Store.ClaimCooldown(ctx, username, slug, now, window)
}

func (s *faultyStore) IncrementVotes(ctx context.Context, slug string) (int64, error) {
	if s.failIncrement {
		return 0, errors.New("storage down")
	}
	return s.Store.IncrementVotes(ctx, slug)
}

func (s *faultyStore) AppendVoteEvent(ctx context.Context, evt store.VoteEvent) error {
	if s.failEvents {
		return errors.New("storage down")
	}
	return s.Store.AppendVoteEvent(ctx, evt)
}

type fixture struct {
	store    *leveldbstore.Store
	clock    *fakeClock
	notifier *fakeNotifier
	guard    *Guard
	t0       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := leveldbstore.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.PutServer(ctx, store.ServerRecord{Slug: "alpha", VoteCooldownMs: 1000}))
	require.NoError(t, st.PutServer(ctx, store.ServerRecord{Slug: "beta"}))
	require.NoError(t, st.PutServer(ctx, store.ServerRecord{
		Slug: "rewards", Secret: "s3cr3t", VotingRewardEnabled: true,
	}))
	require.NoError(t, st.PutServer(ctx, store.ServerRecord{
		Slug: "norewards", Secret: "s3cr3t", VotingRewardEnabled: false,
	}))
	require.NoError(t, st.PutServer(ctx, store.ServerRecord{Slug: "gone", Disabled: true}))

	t0 := time.UnixMilli(1_700_000_000_000)
	f := &fixture{
		store:    st,
		clock:    &fakeClock{now: t0},
		notifier: &fakeNotifier{},
		t0:       t0,
	}
	f.guard = New(st, f.notifier, Options{Now: f.clock.Now})
	return f
}

func (f *fixture) votes(t *testing.T, slug string) int64 {
	t.Helper()
	rec, err := f.store.FindServer(context.Background(), slug)
	require.NoError(t, err)
	return rec.Vote
}

func TestCooldownScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{Username: "bob", ServerSlug: "alpha"}

	out, err := f.guard.TryVote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Accepted, out.Status)
	assert.Equal(t, "alpha", out.ServerSlug)
	assert.False(t, out.RewardSent)

	f.clock.Set(f.t0.Add(500 * time.Millisecond))
	out, err = f.guard.TryVote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, RejectedCooldownActive, out.Status)
	assert.Equal(t, 500*time.Millisecond, out.Remaining)
	assert.Equal(t, int64(500), out.RemainingMs())

	f.clock.Set(f.t0.Add(1500 * time.Millisecond))
	out, err = f.guard.TryVote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Accepted, out.Status)

	assert.Equal(t, int64(2), f.votes(t, "alpha"))
}

func TestDefaultCooldownWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{Username: "alice", ServerSlug: "beta"}

	out, err := f.guard.TryVote(ctx, req)
	require.NoError(t, err)
	require.Equal(t, Accepted, out.Status)

	f.clock.Set(f.t0.Add(11 * time.Hour))
	out, err = f.guard.TryVote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, RejectedCooldownActive, out.Status)
	assert.Equal(t, time.Hour, out.Remaining)
	assert.LessOrEqual(t, out.Remaining, DefaultCooldown)

	f.clock.Set(f.t0.Add(12 * time.Hour))
	out, err = f.guard.TryVote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Accepted, out.Status)
}

func TestIdentityIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.guard.TryVote(ctx, Request{Username: "Foo", ServerSlug: "beta"})
	require.NoError(t, err)
	require.Equal(t, Accepted, out.Status)

	out, err = f.guard.TryVote(ctx, Request{Username: "FOO", ServerSlug: "BETA"})
	require.NoError(t, err)
	assert.Equal(t, RejectedCooldownActive, out.Status)
	assert.Equal(t, "beta", out.ServerSlug)

	out, err = f.guard.TryVote(ctx, Request{Username: "foo", ServerSlug: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, Accepted, out.Status, "cooldowns are per server")
}

func TestUnknownServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, slug := range []string{"nope", "gone"} {
		t.Run(slug, func(t *testing.T) {
			out, err := f.guard.TryVote(ctx, Request{Username: "bob", ServerSlug: slug})
			require.NoError(t, err)
			assert.Equal(t, RejectedUnknownServer, out.Status)
			assert.Equal(t, "unknown_server", out.Status.String())
		})
	}
}

func TestRewardSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid secret leaves no trace", func(t *testing.T) {
		f := newFixture(t)

		out, err := f.guard.TryVote(ctx, Request{Username: "bob", ServerSlug: "rewards", RewardSecret: "wrong"})
		require.NoError(t, err)
		assert.Equal(t, RejectedInvalidSecret, out.Status)

		_, err = f.store.GetCooldown(ctx, "bob", "rewards")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.Equal(t, int64(0), f.votes(t, "rewards"))
		assert.Empty(t, f.notifier.events)
	})

	t.Run("secret on a server without one", func(t *testing.T) {
		f := newFixture(t)

		out, err := f.guard.TryVote(ctx, Request{Username: "bob", ServerSlug: "beta", RewardSecret: "anything"})
		require.NoError(t, err)
		assert.Equal(t, RejectedInvalidSecret, out.Status)
	})

	t.Run("rewards disabled", func(t *testing.T) {
		f := newFixture(t)

		out, err := f.guard.TryVote(ctx, Request{Username: "bob", ServerSlug: "norewards", RewardSecret: "s3cr3t"})
		require.NoError(t, err)
		assert.Equal(t, RejectedRewardsDisabled, out.Status)
		assert.Equal(t, int64(0), f.votes(t, "norewards"))
	})

	t.Run("reward is broadcast", func(t *testing.T) {
		f := newFixture(t)

		out, err := f.guard.TryVote(ctx, Request{Username: "Bob", ServerSlug: "REWARDS", RewardSecret: "s3cr3t"})
		require.NoError(t, err)
		assert.Equal(t, Accepted, out.Status)
		assert.True(t, out.RewardSent)

		require.Len(t, f.notifier.events, 1)
		assert.Equal(t, notify.Event{
			ServerSlug: "rewards",
			Username:   "Bob",
			RewardSent: true,
			Timestamp:  f.t0.UTC(),
		}, f.notifier.events[0])
	})

	t.Run("notifier failures do not fail the vote", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.err = errors.New("channel closed")

		out, err := f.guard.TryVote(ctx, Request{Username: "bob", ServerSlug: "rewards", RewardSecret: "s3cr3t"})
		require.NoError(t, err)
		assert.Equal(t, Accepted, out.Status)
		assert.False(t, out.RewardSent)
		assert.Equal(t, int64(1), f.votes(t, "rewards"))
	})

	t.Run("notifier panics do not fail the vote", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.panics = true

		out, err := f.guard.TryVote(ctx, Request{Username: "bob", ServerSlug: "rewards", RewardSecret: "s3cr3t"})
		require.NoError(t, err)
		assert.Equal(t, Accepted, out.Status)
		assert.False(t, out.RewardSent)
	})
}

func TestConcurrentVotes(t *testing.T) {
	ctx := context.Background()

	t.Run("distinct voters are all counted", func(t *testing.T) {
		f := newFixture(t)

		const voters = 40
		var wg sync.WaitGroup
		for i := 0; i < voters; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out, err := f.guard.TryVote(ctx, Request{Username: fmt.Sprintf("player%d", i), ServerSlug: "beta"})
				assert.NoError(t, err)
				assert.Equal(t, Accepted, out.Status)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int64(voters), f.votes(t, "beta"))
	})

	t.Run("the same voter wins once", func(t *testing.T) {
		f := newFixture(t)

		const attempts = 20
		var (
			wg       sync.WaitGroup
			mx       sync.Mutex
			accepted int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				name := "steve"
				if i%2 == 0 {
					name = "STEVE"
				}
				out, err := f.guard.TryVote(ctx, Request{Username: name, ServerSlug: "beta"})
				assert.NoError(t, err)
				if out.Accepted() {
					mx.Lock()
					accepted++
					mx.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, accepted)
		assert.Equal(t, int64(1), f.votes(t, "beta"))
	})
}

func TestHistoryAndUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.guard.TryVote(ctx, Request{Username: "  Notch ", ServerSlug: "beta"})
	require.NoError(t, err)
	require.Equal(t, Accepted, out.Status)

	evts, err := f.store.ListVoteEvents(ctx, "beta", 10)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "Notch", evts[0].Username)
	assert.NotEmpty(t, evts[0].ID)

	created, err := f.store.EnsureUser(ctx, "notch", time.Now())
	require.NoError(t, err)
	assert.False(t, created, "the vote created the user")
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("cooldown failure surfaces as an error", func(t *testing.T) {
		f := newFixture(t)
		g := New(&faultyStore{Store: f.store, failClaim: true}, f.notifier, Options{Now: f.clock.Now})

		_, err := g.TryVote(ctx, Request{Username: "bob", ServerSlug: "beta"})
		assert.Error(t, err)
		assert.Equal(t, int64(0), f.votes(t, "beta"))
	})

	t.Run("follow-up failures keep the vote", func(t *testing.T) {
		f := newFixture(t)
		g := New(&faultyStore{Store: f.store, failIncrement: true, failEvents: true}, f.notifier, Options{Now: f.clock.Now})

		out, err := g.TryVote(ctx, Request{Username: "bob", ServerSlug: "beta"})
		require.NoError(t, err)
		assert.Equal(t, Accepted, out.Status)

		out, err = g.TryVote(ctx, Request{Username: "bob", ServerSlug: "beta"})
		require.NoError(t, err)
		assert.Equal(t, RejectedCooldownActive, out.Status)
	})
}

func TestInvalidUsername(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"", "   ", "a-name-that-is-way-too-long-to-be-real"} {
		_, err := f.guard.TryVote(context.Background(), Request{Username: name, ServerSlug: "beta"})
		assert.ErrorIs(t, err, ErrInvalidUsername)
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, int64(2), Outcome{Remaining: 1001 * time.Microsecond}.RemainingMs())
	assert.Equal(t, int64(1), Outcome{Remaining: time.Millisecond}.RemainingMs())

	text, err := RejectedRewardsDisabled.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "rewards_disabled", string(text))
}
