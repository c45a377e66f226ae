package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseRespectsRPMLimit(t *testing.T) {
	pool := NewPool("main", []string{"key-a"}, 3, nil)
	base := time.Now()
	pool.nowFunc = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		cred, err := pool.Lease(ctx)
		require.NoError(t, err)
		cred.RecordRequest(base)
	}

	// Fourth lease within the same 60s window must block until capacity frees.
	waited := false
	pool.sleepFunc = func(_ context.Context, d time.Duration) error {
		waited = true
		base = base.Add(61 * time.Second)
		pool.nowFunc = func() time.Time { return base }
		return nil
	}

	cred, err := pool.Lease(ctx)
	require.NoError(t, err)
	assert.True(t, waited, "fourth lease should have waited for the window to free up")
	assert.Equal(t, "key-a", cred.Secret)
}

func TestSlidingWindowAllowsAfterOldestEntryExpires(t *testing.T) {
	pool := NewPool("main", []string{"key-a"}, 1, nil)
	base := time.Now()
	pool.nowFunc = func() time.Time { return base }

	cred, err := pool.Lease(context.Background())
	require.NoError(t, err)
	cred.RecordRequest(base)

	// Still inside 60s, pool should report no availability.
	next, wait := pool.tryLease()
	assert.Nil(t, next)
	assert.Greater(t, wait, time.Duration(0))
}

func TestPoolsAreDisjoint(t *testing.T) {
	main := NewPool("main", []string{"m1"}, 1, nil)
	tournament := NewPool("tournament", []string{"t1"}, 1, nil)

	base := time.Now()
	main.nowFunc = func() time.Time { return base }
	tournament.nowFunc = func() time.Time { return base }

	mc, err := main.Lease(context.Background())
	require.NoError(t, err)
	mc.RecordRequest(base)

	// Tournament pool is unaffected by main pool exhaustion.
	tc, err := tournament.Lease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", tc.Secret)
}

func TestRecordThrottledBacksOffExponentially(t *testing.T) {
	pool := NewPool("main", []string{"key-a"}, 100, nil)
	base := time.Now()
	pool.nowFunc = func() time.Time { return base }

	cred, err := pool.Lease(context.Background())
	require.NoError(t, err)
	cred.RecordThrottled()

	assert.True(t, base.Before(cred.state.throttledTill))
	firstWait := cred.state.throttledTill.Sub(base)
	assert.GreaterOrEqual(t, firstWait, time.Second)
	assert.LessOrEqual(t, firstWait, 2*time.Second)
}
