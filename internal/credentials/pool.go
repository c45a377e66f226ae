// Package credentials implements the rate-limited credential pool shared by
// the discovery services and the match summary worker.
//
// Unlike the teacher's Redis-backed RiotRateLimiter, budget enforcement here
// is process-local: a single mutex guards both the round-robin pointer and
// every credential's sliding window, per the spec's "process-local... guarded
// by a single mutex" requirement. Redis is only used afterwards to publish a
// non-authoritative snapshot for operators (see internal/cache).
package credentials

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pewstats/collectors/internal/cache"
)

// Pool is a disjoint set of Credentials with independent round-robin state.
// The main and tournament pools are always two distinct *Pool values — they
// never share a mutex, a waiter, or a round-robin cursor.
type Pool struct {
	mu         sync.Mutex
	name       string
	creds      []*credentialState
	cursor     int
	cache      *cache.Service
	nowFunc    func() time.Time
	sleepFunc  func(context.Context, time.Duration) error
}

// Credential is the public handle returned by Lease. It is usable exactly
// once — callers must call RecordRequest or RecordThrottled after use, and
// must not reuse a handle across requests.
type Credential struct {
	Secret string
	pool   *Pool
	state  *credentialState
}

type credentialState struct {
	secret        string
	rpmLimit      int
	window        []time.Time // sliding window of dispatch timestamps, oldest first
	throttledTill time.Time
	backoffN      int
}

// NewPool builds a pool from a list of secrets sharing one rpmLimit, per the
// spec's per-pool budget (§3 Credential). name is "main" or "tournament" and
// is used only for the observability snapshot key.
func NewPool(name string, secrets []string, rpmLimit int, cacheSvc *cache.Service) *Pool {
	creds := make([]*credentialState, 0, len(secrets))
	for _, s := range secrets {
		creds = append(creds, &credentialState{secret: s, rpmLimit: rpmLimit})
	}
	return &Pool{
		name:      name,
		creds:     creds,
		cache:     cacheSvc,
		nowFunc:   time.Now,
		sleepFunc: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lease blocks until a credential is available under this pool's budget,
// then returns it to the caller. Nothing is recorded at lease time: the
// window entry is only recorded by RecordRequest, once the HTTP request is
// actually dispatched.
//
// Availability: a credential is available iff its sliding window holds
// fewer than rpmLimit entries, or its oldest entry is more than 60s old, and
// it is not currently in a throttle backoff window.
func (p *Pool) Lease(ctx context.Context) (*Credential, error) {
	for {
		cred, wait := p.tryLease()
		if cred != nil {
			return cred, nil
		}
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		if err := p.sleepFunc(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (p *Pool) tryLease() (*Credential, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return nil, time.Second
	}

	now := p.nowFunc()
	bestWait := time.Duration(math.MaxInt64)

	for i := 0; i < len(p.creds); i++ {
		idx := (p.cursor + i) % len(p.creds)
		c := p.creds[idx]

		if now.Before(c.throttledTill) {
			if w := c.throttledTill.Sub(now); w < bestWait {
				bestWait = w
			}
			continue
		}

		c.pruneWindow(now)
		if len(c.window) < c.rpmLimit {
			p.cursor = (idx + 1) % len(p.creds)
			return &Credential{Secret: c.secret, pool: p, state: c}, 0
		}

		oldest := c.window[0]
		age := now.Sub(oldest)
		wait := 60*time.Second - age
		if wait < bestWait {
			bestWait = wait
		}
	}

	return nil, bestWait
}

// pruneWindow drops entries older than 60s. Must be called with p.mu held.
func (c *credentialState) pruneWindow(now time.Time) {
	cutoff := now.Add(-60 * time.Second)
	i := 0
	for i < len(c.window) && c.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.window = c.window[i:]
	}
}

// RecordRequest must be called immediately after the HTTP request carrying
// this credential is dispatched, successful or not.
func (cr *Credential) RecordRequest(t time.Time) {
	cr.pool.mu.Lock()
	defer cr.pool.mu.Unlock()
	cr.state.window = append(cr.state.window, t)
	cr.state.backoffN = 0
	cr.pool.publishSnapshot()
}

// RecordThrottled must be called when the upstream responds 429 for a
// request made with this credential. It applies exponential backoff
// min(2^n, 64)s with jitter, during which the credential is unavailable.
func (cr *Credential) RecordThrottled() {
	cr.pool.mu.Lock()
	defer cr.pool.mu.Unlock()

	n := cr.state.backoffN
	cr.state.backoffN++

	base := math.Min(math.Pow(2, float64(n)), 64)
	jitter := rand.Float64() * 0.3 * base
	wait := time.Duration((base + jitter) * float64(time.Second))

	cr.state.throttledTill = cr.pool.nowFunc().Add(wait)
	log.Printf("⏳ credential pool %q: backing off %v after throttle", cr.pool.name, wait)
	cr.pool.publishSnapshot()
}

// publishSnapshot pushes a best-effort observability snapshot to Redis. Must
// be called with p.mu held; never returns an error to the caller.
func (p *Pool) publishSnapshot() {
	if p.cache == nil || !p.cache.IsEnabled() {
		return
	}
	snap := Snapshot{Pool: p.name, CredentialCount: len(p.creds)}
	now := p.nowFunc()
	for _, c := range p.creds {
		c.pruneWindow(now)
		snap.Credentials = append(snap.Credentials, CredentialSnapshot{
			RequestsLast60s: len(c.window),
			RPMLimit:        c.rpmLimit,
			Throttled:       now.Before(c.throttledTill),
		})
	}
	_ = p.cache.SetJSON(cache.PoolSnapshotKey(p.name), snap, cache.TTLPoolSnapshot)
}

// Snapshot is the observability payload pushed to Redis after every lease
// accounting event. It is never read back to gate a lease decision.
type Snapshot struct {
	Pool            string                `json:"pool"`
	CredentialCount int                   `json:"credential_count"`
	Credentials     []CredentialSnapshot  `json:"credentials"`
}

// CredentialSnapshot is one credential's slice of the Snapshot.
type CredentialSnapshot struct {
	RequestsLast60s int  `json:"requests_last_60s"`
	RPMLimit        int  `json:"rpm_limit"`
	Throttled       bool `json:"throttled"`
}

func (p *Pool) String() string {
	return fmt.Sprintf("credentials.Pool{name=%s, size=%d}", p.name, len(p.creds))
}
