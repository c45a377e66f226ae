// Package discovery implements the Main (C5) and Tournament (C6) discovery
// services: periodic scans that turn upstream match ids into new ledger
// rows and `match.discovered` broker publishes.
package discovery

import (
	"context"
	"log"
	"time"

	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
)

// RunSummary is the per-scan outcome reported by both discovery services.
type RunSummary struct {
	Total     int
	Processed int
	Failed    int
	Queued    int
}

// MainServiceConfig configures the main discovery service.
type MainServiceConfig struct {
	Shard              string
	TrackedPlayerLimit int // K, default 500
	Interval           time.Duration
}

// MainService scans tracked players for new matches every Interval.
type MainService struct {
	cfg    MainServiceConfig
	client *pubgapi.Client
	ledger *ledger.Store
	gw     broker.Publisher
}

func NewMainService(cfg MainServiceConfig, client *pubgapi.Client, store *ledger.Store, gw broker.Publisher) *MainService {
	if cfg.TrackedPlayerLimit == 0 {
		cfg.TrackedPlayerLimit = 500
	}
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &MainService{cfg: cfg, client: client, ledger: store, gw: gw}
}

// Run executes the scheduled loop until ctx is cancelled.
func (m *MainService) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		summary := m.RunOnce(ctx)
		log.Printf("🔎 main discovery run: total=%d processed=%d failed=%d queued=%d",
			summary.Total, summary.Processed, summary.Failed, summary.Queued)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single scan: fetch tracked players, look up their
// recent matches, diff against the ledger, and discover each new id.
func (m *MainService) RunOnce(ctx context.Context) RunSummary {
	var summary RunSummary

	players, err := m.ledger.ListTrackedPlayers(m.cfg.TrackedPlayerLimit)
	if err != nil {
		log.Printf("⚠️  main discovery: list tracked players: %v", err)
		return summary
	}

	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.PlayerName)
	}

	looked, err := m.client.LookupPlayers(ctx, m.cfg.Shard, names)
	if err != nil {
		log.Printf("⚠️  main discovery: lookup players: %v", err)
		return summary
	}

	candidateSet := map[string]bool{}
	for _, p := range looked {
		for _, id := range p.RecentMatchIDs() {
			candidateSet[id] = true
		}
	}
	candidates := make([]string, 0, len(candidateSet))
	for id := range candidateSet {
		candidates = append(candidates, id)
	}
	summary.Total = len(candidates)

	existing, err := m.ledger.ExistingMatchIDs(candidates)
	if err != nil {
		log.Printf("⚠️  main discovery: diff existing match ids: %v", err)
		return summary
	}

	for _, matchID := range candidates {
		if existing[matchID] {
			continue
		}
		m.discoverOne(ctx, matchID, &summary)
	}

	return summary
}

func (m *MainService) discoverOne(ctx context.Context, matchID string, summary *RunSummary) {
	resp, err := m.client.GetMatch(ctx, m.cfg.Shard, matchID)
	if err != nil {
		summary.Failed++
		m.insertFailed(matchID, err)
		return
	}

	telemetryURL, err := pubgapi.TelemetryAssetURL(resp)
	if err != nil {
		// A match with no telemetry asset is still worth tracking; the
		// summary worker marks it failed ("missing telemetry URL") once it
		// has written the participant rows.
		telemetryURL = ""
	}

	matchDatetime, err := time.Parse(time.RFC3339, resp.Data.Attributes.CreatedAt)
	if err != nil {
		summary.Failed++
		m.insertFailed(matchID, err)
		return
	}

	first, err := m.ledger.InsertDiscovered(ledger.DiscoveredMatch{
		MatchID:           matchID,
		MapName:           resp.Data.Attributes.MapName,
		GameMode:          resp.Data.Attributes.GameMode,
		GameType:          resp.Data.Attributes.MatchType,
		MatchDatetime:     matchDatetime,
		Duration:          resp.Data.Attributes.Duration,
		TelemetryURL:      telemetryURL,
		DiscoveredBy:      "main",
		DiscoveryPriority: "normal",
	})
	if err != nil {
		summary.Failed++
		m.insertFailed(matchID, err)
		return
	}
	summary.Processed++
	if !first {
		return
	}

	ok, err := m.gw.Publish(broker.TypeDiscovered, "discovered", discoveredPayload(matchID), "normal")
	if err != nil {
		log.Printf("⚠️  main discovery: publish failed for %s: %v", matchID, err)
		return
	}
	if ok {
		summary.Queued++
	}
}

func (m *MainService) insertFailed(matchID string, cause error) {
	// A minimal failed row still satisfies the ledger's uniqueness
	// invariant so the scan does not retry the same bad id forever.
	_, _ = m.ledger.InsertDiscovered(ledger.DiscoveredMatch{
		MatchID:      matchID,
		DiscoveredBy: "main",
	})
	if err := m.ledger.SetStatus(matchID, "failed", cause.Error()); err != nil {
		log.Printf("⚠️  main discovery: mark %s failed: %v", matchID, err)
	}
}

type discoveredMessage struct {
	MatchID string `json:"match_id"`
}

func discoveredPayload(matchID string) discoveredMessage {
	return discoveredMessage{MatchID: matchID}
}
