// Package download implements the Telemetry Download Worker (C8, spec
// §4.8): it consumes match.telemetry, streams the raw telemetry file to a
// content-addressed path on disk, and republishes
// match.processing.telemetry for the processing engine.
package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	kgzip "github.com/klauspost/compress/gzip"

	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/ledger"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Config configures the download worker.
type Config struct {
	StorageRoot string
	Timeout     time.Duration // default 120s, per-attempt
	MaxRetries  int           // default 3
}

// Worker streams telemetry files to disk.
type Worker struct {
	cfg        Config
	httpClient *http.Client
	ledger     *ledger.Store
	gw         broker.Publisher
}

func NewWorker(cfg Config, store *ledger.Store, gw broker.Publisher) *Worker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Worker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		ledger:     store,
		gw:         gw,
	}
}

// telemetryMessage is the payload published by internal/summary.
type telemetryMessage struct {
	MatchID      string `json:"match_id"`
	TelemetryURL string `json:"telemetry_url"`
}

// processingMessage is handed off to the telemetry processing engine.
type processingMessage struct {
	MatchID       string `json:"match_id"`
	FilePath      string `json:"file_path"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}

// Run subscribes to match.telemetry until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, sub broker.Subscriber) error {
	return sub.Consume(ctx, broker.TypeTelemetry, "telemetry", func(payload json.RawMessage) error {
		var msg telemetryMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode match.telemetry payload: %w", err)
		}
		if err := w.ProcessMessage(ctx, msg.MatchID, msg.TelemetryURL); err != nil {
			log.Printf("⚠️  download worker: process %s: %v", msg.MatchID, err)
			return err
		}
		return nil
	})
}

// destPath returns the content-addressed path for matchID (spec §4.8
// step 1, §6: "matchID={match_id}/raw.json.gz").
func (w *Worker) destPath(matchID string) string {
	return filepath.Join(w.cfg.StorageRoot, fmt.Sprintf("matchID=%s", matchID), "raw.json.gz")
}

// ProcessMessage implements the full step sequence of spec §4.8.
func (w *Worker) ProcessMessage(ctx context.Context, matchID, telemetryURL string) error {
	dest := w.destPath(matchID)

	if info, err := os.Stat(dest); err == nil {
		return w.publishProcessing(matchID, dest, info.Size())
	}

	body, err := w.fetchWithRetry(ctx, telemetryURL)
	if err != nil {
		w.ledger.SetStatus(matchID, "failed", err.Error())
		return fmt.Errorf("fetch telemetry for %s: %w", matchID, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create telemetry directory for %s: %w", matchID, err)
	}

	if err := writeCompressed(dest, body); err != nil {
		return fmt.Errorf("write telemetry file for %s: %w", matchID, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat telemetry file for %s: %w", matchID, err)
	}

	if _, err := w.ledger.MarkStageComplete(matchID, "telemetry_downloaded"); err != nil {
		log.Printf("⚠️  download worker: mark telemetry downloaded for %s: %v", matchID, err)
	}

	return w.publishProcessing(matchID, dest, info.Size())
}

// writeCompressed writes body to path, gzip-compressing it first unless it
// is already gzip-magic-prefixed, in which case it is moved through
// unchanged (spec §4.8 step 3).
func writeCompressed(path string, body []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if bytes.HasPrefix(body, gzipMagic) {
		if _, err := f.Write(body); err != nil {
			f.Close()
			return err
		}
	} else {
		gw := kgzip.NewWriter(f)
		if _, err := gw.Write(body); err != nil {
			gw.Close()
			f.Close()
			return err
		}
		if err := gw.Close(); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// fetchWithRetry streams telemetryURL with exponential backoff, up to
// cfg.MaxRetries additional attempts (spec §4.8 step 2).
func (w *Worker) fetchWithRetry(ctx context.Context, telemetryURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, telemetryURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := w.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("telemetry fetch status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("telemetry fetch status %d", resp.StatusCode)
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("telemetry fetch exhausted retries: %w", lastErr)
}

func backoff(attempt int) time.Duration {
	seconds := math.Min(math.Pow(2, float64(attempt)), 30)
	return time.Duration(seconds) * time.Second
}

func (w *Worker) publishProcessing(matchID, path string, size int64) error {
	_, err := w.gw.Publish(broker.TypeProcessingTelemetry, "telemetry", processingMessage{
		MatchID:       matchID,
		FilePath:      path,
		FileSizeBytes: size,
	}, "normal")
	return err
}
