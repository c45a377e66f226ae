package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	kgzip "github.com/klauspost/compress/gzip"

	"github.com/pewstats/collectors/internal/pubgapi"
)

// LoadEvents reads the content-addressed telemetry file internal/download
// wrote to disk, decompresses it, and decodes it into the same event
// envelope internal/pubgapi.DownloadTelemetry returns for the non-cached
// path — the processing engine always runs off the stored copy, never the
// CDN, so both code paths converge on the same struct.
func LoadEvents(path string) ([]pubgapi.TelemetryEvent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read telemetry file %s: %w", path, err)
	}

	zr, err := kgzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open gzip telemetry file %s: %w", path, err)
	}
	defer zr.Close()
	decompressed, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress telemetry file %s: %w", path, err)
	}

	var rawEvents []json.RawMessage
	if err := json.Unmarshal(decompressed, &rawEvents); err != nil {
		return nil, fmt.Errorf("decode telemetry array %s: %w", path, err)
	}

	events := make([]pubgapi.TelemetryEvent, 0, len(rawEvents))
	for _, re := range rawEvents {
		var head struct {
			EventType string `json:"_T"`
			Timestamp string `json:"_D"`
		}
		if err := json.Unmarshal(re, &head); err != nil {
			return nil, fmt.Errorf("decode telemetry event header in %s: %w", path, err)
		}
		events = append(events, pubgapi.TelemetryEvent{EventType: head.EventType, Timestamp: head.Timestamp, Raw: re})
	}
	return events, nil
}
