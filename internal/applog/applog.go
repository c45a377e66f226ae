// Package applog is a thin structured-ish logging helper over the
// standard log package, in the teacher's emoji-prefixed style (✅ success,
// ⚠️ warning, ❌ fatal, 🔎/📊/🚀 per-service markers) rather than a full
// structured logger — nothing in the corpus reaches for zerolog/zap/slog
// outside the nested backend module this repository didn't adopt as its
// teacher.
package applog

import "log"

// Info logs a routine lifecycle event.
func Info(format string, args ...interface{}) {
	log.Printf("✅ "+format, args...)
}

// Warn logs a recoverable error a worker continues past.
func Warn(format string, args ...interface{}) {
	log.Printf("⚠️  "+format, args...)
}

// Fatal logs an unrecoverable startup error and exits, mirroring
// cmd/server/main.go's log.Fatalf calls.
func Fatal(format string, args ...interface{}) {
	log.Fatalf("❌ "+format, args...)
}

// Event logs a mid-run progress line tagged with an arbitrary emoji
// marker, for the per-service summary lines (🔎 discovery, 📊
// aggregation, ...).
func Event(marker, format string, args ...interface{}) {
	log.Printf(marker+" "+format, args...)
}
