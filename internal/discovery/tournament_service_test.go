package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleWindowContains(t *testing.T) {
	w := ScheduleWindow{
		Days:      []time.Weekday{time.Friday, time.Saturday, time.Sunday},
		StartTime: 18 * time.Hour,
		EndTime:   23 * time.Hour,
	}

	inWindow := time.Date(2024, 1, 5, 19, 0, 0, 0, time.UTC) // a Friday
	assert.True(t, w.contains(inWindow))

	wrongDay := time.Date(2024, 1, 3, 19, 0, 0, 0, time.UTC) // a Wednesday
	assert.False(t, w.contains(wrongDay))

	wrongTime := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	assert.False(t, w.contains(wrongTime))
}

func TestAdjustSampleSizeExpandsAfterThreeEmptyRuns(t *testing.T) {
	svc := &TournamentService{sampleSize: 6}

	svc.adjustSampleSize(false)
	svc.adjustSampleSize(false)
	assert.Equal(t, 6, svc.sampleSize, "should not expand before three consecutive empty runs")

	svc.adjustSampleSize(false)
	assert.Equal(t, 7, svc.sampleSize, "should expand after three consecutive empty runs")

	svc.adjustSampleSize(true)
	assert.Equal(t, 0, svc.emptyStreak, "a hit resets the empty streak")
}

func TestAdjustSampleSizeCapsAtMax(t *testing.T) {
	svc := &TournamentService{sampleSize: maxSampleSize}
	for i := 0; i < 10; i++ {
		svc.adjustSampleSize(false)
	}
	assert.Equal(t, maxSampleSize, svc.sampleSize)
}
