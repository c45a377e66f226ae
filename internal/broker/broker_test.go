package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExchangeAndQueueNaming(t *testing.T) {
	g := &Gateway{env: "production"}

	assert.Equal(t, "match.discovered.exchange.production", g.exchangeName(TypeDiscovered))
	assert.Equal(t, "match.discovered.ingest.production", g.queueSubject(TypeDiscovered, "ingest"))
}

func TestEnvelopeStampsRoutingMetadata(t *testing.T) {
	g := &Gateway{env: "staging"}
	payload := map[string]string{"match_id": "m-1"}
	raw, err := json.Marshal(payload)
	assert.NoError(t, err)

	env := Envelope{
		Environment: g.env,
		QueueTarget: g.queueSubject(TypeTelemetry, "download"),
		Priority:    "high",
		Payload:     raw,
	}

	body, err := json.Marshal(env)
	assert.NoError(t, err)

	var roundTrip Envelope
	assert.NoError(t, json.Unmarshal(body, &roundTrip))
	assert.Equal(t, "staging", roundTrip.Environment)
	assert.Equal(t, "match.telemetry.download.staging", roundTrip.QueueTarget)
	assert.Equal(t, "high", roundTrip.Priority)

	var decodedPayload map[string]string
	assert.NoError(t, json.Unmarshal(roundTrip.Payload, &decodedPayload))
	assert.Equal(t, "m-1", decodedPayload["match_id"])
}
