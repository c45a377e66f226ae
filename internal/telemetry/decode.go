package telemetry

import "encoding/json"

func unmarshalInto(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}
