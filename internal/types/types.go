package types

// Event is a single address-event record from an event camera.
// T is the timestamp in microseconds; Polarity is +1 for a brightness
// increase and -1 for a decrease.
type Event struct {
	X        int   `json:"x"`
	Y        int   `json:"y"`
	T        int64 `json:"t"`
	Polarity int8  `json:"p"`
}

// RawMessage is one decoded ingest message. Type is "start", "events"
// or "end"; Events is populated for "events" messages, Meta for the
// rest. Payload carries the undecoded wire bytes for raw capture.
type RawMessage struct {
	Type    string
	Meta    map[string]any
	Events  []Event
	Payload []byte
}
