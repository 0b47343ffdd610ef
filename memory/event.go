package memory

import (
	"encoding/json"
	"fmt"

	"github.com/driftline/continuum/canonical"
)

// Event is one immutable fact in the append-only log. Ordering is the
// append sequence, not the timestamp: timestamps may tie or run backwards
// under clock skew, the sequence never does.
//
// JSON form matches the persisted log line:
// {ts_ms, actor_did, type, key, value_hex}.
type Event struct {
	TSMS     int64
	ActorDID string
	Type     string
	Key      string
	Value    []byte
}

// MarshalJSON emits the wire form with hex-encoded value bytes.
func (ev Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventRecord{
		TSMS:     ev.TSMS,
		ActorDID: ev.ActorDID,
		Type:     ev.Type,
		Key:      ev.Key,
		ValueHex: canonical.EncodeHex(ev.Value),
	})
}

// UnmarshalJSON parses the wire form.
func (ev *Event) UnmarshalJSON(data []byte) error {
	parsed, err := unmarshalEventLine(data)
	if err != nil {
		return err
	}
	*ev = parsed
	return nil
}

// eventRecord is the persisted wire form: one JSON object per log line,
// value bytes hex-encoded.
type eventRecord struct {
	TSMS     int64  `json:"ts_ms"`
	ActorDID string `json:"actor_did"`
	Type     string `json:"type"`
	Key      string `json:"key"`
	ValueHex string `json:"value_hex"`
}

// marshalEventLine encodes an event as a single log line (no trailing
// newline). Field order is fixed by the record struct, so identical events
// always produce identical lines.
func marshalEventLine(ev Event) ([]byte, error) {
	data, err := ev.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// unmarshalEventLine parses one persisted log line.
func unmarshalEventLine(line []byte) (Event, error) {
	var rec eventRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return Event{}, fmt.Errorf("parse event: %w", err)
	}
	value, err := canonical.DecodeHex(rec.ValueHex)
	if err != nil {
		return Event{}, fmt.Errorf("parse event value: %w", err)
	}
	return Event{
		TSMS:     rec.TSMS,
		ActorDID: rec.ActorDID,
		Type:     rec.Type,
		Key:      rec.Key,
		Value:    value,
	}, nil
}

// fingerprint computes the event's content-addressed identity: a
// domain-separated digest over the canonical JSON encoding of every field.
// Any change to any field, including the timestamp, changes the
// fingerprint and therefore the head-hash chain.
func fingerprint(ev Event) []byte {
	encoded, err := canonical.Marshal(map[string]any{
		"ts_ms":     ev.TSMS,
		"actor_did": ev.ActorDID,
		"type":      ev.Type,
		"key":       ev.Key,
		"value_hex": canonical.EncodeHex(ev.Value),
	})
	if err != nil {
		// All field types are supported by canonical.Marshal; reaching
		// this indicates a bug, not bad data.
		panic(fmt.Sprintf("memory: fingerprint event: %v", err))
	}
	return canonical.Digest(canonical.DomainEvent, encoded)
}
