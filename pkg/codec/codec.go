// Package codec converts heart-rate events to and from the JSON payload carried
// on the message channel:
//
//	{"type":"HR","timestamp":<ns>,"bpm":<int>,"rr_interval":<ms>|[<ms>,...],"energy":<kJ>|null}
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const TypeHeartRate = "HR"

type Event struct {
	Type       string     `json:"type"`
	Timestamp  int64      `json:"timestamp"`
	BPM        int        `json:"bpm"`
	RRInterval RRInterval `json:"rr_interval"`
	Energy     *float64   `json:"energy"`
}

func NewHeartRateEvent(timestamp int64, bpm int, rr RRInterval, energy *float64) Event {
	return Event{
		Type:       TypeHeartRate,
		Timestamp:  timestamp,
		BPM:        bpm,
		RRInterval: rr,
		Energy:     energy,
	}
}

type Kind int

const (
	// KindHeartRate is a valid "HR" event, ready to persist.
	KindHeartRate Kind = iota
	// KindIgnored is a well-formed message of another type. It is not an error.
	KindIgnored
)

func (k Kind) String() string {
	switch k {
	case KindHeartRate:
		return "heart_rate"
	case KindIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

type Decoded struct {
	Kind  Kind
	Type  string
	Event Event
}

// DecodeError means the payload is not a JSON object. Redelivery cannot repair it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode heart rate payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError means the payload parsed but a required field is missing or unusable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid heart rate event: %s %s", e.Field, e.Reason)
}

type wireEvent struct {
	Type       json.RawMessage `json:"type"`
	Timestamp  json.RawMessage `json:"timestamp"`
	BPM        json.RawMessage `json:"bpm"`
	RRInterval json.RawMessage `json:"rr_interval"`
	Energy     json.RawMessage `json:"energy"`
}

func Encode(ev Event) ([]byte, error) {
	if ev.Type == "" {
		ev.Type = TypeHeartRate
	}
	return json.Marshal(ev)
}

// Decode classifies a payload. The error is *DecodeError or *ValidationError;
// a nil error comes with either KindHeartRate or KindIgnored.
func Decode(data []byte) (Decoded, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return Decoded{}, &DecodeError{Err: fmt.Errorf("payload is not valid JSON")}
		}
		return Decoded{}, &DecodeError{Err: fmt.Errorf("payload is not a JSON object")}
	}

	var wire wireEvent
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Decoded{}, &DecodeError{Err: err}
	}

	var typ string
	if present(wire.Type) {
		if err := json.Unmarshal(wire.Type, &typ); err != nil {
			// a non-string tag can never equal "HR"
			typ = string(wire.Type)
		}
	}
	if typ != TypeHeartRate {
		return Decoded{Kind: KindIgnored, Type: typ}, nil
	}

	ev := Event{Type: typ}

	if !present(wire.Timestamp) {
		return Decoded{}, &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	ts, err := rawToInt64(wire.Timestamp)
	if err != nil {
		return Decoded{}, &ValidationError{Field: "timestamp", Reason: err.Error()}
	}
	ev.Timestamp = ts

	if !present(wire.BPM) {
		return Decoded{}, &ValidationError{Field: "bpm", Reason: "is required"}
	}
	bpm, err := rawToInt64(wire.BPM)
	if err != nil {
		return Decoded{}, &ValidationError{Field: "bpm", Reason: err.Error()}
	}
	ev.BPM = int(bpm)

	if present(wire.RRInterval) {
		if err := json.Unmarshal(wire.RRInterval, &ev.RRInterval); err != nil {
			return Decoded{}, &ValidationError{Field: "rr_interval", Reason: err.Error()}
		}
	}

	if present(wire.Energy) {
		var energy float64
		if err := json.Unmarshal(wire.Energy, &energy); err != nil {
			return Decoded{}, &ValidationError{Field: "energy", Reason: "must be a number or null"}
		}
		ev.Energy = &energy
	}

	return Decoded{Kind: KindHeartRate, Type: typ, Event: ev}, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func rawToInt64(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("must be a number")
	}
	return numberToInt64(n)
}

func numberToInt(n json.Number) (int, error) {
	v, err := numberToInt64(n)
	return int(v), err
}

// numberToInt64 accepts integral floats such as 119.0 and truncates others.
func numberToInt64(n json.Number) (int64, error) {
	if v, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("must be a number")
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("is out of range")
	}
	return int64(f), nil
}
