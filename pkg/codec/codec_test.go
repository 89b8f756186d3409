package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 {
	return &f
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []Event{
		NewHeartRateEvent(1766417260747938000, 119, ScalarRR(521), nil),
		NewHeartRateEvent(1766417260747938001, 64, SequenceRR(930, 910), floatPtr(12.5)),
		NewHeartRateEvent(1, 0, SequenceRR(), nil),
		NewHeartRateEvent(2, 180, RRInterval{}, floatPtr(0)),
	}

	for _, ev := range events {
		payload, err := Encode(ev)
		require.NoError(t, err)

		decoded, err := Decode(payload)
		require.NoError(t, err)
		require.Equal(t, KindHeartRate, decoded.Kind)

		assert.Equal(t, ev.Timestamp, decoded.Event.Timestamp)
		assert.Equal(t, ev.BPM, decoded.Event.BPM)
		assert.Equal(t, ev.RRInterval.Scalar(), decoded.Event.RRInterval.Scalar())
		assert.Equal(t, ev.Energy, decoded.Event.Energy)
	}
}

func TestEncodeWireShape(t *testing.T) {
	payload, err := Encode(NewHeartRateEvent(1766417260747938000, 119, ScalarRR(521), nil))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"HR","timestamp":1766417260747938000,"bpm":119,"rr_interval":521,"energy":null}`,
		string(payload))

	payload, err = Encode(Event{Timestamp: 5, BPM: 70, RRInterval: SequenceRR(700, 650), Energy: floatPtr(3.25)})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"HR","timestamp":5,"bpm":70,"rr_interval":[700,650],"energy":3.25}`,
		string(payload))
}

func TestDecodeRRSequenceTakesFirst(t *testing.T) {
	decoded, err := Decode([]byte(`{"type":"HR","timestamp":10,"bpm":80,"rr_interval":[700,650]}`))
	require.NoError(t, err)
	assert.Equal(t, 700, decoded.Event.RRInterval.Scalar())
	assert.True(t, decoded.Event.RRInterval.IsSequence())
	assert.Equal(t, []int{700, 650}, decoded.Event.RRInterval.Values())

	decoded, err = Decode([]byte(`{"type":"HR","timestamp":10,"bpm":80,"rr_interval":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Event.RRInterval.Scalar())
}

func TestDecodeMissingRRDefaultsToZero(t *testing.T) {
	for _, payload := range []string{
		`{"type":"HR","timestamp":10,"bpm":80}`,
		`{"type":"HR","timestamp":10,"bpm":80,"rr_interval":null}`,
	} {
		decoded, err := Decode([]byte(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, 0, decoded.Event.RRInterval.Scalar(), payload)
	}
}

func TestDecodeIgnoresOtherTypes(t *testing.T) {
	for _, payload := range []string{
		`{"type":"ACC","timestamp":10,"bpm":80}`,
		`{"type":"ACC"}`,
		`{"timestamp":10,"bpm":80}`,
		`{"type":7,"timestamp":10,"bpm":80}`,
		`{"type":"hr","timestamp":10,"bpm":80}`,
	} {
		decoded, err := Decode([]byte(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, KindIgnored, decoded.Kind, payload)
	}

	decoded, err := Decode([]byte(`{"type":"ACC","x":1}`))
	require.NoError(t, err)
	assert.Equal(t, "ACC", decoded.Type)
}

func TestDecodeValidationErrors(t *testing.T) {
	cases := map[string]string{
		`{"type":"HR","bpm":80}`:                                  "timestamp",
		`{"type":"HR","timestamp":null,"bpm":80}`:                 "timestamp",
		`{"type":"HR","timestamp":10}`:                            "bpm",
		`{"type":"HR","timestamp":10,"bpm":"fast"}`:               "bpm",
		`{"type":"HR","timestamp":10,"bpm":80,"rr_interval":"x"}`: "rr_interval",
		`{"type":"HR","timestamp":10,"bpm":80,"energy":"lots"}`:   "energy",
	}

	for payload, field := range cases {
		_, err := Decode([]byte(payload))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), payload)
		assert.Equal(t, field, verr.Field, payload)

		var derr *DecodeError
		assert.False(t, errors.As(err, &derr), payload)
	}
}

func TestDecodeMalformedPayloads(t *testing.T) {
	for _, payload := range []string{
		``,
		`not json`,
		`{"type":"HR",`,
		`[1,2,3]`,
		`null`,
		`"HR"`,
	} {
		_, err := Decode([]byte(payload))
		var derr *DecodeError
		assert.True(t, errors.As(err, &derr), "payload %q", payload)
	}
}

func TestDecodeTolerantNumbers(t *testing.T) {
	decoded, err := Decode([]byte(`{"type":"HR","timestamp":1.0e3,"bpm":119.0,"rr_interval":[521.0],"energy":null}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), decoded.Event.Timestamp)
	assert.Equal(t, 119, decoded.Event.BPM)
	assert.Equal(t, 521, decoded.Event.RRInterval.Scalar())
	assert.Nil(t, decoded.Event.Energy)
}

func TestDecodeEnergyPassThrough(t *testing.T) {
	decoded, err := Decode([]byte(`{"type":"HR","timestamp":10,"bpm":80,"energy":42.5}`))
	require.NoError(t, err)
	require.NotNil(t, decoded.Event.Energy)
	assert.Equal(t, 42.5, *decoded.Event.Energy)
}

func TestRRIntervalJSON(t *testing.T) {
	var rr RRInterval
	require.NoError(t, json.Unmarshal([]byte(`521`), &rr))
	assert.False(t, rr.IsSequence())
	assert.Equal(t, 521, rr.Scalar())

	require.NoError(t, json.Unmarshal([]byte(`[1, 2]`), &rr))
	assert.True(t, rr.IsSequence())

	out, err := json.Marshal(SequenceRR())
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &rr))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "heart_rate", KindHeartRate.String())
	assert.Equal(t, "ignored", KindIgnored.String())
}
