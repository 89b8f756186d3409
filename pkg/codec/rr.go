package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RRInterval is either a single inter-beat interval or the sequence a sensor
// frame carried. Both forms are in milliseconds.
type RRInterval struct {
	values   []int
	sequence bool
}

func ScalarRR(ms int) RRInterval {
	return RRInterval{values: []int{ms}}
}

func SequenceRR(ms ...int) RRInterval {
	return RRInterval{values: append([]int{}, ms...), sequence: true}
}

func (r RRInterval) IsSequence() bool {
	return r.sequence
}

// Values returns a copy of the carried samples.
func (r RRInterval) Values() []int {
	return append([]int{}, r.values...)
}

// Scalar is the value persisted: the only or first sample, 0 when there is none.
func (r RRInterval) Scalar() int {
	if len(r.values) == 0 {
		return 0
	}
	return r.values[0]
}

func (r RRInterval) MarshalJSON() ([]byte, error) {
	if r.sequence {
		if r.values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.values)
	}
	return json.Marshal(r.Scalar())
}

func (r *RRInterval) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = RRInterval{}
		return nil
	}

	if len(data) > 0 && data[0] == '[' {
		var raw []json.Number
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("rr_interval sequence: %w", err)
		}
		values := make([]int, 0, len(raw))
		for _, n := range raw {
			v, err := numberToInt(n)
			if err != nil {
				return fmt.Errorf("rr_interval sequence: %w", err)
			}
			values = append(values, v)
		}
		*r = RRInterval{values: values, sequence: true}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("rr_interval: %w", err)
	}
	v, err := numberToInt(n)
	if err != nil {
		return fmt.Errorf("rr_interval: %w", err)
	}
	*r = ScalarRR(v)
	return nil
}
