package producer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"liyu1981.xyz/polar-hr-pipeline/pkg/codec"
)

// Heart Rate Measurement (0x2A37) flag bits.
const (
	hrmFlagUint16BPM     = 0x01
	hrmFlagEnergyPresent = 0x08
	hrmFlagRRPresent     = 0x10
)

var ErrShortFrame = errors.New("heart rate measurement frame too short")

// Measurement is one decoded Heart Rate Measurement notification.
type Measurement struct {
	BPM int
	// Energy is the cumulative energy expended in kJ, nil when not sent.
	Energy *float64
	// RR holds inter-beat intervals in ms, oldest first.
	RR []int
}

// ParseHeartRateMeasurement decodes a 0x2A37 characteristic value. RR values
// arrive in 1/1024 s units and are converted to ms.
func ParseHeartRateMeasurement(frame []byte) (Measurement, error) {
	if len(frame) < 2 {
		return Measurement{}, ErrShortFrame
	}

	flags := frame[0]
	offset := 1
	var m Measurement

	if flags&hrmFlagUint16BPM != 0 {
		if len(frame) < offset+2 {
			return Measurement{}, ErrShortFrame
		}
		m.BPM = int(binary.LittleEndian.Uint16(frame[offset:]))
		offset += 2
	} else {
		m.BPM = int(frame[offset])
		offset++
	}

	if flags&hrmFlagEnergyPresent != 0 {
		if len(frame) < offset+2 {
			return Measurement{}, ErrShortFrame
		}
		energy := float64(binary.LittleEndian.Uint16(frame[offset:]))
		m.Energy = &energy
		offset += 2
	}

	if flags&hrmFlagRRPresent != 0 {
		if (len(frame)-offset)%2 != 0 {
			return Measurement{}, fmt.Errorf("heart rate measurement: odd rr payload length %d", len(frame)-offset)
		}
		for ; offset+2 <= len(frame); offset += 2 {
			raw := binary.LittleEndian.Uint16(frame[offset:])
			m.RR = append(m.RR, int((int64(raw)*1000+512)/1024))
		}
	}

	return m, nil
}

// Events unpacks a measurement into one event per RR sample. The last sample
// carries the frame timestamp, earlier ones are stepped back by the intervals
// that follow them. A frame without RR samples yields one event with an empty
// sequence.
func (m Measurement) Events(frameTime time.Time) []codec.Event {
	ts := frameTime.UnixNano()

	if len(m.RR) == 0 {
		return []codec.Event{codec.NewHeartRateEvent(ts, m.BPM, codec.SequenceRR(), m.Energy)}
	}

	events := make([]codec.Event, len(m.RR))
	offset := int64(0)
	for i := len(m.RR) - 1; i >= 0; i-- {
		events[i] = codec.NewHeartRateEvent(ts-offset, m.BPM, codec.ScalarRR(m.RR[i]), m.Energy)
		offset += int64(m.RR[i]) * int64(time.Millisecond)
	}
	return events
}
