package broadcast

import (
	"encoding/json"
	"fmt"
	"time"
)

// Origin tags where a message entered the gateway.
type Origin string

const (
	OriginClient  Origin = "client"
	OriginDevice  Origin = "device"
	OriginIngress Origin = "ingress"
)

// Message is one event to fan out. Sender is set for client-origin
// messages, Line for device-origin ones. Binary marks a payload that
// arrived in a binary frame; it is relayed as one in FormatText.
type Message struct {
	Origin  Origin
	Payload string
	Sender  string
	Line    string
	Binary  bool
}

// FrameFormat selects how a Message is written on the wire.
type FrameFormat string

const (
	// FormatText writes the payload as-is.
	FormatText FrameFormat = "text"
	// FormatJSON wraps the payload in an Envelope.
	FormatJSON FrameFormat = "json"
)

// Envelope is the outbound frame in FormatJSON.
type Envelope struct {
	Seq     uint64    `json:"seq"`
	Origin  Origin    `json:"origin"`
	Payload string    `json:"payload"`
	Line    string    `json:"line,omitempty"`
	Sender  string    `json:"sender,omitempty"`
	Time    time.Time `json:"time"`
}

// encodeFrame renders msg for the wire and reports whether it must go out
// as a binary frame.
func encodeFrame(format FrameFormat, seq uint64, msg Message, now time.Time) ([]byte, bool, error) {
	switch format {
	case FormatText, "":
		return []byte(msg.Payload), msg.Binary, nil
	case FormatJSON:
		data, err := json.Marshal(Envelope{
			Seq:     seq,
			Origin:  msg.Origin,
			Payload: msg.Payload,
			Line:    msg.Line,
			Sender:  msg.Sender,
			Time:    now.UTC(),
		})
		return data, false, err
	default:
		return nil, false, fmt.Errorf("unknown frame format %q", format)
	}
}
