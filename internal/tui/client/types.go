package client

import (
	"encoding/json"
	"time"

	"github.com/keycast/keycast/internal/broadcast"
)

// Event is one frame received from the gateway. Frames in the text format
// carry only a payload; JSON envelopes also carry origin and sequence.
type Event struct {
	Seq      uint64
	Origin   string
	Payload  string
	Line     string
	Sender   string
	Received time.Time
	Raw      bool
}

// DecodeEvent turns a received frame into an Event. Anything that is not a
// JSON envelope with a payload is kept verbatim.
func DecodeEvent(data []byte, received time.Time) Event {
	if len(data) > 0 && data[0] == '{' {
		var env struct {
			broadcast.Envelope
			Payload *string `json:"payload"`
		}
		if json.Unmarshal(data, &env) == nil && env.Payload != nil {
			return Event{
				Seq:      env.Seq,
				Origin:   string(env.Origin),
				Payload:  *env.Payload,
				Line:     env.Line,
				Sender:   env.Sender,
				Received: received,
			}
		}
	}
	return Event{Payload: string(data), Received: received, Raw: true}
}

// Status mirrors GET /api/status.
type Status struct {
	Status  string         `json:"status"`
	Clients int            `json:"clients"`
	Uptime  string         `json:"uptime"`
	Input   InputStatus    `json:"input"`
	Process *ProcessStatus `json:"process,omitempty"`
}

type InputStatus struct {
	Present   bool     `json:"present"`
	Simulated bool     `json:"simulated"`
	Reason    string   `json:"reason,omitempty"`
	Platform  string   `json:"platform,omitempty"`
	Lines     []string `json:"lines"`
}

type ProcessStatus struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
}

// Ack mirrors the trigger endpoint response.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Content string `json:"content"`
}
