// Package broadcast fans messages out to every registered connection.
package broadcast

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keycast/keycast/internal/metrics"
	"github.com/keycast/keycast/internal/registry"
)

const tracerName = "github.com/keycast/keycast/internal/broadcast"

// Publisher is implemented by anything that can fan a message out.
type Publisher interface {
	Broadcast(ctx context.Context, msg Message) Report
}

// BinarySender is implemented by connections that can carry binary
// frames. Binary payloads go out through Send to connections that do not
// implement it.
type BinarySender interface {
	SendBinary(data []byte) error
}

// Report summarises one broadcast. Failed lists the IDs of connections
// that were dropped because the send failed.
type Report struct {
	Seq       uint64
	Attempted int
	Delivered int
	Skipped   int
	Failed    []string
}

type Options struct {
	// EchoToSender delivers client messages back to the connection that
	// sent them as well as to everyone else.
	EchoToSender bool
	Format       FrameFormat
}

type Dispatcher struct {
	reg     *registry.Registry
	opts    Options
	metrics *metrics.Metrics
	tracer  trace.Tracer
	seq     atomic.Uint64
	now     func() time.Time
}

func NewDispatcher(reg *registry.Registry, opts Options, m *metrics.Metrics) *Dispatcher {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	return &Dispatcher{
		reg:     reg,
		opts:    opts,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// Broadcast delivers msg to every connection registered at call time.
// A failed send drops that connection from the registry and closes it;
// it never stops delivery to the others and is not returned as an error.
func (d *Dispatcher) Broadcast(ctx context.Context, msg Message) Report {
	start := d.now()
	seq := d.seq.Add(1)
	report := Report{Seq: seq}

	_, span := d.tracer.Start(ctx, "keycast.broadcast",
		trace.WithAttributes(
			attribute.String("keycast.origin", string(msg.Origin)),
			attribute.Int64("keycast.seq", int64(seq)),
		))
	defer span.End()

	frame, binary, err := encodeFrame(d.opts.Format, seq, msg, start)
	if err != nil {
		slog.Error("broadcast encode error", "origin", msg.Origin, "error", err)
		span.RecordError(err)
		return report
	}

	for _, c := range d.reg.Enumerate() {
		if !d.opts.EchoToSender && msg.Sender != "" && c.ID() == msg.Sender {
			report.Skipped++
			continue
		}
		report.Attempted++
		if err := send(c, frame, binary); err != nil {
			slog.Warn("ws client send failed, dropping", "clientId", c.ID(), "error", err)
			report.Failed = append(report.Failed, c.ID())
			d.reg.Remove(c.ID())
			c.Close()
			continue
		}
		report.Delivered++
	}

	span.SetAttributes(
		attribute.Int("keycast.attempted", report.Attempted),
		attribute.Int("keycast.delivered", report.Delivered),
		attribute.Int("keycast.failed", len(report.Failed)),
	)
	d.metrics.ObserveBroadcast(string(msg.Origin), report.Delivered, len(report.Failed), report.Skipped, d.now().Sub(start))
	slog.Debug("broadcast", "seq", seq, "origin", msg.Origin, "delivered", report.Delivered, "failed", len(report.Failed))

	return report
}

func send(c registry.Conn, frame []byte, binary bool) error {
	if binary {
		if bs, ok := c.(BinarySender); ok {
			return bs.SendBinary(frame)
		}
	}
	return c.Send(frame)
}

// Seq returns the sequence number of the most recent broadcast.
func (d *Dispatcher) Seq() uint64 {
	return d.seq.Load()
}
