package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keycast/keycast/internal/registry"
)

var errBroken = errors.New("broken pipe")

type mockConn struct {
	id      string
	sendErr error

	mu       sync.Mutex
	received [][]byte
	closed   int
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockConn) got() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.received))
	for i, b := range m.received {
		out[i] = string(b)
	}
	return out
}

// binaryConn records binary frames separately from text ones.
type binaryConn struct {
	mockConn
	binary [][]byte
}

func (b *binaryConn) SendBinary(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.binary = append(b.binary, data)
	return nil
}

func newTestDispatcher(opts Options, conns ...*mockConn) (*Dispatcher, *registry.Registry) {
	reg := registry.New()
	for _, c := range conns {
		reg.Add(c)
	}
	return NewDispatcher(reg, opts, nil), reg
}

func TestBroadcast_DeliversToAll(t *testing.T) {
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	d, _ := newTestDispatcher(Options{EchoToSender: true}, a, b)

	report := d.Broadcast(context.Background(), Message{Origin: OriginClient, Payload: "hello", Sender: "a"})

	assert.Equal(t, []string{"hello"}, a.got())
	assert.Equal(t, []string{"hello"}, b.got())
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Delivered)
	assert.Empty(t, report.Failed)
}

func TestBroadcast_ExcludesSenderWhenEchoDisabled(t *testing.T) {
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	d, _ := newTestDispatcher(Options{EchoToSender: false}, a, b)

	report := d.Broadcast(context.Background(), Message{Origin: OriginClient, Payload: "hello", Sender: "a"})

	assert.Empty(t, a.got())
	assert.Equal(t, []string{"hello"}, b.got())
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Delivered)

	// Non-client messages have no sender and reach everyone.
	d.Broadcast(context.Background(), Message{Origin: OriginIngress, Payload: "x"})
	assert.Equal(t, []string{"x"}, a.got())
}

func TestBroadcast_IsolatesFailures(t *testing.T) {
	for n := 2; n <= 6; n++ {
		for broken := 0; broken < n; broken++ {
			conns := make([]*mockConn, n)
			for i := range conns {
				conns[i] = &mockConn{id: string(rune('a' + i))}
			}
			conns[broken].sendErr = errBroken

			d, reg := newTestDispatcher(Options{EchoToSender: true}, conns...)
			report := d.Broadcast(context.Background(), Message{Origin: OriginIngress, Payload: "m"})

			require.Equal(t, n-1, report.Delivered, "n=%d broken=%d", n, broken)
			assert.Equal(t, []string{conns[broken].id}, report.Failed)
			for i, c := range conns {
				if i == broken {
					assert.Empty(t, c.got())
					continue
				}
				assert.Equal(t, []string{"m"}, c.got(), "conn %s", c.id)
			}

			// Membership implies live: the broken connection is gone and closed.
			_, ok := reg.Get(conns[broken].id)
			assert.False(t, ok)
			assert.Equal(t, n-1, reg.Len())
			assert.Equal(t, 1, conns[broken].closed)
		}
	}
}

func TestBroadcast_NoConnections(t *testing.T) {
	d, _ := newTestDispatcher(Options{})
	report := d.Broadcast(context.Background(), Message{Origin: OriginDevice, Payload: "A"})
	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, uint64(1), report.Seq)
}

func TestBroadcast_StaleEntryAfterDisconnect(t *testing.T) {
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	d, reg := newTestDispatcher(Options{EchoToSender: true}, a, b)

	reg.Remove("a")

	report := d.Broadcast(context.Background(), Message{Origin: OriginIngress, Payload: "x"})
	assert.Empty(t, a.got())
	assert.Equal(t, []string{"x"}, b.got())
	assert.Equal(t, 1, report.Delivered)
	assert.Empty(t, report.Failed)
}

func TestBroadcast_JSONEnvelope(t *testing.T) {
	a := &mockConn{id: "a"}
	d, _ := newTestDispatcher(Options{Format: FormatJSON}, a)

	d.Broadcast(context.Background(), Message{Origin: OriginDevice, Payload: "A", Line: "button_a"})

	frames := a.got()
	require.Len(t, frames, 1)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &env))
	assert.Equal(t, uint64(1), env.Seq)
	assert.Equal(t, OriginDevice, env.Origin)
	assert.Equal(t, "A", env.Payload)
	assert.Equal(t, "button_a", env.Line)
	assert.False(t, env.Time.IsZero())
}

func TestBroadcast_BinaryPayload(t *testing.T) {
	payload := string([]byte{0xc3, 0x28, 0xff})

	t.Run("text format keeps frame type", func(t *testing.T) {
		bin := &binaryConn{mockConn: mockConn{id: "bin"}}
		plain := &mockConn{id: "plain"}
		reg := registry.New()
		reg.Add(bin)
		reg.Add(plain)
		d := NewDispatcher(reg, Options{EchoToSender: true}, nil)

		report := d.Broadcast(context.Background(), Message{Origin: OriginClient, Payload: payload, Sender: "bin", Binary: true})

		require.Len(t, bin.binary, 1)
		assert.Equal(t, payload, string(bin.binary[0]))
		assert.Empty(t, bin.got(), "binary payload went out as text")
		assert.Equal(t, []string{payload}, plain.got())
		assert.Equal(t, 2, report.Delivered)
	})

	t.Run("json format is always text", func(t *testing.T) {
		bin := &binaryConn{mockConn: mockConn{id: "bin"}}
		reg := registry.New()
		reg.Add(bin)
		d := NewDispatcher(reg, Options{Format: FormatJSON}, nil)

		d.Broadcast(context.Background(), Message{Origin: OriginClient, Payload: "x", Sender: "other", Binary: true})

		assert.Empty(t, bin.binary)
		assert.Len(t, bin.got(), 1)
	})

	t.Run("text payload uses Send", func(t *testing.T) {
		bin := &binaryConn{mockConn: mockConn{id: "bin"}}
		reg := registry.New()
		reg.Add(bin)
		d := NewDispatcher(reg, Options{}, nil)

		d.Broadcast(context.Background(), Message{Origin: OriginIngress, Payload: "a"})

		assert.Empty(t, bin.binary)
		assert.Equal(t, []string{"a"}, bin.got())
	})
}

func TestBroadcast_UnknownFormatDeliversNothing(t *testing.T) {
	a := &mockConn{id: "a"}
	d, _ := newTestDispatcher(Options{Format: "xml"}, a)

	report := d.Broadcast(context.Background(), Message{Origin: OriginIngress, Payload: "x"})
	assert.Empty(t, a.got())
	assert.Equal(t, 0, report.Attempted)
}

func TestBroadcast_ConcurrentWithMembershipChanges(t *testing.T) {
	d, reg := newTestDispatcher(Options{EchoToSender: true})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c := &mockConn{id: string(rune('A'+w)) + string(rune('0'+i%10))}
				if i%7 == 0 {
					c.sendErr = errBroken
				}
				reg.Add(c)
				reg.Remove(c.id)
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				d.Broadcast(context.Background(), Message{Origin: OriginIngress, Payload: "p"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(800), d.Seq())
}

func TestDispatcher_SequenceNumberWrapAround(t *testing.T) {
	d, _ := newTestDispatcher(Options{})

	maxUint64 := ^uint64(0)
	d.seq.Store(maxUint64 - 3)

	var seqs []uint64
	for i := 0; i < 5; i++ {
		seqs = append(seqs, d.Broadcast(context.Background(), Message{Origin: OriginIngress}).Seq)
	}

	expected := []uint64{maxUint64 - 2, maxUint64 - 1, maxUint64, 0, 1}
	assert.Equal(t, expected, seqs)
}
