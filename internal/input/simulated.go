package input

import (
	"math/rand"
	"sync"
	"time"
)

const (
	simMinGap  = 2 * time.Second
	simMaxGap  = 8 * time.Second
	simMinHold = 50 * time.Millisecond
	simMaxHold = 1200 * time.Millisecond
)

// SimulatedLine presses itself at random intervals with a random hold time,
// so a machine without GPIO still produces device traffic. Long holds
// exercise the debouncer's repeat behaviour.
type SimulatedLine struct {
	name    string
	payload string

	mu        sync.Mutex
	rng       *rand.Rand
	now       func() time.Time
	pressAt   time.Time
	releaseAt time.Time
	closed    bool
}

func NewSimulatedLine(name, payload string, seed int64) *SimulatedLine {
	l := &SimulatedLine{
		name:    name,
		payload: payload,
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
	}
	l.schedule(l.now())
	return l
}

func (l *SimulatedLine) Name() string    { return l.name }
func (l *SimulatedLine) Payload() string { return l.payload }

func (l *SimulatedLine) Asserted() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, nil
	}

	now := l.now()
	if !now.Before(l.releaseAt) {
		l.schedule(now)
	}
	return !now.Before(l.pressAt) && now.Before(l.releaseAt), nil
}

func (l *SimulatedLine) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// schedule picks the next press window after from. Caller holds mu, except
// from the constructor.
func (l *SimulatedLine) schedule(from time.Time) {
	gap := simMinGap + time.Duration(l.rng.Int63n(int64(simMaxGap-simMinGap)))
	hold := simMinHold + time.Duration(l.rng.Int63n(int64(simMaxHold-simMinHold)))
	l.pressAt = from.Add(gap)
	l.releaseAt = l.pressAt.Add(hold)
}
