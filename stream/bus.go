package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/logging"
)

var (
	// ErrRunNotFound is returned for runs that were never opened or are
	// already closed.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists is returned when opening a run twice.
	ErrRunExists = errors.New("run already open")
)

// Options configure a Bus.
type Options struct {
	// SubscriberBuffer is the channel capacity of every subscription.
	SubscriberBuffer int

	// ReplayBufferSize retains the last N events of each run and replays them
	// to late subscribers. Zero disables replay.
	ReplayBufferSize int

	// SlowSubscriberTimeout bounds how long Emit waits on one full
	// subscriber before evicting it. Zero waits until the emitter's ctx ends.
	SlowSubscriberTimeout time.Duration

	Logger logging.Logger
}

// DefaultOptions are applied before the caller's option functions.
var DefaultOptions = Options{
	SubscriberBuffer:      256,
	ReplayBufferSize:      0,
	SlowSubscriberTimeout: 5 * time.Second,
}

// Bus multiplexes run events to subscribers.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topic
	opts   Options
}

type topic struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	replay []core.Event
}

type subscriber struct {
	ch   chan core.Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() { s.once.Do(func() { close(s.done) }) }

// New creates a Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultOptions.SubscriberBuffer
	}
	if opts.ReplayBufferSize < 0 {
		opts.ReplayBufferSize = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Bus{topics: make(map[string]*topic), opts: opts}
}

// Open creates the topic of runID.
func (b *Bus) Open(runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[runID]; ok {
		return fmt.Errorf("%w: %s", ErrRunExists, runID)
	}
	b.topics[runID] = &topic{subs: make(map[uint64]*subscriber)}

	return nil
}

func (b *Bus) topic(runID string) (*topic, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.topics[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return t, nil
}

// Emit delivers ev to every subscriber of runID in emission order.
//
// A full subscriber is waited for until it drains, leaves, ctx ends, or
// SlowSubscriberTimeout elapses. In the last two cases the subscriber is
// evicted: its channel is closed and delivery continues with the others.
// Emit returns ctx.Err() when a subscriber was evicted because ctx ended.
func (b *Bus) Emit(ctx context.Context, runID string, ev core.Event) error {
	t, err := b.topic(runID)
	if err != nil {
		return err
	}
	if ev.RunID == "" {
		ev.RunID = runID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.subs == nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if n := b.opts.ReplayBufferSize; n > 0 {
		t.replay = append(t.replay, ev)
		if len(t.replay) > n {
			t.replay = append(t.replay[:0:0], t.replay[len(t.replay)-n:]...)
		}
	}

	var emitErr error
	for id, s := range t.subs {
		if b.deliver(ctx, s, ev) {
			continue
		}
		delete(t.subs, id)
		s.stop()
		close(s.ch)
		b.opts.Logger.Warn("evicted slow subscriber run_id=%s", runID)
		if ctx.Err() != nil {
			emitErr = ctx.Err()
		}
	}

	return emitErr
}

// deliver sends ev to s. It reports false when s should be evicted.
func (b *Bus) deliver(ctx context.Context, s *subscriber, ev core.Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return true
	default:
	}

	if ctx.Err() != nil {
		return false
	}

	var expired <-chan time.Time
	if d := b.opts.SlowSubscriberTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return true
	case <-ctx.Done():
		return false
	case <-expired:
		return false
	}
}

// Subscribe attaches to runID. The returned channel is closed when the run is
// closed, when ctx ends, or when cancel is called.
func (b *Bus) Subscribe(ctx context.Context, runID string) (<-chan core.Event, func(), error) {
	t, err := b.topic(runID)
	if err != nil {
		return nil, nil, err
	}

	t.mu.Lock()
	if t.subs == nil {
		t.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	size := b.opts.SubscriberBuffer
	if len(t.replay) > size {
		size = len(t.replay)
	}
	s := &subscriber{ch: make(chan core.Event, size), done: make(chan struct{})}
	for _, ev := range t.replay {
		s.ch <- ev
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = s
	t.mu.Unlock()

	cancel := func() {
		s.stop()
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(s.ch)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-s.done:
		}
	}()

	return s.ch, cancel, nil
}

// Close ends the run: every subscription channel is closed after its pending
// events and the topic is released.
func (b *Bus) Close(runID string) error {
	b.mu.Lock()
	t, ok := b.topics[runID]
	delete(b.topics, runID)
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, s := range t.subs {
		s.stop()
		close(s.ch)
		delete(t.subs, id)
	}
	t.subs = nil
	t.replay = nil

	b.opts.Logger.Debug("stream closed run_id=%s", runID)
	return nil
}

// Subscribers returns the number of live subscriptions of runID.
func (b *Bus) Subscribers(runID string) int {
	t, err := b.topic(runID)
	if err != nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Runs returns the number of open runs.
func (b *Bus) Runs() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

// Ensure Bus implements core.Emitter.
var _ core.Emitter = (*Bus)(nil)
