package model

import (
	"sync"
	"time"

	"github.com/testdeck/testdeck/internal/log"
	"github.com/testdeck/testdeck/internal/pubsub"
)

// DefaultPublishDelay is the coalescing window for non-immediate updates.
// Result fragments arrive in bursts during a large parallel run;
// recomputing the derived view per fragment would make the UI the
// bottleneck, so fragment-driven publishes are batched.
const DefaultPublishDelay = 250 * time.Millisecond

// Publisher rate-limits how often a freshly mutated model is published.
//
// Notify(true) publishes synchronously and cancels any pending delayed
// publish. Notify(false) schedules a publish one delay after the first
// un-coalesced notification; further non-immediate notifications inside
// the window neither reset nor multiply the timer, so exactly one publish
// happens per quiet period. Published versions are strictly increasing.
type Publisher struct {
	mu       sync.Mutex
	delay    time.Duration
	source   func(version uint64) *Snapshot
	broker   *pubsub.Broker[*Snapshot]
	timer    *time.Timer
	timerGen uint64
	version  uint64
	latest   *Snapshot
	closed   bool
}

// NewPublisher creates a publisher drawing snapshots from source.
// A non-positive delay falls back to DefaultPublishDelay.
func NewPublisher(delay time.Duration, source func(version uint64) *Snapshot) *Publisher {
	if delay <= 0 {
		delay = DefaultPublishDelay
	}
	return &Publisher{
		delay:  delay,
		source: source,
		broker: pubsub.NewBroker[*Snapshot](),
	}
}

// Broker returns the broker snapshots are published on.
func (p *Publisher) Broker() *pubsub.Broker[*Snapshot] {
	return p.broker
}

// Latest returns the most recently published snapshot, or nil before the
// first publish.
func (p *Publisher) Latest() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Notify signals that the model was mutated.
func (p *Publisher) Notify(immediate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if immediate {
		p.cancelTimerLocked()
		p.publishLocked()
		return
	}
	if p.timer != nil {
		// A publish is already pending; coalesce.
		return
	}
	p.timerGen++
	gen := p.timerGen
	p.timer = time.AfterFunc(p.delay, func() { p.timerFired(gen) })
}

func (p *Publisher) timerFired(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A fired timer may have been cancelled, and a fresh one armed,
	// before we took the lock. Only the generation that armed the live
	// timer may publish; a stale fire must not consume the new window.
	if p.closed || p.timer == nil || gen != p.timerGen {
		return
	}
	p.timer = nil
	p.publishLocked()
}

func (p *Publisher) cancelTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Publisher) publishLocked() {
	p.version++
	snap := p.source(p.version)
	p.latest = snap
	p.broker.Publish(snap)
	log.Debug(log.CatModel, "model published", "version", snap.Version, "tests", snap.NumTests())
}

// Close cancels any pending publish and closes the broker.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancelTimerLocked()
	p.mu.Unlock()
	p.broker.Close()
}
