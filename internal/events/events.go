// Package events carries run-progress notifications out of the
// Orchestrator. It adapts the inherited event bus verbatim in shape
// (per-type subscriber channels, non-blocking publish that drops on a
// full buffer rather than stalling the run) but the event catalogue is
// entirely new: fold lifecycle and smoother updates instead of market
// data and order fills.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/awfes/pkg/types"
)

// Type identifies one kind of progress event.
type Type string

const (
	TypeFoldStarted     Type = "fold_started"
	TypeSweepCompleted  Type = "sweep_completed"
	TypeFoldCompleted   Type = "fold_completed"
	TypeSmootherUpdated Type = "smoother_updated"
	TypeRunStatus       Type = "run_status"
)

// Event is the base interface for all progress events.
type Event interface {
	Type() Type
	Timestamp() time.Time
}

type base struct {
	eventType Type
	eventTime time.Time
}

func (b base) Type() Type           { return b.eventType }
func (b base) Timestamp() time.Time { return b.eventTime }

// FoldStartedEvent announces a fold about to run.
type FoldStartedEvent struct {
	base
	FoldIndex int
	Fold      types.FoldSpec
}

func NewFoldStartedEvent(fold types.FoldSpec) FoldStartedEvent {
	return FoldStartedEvent{base: base{TypeFoldStarted, time.Now()}, FoldIndex: fold.Index, Fold: fold}
}

// SweepCompletedEvent reports the full epoch sweep table for a fold.
type SweepCompletedEvent struct {
	base
	FoldIndex int
	Results   []types.EpochSweepResult
}

func NewSweepCompletedEvent(foldIndex int, results []types.EpochSweepResult) SweepCompletedEvent {
	return SweepCompletedEvent{base: base{TypeSweepCompleted, time.Now()}, FoldIndex: foldIndex, Results: results}
}

// FoldCompletedEvent reports a fold's final outcome.
type FoldCompletedEvent struct {
	base
	Outcome types.FoldOutcome
}

func NewFoldCompletedEvent(outcome types.FoldOutcome) FoldCompletedEvent {
	return FoldCompletedEvent{base: base{TypeFoldCompleted, time.Now()}, Outcome: outcome}
}

// SmootherUpdatedEvent reports the smoother's posterior after folding in
// one fold's validation-optimal epoch.
type SmootherUpdatedEvent struct {
	base
	FoldIndex int
	State     types.BayesianState
}

func NewSmootherUpdatedEvent(foldIndex int, state types.BayesianState) SmootherUpdatedEvent {
	return SmootherUpdatedEvent{base: base{TypeSmootherUpdated, time.Now()}, FoldIndex: foldIndex, State: state}
}

// RunStatusEvent reports coarse run lifecycle transitions.
type RunStatusEvent struct {
	base
	Status  string // "STARTING", "RUNNING", "COMPLETE", "ABORTED"
	Message string
}

func NewRunStatusEvent(status, message string) RunStatusEvent {
	return RunStatusEvent{base: base{TypeRunStatus, time.Now()}, Status: status, Message: message}
}

// Bus distributes progress events to subscribers by type. Publish is
// non-blocking: a full subscriber channel drops that event for that
// subscriber rather than stalling the orchestrator loop.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]chan Event
	bufferSize  int
	logger      zerolog.Logger
}

// NewBus returns a Bus whose subscriber channels are sized bufferSize.
func NewBus(bufferSize int, logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[Type][]chan Event),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe returns a read-only channel that receives every event of
// eventType published after this call.
func (b *Bus) Subscribe(eventType Type) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// Publish sends event to every subscriber of its type. It never blocks
// the caller on a slow subscriber.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	subscribers := b.subscribers[event.Type()]
	b.mu.RUnlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		case <-ctx.Done():
			return
		default:
			b.logger.Warn().Str("event_type", string(event.Type())).Msg("subscriber channel full, event dropped")
		}
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
	}
	b.subscribers = make(map[Type][]chan Event)
}
