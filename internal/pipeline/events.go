package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies the kind of pipeline event.
type EventType string

const (
	EventStage    EventType = "stage"
	EventProgress EventType = "progress"
	EventWarning  EventType = "warning"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Stage is a state of the run state machine.
type Stage string

const (
	StageReading        Stage = "reading"
	StageTextExtraction Stage = "text_extraction"
	StageTriage         Stage = "triage"
	StageSelecting      Stage = "selecting"
	StageVision         Stage = "vision"
	StageExtracting     Stage = "extracting"
	StageDone           Stage = "done"
	StageError          Stage = "error"
)

// Stages returns the non-terminal stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageReading,
		StageTextExtraction,
		StageTriage,
		StageSelecting,
		StageVision,
		StageExtracting,
		StageDone,
	}
}

// Event is one message on a run's event stream.
type Event struct {
	Type      EventType `json:"type"`
	Stage     Stage     `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Heartbeat bool      `json:"heartbeat,omitempty"`
	Result    *Run      `json:"result,omitempty"`
	Time      time.Time `json:"time"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// emitter serializes producers onto one channel and records warnings.
type emitter struct {
	ch    chan Event
	ctx   context.Context
	grace time.Duration

	mu       sync.Mutex
	warnings []string

	lastProgress atomic.Pointer[Event]
}

func newEmitter(ctx context.Context, buffer int, grace time.Duration) *emitter {
	return &emitter{
		ch:    make(chan Event, buffer),
		ctx:   ctx,
		grace: grace,
	}
}

// send delivers ev unless ctx is done first.
func (e *emitter) send(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case e.ch <- ev:
	case <-ctx.Done():
	}
}

func (e *emitter) stage(s Stage, msg string) {
	e.send(e.ctx, Event{Type: EventStage, Stage: s, Message: msg})
}

func (e *emitter) warning(s Stage, msg string) {
	e.mu.Lock()
	e.warnings = append(e.warnings, msg)
	e.mu.Unlock()
	e.send(e.ctx, Event{Type: EventWarning, Stage: s, Message: msg})
}

func (e *emitter) progress(s Stage, current, total int, msg string) {
	ev := Event{Type: EventProgress, Stage: s, Current: current, Total: total, Message: msg, Time: time.Now()}
	e.lastProgress.Store(&ev)
	e.send(e.ctx, ev)
}

// terminal delivers the final event. It waits up to grace even after the
// run context is cancelled so consumers still learn how the run ended.
func (e *emitter) terminal(ev Event) {
	ev.Time = time.Now()
	timer := time.NewTimer(e.grace)
	defer timer.Stop()
	select {
	case e.ch <- ev:
	case <-timer.C:
	}
}

func (e *emitter) recordedWarnings() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.warnings))
	copy(out, e.warnings)
	return out
}

// startHeartbeat re-emits the last progress event every interval until the
// returned stop func is called. stop blocks until the goroutine has exited.
func (e *emitter) startHeartbeat(ctx context.Context, interval time.Duration) (stop func()) {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				last := e.lastProgress.Load()
				if last == nil {
					continue
				}
				ev := *last
				ev.Heartbeat = true
				ev.Time = time.Time{}
				e.send(hbCtx, ev)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
