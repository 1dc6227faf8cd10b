package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"attendance-kiosk/internal/detector"
	"attendance-kiosk/internal/frames"
	"attendance-kiosk/models"

	"github.com/google/uuid"
)

// ============================================================
// CAPTURE GATE STATE MACHINE
// ============================================================

// State of a capture session.
//
//	Idle → Detecting → Stabilizing → Submitting → Succeeded
//	                       ↑                         ↓
//	                       └──────── Failed ←────────┘
type State string

const (
	StateIdle        State = "idle"
	StateDetecting   State = "detecting"
	StateStabilizing State = "stabilizing"
	StateSubmitting  State = "submitting"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// Detector reports face candidates on a frame. Absence of a face is an
// empty slice, not an error.
type Detector interface {
	Detect(frames.Frame) ([]detector.Detection, error)
}

// Submitter performs exactly one verification call per invocation.
// Retry policy lives here in the gate, never inside the submitter.
// detections are the face candidates from the sample that completed the
// streak, so the submitter can crop the frame down to the face region.
type Submitter interface {
	CheckIn(ctx context.Context, frame frames.Frame, detections []detector.Detection) (*models.CheckInResponse, error)
}

type Config struct {
	SampleInterval      time.Duration
	RequiredConsecutive int
	MinConfidence       float64
	FailureCooldown     time.Duration
	SubmitTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleInterval:      200 * time.Millisecond,
		RequiredConsecutive: 2,
		MinConfidence:       0.5,
		FailureCooldown:     3 * time.Second,
		SubmitTimeout:       30 * time.Second,
	}
}

// ============================================================
// EVENTS
// ============================================================

type EventKind int

const (
	// EventSucceeded carries the verification response; the session is done.
	EventSucceeded EventKind = iota
	// EventFailed carries one categorized attempt failure; the session
	// re-enters Detecting after the cooldown unless the error is fatal.
	EventFailed
	// EventEnded means the session terminated without success (fatal error
	// or the frame source went away).
	EventEnded
)

type Event struct {
	Kind     EventKind
	Response *models.CheckInResponse
	Err      error
}

// ============================================================
// SESSION
// ============================================================

var ErrSessionDone = errors.New("gate: session already finished")

// Session drives one check-in attempt lifecycle. It owns its frame source
// for the duration of Start..Release and guarantees that sampling and
// submission never overlap: the submit happens inline in the loop
// goroutine with the ticker stopped, so at most one verification call is
// in flight and no detection tick runs while it is pending.
type Session struct {
	ID        string
	cfg       Config
	source    frames.FrameSource
	detector  Detector
	submitter Submitter

	mu            sync.Mutex
	state         State
	consecutive   int
	lastAttemptAt time.Time
	started       bool
	cancel        context.CancelFunc

	done   chan struct{}
	events chan Event
}

func NewSession(cfg Config, source frames.FrameSource, det Detector, sub Submitter) *Session {
	if cfg.RequiredConsecutive < 1 {
		cfg.RequiredConsecutive = 1
	}
	return &Session{
		ID:        uuid.NewString(),
		cfg:       cfg,
		source:    source,
		detector:  det,
		submitter: sub,
		state:     StateIdle,
		done:      make(chan struct{}),
		events:    make(chan Event, 16),
	}
}

// Events delivers session results. Buffered; the session never blocks on a
// slow consumer.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done closes when the sampling loop has fully exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConsecutiveDetections reports the current debounce streak.
func (s *Session) ConsecutiveDetections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutive
}

// Start acquires the frame source and begins sampling. A session runs at
// most once; build a new Session to capture again after success.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionDone
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.source.Acquire(); err != nil {
		cancel()
		close(s.done)
		return fmt.Errorf("gate: acquire frame source: %w", err)
	}

	go s.run(runCtx)
	return nil
}

// Stop cancels the session. Pending timers stop immediately; an in-flight
// submission still resolves but its result is discarded. Stop does not
// wait for that; use Done if you need to.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ============================================================
// SAMPLING LOOP
// ============================================================

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.source.Release()

	s.setState(StateDetecting)
	log.Printf("⏳ [%s] Scanning for a stable face...", s.ID)

	// A Ticker drops ticks while the receiver is busy, so a slow
	// detection skips samples rather than queueing them.
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateIdle)
			return

		case <-ticker.C:
			frame, err := s.source.Grab()
			if err != nil {
				if errors.Is(err, frames.ErrNoFrame) {
					continue // transient, keep sampling
				}
				log.Printf("🔴 [%s] Frame source gone: %v", s.ID, err)
				s.setState(StateFailed)
				s.emit(Event{Kind: EventEnded, Err: err})
				return
			}

			detections, ready := s.observe(frame)
			if !ready {
				frame.Close()
				continue
			}

			// Streak complete. Halt sampling before submitting so no
			// tick can race the in-flight verification.
			s.setState(StateStabilizing)
			ticker.Stop()

			done := s.submitAndSettle(ctx, frame, detections)
			frame.Close()
			if done {
				return
			}

			s.resetStreak()
			s.setState(StateDetecting)
			ticker.Reset(s.cfg.SampleInterval)
		}
	}
}

// observe scores one sample against the debounce rule: exactly one face at
// or above the confidence threshold extends the streak, anything else
// resets it. Once the streak is long enough to submit it returns the
// winning detections along with ready=true.
func (s *Session) observe(frame frames.Frame) (detections []detector.Detection, ready bool) {
	detections, err := s.detector.Detect(frame)
	if err != nil {
		// Unreadable frame: transient, does not break the streak rule
		// conservatively - treat as a negative sample.
		log.Printf("⚠️  [%s] Detection error: %v", s.ID, err)
		s.resetStreak()
		return nil, false
	}

	confident := 0
	for _, det := range detections {
		if det.Confidence >= s.cfg.MinConfidence {
			confident++
		}
	}

	if confident != 1 || len(detections) > 1 {
		s.resetStreak()
		return nil, false
	}

	s.mu.Lock()
	s.consecutive++
	streak := s.consecutive
	s.mu.Unlock()

	return detections, streak >= s.cfg.RequiredConsecutive
}

// submitAndSettle performs the single verification call and decides the
// next state. Returns true when the session is over.
func (s *Session) submitAndSettle(ctx context.Context, frame frames.Frame, detections []detector.Detection) bool {
	s.mu.Lock()
	s.state = StateSubmitting
	s.lastAttemptAt = time.Now()
	s.mu.Unlock()
	log.Printf("📤 [%s] Submitting frame for verification...", s.ID)

	// The submission deliberately outlives session cancellation: it gets
	// its own deadline, and a cancelled session discards the result
	// instead of aborting the call mid-flight.
	submitCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SubmitTimeout)
	defer cancel()

	resp, err := s.submitter.CheckIn(submitCtx, frame, detections)

	if ctx.Err() != nil {
		// Cancelled while in flight: result is discarded, no state
		// transition, no event.
		s.setState(StateIdle)
		return true
	}

	if err == nil {
		s.setState(StateSucceeded)
		log.Printf("✅ [%s] RECOGNITION SUCCESS!", s.ID)
		s.emit(Event{Kind: EventSucceeded, Response: resp})
		return true
	}

	s.setState(StateFailed)
	log.Printf("❌ [%s] Verification failed: %v", s.ID, err)

	var apiErr *models.APIError
	if errors.As(err, &apiErr) && apiErr.Code.Class() == models.ClassFatal {
		s.emit(Event{Kind: EventEnded, Err: err})
		return true
	}

	s.emit(Event{Kind: EventFailed, Err: err})

	// Cool down before re-entering Detecting.
	select {
	case <-ctx.Done():
		s.setState(StateIdle)
		return true
	case <-time.After(s.cfg.FailureCooldown):
	}
	return false
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) resetStreak() {
	s.mu.Lock()
	s.consecutive = 0
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Printf("⚠️  [%s] Event dropped (consumer too slow)", s.ID)
	}
}
