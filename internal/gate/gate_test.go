package gate

// Capture gate tests.
//
// These drive the sampling loop with scripted detectors and submitters:
// no camera, no network. The fakes implement the frames.Frame and
// frames.FrameSource interfaces directly.

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"attendance-kiosk/internal/detector"
	"attendance-kiosk/internal/frames"
	"attendance-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// FAKES
// ============================================================

type fakeFrame struct{}

func (fakeFrame) Bounds() image.Rectangle { return image.Rect(0, 0, 640, 480) }

func (fakeFrame) EncodeJPEG(quality int) ([]byte, error) { return []byte{0xff, 0xd8}, nil }

func (fakeFrame) Close() {}

type fakeSource struct {
	acquired atomic.Bool
	released atomic.Bool
	grabErr  error
}

func (s *fakeSource) Acquire() error {
	s.acquired.Store(true)
	return nil
}

func (s *fakeSource) Grab() (frames.Frame, error) {
	if s.grabErr != nil {
		return nil, s.grabErr
	}
	return fakeFrame{}, nil
}

func (s *fakeSource) Release() { s.released.Store(true) }

// scriptDetector plays back a fixed sequence of per-tick detections,
// repeating the last entry forever.
type scriptDetector struct {
	script []([]detector.Detection)
	calls  atomic.Int64
}

func face(conf float64) detector.Detection {
	return detector.Detection{Box: image.Rect(100, 100, 300, 300), Confidence: conf}
}

func (d *scriptDetector) Detect(frame frames.Frame) ([]detector.Detection, error) {
	n := int(d.calls.Add(1)) - 1
	if n >= len(d.script) {
		n = len(d.script) - 1
	}
	return d.script[n], nil
}

type fakeSubmitter struct {
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	calls     atomic.Int64
	delay     time.Duration
	resp      *models.CheckInResponse
	err       error
	errOnce   error // returned on the first call only if set

	mu            sync.Mutex
	gotDetections []detector.Detection
}

func (f *fakeSubmitter) lastDetections() []detector.Detection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotDetections
}

func (f *fakeSubmitter) CheckIn(ctx context.Context, frame frames.Frame, detections []detector.Detection) (*models.CheckInResponse, error) {
	f.mu.Lock()
	f.gotDetections = detections
	f.mu.Unlock()

	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxFlight.Load()
		if cur <= max || f.maxFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	n := f.calls.Add(1)
	if n == 1 && f.errOnce != nil {
		return nil, f.errOnce
	}
	return f.resp, f.err
}

func verifiedResponse() *models.CheckInResponse {
	return &models.CheckInResponse{
		Identity: models.Identity{EmployeeID: "emp-1", FirstName: "Dana", LastName: "Lee"},
		Verified: true,
	}
}

func fastConfig() Config {
	return Config{
		SampleInterval:      5 * time.Millisecond,
		RequiredConsecutive: 2,
		MinConfidence:       0.5,
		FailureCooldown:     10 * time.Millisecond,
		SubmitTimeout:       time.Second,
	}
}

func waitEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for gate event")
		return Event{}
	}
}

// ============================================================
// DEBOUNCE
// ============================================================

func TestSession_SubmitsAfterConsecutiveDetections(t *testing.T) {
	det := &scriptDetector{script: []([]detector.Detection){
		{face(0.9)},
	}}
	sub := &fakeSubmitter{resp: verifiedResponse()}
	s := NewSession(fastConfig(), &fakeSource{}, det, sub)

	require.NoError(t, s.Start(context.Background()))
	ev := waitEvent(t, s)

	assert.Equal(t, EventSucceeded, ev.Kind)
	require.NotNil(t, ev.Response)
	assert.Equal(t, "Dana Lee", ev.Response.GetFullName())
	assert.Equal(t, int64(1), sub.calls.Load())

	// The submitter gets the detections from the winning sample so it can
	// crop the frame to the face.
	got := sub.lastDetections()
	require.Len(t, got, 1)
	assert.Equal(t, face(0.9).Box, got[0].Box)
}

func TestSession_SingleDetectionDoesNotSubmit(t *testing.T) {
	// One confident frame, then empty forever: the streak never reaches 2.
	det := &scriptDetector{script: []([]detector.Detection){
		{face(0.9)},
		{},
	}}
	sub := &fakeSubmitter{resp: verifiedResponse()}
	s := NewSession(fastConfig(), &fakeSource{}, det, sub)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	s.Stop()
	<-s.Done()

	assert.Equal(t, int64(0), sub.calls.Load())
}

func TestSession_MultipleFacesResetStreak(t *testing.T) {
	// face, two faces, face, face -> submit happens on the 4th tick, not
	// the 2nd: the multi-face frame restarts the count.
	det := &scriptDetector{script: []([]detector.Detection){
		{face(0.9)},
		{face(0.9), face(0.8)},
		{face(0.9)},
		{face(0.9)},
	}}
	sub := &fakeSubmitter{resp: verifiedResponse()}
	s := NewSession(fastConfig(), &fakeSource{}, det, sub)

	require.NoError(t, s.Start(context.Background()))
	ev := waitEvent(t, s)

	assert.Equal(t, EventSucceeded, ev.Kind)
	assert.GreaterOrEqual(t, det.calls.Load(), int64(4))
	assert.Equal(t, int64(1), sub.calls.Load())
}

func TestSession_LowConfidenceIgnored(t *testing.T) {
	det := &scriptDetector{script: []([]detector.Detection){
		{face(0.2)},
	}}
	sub := &fakeSubmitter{resp: verifiedResponse()}
	s := NewSession(fastConfig(), &fakeSource{}, det, sub)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	s.Stop()
	<-s.Done()

	assert.Equal(t, int64(0), sub.calls.Load())
	assert.Equal(t, 0, s.ConsecutiveDetections())
}

// ============================================================
// SINGLE-FLIGHT
// ============================================================

func TestSession_AtMostOneSubmissionInFlight(t *testing.T) {
	det := &scriptDetector{script: []([]detector.Detection){
		{face(0.9)},
	}}
	// Slow submitter + transient failures force several attempts while
	// the detector keeps firing; in-flight count must never exceed 1.
	sub := &fakeSubmitter{
		delay: 30 * time.Millisecond,
		err:   errors.New("verify: transient failure"),
	}
	cfg := fastConfig()
	cfg.FailureCooldown = time.Millisecond
	s := NewSession(cfg, &fakeSource{}, det, sub)

	require.NoError(t, s.Start(context.Background()))

	deadline := time.After(500 * time.Millisecond)
	attempts := 0
	for attempts < 3 {
		select {
		case ev := <-s.Events():
			require.Equal(t, EventFailed, ev.Kind)
			attempts++
		case <-deadline:
			t.Fatalf("only %d attempts before deadline", attempts)
		}
	}

	s.Stop()
	<-s.Done()

	assert.Equal(t, int32(1), sub.maxFlight.Load())
}

// ============================================================
// FAILURE HANDLING
// ============================================================

func TestSession_RecoversAfterUserCorrectableFailure(t *testing.T) {
	det := &scriptDetector{script: []([]detector.Detection){
		{face(0.9)},
	}}
	sub := &fakeSubmitter{
		resp:    verifiedResponse(),
		errOnce: &models.APIError{Code: models.ErrNoMatch, Message: "identity not verified"},
	}
	s := NewSession(fastConfig(), &fakeSource{}, det, sub)

	require.NoError(t, s.Start(context.Background()))

	first := waitEvent(t, s)
	require.Equal(t, EventFailed, first.Kind)
	var apiErr *models.APIError
	require.ErrorAs(t, first.Err, &apiErr)
	assert.Equal(t, models.ErrNoMatch, apiErr.Code)

	second := waitEvent(t, s)
	assert.Equal(t, EventSucceeded, second.Kind)
	assert.Equal(t, int64(2), sub.calls.Load())
}

func TestSession_FatalErrorEndsSession(t *testing.T) {
	det := &scriptDetector{script: []([]detector.Detection){
		{face(0.9)},
	}}
	sub := &fakeSubmitter{
		err: &models.APIError{Code: models.ErrAuthExpired, Message: "authentication expired"},
	}
	s := NewSession(fastConfig(), &fakeSource{}, det, sub)

	require.NoError(t, s.Start(context.Background()))
	ev := waitEvent(t, s)

	assert.Equal(t, EventEnded, ev.Kind)
	<-s.Done()
	assert.Equal(t, int64(1), sub.calls.Load())
}

func TestSession_SourceGoneEndsSession(t *testing.T) {
	src := &fakeSource{grabErr: frames.ErrSourceClosed}
	det := &scriptDetector{script: []([]detector.Detection){{}}}
	s := NewSession(fastConfig(), src, det, &fakeSubmitter{})

	require.NoError(t, s.Start(context.Background()))
	ev := waitEvent(t, s)

	assert.Equal(t, EventEnded, ev.Kind)
	assert.ErrorIs(t, ev.Err, frames.ErrSourceClosed)
	<-s.Done()
	assert.True(t, src.released.Load())
}

// ============================================================
// CANCELLATION
// ============================================================

func TestSession_StopDuringSubmitDiscardsResult(t *testing.T) {
	det := &scriptDetector{script: []([]detector.Detection){
		{face(0.9)},
	}}
	submitting := make(chan struct{})
	sub := &blockingSubmitter{entered: submitting, release: make(chan struct{})}
	s := NewSession(fastConfig(), &fakeSource{}, det, sub)

	require.NoError(t, s.Start(context.Background()))

	<-submitting
	s.Stop()
	close(sub.release)
	<-s.Done()

	// Cancelled mid-flight: the (successful) result is discarded.
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event after stop: %+v", ev)
	default:
	}
	assert.Equal(t, StateIdle, s.State())
}

type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSubmitter) CheckIn(ctx context.Context, frame frames.Frame, detections []detector.Detection) (*models.CheckInResponse, error) {
	close(b.entered)
	<-b.release
	return verifiedResponse(), nil
}

func TestSession_StartTwiceFails(t *testing.T) {
	det := &scriptDetector{script: []([]detector.Detection){{}}}
	s := NewSession(fastConfig(), &fakeSource{}, det, &fakeSubmitter{})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSessionDone)

	s.Stop()
	<-s.Done()
}
