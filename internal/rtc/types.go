package rtc

import (
	"bytes"
	"context"
	"sync"
	"time"

	"attendance-kiosk/internal/audio"
	"attendance-kiosk/internal/detector"
	"attendance-kiosk/internal/gate"
	"attendance-kiosk/internal/signal"

	"github.com/pion/webrtc/v4"
)

// ============================================================
// CALL MANAGER
// ============================================================

// Manager answers incoming video calls from employee devices and runs one
// capture-gate session per call.
type Manager struct {
	calls           map[string]*callState
	mu              sync.RWMutex
	client          *signal.Client
	faceDetector    *detector.PresenceDetector
	submitter       gate.Submitter
	gateConfig      gate.Config
	audioConfig     audio.Config
	audioLibrary    *audio.Library
	bufferPool      *bufferPool
	captureConfig   CaptureConfig
	dimensionConfig DimensionConfig
	shutdown        chan struct{}
	shutdownOnce    sync.Once
}

// ============================================================
// CALL STATE
// ============================================================

type callState struct {
	pc          *webrtc.PeerConnection
	sessionID   string
	peerID      string
	audioPlayer *audio.Player
	audioStop   chan struct{}
	cancelFunc  context.CancelFunc
	cleanupOnce sync.Once
	endCallOnce sync.Once
	mu          sync.Mutex
	pendingICE  []webrtc.ICECandidateInit
	iceReady    bool
}

// ============================================================
// DIMENSION & CAPTURE CONFIG
// ============================================================

type DimensionConfig struct {
	MaxDecodeWidth  int
	MaxDecodeHeight int
}

type CaptureConfig struct {
	CaptureTimeout  time.Duration
	PLITimeout      time.Duration
	MaxAttempts     int
	SampleBufferMax uint16
}

func DefaultDimensionConfig() DimensionConfig {
	return DimensionConfig{
		MaxDecodeWidth:  640,
		MaxDecodeHeight: 480,
	}
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		CaptureTimeout:  90 * time.Second,
		PLITimeout:      10 * time.Second,
		MaxAttempts:     5,
		SampleBufferMax: 128,
	}
}

// ============================================================
// BUFFER POOL
// ============================================================

type bufferPool struct {
	pool sync.Pool
}

const (
	maxPooledBufferSize = 10 * 1024 * 1024 // 10MB
	initialBufferCap    = 512 * 1024       // 512KB
)

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := new(bytes.Buffer)
				buf.Grow(initialBufferCap)
				return buf
			},
		},
	}
}

func (p *bufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (p *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	// Only pool buffers < 10MB to prevent memory bloat
	if buf.Cap() < maxPooledBufferSize {
		p.pool.Put(buf)
	}
}
