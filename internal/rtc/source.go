package rtc

import (
	"context"
	"log"
	"strings"
	"sync"

	"attendance-kiosk/internal/frames"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

// ============================================================
// REMOTE CALL FRAME SOURCE
// ============================================================

// callSource adapts one remote VP8 track into a frames.FrameSource. A
// background reader reassembles RTP into samples, decodes keyframes and
// keeps only the newest frame; Grab hands that frame to the capture gate.
type callSource struct {
	track   *webrtc.TrackRemote
	decoder *vp8Decoder
	maxLate uint16

	mu       sync.Mutex
	latest   *frames.MatFrame
	acquired bool
	closed   bool
	released bool
	cancel   context.CancelFunc
	readerWG sync.WaitGroup

	firstKeyframe chan struct{}
	firstOnce     sync.Once
}

func newCallSource(track *webrtc.TrackRemote, decoder *vp8Decoder, maxLate uint16) *callSource {
	return &callSource{
		track:         track,
		decoder:       decoder,
		maxLate:       maxLate,
		firstKeyframe: make(chan struct{}),
	}
}

// FirstKeyframe closes once video is actually flowing; the call watchdog
// hangs up when it never does.
func (s *callSource) FirstKeyframe() <-chan struct{} {
	return s.firstKeyframe
}

func (s *callSource) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired || s.closed {
		return frames.ErrSourceClosed
	}
	s.acquired = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.readerWG.Add(1)
	go s.readTrack(ctx)

	return nil
}

// Grab takes the newest decoded frame, or ErrNoFrame while waiting on the
// next keyframe.
func (s *callSource) Grab() (frames.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, frames.ErrSourceClosed
	}
	if s.latest == nil {
		return nil, frames.ErrNoFrame
	}

	frame := s.latest
	s.latest = nil
	return frame, nil
}

func (s *callSource) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.readerWG.Wait()

	s.mu.Lock()
	if s.latest != nil {
		s.latest.Close()
		s.latest = nil
	}
	s.mu.Unlock()
}

// ============================================================
// RTP READER
// ============================================================

func (s *callSource) readTrack(ctx context.Context) {
	defer s.readerWG.Done()
	defer log.Println("   🛑 RTP reader stopped")

	sampleBuilder := samplebuilder.New(
		s.maxLate,
		&codecs.VP8Packet{},
		s.track.Codec().ClockRate,
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, err := s.track.ReadRTP()
		if err != nil {
			if !strings.Contains(err.Error(), "closed") {
				log.Printf("   ⚠️  RTP error: %v", err)
			}
			s.markClosed()
			return
		}

		sampleBuilder.Push(pkt)
		sample := sampleBuilder.Pop()
		if sample == nil {
			continue
		}

		if !isVP8Keyframe(sample.Data) {
			continue
		}

		s.firstOnce.Do(func() {
			log.Println("   ✅ Keyframe received!")
			close(s.firstKeyframe)
		})

		mat, err := s.decoder.decode(sample.Data)
		if err != nil {
			continue
		}

		frame := frames.NewMatFrame(*mat)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			frame.Close()
			return
		}
		if s.latest != nil {
			s.latest.Close()
		}
		s.latest = frame
		s.mu.Unlock()
	}
}

// markClosed flips the source to closed when the track goes away so Grab
// reports ErrSourceClosed instead of spinning on ErrNoFrame.
func (s *callSource) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
