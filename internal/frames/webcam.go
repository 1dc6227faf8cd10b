package frames

import (
	"fmt"
	"log"
	"sync"

	"gocv.io/x/gocv"
)

// ============================================================
// LOCAL WEBCAM SOURCE
// ============================================================

// WebcamSource reads frames from a local capture device. Single-owner:
// a second Acquire without Release is an error, not a queue.
type WebcamSource struct {
	deviceID int
	mu       sync.Mutex
	cap      *gocv.VideoCapture
}

func NewWebcamSource(deviceID int) *WebcamSource {
	return &WebcamSource{deviceID: deviceID}
}

func (s *WebcamSource) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap != nil {
		return fmt.Errorf("webcam %d already acquired", s.deviceID)
	}

	cap, err := gocv.OpenVideoCapture(s.deviceID)
	if err != nil {
		return fmt.Errorf("failed to open webcam %d: %w", s.deviceID, err)
	}

	s.cap = cap
	log.Printf("📷 Webcam %d acquired", s.deviceID)
	return nil
}

// Grab reads one snapshot. A dropped read is ErrNoFrame (transient);
// a closed device is ErrSourceClosed.
func (s *WebcamSource) Grab() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil, ErrSourceClosed
	}

	mat := gocv.NewMat()
	if ok := s.cap.Read(&mat); !ok {
		mat.Close()
		if !s.cap.IsOpened() {
			return nil, ErrSourceClosed
		}
		return nil, ErrNoFrame
	}
	if mat.Empty() {
		mat.Close()
		return nil, ErrNoFrame
	}

	return NewMatFrame(mat), nil
}

func (s *WebcamSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap != nil {
		if err := s.cap.Close(); err != nil {
			log.Printf("⚠️  Webcam close: %v", err)
		}
		s.cap = nil
		log.Printf("📷 Webcam %d released", s.deviceID)
	}
}
