package frames

import (
	"errors"
	"image"
)

// ============================================================
// FRAME SOURCE ABSTRACTION
// ============================================================

// ErrNoFrame is the normal "nothing ready yet" sentinel. The capture loop
// skips the tick and keeps sampling; it is never surfaced as a failure.
var ErrNoFrame = errors.New("frames: no frame available")

// ErrSourceClosed means the device is gone (disconnected, call hung up).
// It ends the capture session.
var ErrSourceClosed = errors.New("frames: source closed")

// Frame is one captured still image. The producer owns the underlying
// buffer; callers must Close exactly once when done.
type Frame interface {
	Bounds() image.Rectangle
	EncodeJPEG(quality int) ([]byte, error)
	Close()
}

// Cropper is implemented by frames that can hand out an owned copy of a
// sub-region. Callers Close the returned frame independently of the
// original.
type Cropper interface {
	Crop(r image.Rectangle) (Frame, error)
}

// FrameSource abstracts a live capture device. A source is exclusively
// owned by one capture session: Acquire claims the device, Grab produces
// snapshots on demand, Release gives the device back.
type FrameSource interface {
	Acquire() error
	Grab() (Frame, error)
	Release()
}
