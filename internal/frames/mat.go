package frames

import (
	"encoding/base64"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ============================================================
// GOCV-BACKED FRAME
// ============================================================

// MatFrame wraps a BGR gocv.Mat. The detector reaches the raw matrix
// through Mat(); everything else sees the Frame interface.
type MatFrame struct {
	mat    gocv.Mat
	closed bool
}

// NewMatFrame takes ownership of mat.
func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat}
}

func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

func (f *MatFrame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

// EncodeJPEG encodes the frame for submission.
func (f *MatFrame) EncodeJPEG(quality int) ([]byte, error) {
	if f.mat.Empty() {
		return nil, fmt.Errorf("encode: empty frame")
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, f.mat,
		[]int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("IMEncode failed: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Crop copies a sub-region into a new frame. The region is clamped to the
// frame bounds; an empty intersection is an error.
func (f *MatFrame) Crop(r image.Rectangle) (Frame, error) {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop: region outside frame")
	}
	region := f.mat.Region(r)
	defer region.Close()
	return NewMatFrame(region.Clone()), nil
}

func (f *MatFrame) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.mat.Close()
}

// EncodeBase64JPEG is the submission wire format helper.
func EncodeBase64JPEG(f Frame, quality int) (string, error) {
	data, err := f.EncodeJPEG(quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
