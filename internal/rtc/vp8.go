package rtc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"gocv.io/x/gocv"
)

// ============================================================
// VP8 KEYFRAME DETECTION
// ============================================================

func isVP8Keyframe(frame []byte) bool {
	if len(frame) < 10 {
		return false
	}
	frameTag := uint32(frame[0]) | (uint32(frame[1]) << 8) | (uint32(frame[2]) << 16)
	isKey := (frameTag & 0x1) == 0
	if !isKey {
		return false
	}
	if frame[3] != 0x9d || frame[4] != 0x01 || frame[5] != 0x2a {
		return false
	}
	return true
}

// ============================================================
// VP8 DIMENSION EXTRACTION
// ============================================================

func getVP8KeyframeDims(frame []byte) (int, int, error) {
	if len(frame) < 10 {
		return 0, 0, fmt.Errorf("frame too small: %d bytes", len(frame))
	}

	frameTag := uint32(frame[0]) | (uint32(frame[1]) << 8) | (uint32(frame[2]) << 16)
	if (frameTag & 0x1) != 0 {
		return 0, 0, fmt.Errorf("not a keyframe (tag: 0x%x)", frameTag)
	}

	if frame[3] != 0x9d || frame[4] != 0x01 || frame[5] != 0x2a {
		return 0, 0, fmt.Errorf("invalid start code: %02x %02x %02x", frame[3], frame[4], frame[5])
	}

	width := (int(frame[6]) | (int(frame[7]) << 8)) & 0x3FFF
	height := (int(frame[8]) | (int(frame[9]) << 8)) & 0x3FFF

	if width == 0 || height == 0 {
		return 0, 0, fmt.Errorf("zero dimension: %dx%d", width, height)
	}

	if width > 3840 || height > 2160 {
		return 0, 0, fmt.Errorf("dimension too large: %dx%d", width, height)
	}

	return width, height, nil
}

// ============================================================
// VP8 DECODER (one keyframe -> BGR Mat via ffmpeg)
// ============================================================

type vp8Decoder struct {
	dims DimensionConfig
	pool *bufferPool
}

func newVP8Decoder(dims DimensionConfig, pool *bufferPool) *vp8Decoder {
	return &vp8Decoder{dims: dims, pool: pool}
}

// optimalDecodeSize fits the frame inside the configured decode bounds,
// keeping aspect ratio and even dimensions.
func (d *vp8Decoder) optimalDecodeSize(origWidth, origHeight int) (int, int) {
	maxW := d.dims.MaxDecodeWidth
	maxH := d.dims.MaxDecodeHeight

	if origWidth <= maxW && origHeight <= maxH {
		return origWidth, origHeight
	}

	scaleW := float64(maxW) / float64(origWidth)
	scaleH := float64(maxH) / float64(origHeight)

	scale := scaleW
	if scaleH < scaleW {
		scale = scaleH
	}

	newWidth := (int(float64(origWidth)*scale) / 2) * 2
	newHeight := (int(float64(origHeight)*scale) / 2) * 2

	if newWidth < 2 {
		newWidth = 2
	}
	if newHeight < 2 {
		newHeight = 2
	}

	return newWidth, newHeight
}

// wrapIVF frames a single VP8 keyframe as a one-frame IVF stream for ffmpeg.
func wrapIVF(frameData []byte, width, height int) []byte {
	ivfHeader := make([]byte, 32)

	copy(ivfHeader[0:4], []byte{'D', 'K', 'I', 'F'})
	ivfHeader[6] = 32
	copy(ivfHeader[8:12], []byte{'V', 'P', '8', '0'})
	ivfHeader[12] = byte(width & 0xff)
	ivfHeader[13] = byte((width >> 8) & 0xff)
	ivfHeader[14] = byte(height & 0xff)
	ivfHeader[15] = byte((height >> 8) & 0xff)
	ivfHeader[16] = 30
	ivfHeader[20] = 1
	ivfHeader[24] = 1

	frameSize := uint32(len(frameData))
	frameHeader := make([]byte, 12)
	frameHeader[0] = byte(frameSize & 0xff)
	frameHeader[1] = byte((frameSize >> 8) & 0xff)
	frameHeader[2] = byte((frameSize >> 16) & 0xff)
	frameHeader[3] = byte((frameSize >> 24) & 0xff)

	result := make([]byte, 0, 32+12+len(frameData))
	result = append(result, ivfHeader...)
	result = append(result, frameHeader...)
	result = append(result, frameData...)

	return result
}

// decode converts one VP8 keyframe into a BGR Mat, downscaling toward the
// decode bounds inside ffmpeg.
func (d *vp8Decoder) decode(frameData []byte) (*gocv.Mat, error) {
	origWidth, origHeight, err := getVP8KeyframeDims(frameData)
	if err != nil {
		return nil, fmt.Errorf("parse dims: %w", err)
	}

	decodeWidth, decodeHeight := d.optimalDecodeSize(origWidth, origHeight)
	ivfData := wrapIVF(frameData, origWidth, origHeight)

	args := []string{
		"-loglevel", "error",
		"-nostdin",
		"-f", "ivf",
		"-i", "pipe:0",
	}

	if decodeWidth != origWidth || decodeHeight != origHeight {
		args = append(args,
			"-vf", fmt.Sprintf("scale=%d:%d:flags=fast_bilinear", decodeWidth, decodeHeight),
		)
	}

	args = append(args,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-threads", "1",
		"pipe:1",
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	buf := d.pool.Get()
	defer func() {
		if buf.Cap() > maxPooledBufferSize {
			return
		}
		d.pool.Put(buf)
	}()

	var stderrBuf bytes.Buffer
	cmd.Stdout = buf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if _, err := stdin.Write(ivfData); err != nil {
			writeErr <- fmt.Errorf("write: %w", err)
			return
		}
		writeErr <- nil
	}()

	cmdErr := cmd.Wait()

	if err := <-writeErr; err != nil {
		return nil, err
	}

	if cmdErr != nil {
		stderr := stderrBuf.String()
		if len(stderr) > 200 {
			stderr = stderr[:200] + "..."
		}
		return nil, fmt.Errorf("decode: %w (%s)", cmdErr, stderr)
	}

	expectedSize := decodeWidth * decodeHeight * 3
	if buf.Len() < expectedSize {
		return nil, fmt.Errorf("short frame: %d < %d", buf.Len(), expectedSize)
	}

	// Copy data out so the pooled buffer can be reused.
	frameBytes := make([]byte, expectedSize)
	copy(frameBytes, buf.Bytes()[:expectedSize])

	mat, err := gocv.NewMatFromBytes(
		decodeHeight,
		decodeWidth,
		gocv.MatTypeCV8UC3,
		frameBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("NewMatFromBytes: %w", err)
	}

	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("empty mat")
	}

	return &mat, nil
}
