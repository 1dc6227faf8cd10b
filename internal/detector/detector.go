package detector

import (
	"fmt"
	"image"
	"log"

	"attendance-kiosk/internal/frames"
	"attendance-kiosk/models"

	"gocv.io/x/gocv"
)

// ============================================================
// FACE PRESENCE DETECTOR - cascade classifier on downscaled frames
// ============================================================

// Detection is one face candidate in original-frame coordinates.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
}

// matProvider is what the detector needs from a frame; frames that cannot
// expose a matrix are unreadable input.
type matProvider interface {
	Mat() gocv.Mat
}

type PresenceDetector struct {
	classifier gocv.CascadeClassifier
	config     models.DetectorConfig
}

// NewPresenceDetector loads the cascade model.
func NewPresenceDetector(config models.DetectorConfig) (*PresenceDetector, error) {
	d := &PresenceDetector{config: config}

	if config.Enabled {
		classifier := gocv.NewCascadeClassifier()
		if !classifier.Load(config.CascadePath) {
			return nil, fmt.Errorf("failed to load face cascade classifier from %s", config.CascadePath)
		}
		d.classifier = classifier

		log.Println("✅ Face detector initialized")
		log.Printf("   Min face size: %dx%d", config.MinFaceSize, config.MinFaceSize)
		log.Printf("   Detection width: %dpx", config.DetectionWidth)
	}

	return d, nil
}

// Close releases resources used by the detector
func (d *PresenceDetector) Close() {
	if d.config.Enabled && d.classifier != (gocv.CascadeClassifier{}) {
		d.classifier.Close()
	}
}

// Detect runs face detection on a single frame. No face is a normal empty
// result; only unreadable frames produce an error. Detection runs on a
// grayscale copy downscaled to DetectionWidth, boxes are mapped back to
// original coordinates.
func (d *PresenceDetector) Detect(frame frames.Frame) ([]Detection, error) {
	if !d.config.Enabled {
		return nil, nil
	}

	mp, ok := frame.(matProvider)
	if !ok {
		return nil, fmt.Errorf("detect: frame does not carry image data")
	}
	img := mp.Mat()
	if img.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	origW := img.Cols()
	origH := img.Rows()

	detectionImg := img
	scale := 1.0
	resized := false

	if origW > d.config.DetectionWidth {
		targetW := d.config.DetectionWidth
		scale = float64(targetW) / float64(origW)
		targetH := int(float64(origH) * scale)

		detectionImg = gocv.NewMat()
		defer detectionImg.Close()
		gocv.Resize(img, &detectionImg, image.Pt(targetW, targetH), 0, 0, gocv.InterpolationLinear)
		resized = true
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(detectionImg, &gray, gocv.ColorBGRToGray)

	rects := d.classifier.DetectMultiScale(gray)
	if len(rects) == 0 {
		return nil, nil
	}

	detections := make([]Detection, 0, len(rects))
	for _, r := range rects {
		box := r
		if resized {
			box = unscaleRect(r, scale)
		}
		detections = append(detections, Detection{
			Box:        box,
			Confidence: sizeConfidence(box, d.config.MinFaceSize),
		})
	}

	return detections, nil
}
