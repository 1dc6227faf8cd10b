package detector

import "image"

// ============================================================
// DETECTION GEOMETRY HELPERS
// ============================================================

// unscaleRect maps a box found on the downscaled detection image back to
// original-frame coordinates.
func unscaleRect(r image.Rectangle, scale float64) image.Rectangle {
	x1 := int(float64(r.Min.X) / scale)
	y1 := int(float64(r.Min.Y) / scale)
	x2 := int(float64(r.Max.X) / scale)
	y2 := int(float64(r.Max.Y) / scale)
	return image.Rect(x1, y1, x2, y2)
}

// sizeConfidence scores a face box against the configured minimum size.
// Below minSize the score is 0; at minSize it is 0.5; it saturates at 1.0
// once the shorter side reaches twice the minimum.
func sizeConfidence(box image.Rectangle, minSize int) float64 {
	if minSize <= 0 {
		return 1.0
	}
	side := box.Dx()
	if box.Dy() < side {
		side = box.Dy()
	}
	if side < minSize {
		return 0
	}
	score := float64(side) / float64(2*minSize)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Largest returns the biggest detection by area.
func Largest(detections []Detection) (Detection, bool) {
	var best Detection
	maxArea := 0

	for _, det := range detections {
		area := det.Box.Dx() * det.Box.Dy()
		if area > maxArea {
			maxArea = area
			best = det
		}
	}

	return best, maxArea > 0
}

// ExpandAndCenter grows a face box by expandRatio on each side and squares
// it around the face center, clamped to the frame.
func ExpandAndCenter(face image.Rectangle, imgWidth, imgHeight int, expandRatio float64) image.Rectangle {
	expandX := int(float64(face.Dx()) * expandRatio)
	expandY := int(float64(face.Dy()) * expandRatio)

	x1 := face.Min.X - expandX
	y1 := face.Min.Y - expandY
	x2 := face.Max.X + expandX
	y2 := face.Max.Y + expandY

	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > imgWidth {
		x2 = imgWidth
	}
	if y2 > imgHeight {
		y2 = imgHeight
	}

	expandedWidth := x2 - x1
	expandedHeight := y2 - y1
	squareSize := expandedWidth
	if expandedHeight > squareSize {
		squareSize = expandedHeight
	}

	centerX := x1 + expandedWidth/2
	centerY := y1 + expandedHeight/2

	squareX1 := centerX - squareSize/2
	squareY1 := centerY - squareSize/2
	squareX2 := squareX1 + squareSize
	squareY2 := squareY1 + squareSize

	if squareX1 < 0 {
		squareX1 = 0
		squareX2 = squareSize
		if squareX2 > imgWidth {
			squareX2 = imgWidth
		}
	}
	if squareY1 < 0 {
		squareY1 = 0
		squareY2 = squareSize
		if squareY2 > imgHeight {
			squareY2 = imgHeight
		}
	}
	if squareX2 > imgWidth {
		squareX2 = imgWidth
		squareX1 = imgWidth - squareSize
		if squareX1 < 0 {
			squareX1 = 0
		}
	}
	if squareY2 > imgHeight {
		squareY2 = imgHeight
		squareY1 = imgHeight - squareSize
		if squareY1 < 0 {
			squareY1 = 0
		}
	}

	return image.Rect(squareX1, squareY1, squareX2, squareY2)
}
