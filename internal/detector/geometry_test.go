package detector

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnscaleRect(t *testing.T) {
	// Box found on a half-size detection image maps back doubled.
	r := unscaleRect(image.Rect(50, 60, 150, 160), 0.5)
	assert.Equal(t, image.Rect(100, 120, 300, 320), r)

	// Scale 1.0 is the identity.
	same := image.Rect(10, 20, 30, 40)
	assert.Equal(t, same, unscaleRect(same, 1.0))
}

func TestSizeConfidence(t *testing.T) {
	tests := []struct {
		name string
		box  image.Rectangle
		min  int
		want float64
	}{
		{"below minimum", image.Rect(0, 0, 60, 60), 80, 0},
		{"exactly minimum", image.Rect(0, 0, 80, 80), 80, 0.5},
		{"between", image.Rect(0, 0, 120, 120), 80, 0.75},
		{"at saturation", image.Rect(0, 0, 160, 160), 80, 1.0},
		{"beyond saturation", image.Rect(0, 0, 400, 400), 80, 1.0},
		{"shorter side governs", image.Rect(0, 0, 400, 60), 80, 0},
		{"no minimum configured", image.Rect(0, 0, 5, 5), 0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, sizeConfidence(tt.box, tt.min), 1e-9)
		})
	}
}

func TestLargest(t *testing.T) {
	small := Detection{Box: image.Rect(0, 0, 50, 50), Confidence: 0.9}
	big := Detection{Box: image.Rect(100, 100, 300, 300), Confidence: 0.6}

	best, ok := Largest([]Detection{small, big})
	require.True(t, ok)
	assert.Equal(t, big.Box, best.Box)

	_, ok = Largest(nil)
	assert.False(t, ok)
}

func TestExpandAndCenter(t *testing.T) {
	// A centered face expands to a square containing the original box.
	face := image.Rect(270, 190, 370, 290)
	got := ExpandAndCenter(face, 640, 480, 0.2)

	assert.True(t, face.In(got), "expanded box must contain the face")
	assert.Equal(t, got.Dx(), got.Dy(), "result must be square")
}

func TestExpandAndCenter_ClampsToFrame(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)

	corners := []image.Rectangle{
		image.Rect(0, 0, 90, 90),       // top-left
		image.Rect(560, 0, 640, 80),    // top-right
		image.Rect(0, 400, 80, 480),    // bottom-left
		image.Rect(550, 390, 640, 480), // bottom-right
	}

	for _, face := range corners {
		got := ExpandAndCenter(face, 640, 480, 0.2)
		assert.True(t, got.In(bounds), "box %v escaped the frame", got)
		assert.False(t, got.Empty())
	}
}

func TestExpandAndCenter_FaceLargerThanFrame(t *testing.T) {
	got := ExpandAndCenter(image.Rect(0, 0, 640, 480), 640, 480, 0.2)
	assert.True(t, got.In(image.Rect(0, 0, 640, 480)))
}
