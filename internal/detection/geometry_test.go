package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1700000000, 0)

func syntheticFace(ear, mar float64) FrameLandmarks {
	return Synthesize(ear, mar, 100, 100, epoch)
}

func TestDistance_ScalesByFrameSize(t *testing.T) {
	p1 := Point{X: 0, Y: 0}
	p2 := Point{X: 0.5, Y: 0.5}

	assert.InDelta(t, 5.0, Distance(Point{X: 0, Y: 0}, Point{X: 0.3, Y: 0.4}, 10, 10), 1e-9)
	assert.InDelta(t, 500.0, Distance(p1, p2, 800, 600), 1e-9)
	assert.Equal(t, 0.0, Distance(p2, p2, 640, 480))
}

func TestEAR_DegenerateIsZero(t *testing.T) {
	var eye [6]Point
	eye[1] = Point{X: 0.1, Y: 0.1}
	eye[5] = Point{X: 0.1, Y: 0.3}

	assert.Equal(t, 0.0, EAR(eye, 640, 480))
}

func TestMAR_DegenerateIsZero(t *testing.T) {
	var mouth [8]Point
	mouth[1] = Point{X: 0.2, Y: 0.2}

	assert.Equal(t, 0.0, MAR(mouth, 640, 480))
}

func TestExtract_Ratios(t *testing.T) {
	s, ok := Extract(syntheticFace(0.3, 0.9))
	require.True(t, ok)
	assert.InDelta(t, 0.3, s.EAR, 1e-9)
	assert.InDelta(t, 0.9, s.MAR, 1e-9)
}

func TestExtract_NonSquareFrame(t *testing.T) {
	s, ok := Extract(Synthesize(0.15, 0.8, 640, 480, epoch))
	require.True(t, ok)
	assert.InDelta(t, 0.15, s.EAR, 1e-9)
	assert.InDelta(t, 0.8, s.MAR, 1e-9)
}

func TestExtract_NoSignal(t *testing.T) {
	face := syntheticFace(0.3, 0.3)

	noFace := face
	noFace.Points = nil
	_, ok := Extract(noFace)
	assert.False(t, ok, "no face")

	unsized := face
	unsized.Width = 0
	_, ok = Extract(unsized)
	assert.False(t, ok, "frame size unknown")

	short := face
	short.Points = face.Points[:100]
	_, ok = Extract(short)
	assert.False(t, ok, "too few landmarks")
}

func TestExtract_Deterministic(t *testing.T) {
	face := syntheticFace(0.17, 0.81)
	face.Width, face.Height = 640, 480

	first, ok := Extract(face)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, ok := Extract(face)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}
