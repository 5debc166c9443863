package detection

import (
	"math"
	"time"
)

// Face mesh indices used for the aspect ratios. Order matters: p1..p6 for an
// eye and p1..p8 for the mouth as they appear in the EAR/MAR formulas.
var (
	LeftEyeIndices  = [6]int{362, 385, 387, 263, 373, 380}
	RightEyeIndices = [6]int{33, 160, 158, 133, 153, 144}
	MouthIndices    = [8]int{61, 76, 62, 292, 291, 306, 409, 324}
)

// minLandmarks is the smallest point set that covers every index above.
const minLandmarks = 410

// Point is a normalized keypoint, 0..1 on both axes.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FrameLandmarks is one face worth of keypoints for one video frame.
// An empty Points slice means no face was detected in the frame.
type FrameLandmarks struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Points     []Point   `json:"points,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// HasFace reports whether the frame carries a detected face.
func (f FrameLandmarks) HasFace() bool {
	return len(f.Points) > 0
}

// RatioSample is the pair of ratios derived from a single frame.
type RatioSample struct {
	EAR float64 `json:"ear"`
	MAR float64 `json:"mar"`
}

// Distance returns the pixel distance between two normalized points on a
// frame of the given size.
func Distance(p1, p2 Point, width, height int) float64 {
	dx := (p1.X - p2.X) * float64(width)
	dy := (p1.Y - p2.Y) * float64(height)
	return math.Sqrt(dx*dx + dy*dy)
}

// EAR computes the eye aspect ratio. Degenerate geometry yields 0.
func EAR(eye [6]Point, width, height int) float64 {
	a := Distance(eye[1], eye[5], width, height)
	b := Distance(eye[2], eye[4], width, height)
	c := Distance(eye[0], eye[3], width, height)
	if c == 0 {
		return 0
	}
	return (a + b) / (2.0 * c)
}

// MAR computes the mouth aspect ratio. Degenerate geometry yields 0.
func MAR(mouth [8]Point, width, height int) float64 {
	a := Distance(mouth[1], mouth[7], width, height)
	b := Distance(mouth[2], mouth[6], width, height)
	c := Distance(mouth[3], mouth[5], width, height)
	d := Distance(mouth[0], mouth[4], width, height)
	if d == 0 {
		return 0
	}
	return (a + b + c) / (2.0 * d)
}

// Extract derives the ratio sample for a frame. It returns false when the
// frame carries no usable signal: no face, unknown frame size, or a point set
// too short for the required indices.
func Extract(f FrameLandmarks) (RatioSample, bool) {
	if !f.HasFace() || f.Width <= 0 || f.Height <= 0 {
		return RatioSample{}, false
	}
	if len(f.Points) < minLandmarks {
		return RatioSample{}, false
	}

	var left, right [6]Point
	for i, idx := range LeftEyeIndices {
		left[i] = f.Points[idx]
	}
	for i, idx := range RightEyeIndices {
		right[i] = f.Points[idx]
	}
	var mouth [8]Point
	for i, idx := range MouthIndices {
		mouth[i] = f.Points[idx]
	}

	ear := (EAR(left, f.Width, f.Height) + EAR(right, f.Width, f.Height)) / 2.0
	return RatioSample{
		EAR: ear,
		MAR: MAR(mouth, f.Width, f.Height),
	}, true
}
