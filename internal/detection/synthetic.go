package detection

import "time"

// faceMeshSize is the landmark count of a refined MediaPipe face mesh.
const faceMeshSize = 478

// Synthesize builds a face whose eyes and mouth produce exactly the given
// ratios on a frame of the given size. Used by the simulator client and by
// tests; every landmark not involved in EAR/MAR sits at the origin.
func Synthesize(ear, mar float64, width, height int, at time.Time) FrameLandmarks {
	pts := make([]Point, faceMeshSize)
	aspect := float64(width) / float64(height)

	gap := ear * 0.1 * aspect
	placeEye := func(idx [6]int, x0 float64) {
		pts[idx[0]] = Point{X: x0, Y: 0.5}
		pts[idx[3]] = Point{X: x0 + 0.1, Y: 0.5}
		pts[idx[1]] = Point{X: x0 + 0.03, Y: 0.5 - gap/2}
		pts[idx[5]] = Point{X: x0 + 0.03, Y: 0.5 + gap/2}
		pts[idx[2]] = Point{X: x0 + 0.07, Y: 0.5 - gap/2}
		pts[idx[4]] = Point{X: x0 + 0.07, Y: 0.5 + gap/2}
	}
	placeEye(LeftEyeIndices, 0.6)
	placeEye(RightEyeIndices, 0.1)

	open := mar * 0.4 * aspect / 3
	m := MouthIndices
	pts[m[0]] = Point{X: 0.3, Y: 0.8}
	pts[m[4]] = Point{X: 0.5, Y: 0.8}
	for i, x := range []float64{0.35, 0.4, 0.45} {
		pts[m[1+i]] = Point{X: x, Y: 0.8 - open/2}
		pts[m[7-i]] = Point{X: x, Y: 0.8 + open/2}
	}

	return FrameLandmarks{
		Width:      width,
		Height:     height,
		Points:     pts,
		CapturedAt: at,
	}
}
