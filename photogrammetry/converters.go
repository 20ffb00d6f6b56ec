package photogrammetry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// SMALL_ANGLE is the rotation angle below which first order expansions are used.
const SMALL_ANGLE = 1e-10

// FormatMatrixPrint formats small matrices such as K for tables and logs.
func FormatMatrixPrint(matrix mat.Matrix) fmt.Formatter {
	return mat.Formatted(matrix, mat.Prefix("  "), mat.Squeeze(), mat.Excerpt(4))
}

func Rad2Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// RotateXAxis returns the rotation by angle radians about the x axis.
func RotateXAxis(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// GetLongLat returns the longitude and latitude, in radians, of the direction d seen
// from the origin. Latitude is measured from the xy plane toward +z.
func GetLongLat(d r3.Vector) (longitude, latitude float64) {
	u := d.Normalize()
	return math.Atan2(u.Y, u.X), math.Atan2(u.Z, math.Hypot(u.X, u.Y))
}

// AngleAxisToRotation converts an angle-axis vector (direction is the axis, norm the
// angle) to a column-major rotation matrix using Rodrigues' formula.
func AngleAxisToRotation(w r3.Vector) [9]float64 {
	var R [3][3]float64
	theta := w.Norm()
	if theta < SMALL_ANGLE {
		R = [3][3]float64{
			{1, -w.Z, w.Y},
			{w.Z, 1, -w.X},
			{-w.Y, w.X, 1},
		}
	} else {
		k := w.Mul(1 / theta)
		c, s := math.Cos(theta), math.Sin(theta)
		t := 1 - c
		R = [3][3]float64{
			{c + k.X*k.X*t, k.X*k.Y*t - k.Z*s, k.X*k.Z*t + k.Y*s},
			{k.Y*k.X*t + k.Z*s, c + k.Y*k.Y*t, k.Y*k.Z*t - k.X*s},
			{k.Z*k.X*t - k.Y*s, k.Z*k.Y*t + k.X*s, c + k.Z*k.Z*t},
		}
	}
	var out [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[c*3+r] = R[r][c]
		}
	}
	return out
}

// RotationToAngleAxis inverts AngleAxisToRotation for an orthonormal column-major
// rotation.
func RotationToAngleAxis(rotation [9]float64) r3.Vector {
	at := func(r, c int) float64 { return rotation[c*3+r] }
	cosTheta := math.Max(-1, math.Min(1, (at(0, 0)+at(1, 1)+at(2, 2)-1)/2))
	theta := math.Acos(cosTheta)
	skew := r3.Vector{X: at(2, 1) - at(1, 2), Y: at(0, 2) - at(2, 0), Z: at(1, 0) - at(0, 1)}

	switch {
	case theta < SMALL_ANGLE:
		return skew.Mul(0.5)
	case math.Pi-theta < 1e-6:
		// sin(theta) vanishes; recover the axis from the symmetric part.
		i := 0
		for j := 1; j < 3; j++ {
			if at(j, j) > at(i, i) {
				i = j
			}
		}
		var k [3]float64
		k[i] = math.Sqrt(math.Max(0, (at(i, i)-cosTheta)/(1-cosTheta)))
		for j := 0; j < 3; j++ {
			if j != i {
				k[j] = (at(i, j) + at(j, i)) / (2 * k[i] * (1 - cosTheta))
			}
		}
		axis := r3.Vector{X: k[0], Y: k[1], Z: k[2]}.Normalize()
		if axis.Dot(skew) < 0 {
			axis = axis.Mul(-1)
		}
		return axis.Mul(theta)
	default:
		return skew.Mul(theta / (2 * math.Sin(theta)))
	}
}
