package photogrammetry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestAngleAxisRoundTrip(t *testing.T) {
	for _, w := range []r3.Vector{
		{},
		{X: 1e-12},
		{X: 0.3, Y: -0.2, Z: 0.1},
		{Z: math.Pi / 2},
		{X: 2.0, Y: 1.0, Z: -0.5},
		{Y: math.Pi - 1e-9},
	} {
		R := AngleAxisToRotation(w)
		Rd := mat.NewDense(3, 3, nil)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				Rd.Set(r, c, R[c*3+r])
			}
		}
		var RtR mat.Dense
		RtR.Mul(Rd.T(), Rd)
		test.That(t, mat.EqualApprox(&RtR, eye3(), 1e-12), test.ShouldBeTrue)
		test.That(t, mat.Det(Rd), test.ShouldAlmostEqual, 1.0, 1e-12)

		back := RotationToAngleAxis(R)
		test.That(t, back.X, test.ShouldAlmostEqual, w.X, 1e-6)
		test.That(t, back.Y, test.ShouldAlmostEqual, w.Y, 1e-6)
		test.That(t, back.Z, test.ShouldAlmostEqual, w.Z, 1e-6)
	}
}

func TestAngleAxisToRotationAboutZ(t *testing.T) {
	R := AngleAxisToRotation(r3.Vector{Z: math.Pi / 2})
	// Column 0 is the image of the x axis.
	test.That(t, R[0], test.ShouldAlmostEqual, 0.0, 1e-12)
	test.That(t, R[1], test.ShouldAlmostEqual, 1.0, 1e-12)
	test.That(t, R[2], test.ShouldAlmostEqual, 0.0, 1e-12)
}

func TestGetLongLat(t *testing.T) {
	long, lat := GetLongLat(r3.Vector{Y: 2, Z: 2})
	test.That(t, Rad2Degrees(long), test.ShouldAlmostEqual, 90.0, 1e-9)
	test.That(t, Rad2Degrees(lat), test.ShouldAlmostEqual, 45.0, 1e-9)

	long, lat = GetLongLat(r3.Vector{X: -3, Z: -3})
	test.That(t, Rad2Degrees(long), test.ShouldAlmostEqual, 180.0, 1e-9)
	test.That(t, Rad2Degrees(lat), test.ShouldAlmostEqual, -45.0, 1e-9)
}

func TestRotateXAxis(t *testing.T) {
	R := RotateXAxis(math.Pi)
	test.That(t, R.At(0, 0), test.ShouldEqual, 1.0)
	test.That(t, R.At(1, 1), test.ShouldAlmostEqual, -1.0, 1e-12)
	test.That(t, R.At(2, 2), test.ShouldAlmostEqual, -1.0, 1e-12)
	test.That(t, R.At(1, 2), test.ShouldAlmostEqual, 0.0, 1e-12)
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
