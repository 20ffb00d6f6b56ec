package photogrammetry

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// ProjPoint is one view's 3x4 projection matrix and the pixel it observed.
type ProjPoint struct {
	Mat   mat.Matrix
	Point r2.Point
}
