package photogrammetry

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MIN_PLANE_POINTS is the number of points needed to fit a plane.
const MIN_PLANE_POINTS = 3

func scaleHomogeonousPoint(point mat.Vector) mat.Vector {
	var vector mat.VecDense
	vector.ScaleVec((1 / point.AtVec(point.Len()-1)), point)
	return &vector
}

// Extrinsics builds the 3x4 [R|t] matrix from a column-major rotation.
func Extrinsics(rotation [9]float64, translation [3]float64) *mat.Dense {
	extrinsics := mat.NewDense(3, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			extrinsics.Set(r, c, rotation[c*3+r])
		}
		extrinsics.Set(r, 3, translation[r])
	}
	return extrinsics
}

func ProjectionMatrix(intrinsics mat.Matrix, extrinsics mat.Matrix) mat.Matrix {
	extrinsicsVecMat := mat.DenseCopyOf(extrinsics)
	extrinsics = extrinsicsVecMat.Slice(0, 3, 0, 4)
	var projMat mat.Dense
	projMat.Mul(intrinsics, extrinsics)

	return &projMat
}

// Project maps a world point through the pose (column-major rotation) and the row-major
// camera matrix k to pixel coordinates. This is the model every reprojection residual
// compares observations against.
func Project(k [9]float64, rotation [9]float64, translation [3]float64, x r3.Vector) r2.Point {
	R := rotation
	cx := R[0]*x.X + R[3]*x.Y + R[6]*x.Z + translation[0]
	cy := R[1]*x.X + R[4]*x.Y + R[7]*x.Z + translation[1]
	cz := R[2]*x.X + R[5]*x.Y + R[8]*x.Z + translation[2]

	u := k[0]*cx + k[1]*cy + k[2]*cz
	v := k[3]*cx + k[4]*cy + k[5]*cz
	w := k[6]*cx + k[7]*cy + k[8]*cz
	return r2.Point{X: u / w, Y: v / w}
}

// TriangulatePoint solves the linear (DLT) triangulation of one point seen through at
// least two projection matrices. It returns the homogeneous point scaled so that w = 1.
func TriangulatePoint(projPoints []ProjPoint) ([]float64, error) {
	if len(projPoints) < 2 {
		return nil, errors.Errorf("triangulation needs at least 2 views, got %d", len(projPoints))
	}

	A := mat.NewDense(2*len(projPoints), 4, nil)
	for i, projPoint := range projPoints {
		projMat := mat.DenseCopyOf(projPoint.Mat)
		cols := projMat.RawMatrix().Cols
		var row1 mat.Dense
		var row2 mat.Dense

		row1.Scale(projPoint.Point.Y, projMat.Slice(2, 3, 0, cols))
		row1.Sub(&row1, projMat.Slice(1, 2, 0, cols))

		row2.Scale(projPoint.Point.X, projMat.Slice(2, 3, 0, cols))
		row2.Sub(projMat.Slice(0, 1, 0, cols), &row2)

		A.SetRow(2*i, row1.RawRowView(0))
		A.SetRow(2*i+1, row2.RawRowView(0))
	}

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize triangulation system")
	}
	var V mat.Dense
	svd.VTo(&V)

	X := V.ColView(3)
	if X.AtVec(3) == 0 {
		return nil, errors.New("triangulated point is at infinity")
	}
	scaledX := scaleHomogeonousPoint(X)
	return []float64{scaledX.AtVec(0), scaledX.AtVec(1), scaledX.AtVec(2), scaledX.AtVec(3)}, nil
}

// FitPlane returns the least-squares plane (a, b, c, d) through points, with a unit
// normal taken from the smallest singular vector of the centered points.
func FitPlane(points []r3.Vector) ([4]float64, error) {
	if len(points) < MIN_PLANE_POINTS {
		return [4]float64{}, errors.Errorf("plane fit needs at least %d points, got %d", MIN_PLANE_POINTS, len(points))
	}
	var centroid r3.Vector
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(points)))

	A := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		d := p.Sub(centroid)
		A.SetRow(i, []float64{d.X, d.Y, d.Z})
	}

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return [4]float64{}, errors.New("failed to factorize plane system")
	}
	var V mat.Dense
	svd.VTo(&V)

	normal := r3.Vector{X: V.At(0, 2), Y: V.At(1, 2), Z: V.At(2, 2)}.Normalize()
	return [4]float64{normal.X, normal.Y, normal.Z, -normal.Dot(centroid)}, nil
}
