package problems

import (
	"math"
	"slices"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CameraIntrinsics is the 3x3 camera matrix K stored row-major, K(r, c) = K[r*3+c].
type CameraIntrinsics [9]float64

// IdentityIntrinsics returns the identity camera matrix.
func IdentityIntrinsics() CameraIntrinsics {
	return CameraIntrinsics{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// At returns K(r, c).
func (k CameraIntrinsics) At(r, c int) float64 {
	return k[r*3+c]
}

// Dense returns K as a gonum matrix.
func (k CameraIntrinsics) Dense() *mat.Dense {
	return mat.NewDense(3, 3, slices.Clone(k[:]))
}

// Pose is a camera rotation and translation. Rotation is column-major,
// R(r, c) = Rotation[c*3+r]; a world point X maps to R*X + t in the camera frame.
type Pose struct {
	Rotation    [9]float64
	Translation [3]float64
}

// IdentityPose returns the pose with identity rotation and zero translation.
func IdentityPose() Pose {
	return Pose{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// RotationAt returns R(r, c).
func (p Pose) RotationAt(r, c int) float64 {
	return p.Rotation[c*3+r]
}

// Transform maps x into the camera frame.
func (p Pose) Transform(x r3.Vector) r3.Vector {
	R := p.Rotation
	return r3.Vector{
		X: R[0]*x.X + R[3]*x.Y + R[6]*x.Z,
		Y: R[1]*x.X + R[4]*x.Y + R[7]*x.Z,
		Z: R[2]*x.X + R[5]*x.Y + R[8]*x.Z,
	}.Add(p.TranslationVector())
}

// RotationDense returns R as a gonum matrix.
func (p Pose) RotationDense() *mat.Dense {
	R := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			R.Set(r, c, p.RotationAt(r, c))
		}
	}
	return R
}

// TranslationVector returns t as an r3.Vector.
func (p Pose) TranslationVector() r3.Vector {
	return r3.Vector{X: p.Translation[0], Y: p.Translation[1], Z: p.Translation[2]}
}

// CameraCenter returns the camera position in the world frame, -R^T t.
func (p Pose) CameraCenter() r3.Vector {
	R, t := p.Rotation, p.TranslationVector()
	return r3.Vector{
		X: r3.Vector{X: R[0], Y: R[1], Z: R[2]}.Dot(t),
		Y: r3.Vector{X: R[3], Y: R[4], Z: R[5]}.Dot(t),
		Z: r3.Vector{X: R[6], Y: R[7], Z: R[8]}.Dot(t),
	}.Mul(-1)
}

// PoseSet holds one pose per view.
type PoseSet struct {
	poses []Pose
}

// NewPoseSet copies poses into a new set.
func NewPoseSet(poses ...Pose) PoseSet {
	return PoseSet{poses: slices.Clone(poses)}
}

// Len returns the number of views.
func (ps PoseSet) Len() int { return len(ps.poses) }

// At returns the pose of view.
func (ps PoseSet) At(view int) Pose { return ps.poses[view] }

// Rotations returns every rotation flattened, 9 values per view.
func (ps PoseSet) Rotations() []float64 {
	out := make([]float64, 0, 9*len(ps.poses))
	for _, p := range ps.poses {
		out = append(out, p.Rotation[:]...)
	}
	return out
}

// Translations returns every translation flattened, 3 values per view.
func (ps PoseSet) Translations() []float64 {
	out := make([]float64, 0, 3*len(ps.poses))
	for _, p := range ps.poses {
		out = append(out, p.Translation[:]...)
	}
	return out
}

// ObservationSet holds 2D keypoint observations for numViews views with numObs
// observations each, laid out view-major then observation then coordinate. Weights are
// optional; an unweighted set reports weight 1 everywhere.
type ObservationSet struct {
	numViews int
	numObs   int
	xy       []float64
	weights  []float64
}

// NewObservationSet copies xy (2*numViews*numObs values) and weights (numViews*numObs
// values, or nil) into a new set.
func NewObservationSet(numViews, numObs int, xy, weights []float64) (ObservationSet, error) {
	n, err := elements("observations", numViews, numObs, 2)
	if err != nil {
		return ObservationSet{}, err
	}
	if len(xy) != n {
		return ObservationSet{}, mismatch("observations", n, len(xy))
	}
	if weights != nil && len(weights) != numViews*numObs {
		return ObservationSet{}, mismatch("observation weights", numViews*numObs, len(weights))
	}
	return ObservationSet{numViews: numViews, numObs: numObs, xy: slices.Clone(xy), weights: slices.Clone(weights)}, nil
}

// NumViews returns the number of views.
func (o ObservationSet) NumViews() int { return o.numViews }

// NumPerView returns the number of observations in each view.
func (o ObservationSet) NumPerView() int { return o.numObs }

// Weighted reports whether the set carries per-observation weights.
func (o ObservationSet) Weighted() bool { return o.weights != nil }

// Offset returns the index of coordinate coord of observation obs in view.
func (o ObservationSet) Offset(view, obs, coord int) int {
	return view*2*o.numObs + 2*obs + coord
}

// At returns observation obs of view.
func (o ObservationSet) At(view, obs int) r2.Point {
	i := o.Offset(view, obs, 0)
	return r2.Point{X: o.xy[i], Y: o.xy[i+1]}
}

// Weight returns the confidence of observation obs in view.
func (o ObservationSet) Weight(view, obs int) float64 {
	if o.weights == nil {
		return 1
	}
	return o.weights[view*o.numObs+obs]
}

// Coordinates returns a copy of all coordinates in file order.
func (o ObservationSet) Coordinates() []float64 { return slices.Clone(o.xy) }

// Weights returns a copy of all weights in file order, nil for an unweighted set.
func (o ObservationSet) Weights() []float64 { return slices.Clone(o.weights) }

// PointSet holds 3D points per view, laid out view-major then point then coordinate.
// View-independent sets use a single view.
type PointSet struct {
	numViews int
	numPts   int
	data     []float64
}

// NewPointSet copies data (3*numViews*numPts values) into a new set.
func NewPointSet(numViews, numPts int, data []float64) (PointSet, error) {
	n, err := elements("points", numViews, numPts, 3)
	if err != nil {
		return PointSet{}, err
	}
	if len(data) != n {
		return PointSet{}, mismatch("points", n, len(data))
	}
	return PointSet{numViews: numViews, numPts: numPts, data: slices.Clone(data)}, nil
}

// NewPointSetFromVectors builds a single view set from pts.
func NewPointSetFromVectors(pts []r3.Vector) PointSet {
	data := make([]float64, 0, 3*len(pts))
	for _, p := range pts {
		data = append(data, p.X, p.Y, p.Z)
	}
	return PointSet{numViews: 1, numPts: len(pts), data: data}
}

// NumViews returns the number of views.
func (ps PointSet) NumViews() int { return ps.numViews }

// NumPerView returns the number of points in each view.
func (ps PointSet) NumPerView() int { return ps.numPts }

// Offset returns the index of coordinate coord of point pt in view.
func (ps PointSet) Offset(view, pt, coord int) int {
	return view*3*ps.numPts + 3*pt + coord
}

// At returns point pt of view.
func (ps PointSet) At(view, pt int) r3.Vector {
	i := ps.Offset(view, pt, 0)
	return r3.Vector{X: ps.data[i], Y: ps.data[i+1], Z: ps.data[i+2]}
}

// Flat returns a copy of all coordinates in file order.
func (ps PointSet) Flat() []float64 { return slices.Clone(ps.data) }

// ShapeBasis holds numVec deformation vectors per view, each a 3D offset for each of
// numPts keypoints. Vectors are ordered by decreasing explained variance.
type ShapeBasis struct {
	numViews int
	numVec   int
	numPts   int
	data     []float64
}

// NewShapeBasis copies data (numViews*numVec*numPts*3 values) into a new basis.
func NewShapeBasis(numViews, numVec, numPts int, data []float64) (ShapeBasis, error) {
	n, err := elements("basis", numViews, numVec, numPts, 3)
	if err != nil {
		return ShapeBasis{}, err
	}
	if len(data) != n {
		return ShapeBasis{}, mismatch("basis", n, len(data))
	}
	return ShapeBasis{numViews: numViews, numVec: numVec, numPts: numPts, data: slices.Clone(data)}, nil
}

// NumViews returns the number of per-view bases.
func (b ShapeBasis) NumViews() int { return b.numViews }

// NumVec returns the number of basis vectors.
func (b ShapeBasis) NumVec() int { return b.numVec }

// NumPts returns the number of keypoints each vector displaces.
func (b ShapeBasis) NumPts() int { return b.numPts }

// Offset returns the index of V[view, vec, pt, coord] in file order.
func (b ShapeBasis) Offset(view, vec, pt, coord int) int {
	return view*3*b.numVec*b.numPts + vec*3*b.numPts + 3*pt + coord
}

// At returns the displacement basis vector vec applies to keypoint pt in view.
func (b ShapeBasis) At(view, vec, pt int) r3.Vector {
	i := b.Offset(view, vec, pt, 0)
	return r3.Vector{X: b.data[i], Y: b.data[i+1], Z: b.data[i+2]}
}

// Deform returns mean + sum_i lambdas[i] * V[view, i, pt]. Extra lambdas are ignored.
func (b ShapeBasis) Deform(view int, mean r3.Vector, pt int, lambdas []float64) r3.Vector {
	out := mean
	for i := 0; i < b.numVec && i < len(lambdas); i++ {
		out = out.Add(b.At(view, i, pt).Mul(lambdas[i]))
	}
	return out
}

// Flat returns a copy of the basis in file order.
func (b ShapeBasis) Flat() []float64 { return slices.Clone(b.data) }

// CarDimensions is the car bounding box size.
type CarDimensions struct {
	Height float64
	Width  float64
	Length float64
}

// GroundPlane holds (a, b, c, d) of the plane a*x + b*y + c*z + d = 0.
type GroundPlane [4]float64

// Normal returns (a, b, c).
func (g GroundPlane) Normal() r3.Vector {
	return r3.Vector{X: g[0], Y: g[1], Z: g[2]}
}

// SignedDistance returns the signed distance from x to the plane. It is NaN for a zero
// normal.
func (g GroundPlane) SignedDistance(x r3.Vector) float64 {
	norm := g.Normal().Norm()
	if norm == 0 {
		return math.NaN()
	}
	return (g.Normal().Dot(x) + g[3]) / norm
}

func mismatch(field string, want, got int) error {
	return &ParseError{
		Kind: DimensionMismatch, Field: field,
		Err: errors.Errorf("expected %d values, got %d", want, got),
	}
}

func readIntrinsics(tr *tokenReader) (CameraIntrinsics, error) {
	var k CameraIntrinsics
	err := tr.readInto("camera intrinsics", k[:])
	return k, err
}

func readCarDimensions(tr *tokenReader) (CarDimensions, error) {
	var hwl [3]float64
	if err := tr.readInto("car dimensions", hwl[:]); err != nil {
		return CarDimensions{}, err
	}
	return CarDimensions{Height: hwl[0], Width: hwl[1], Length: hwl[2]}, nil
}

func readVector(tr *tokenReader, field string) (r3.Vector, error) {
	var v [3]float64
	if err := tr.readInto(field, v[:]); err != nil {
		return r3.Vector{}, err
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

func readObservations(tr *tokenReader, numViews, numObs int, weighted bool) (ObservationSet, error) {
	n, err := elements("observations", numViews, numObs, 2)
	if err != nil {
		return ObservationSet{}, err
	}
	xy, err := tr.readFloats("observations", n)
	if err != nil {
		return ObservationSet{}, err
	}
	obs := ObservationSet{numViews: numViews, numObs: numObs, xy: xy}
	if weighted {
		if obs.weights, err = tr.readFloats("observation weights", numViews*numObs); err != nil {
			return ObservationSet{}, err
		}
	}
	return obs, nil
}

func readPoints(tr *tokenReader, field string, numViews, numPts int) (PointSet, error) {
	n, err := elements(field, numViews, numPts, 3)
	if err != nil {
		return PointSet{}, err
	}
	data, err := tr.readFloats(field, n)
	if err != nil {
		return PointSet{}, err
	}
	return PointSet{numViews: numViews, numPts: numPts, data: data}, nil
}

func readBasis(tr *tokenReader, numViews, numVec, numPts int) (ShapeBasis, error) {
	n, err := elements("shape basis", numViews, numVec, numPts, 3)
	if err != nil {
		return ShapeBasis{}, err
	}
	data, err := tr.readFloats("shape basis", n)
	if err != nil {
		return ShapeBasis{}, err
	}
	return ShapeBasis{numViews: numViews, numVec: numVec, numPts: numPts, data: data}, nil
}

// readPoseSet reads all rotations, then all translations.
func readPoseSet(tr *tokenReader, numViews int) (PoseSet, error) {
	if _, err := elements("rotations", numViews, 9); err != nil {
		return PoseSet{}, err
	}
	poses := make([]Pose, 0, min(numViews, preallocCap))
	for v := 0; v < numViews; v++ {
		var p Pose
		if err := tr.readInto("rotations", p.Rotation[:]); err != nil {
			return PoseSet{}, err
		}
		poses = append(poses, p)
	}
	for v := range poses {
		if err := tr.readInto("translations", poses[v].Translation[:]); err != nil {
			return PoseSet{}, err
		}
	}
	return PoseSet{poses: poses}, nil
}

func writePoseSet(tw *tokenWriter, ps PoseSet) {
	tw.rows(ps.Rotations(), 9)
	tw.rows(ps.Translations(), 3)
}
