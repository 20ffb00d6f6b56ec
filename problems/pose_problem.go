package problems

import (
	"io"
	"os"
	"slices"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
)

// singleView is the field set shared by the single view pose and shape problems.
type singleView struct {
	carCenter r3.Vector
	dims      CarDimensions
	k         CameraIntrinsics
	obs       ObservationSet
	mean      PointSet
	basis     ShapeBasis
	lambdas   []float64
}

func newSingleView(
	carCenter r3.Vector,
	dims CarDimensions,
	k CameraIntrinsics,
	obs ObservationSet,
	mean PointSet,
	basis ShapeBasis,
	lambdas []float64,
) (singleView, error) {
	numPts := obs.NumPerView()
	switch {
	case obs.NumViews() != 1:
		return singleView{}, mismatch("observation views", 1, obs.NumViews())
	case !obs.Weighted():
		return singleView{}, mismatch("observation weights", numPts, 0)
	case mean.NumViews() != 1 || mean.NumPerView() != numPts:
		return singleView{}, mismatch("mean shape", numPts, mean.NumPerView())
	case basis.NumViews() != 1 || basis.NumPts() != numPts:
		return singleView{}, mismatch("shape basis", numPts, basis.NumPts())
	case len(lambdas) != basis.NumVec():
		return singleView{}, mismatch("lambdas", basis.NumVec(), len(lambdas))
	}
	return singleView{
		carCenter: carCenter,
		dims:      dims,
		k:         k,
		obs:       obs,
		mean:      mean,
		basis:     basis,
		lambdas:   slices.Clone(lambdas),
	}, nil
}

func readSingleView(tr *tokenReader) (singleView, error) {
	var sv singleView
	numPts, err := tr.readCount("number of points")
	if err != nil {
		return sv, err
	}
	if sv.carCenter, err = readVector(tr, "car center"); err != nil {
		return sv, err
	}
	if sv.dims, err = readCarDimensions(tr); err != nil {
		return sv, err
	}
	if sv.k, err = readIntrinsics(tr); err != nil {
		return sv, err
	}
	if sv.obs, err = readObservations(tr, 1, numPts, true); err != nil {
		return sv, err
	}
	if sv.mean, err = readPoints(tr, "mean shape", 1, numPts); err != nil {
		return sv, err
	}
	numVec, err := tr.readCount("number of basis vectors")
	if err != nil {
		return sv, err
	}
	if sv.basis, err = readBasis(tr, 1, numVec, numPts); err != nil {
		return sv, err
	}
	if sv.lambdas, err = tr.readFloats("lambdas", numVec); err != nil {
		return sv, err
	}
	return sv, nil
}

func (sv *singleView) write(tw *tokenWriter) {
	tw.counts(sv.NumPts())
	tw.rows([]float64{sv.carCenter.X, sv.carCenter.Y, sv.carCenter.Z}, 3)
	tw.rows([]float64{sv.dims.Height, sv.dims.Width, sv.dims.Length}, 3)
	tw.rows(sv.k[:], 3)
	tw.rows(sv.obs.xy, 2)
	tw.rows(sv.obs.weights, len(sv.obs.weights))
	tw.rows(sv.mean.data, 3)
	tw.counts(sv.NumVec())
	tw.rows(sv.basis.data, 3)
	tw.rows(sv.lambdas, len(sv.lambdas))
}

// NumPts returns the number of keypoints.
func (sv *singleView) NumPts() int { return sv.obs.NumPerView() }

// CarCenter returns the rough center of the car.
func (sv *singleView) CarCenter() r3.Vector { return sv.carCenter }

// CarDimensions returns the car height, width and length.
func (sv *singleView) CarDimensions() CarDimensions { return sv.dims }

// K returns the camera intrinsics.
func (sv *singleView) K() CameraIntrinsics { return sv.k }

// Observations returns the 2D keypoints, 2*NumPts values.
func (sv *singleView) Observations() []float64 { return sv.obs.Coordinates() }

// ObservationWeights returns the keypoint confidences, NumPts values.
func (sv *singleView) ObservationWeights() []float64 { return sv.obs.Weights() }

// ObservationSet returns the typed observations.
func (sv *singleView) ObservationSet() ObservationSet { return sv.obs }

// MeanShape returns the mean 3D keypoints X_bar, 3*NumPts values.
func (sv *singleView) MeanShape() []float64 { return sv.mean.Flat() }

// MeanShapeSet returns the typed mean shape.
func (sv *singleView) MeanShapeSet() PointSet { return sv.mean }

// NumVec returns the number of basis vectors.
func (sv *singleView) NumVec() int { return sv.basis.NumVec() }

// Basis returns the deformation basis V, NumVec*3*NumPts values.
func (sv *singleView) Basis() []float64 { return sv.basis.Flat() }

// ShapeBasis returns the typed basis.
func (sv *singleView) ShapeBasis() ShapeBasis { return sv.basis }

// Lambdas returns the initial deformation coefficients.
func (sv *singleView) Lambdas() []float64 { return slices.Clone(sv.lambdas) }

// Keypoint returns keypoint pt of the shape deformed by lambdas.
func (sv *singleView) Keypoint(pt int, lambdas []float64) r3.Vector {
	return sv.basis.Deform(0, sv.mean.At(0, pt), pt, lambdas)
}

func (sv *singleView) validate() error {
	return multierr.Combine(
		checkIntrinsics(sv.k),
		checkWeights(sv.obs),
		checkFinite("mean shape", sv.mean.data),
		checkFinite("shape basis", sv.basis.data),
		checkFinite("lambdas", sv.lambdas),
	)
}

// PoseProblem is a single view pose adjustment problem: recover R and t (and optionally
// the deformation coefficients) so that the deformed mean shape reprojects onto the
// observed keypoints.
type PoseProblem struct {
	singleView
}

// NewPoseProblem assembles a pose problem from its parts.
func NewPoseProblem(
	carCenter r3.Vector,
	dims CarDimensions,
	k CameraIntrinsics,
	obs ObservationSet,
	mean PointSet,
	basis ShapeBasis,
	lambdas []float64,
) (*PoseProblem, error) {
	sv, err := newSingleView(carCenter, dims, k, obs, mean, basis, lambdas)
	if err != nil {
		return nil, err
	}
	return &PoseProblem{singleView: sv}, nil
}

// LoadPoseProblem reads a pose problem file.
func LoadPoseProblem(path string) (*PoseProblem, error) {
	var p *PoseProblem
	err := loadFile(path, func(r io.Reader) (err error) {
		p, err = ReadPoseProblem(r)
		return err
	})
	return p, err
}

// ReadPoseProblem reads a pose problem from r.
func ReadPoseProblem(r io.Reader) (*PoseProblem, error) {
	tr := newTokenReader(r)
	sv, err := readSingleView(tr)
	if err != nil {
		return nil, err
	}
	if err := tr.expectEOF(); err != nil {
		return nil, err
	}
	return &PoseProblem{singleView: sv}, nil
}

// WriteTo writes p in file order.
func (p *PoseProblem) WriteTo(w io.Writer) (int64, error) {
	tw := newTokenWriter(w)
	p.write(tw)
	return tw.flush()
}

// Save writes p to path.
func (p *PoseProblem) Save(path string) error {
	return saveFile(path, p)
}

// Validate reports suspicious values without modifying p.
func (p *PoseProblem) Validate() error {
	return p.validate()
}

func loadFile(path string, read func(io.Reader) error) error {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return &ParseError{Kind: FileNotFound, Path: path, Err: err}
	}
	defer f.Close()
	if err := read(f); err != nil {
		return withPath(err, path)
	}
	return nil
}

func saveFile(path string, wt io.WriterTo) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	_, err = wt.WriteTo(f)
	return err
}
