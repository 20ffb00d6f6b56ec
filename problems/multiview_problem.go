package problems

import (
	"io"
	"slices"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
)

// MultiViewShapeAndPoseProblem jointly adjusts one set of deformation coefficients shared
// by every view and an independent pose per view. Car centers, observations, weights,
// mean shapes and bases are stored per view; the coefficients are global.
type MultiViewShapeAndPoseProblem struct {
	dims       CarDimensions
	k          CameraIntrinsics
	carCenters PointSet
	obs        ObservationSet
	mean       PointSet
	basis      ShapeBasis
	lambdas    []float64
	poses      PoseSet
}

// NewMultiViewProblem assembles a multi-view problem from its parts.
func NewMultiViewProblem(
	dims CarDimensions,
	k CameraIntrinsics,
	carCenters PointSet,
	obs ObservationSet,
	mean PointSet,
	basis ShapeBasis,
	lambdas []float64,
	poses PoseSet,
) (*MultiViewShapeAndPoseProblem, error) {
	numViews := poses.Len()
	switch {
	case carCenters.NumViews() != numViews || carCenters.NumPerView() != 1:
		return nil, mismatch("car centers", numViews, carCenters.NumViews())
	case obs.NumViews() != numViews:
		return nil, mismatch("observation views", numViews, obs.NumViews())
	case !obs.Weighted():
		return nil, mismatch("observation weights", numViews*obs.NumPerView(), 0)
	case mean.NumViews() != numViews || mean.NumPerView() != obs.NumPerView():
		return nil, mismatch("mean shape", numViews*obs.NumPerView(), mean.NumViews()*mean.NumPerView())
	case basis.NumViews() != numViews:
		return nil, mismatch("shape basis views", numViews, basis.NumViews())
	case len(lambdas) != basis.NumVec():
		return nil, mismatch("lambdas", basis.NumVec(), len(lambdas))
	}
	return &MultiViewShapeAndPoseProblem{
		dims:       dims,
		k:          k,
		carCenters: carCenters,
		obs:        obs,
		mean:       mean,
		basis:      basis,
		lambdas:    slices.Clone(lambdas),
		poses:      poses,
	}, nil
}

// LoadMultiViewProblem reads a multi-view shape and pose problem file.
func LoadMultiViewProblem(path string) (*MultiViewShapeAndPoseProblem, error) {
	var p *MultiViewShapeAndPoseProblem
	err := loadFile(path, func(r io.Reader) (err error) {
		p, err = ReadMultiViewProblem(r)
		return err
	})
	return p, err
}

// ReadMultiViewProblem reads a multi-view shape and pose problem from r.
func ReadMultiViewProblem(r io.Reader) (*MultiViewShapeAndPoseProblem, error) {
	tr := newTokenReader(r)
	var counts [3]int
	for i, field := range []string{"number of views", "number of points", "number of observations"} {
		n, err := tr.readCount(field)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}
	numViews, numPts, numObs := counts[0], counts[1], counts[2]

	p := &MultiViewShapeAndPoseProblem{}
	var err error
	if p.dims, err = readCarDimensions(tr); err != nil {
		return nil, err
	}
	if p.k, err = readIntrinsics(tr); err != nil {
		return nil, err
	}
	if p.carCenters, err = readPoints(tr, "car centers", numViews, 1); err != nil {
		return nil, err
	}
	if p.obs, err = readObservations(tr, numViews, numObs, true); err != nil {
		return nil, err
	}
	if p.mean, err = readPoints(tr, "mean shape", numViews, numObs); err != nil {
		return nil, err
	}
	numVec, err := tr.readCount("number of basis vectors")
	if err != nil {
		return nil, err
	}
	if p.basis, err = readBasis(tr, numViews, numVec, numPts); err != nil {
		return nil, err
	}
	if p.lambdas, err = tr.readFloats("lambdas", numVec); err != nil {
		return nil, err
	}
	if p.poses, err = readPoseSet(tr, numViews); err != nil {
		return nil, err
	}
	if err := tr.expectEOF(); err != nil {
		return nil, err
	}
	return p, nil
}

// NumViews returns the number of views.
func (p *MultiViewShapeAndPoseProblem) NumViews() int { return p.poses.Len() }

// NumPts returns the number of keypoints each basis vector displaces.
func (p *MultiViewShapeAndPoseProblem) NumPts() int { return p.basis.NumPts() }

// NumObs returns the number of observations in each view.
func (p *MultiViewShapeAndPoseProblem) NumObs() int { return p.obs.NumPerView() }

// NumVec returns the number of basis vectors.
func (p *MultiViewShapeAndPoseProblem) NumVec() int { return p.basis.NumVec() }

// CarDimensions returns the car height, width and length.
func (p *MultiViewShapeAndPoseProblem) CarDimensions() CarDimensions { return p.dims }

// K returns the camera intrinsics shared by all views.
func (p *MultiViewShapeAndPoseProblem) K() CameraIntrinsics { return p.k }

// CarCenters returns the per-view car centers, 3*NumViews values.
func (p *MultiViewShapeAndPoseProblem) CarCenters() []float64 { return p.carCenters.Flat() }

// CarCenter returns the car center of view.
func (p *MultiViewShapeAndPoseProblem) CarCenter(view int) r3.Vector { return p.carCenters.At(view, 0) }

// Observations returns the 2D keypoints, 2*NumObs*NumViews values.
func (p *MultiViewShapeAndPoseProblem) Observations() []float64 { return p.obs.Coordinates() }

// ObservationWeights returns the keypoint confidences, NumObs*NumViews values.
func (p *MultiViewShapeAndPoseProblem) ObservationWeights() []float64 { return p.obs.Weights() }

// ObservationSet returns the typed observations.
func (p *MultiViewShapeAndPoseProblem) ObservationSet() ObservationSet { return p.obs }

// MeanShape returns the per-view mean 3D keypoints, 3*NumObs*NumViews values.
func (p *MultiViewShapeAndPoseProblem) MeanShape() []float64 { return p.mean.Flat() }

// MeanShapeSet returns the typed per-view mean shape.
func (p *MultiViewShapeAndPoseProblem) MeanShapeSet() PointSet { return p.mean }

// Basis returns the per-view deformation basis, NumViews*NumVec*3*NumPts values.
func (p *MultiViewShapeAndPoseProblem) Basis() []float64 { return p.basis.Flat() }

// ShapeBasis returns the typed basis.
func (p *MultiViewShapeAndPoseProblem) ShapeBasis() ShapeBasis { return p.basis }

// Lambdas returns the shared initial deformation coefficients.
func (p *MultiViewShapeAndPoseProblem) Lambdas() []float64 { return slices.Clone(p.lambdas) }

// Rotations returns the column-major rotations, 9*NumViews values.
func (p *MultiViewShapeAndPoseProblem) Rotations() []float64 { return p.poses.Rotations() }

// Translations returns the translations, 3*NumViews values.
func (p *MultiViewShapeAndPoseProblem) Translations() []float64 { return p.poses.Translations() }

// Poses returns the typed per-view poses.
func (p *MultiViewShapeAndPoseProblem) Poses() PoseSet { return p.poses }

// Keypoint returns keypoint pt of view deformed by lambdas. The observation index and the
// keypoint index coincide.
func (p *MultiViewShapeAndPoseProblem) Keypoint(view, pt int, lambdas []float64) r3.Vector {
	return p.basis.Deform(view, p.mean.At(view, pt), pt, lambdas)
}

// WithEstimate returns a copy of p with the coefficients and poses replaced.
func (p *MultiViewShapeAndPoseProblem) WithEstimate(lambdas []float64, poses PoseSet) (*MultiViewShapeAndPoseProblem, error) {
	return NewMultiViewProblem(p.dims, p.k, p.carCenters, p.obs, p.mean, p.basis, lambdas, poses)
}

// WriteTo writes p in file order.
func (p *MultiViewShapeAndPoseProblem) WriteTo(w io.Writer) (int64, error) {
	tw := newTokenWriter(w)
	tw.counts(p.NumViews(), p.NumPts(), p.NumObs())
	tw.rows([]float64{p.dims.Height, p.dims.Width, p.dims.Length}, 3)
	tw.rows(p.k[:], 3)
	tw.rows(p.carCenters.data, 3)
	tw.rows(p.obs.xy, 2)
	tw.rows(p.obs.weights, max(p.NumObs(), 1))
	tw.rows(p.mean.data, 3)
	tw.counts(p.NumVec())
	tw.rows(p.basis.data, 3)
	tw.rows(p.lambdas, len(p.lambdas))
	writePoseSet(tw, p.poses)
	return tw.flush()
}

// Save writes p to path.
func (p *MultiViewShapeAndPoseProblem) Save(path string) error {
	return saveFile(path, p)
}

// Validate reports suspicious values without modifying p.
func (p *MultiViewShapeAndPoseProblem) Validate() error {
	err := multierr.Combine(
		checkIntrinsics(p.k),
		checkWeights(p.obs),
		checkFinite("car centers", p.carCenters.data),
		checkFinite("mean shape", p.mean.data),
		checkFinite("shape basis", p.basis.data),
		checkFinite("lambdas", p.lambdas),
	)
	if p.NumObs() > p.NumPts() {
		err = multierr.Append(err, mismatch("observations per view", p.NumPts(), p.NumObs()))
	}
	for v := 0; v < p.poses.Len(); v++ {
		err = multierr.Append(err, checkRotation(viewField("rotation", v), p.poses.At(v).Rotation))
	}
	return err
}
