package problems

import (
	"io"

	"go.uber.org/multierr"
)

// GroundPlaneProblem jointly refines triangulated 3D points and a ground plane across
// views. The 3D points are shared by every view while poses and 2D observations are per
// view.
type GroundPlaneProblem struct {
	k      CameraIntrinsics
	points PointSet
	poses  PoseSet
	obs    ObservationSet
	plane  GroundPlane
}

// NewGroundPlaneProblem assembles a ground plane problem from its parts.
func NewGroundPlaneProblem(
	k CameraIntrinsics,
	points PointSet,
	poses PoseSet,
	obs ObservationSet,
	plane GroundPlane,
) (*GroundPlaneProblem, error) {
	switch {
	case points.NumViews() != 1:
		return nil, mismatch("3D point views", 1, points.NumViews())
	case obs.NumViews() != poses.Len():
		return nil, mismatch("2D point views", poses.Len(), obs.NumViews())
	case obs.NumPerView() != points.NumPerView():
		return nil, mismatch("2D points per view", points.NumPerView(), obs.NumPerView())
	case obs.Weighted():
		return nil, mismatch("2D point weights", 0, len(obs.weights))
	}
	return &GroundPlaneProblem{k: k, points: points, poses: poses, obs: obs, plane: plane}, nil
}

// LoadGroundPlaneProblem reads a ground plane problem file.
func LoadGroundPlaneProblem(path string) (*GroundPlaneProblem, error) {
	var p *GroundPlaneProblem
	err := loadFile(path, func(r io.Reader) (err error) {
		p, err = ReadGroundPlaneProblem(r)
		return err
	})
	return p, err
}

// ReadGroundPlaneProblem reads a ground plane problem from r.
func ReadGroundPlaneProblem(r io.Reader) (*GroundPlaneProblem, error) {
	tr := newTokenReader(r)
	numViews, err := tr.readCount("number of views")
	if err != nil {
		return nil, err
	}
	numPoints, err := tr.readCount("number of points")
	if err != nil {
		return nil, err
	}
	p := &GroundPlaneProblem{}
	if p.k, err = readIntrinsics(tr); err != nil {
		return nil, err
	}
	if p.points, err = readPoints(tr, "3D points", 1, numPoints); err != nil {
		return nil, err
	}
	if p.poses, err = readPoseSet(tr, numViews); err != nil {
		return nil, err
	}
	if p.obs, err = readObservations(tr, numViews, numPoints, false); err != nil {
		return nil, err
	}
	if err := tr.readInto("ground plane", p.plane[:]); err != nil {
		return nil, err
	}
	if err := tr.expectEOF(); err != nil {
		return nil, err
	}
	return p, nil
}

// NumViews returns the number of views.
func (p *GroundPlaneProblem) NumViews() int { return p.poses.Len() }

// NumPts returns the number of 3D points.
func (p *GroundPlaneProblem) NumPts() int { return p.points.NumPerView() }

// K returns the camera intrinsics.
func (p *GroundPlaneProblem) K() CameraIntrinsics { return p.k }

// Points3D returns the shared 3D points, 3*NumPts values.
func (p *GroundPlaneProblem) Points3D() []float64 { return p.points.Flat() }

// PointSet returns the typed 3D points.
func (p *GroundPlaneProblem) PointSet() PointSet { return p.points }

// Points2D returns every view's observation of every point, 2*NumPts*NumViews values.
func (p *GroundPlaneProblem) Points2D() []float64 { return p.obs.Coordinates() }

// ObservationSet returns the typed 2D observations.
func (p *GroundPlaneProblem) ObservationSet() ObservationSet { return p.obs }

// Rotations returns the column-major rotations, 9*NumViews values.
func (p *GroundPlaneProblem) Rotations() []float64 { return p.poses.Rotations() }

// Translations returns the translations, 3*NumViews values.
func (p *GroundPlaneProblem) Translations() []float64 { return p.poses.Translations() }

// Poses returns the typed poses.
func (p *GroundPlaneProblem) Poses() PoseSet { return p.poses }

// Plane returns the ground plane coefficients.
func (p *GroundPlaneProblem) Plane() GroundPlane { return p.plane }

// WithEstimate returns a copy of p with the points and plane replaced.
func (p *GroundPlaneProblem) WithEstimate(points PointSet, plane GroundPlane) (*GroundPlaneProblem, error) {
	return NewGroundPlaneProblem(p.k, points, p.poses, p.obs, plane)
}

// WriteTo writes p in file order.
func (p *GroundPlaneProblem) WriteTo(w io.Writer) (int64, error) {
	tw := newTokenWriter(w)
	tw.counts(p.NumViews(), p.NumPts())
	tw.rows(p.k[:], 3)
	tw.rows(p.points.data, 3)
	writePoseSet(tw, p.poses)
	tw.rows(p.obs.xy, 2)
	tw.rows(p.plane[:], 4)
	return tw.flush()
}

// Save writes p to path.
func (p *GroundPlaneProblem) Save(path string) error {
	return saveFile(path, p)
}

// Validate reports suspicious values without modifying p.
func (p *GroundPlaneProblem) Validate() error {
	err := multierr.Combine(
		checkIntrinsics(p.k),
		checkFinite("3D points", p.points.data),
		checkFinite("2D points", p.obs.xy),
		checkPlane(p.plane),
	)
	for v := 0; v < p.poses.Len(); v++ {
		err = multierr.Append(err, checkRotation(viewField("rotation", v), p.poses.At(v).Rotation))
	}
	return err
}
