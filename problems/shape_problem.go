package problems

import (
	"io"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
)

// ShapeProblem is a single view shape adjustment problem. The pose comes from a prior
// pose-only solve and is exposed read-only; whether it stays fixed or warm-starts a joint
// refinement is up to the caller.
type ShapeProblem struct {
	singleView
	pose Pose
}

// NewShapeProblem assembles a shape problem from its parts.
func NewShapeProblem(
	carCenter r3.Vector,
	dims CarDimensions,
	k CameraIntrinsics,
	obs ObservationSet,
	mean PointSet,
	basis ShapeBasis,
	lambdas []float64,
	pose Pose,
) (*ShapeProblem, error) {
	sv, err := newSingleView(carCenter, dims, k, obs, mean, basis, lambdas)
	if err != nil {
		return nil, err
	}
	return &ShapeProblem{singleView: sv, pose: pose}, nil
}

// ShapeProblemFromPose hands a solved pose problem to the shape stage. A nil lambdas
// keeps the pose problem's coefficients.
func ShapeProblemFromPose(p *PoseProblem, pose Pose, lambdas []float64) (*ShapeProblem, error) {
	if lambdas == nil {
		lambdas = p.lambdas
	}
	return NewShapeProblem(p.carCenter, p.dims, p.k, p.obs, p.mean, p.basis, lambdas, pose)
}

// LoadShapeProblem reads a shape problem file.
func LoadShapeProblem(path string) (*ShapeProblem, error) {
	var p *ShapeProblem
	err := loadFile(path, func(r io.Reader) (err error) {
		p, err = ReadShapeProblem(r)
		return err
	})
	return p, err
}

// ReadShapeProblem reads a shape problem from r.
func ReadShapeProblem(r io.Reader) (*ShapeProblem, error) {
	tr := newTokenReader(r)
	sv, err := readSingleView(tr)
	if err != nil {
		return nil, err
	}
	p := &ShapeProblem{singleView: sv}
	if err := tr.readInto("rotation", p.pose.Rotation[:]); err != nil {
		return nil, err
	}
	if err := tr.readInto("translation", p.pose.Translation[:]); err != nil {
		return nil, err
	}
	if err := tr.expectEOF(); err != nil {
		return nil, err
	}
	return p, nil
}

// Pose returns the prior pose estimate.
func (p *ShapeProblem) Pose() Pose { return p.pose }

// Rotation returns the prior rotation, column-major.
func (p *ShapeProblem) Rotation() [9]float64 { return p.pose.Rotation }

// Translation returns the prior translation.
func (p *ShapeProblem) Translation() [3]float64 { return p.pose.Translation }

// WithEstimate returns a copy of p with the coefficients and pose replaced.
func (p *ShapeProblem) WithEstimate(lambdas []float64, pose Pose) (*ShapeProblem, error) {
	return NewShapeProblem(p.carCenter, p.dims, p.k, p.obs, p.mean, p.basis, lambdas, pose)
}

// WriteTo writes p in file order.
func (p *ShapeProblem) WriteTo(w io.Writer) (int64, error) {
	tw := newTokenWriter(w)
	p.write(tw)
	tw.rows(p.pose.Rotation[:], 9)
	tw.rows(p.pose.Translation[:], 3)
	return tw.flush()
}

// Save writes p to path.
func (p *ShapeProblem) Save(path string) error {
	return saveFile(path, p)
}

// Validate reports suspicious values without modifying p.
func (p *ShapeProblem) Validate() error {
	return multierr.Combine(p.validate(), checkRotation("rotation", p.pose.Rotation))
}
