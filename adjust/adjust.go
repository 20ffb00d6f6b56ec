// Package adjust turns loaded problems into nonlinear least-squares residuals.
//
// Each adjustment fixes a canonical parameter layout, evaluates one residual block per
// observed keypoint (plus optional regularization blocks) and decodes a parameter
// vector back into poses, coefficients, points or planes. The problems themselves are
// never modified.
package adjust

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/photogrammetry"
	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

// BlockKind identifies what a residual block measures.
type BlockKind int

const (
	// Reprojection is a weighted 2D reprojection error, two residuals.
	Reprojection BlockKind = iota
	// PlaneDistance is the weighted signed distance of a 3D point to the ground plane.
	PlaneDistance
	// LambdaPrior pulls one deformation coefficient toward zero.
	LambdaPrior
)

func (k BlockKind) String() string {
	switch k {
	case Reprojection:
		return "reprojection"
	case PlaneDistance:
		return "plane"
	case LambdaPrior:
		return "lambda prior"
	default:
		return "unknown"
	}
}

// Block describes a contiguous run of residuals.
type Block struct {
	Kind BlockKind
	// View is -1 for blocks not tied to a view.
	View int
	// Index is the keypoint, point or coefficient index.
	Index int
	// Offset is the position of the block's first residual.
	Offset int
	Size   int
}

// Problem is what an external least-squares solver needs.
type Problem interface {
	NumParams() int
	NumResiduals() int
	// Initial returns a fresh copy of the starting parameters.
	Initial() []float64
	Blocks() []Block
	// Residuals writes NumResiduals values into dst. It must not retain params.
	Residuals(dst, params []float64)
}

// Options selects the free variables and regularization weights.
type Options struct {
	// FreeLambdas lets the pose adjustment also solve the deformation coefficients.
	FreeLambdas bool `json:"free_lambdas"`
	// RefinePose lets the shape adjustment refine the prior pose.
	RefinePose bool `json:"refine_pose"`
	// FreePlane lets the ground plane adjustment move the plane.
	FreePlane bool `json:"free_plane"`
	// PlaneWeight scales point to plane residuals. Zero disables them.
	PlaneWeight float64 `json:"plane_weight"`
	// LambdaWeight scales the coefficient prior. Zero disables it.
	LambdaWeight float64 `json:"lambda_weight"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{PlaneWeight: 1}
}

func (o Options) check() error {
	if o.PlaneWeight < 0 || o.LambdaWeight < 0 {
		return errors.Errorf("weights must be non-negative (plane %v, lambda %v)", o.PlaneWeight, o.LambdaWeight)
	}
	return nil
}

// Cost returns half the squared norm of the residuals at params.
func Cost(p Problem, params []float64) float64 {
	resid := make([]float64, p.NumResiduals())
	p.Residuals(resid, params)
	return halfSquaredNorm(resid)
}

// blockBuilder lays out blocks back to back.
type blockBuilder struct {
	blocks []Block
	size   int
}

func (b *blockBuilder) add(kind BlockKind, view, index, size int) {
	b.blocks = append(b.blocks, Block{Kind: kind, View: view, Index: index, Offset: b.size, Size: size})
	b.size += size
}

// poseParams reads an angle-axis rotation and a translation from six parameters.
func poseParams(params []float64) problems.Pose {
	return problems.Pose{
		Rotation:    photogrammetry.AngleAxisToRotation(r3.Vector{X: params[0], Y: params[1], Z: params[2]}),
		Translation: [3]float64{params[3], params[4], params[5]},
	}
}

// putPose writes pose as six parameters.
func putPose(dst []float64, pose problems.Pose) {
	w := photogrammetry.RotationToAngleAxis(pose.Rotation)
	dst[0], dst[1], dst[2] = w.X, w.Y, w.Z
	copy(dst[3:6], pose.Translation[:])
}

func reprojection(dst []float64, k problems.CameraIntrinsics, pose problems.Pose, x r3.Vector, obs r2.Point, weight float64) {
	proj := photogrammetry.Project([9]float64(k), pose.Rotation, pose.Translation, x)
	dst[0] = weight * (proj.X - obs.X)
	dst[1] = weight * (proj.Y - obs.Y)
}
