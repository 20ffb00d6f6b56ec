package adjust

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/photogrammetry"
	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

var (
	testK = problems.CameraIntrinsics{
		700, 0, 320,
		0, 700, 240,
		0, 0, 1,
	}

	// A rough car: wheel contacts, roof corners and a roof center.
	carKeypoints = []r3.Vector{
		{X: -1, Y: 0.5, Z: -2},
		{X: 1, Y: 0.5, Z: -2},
		{X: -1, Y: 0.5, Z: 2},
		{X: 1, Y: 0.5, Z: 2},
		{X: -0.8, Y: -0.5, Z: -1},
		{X: 0.8, Y: -0.5, Z: 1},
		{X: 0, Y: -0.6, Z: 0},
	}

	trueLambdas = []float64{0.4, -0.6}
)

func truePose() problems.Pose {
	return problems.Pose{
		Rotation:    photogrammetry.AngleAxisToRotation(r3.Vector{X: 0.05, Y: -0.3, Z: 0.02}),
		Translation: [3]float64{0.2, -0.1, 12},
	}
}

// carBasis stretches the car lengthwise and widens it.
func carBasis(t *testing.T, numViews int) problems.ShapeBasis {
	t.Helper()
	var data []float64
	for v := 0; v < numViews; v++ {
		for _, x := range carKeypoints {
			data = append(data, 0, 0, 0.1*x.Z)
		}
		for _, x := range carKeypoints {
			data = append(data, 0.2*x.X, 0.1, 0)
		}
	}
	basis, err := problems.NewShapeBasis(numViews, len(trueLambdas), len(carKeypoints), data)
	test.That(t, err, test.ShouldBeNil)
	return basis
}

// observe projects the deformed car through pose.
func observe(basis problems.ShapeBasis, view int, pose problems.Pose) []float64 {
	var xy []float64
	for j, x := range carKeypoints {
		p := photogrammetry.Project(testK, pose.Rotation, pose.Translation, basis.Deform(view, x, j, trueLambdas))
		xy = append(xy, p.X, p.Y)
	}
	return xy
}

func unitWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// syntheticPoseProblem observes the car at truePose. The car center is the starting
// translation of the pose adjustment.
func syntheticPoseProblem(t *testing.T, carCenter r3.Vector, lambdas []float64) *problems.PoseProblem {
	t.Helper()
	basis := carBasis(t, 1)
	obs, err := problems.NewObservationSet(1, len(carKeypoints), observe(basis, 0, truePose()), unitWeights(len(carKeypoints)))
	test.That(t, err, test.ShouldBeNil)
	p, err := problems.NewPoseProblem(
		carCenter,
		problems.CarDimensions{Height: 1.2, Width: 2, Length: 4},
		testK,
		obs,
		problems.NewPointSetFromVectors(carKeypoints),
		basis,
		lambdas,
	)
	test.That(t, err, test.ShouldBeNil)
	return p
}

func syntheticShapeProblem(t *testing.T, lambdas []float64, pose problems.Pose) *problems.ShapeProblem {
	t.Helper()
	p := syntheticPoseProblem(t, r3.Vector{Z: 12}, lambdas)
	sp, err := problems.ShapeProblemFromPose(p, pose, nil)
	test.That(t, err, test.ShouldBeNil)
	return sp
}

func multiViewPoses() []problems.Pose {
	second := problems.Pose{
		Rotation:    photogrammetry.AngleAxisToRotation(r3.Vector{Y: 0.4}),
		Translation: [3]float64{-1.5, 0, 11},
	}
	return []problems.Pose{truePose(), second}
}

// syntheticMultiView observes the car from every pose with numObs observations per view.
// Observations beyond the basis keypoints repeat the last one.
func syntheticMultiView(t *testing.T, poses []problems.Pose, numObs int, lambdas []float64) *problems.MultiViewShapeAndPoseProblem {
	t.Helper()
	numViews := len(poses)
	basis := carBasis(t, numViews)
	var xy, mean, centers []float64
	for v, pose := range poses {
		all := observe(basis, v, pose)
		for j := 0; j < numObs; j++ {
			k := min(j, len(carKeypoints)-1)
			xy = append(xy, all[2*k], all[2*k+1])
			x := carKeypoints[k]
			mean = append(mean, x.X, x.Y, x.Z)
		}
		centers = append(centers, pose.Translation[:]...)
	}
	obs, err := problems.NewObservationSet(numViews, numObs, xy, unitWeights(numViews*numObs))
	test.That(t, err, test.ShouldBeNil)
	meanSet, err := problems.NewPointSet(numViews, numObs, mean)
	test.That(t, err, test.ShouldBeNil)
	centerSet, err := problems.NewPointSet(numViews, 1, centers)
	test.That(t, err, test.ShouldBeNil)

	p, err := problems.NewMultiViewProblem(
		problems.CarDimensions{Height: 1.2, Width: 2, Length: 4},
		testK,
		centerSet,
		obs,
		meanSet,
		basis,
		lambdas,
		problems.NewPoseSet(poses...),
	)
	test.That(t, err, test.ShouldBeNil)
	return p
}

var (
	groundPlane  = problems.GroundPlane{0, 1, 0, -1.5}
	groundPoints = []r3.Vector{
		{X: -2, Y: 1.5, Z: 4},
		{X: 2, Y: 1.5, Z: 4},
		{X: -1, Y: 1.5, Z: 8},
		{X: 1.5, Y: 1.5, Z: 6},
		{X: 0, Y: 1.5, Z: 10},
	}
)

func groundPoses() []problems.Pose {
	return []problems.Pose{
		problems.IdentityPose(),
		{
			Rotation:    photogrammetry.AngleAxisToRotation(r3.Vector{Y: 0.15}),
			Translation: [3]float64{-1, 0, 0.5},
		},
	}
}

// syntheticGroundPlane observes groundPoints from groundPoses and starts the problem at
// points shifted by offset.
func syntheticGroundPlane(t *testing.T, offset r3.Vector) *problems.GroundPlaneProblem {
	t.Helper()
	poses := groundPoses()
	var xy []float64
	for _, pose := range poses {
		for _, x := range groundPoints {
			p := photogrammetry.Project(testK, pose.Rotation, pose.Translation, x)
			xy = append(xy, p.X, p.Y)
		}
	}
	obs, err := problems.NewObservationSet(len(poses), len(groundPoints), xy, nil)
	test.That(t, err, test.ShouldBeNil)

	start := make([]r3.Vector, len(groundPoints))
	for i, x := range groundPoints {
		start[i] = x.Add(offset)
	}
	p, err := problems.NewGroundPlaneProblem(
		testK,
		problems.NewPointSetFromVectors(start),
		problems.NewPoseSet(poses...),
		obs,
		groundPlane,
	)
	test.That(t, err, test.ShouldBeNil)
	return p
}

func poseVector(pose problems.Pose) []float64 {
	out := make([]float64, 6)
	putPose(out, pose)
	return out
}

func residuals(p Problem, params []float64) []float64 {
	out := make([]float64, p.NumResiduals())
	p.Residuals(out, params)
	return out
}

func shouldBeNearZero(t *testing.T, vals []float64, tol float64) {
	t.Helper()
	for _, v := range vals {
		test.That(t, v, test.ShouldAlmostEqual, 0.0, tol)
	}
}
