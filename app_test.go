package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/adjust"
	"github.com/datomi79/Earth-ain-t-Flat-IROS18/photogrammetry"
	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

var (
	testK = problems.CameraIntrinsics{700, 0, 320, 0, 700, 240, 0, 0, 1}

	carKeypoints = []r3.Vector{
		{X: -1, Y: 0.5, Z: -2},
		{X: 1, Y: 0.5, Z: -2},
		{X: -1, Y: 0.5, Z: 2},
		{X: 1, Y: 0.5, Z: 2},
		{X: -0.8, Y: -0.5, Z: -1},
		{X: 0.8, Y: -0.5, Z: 1},
	}
)

func truePose() problems.Pose {
	return problems.Pose{
		Rotation:    photogrammetry.AngleAxisToRotation(r3.Vector{Y: 0.25}),
		Translation: [3]float64{0.3, 0.1, 12},
	}
}

// writePoseProblem observes the car at truePose with a single lengthwise stretch mode.
func writePoseProblem(t *testing.T, dir string, weights []float64) string {
	t.Helper()
	lambdas := []float64{0.5}
	var basisData, xy []float64
	for _, x := range carKeypoints {
		basisData = append(basisData, 0, 0, 0.1*x.Z)
	}
	basis, err := problems.NewShapeBasis(1, 1, len(carKeypoints), basisData)
	test.That(t, err, test.ShouldBeNil)
	pose := truePose()
	for j, x := range carKeypoints {
		p := photogrammetry.Project(testK, pose.Rotation, pose.Translation, basis.Deform(0, x, j, lambdas))
		xy = append(xy, p.X, p.Y)
	}
	obs, err := problems.NewObservationSet(1, len(carKeypoints), xy, weights)
	test.That(t, err, test.ShouldBeNil)
	p, err := problems.NewPoseProblem(
		r3.Vector{Z: 11},
		problems.CarDimensions{Height: 1.5, Width: 2, Length: 4.5},
		testK,
		obs,
		problems.NewPointSetFromVectors(carKeypoints),
		basis,
		[]float64{0},
	)
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(dir, "pose.txt")
	test.That(t, p.Save(path), test.ShouldBeNil)
	return path
}

func unitWeights() []float64 {
	w := make([]float64, len(carKeypoints))
	for i := range w {
		w[i] = 1
	}
	return w
}

func writeGroundPlaneProblem(t *testing.T, dir string) string {
	t.Helper()
	truth := []r3.Vector{
		{X: -2, Y: 1.5, Z: 4},
		{X: 2, Y: 1.5, Z: 5},
		{X: -1, Y: 1.5, Z: 8},
		{X: 1.5, Y: 1.5, Z: 6},
	}
	poses := []problems.Pose{
		problems.IdentityPose(),
		{Rotation: photogrammetry.AngleAxisToRotation(r3.Vector{Y: 0.15}), Translation: [3]float64{-1, 0, 0.5}},
	}
	var xy []float64
	for _, pose := range poses {
		for _, x := range truth {
			p := photogrammetry.Project(testK, pose.Rotation, pose.Translation, x)
			xy = append(xy, p.X, p.Y)
		}
	}
	obs, err := problems.NewObservationSet(len(poses), len(truth), xy, nil)
	test.That(t, err, test.ShouldBeNil)
	start := make([]r3.Vector, len(truth))
	for i, x := range truth {
		start[i] = x.Add(r3.Vector{X: 0.05, Y: -0.05, Z: 0.1})
	}
	p, err := problems.NewGroundPlaneProblem(
		testK,
		problems.NewPointSetFromVectors(start),
		problems.NewPoseSet(poses...),
		obs,
		problems.GroundPlane{0, -1, 0, 1.5},
	)
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(dir, "ground.txt")
	test.That(t, p.Save(path), test.ShouldBeNil)
	return path
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return NewApp(zaptest.NewLogger(t).Sugar(), &out), &out
}

func TestParseType(t *testing.T) {
	for name, want := range map[string]Type{
		"pose":      POSE,
		"Shape":     SHAPE,
		" ground ":  GROUND_PLANE,
		"multiview": MULTI_VIEW,
	} {
		got, err := ParseType(name)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	_, err := ParseType("car")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, NONE.String(), test.ShouldEqual, "none")
	test.That(t, GROUND_PLANE.String(), test.ShouldEqual, "ground")
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, defaultConfig())

	dir := t.TempDir()
	path := filepath.Join(dir, "solver.json")
	content := `{"options": {"free_lambdas": true, "lambda_weight": 0.1}, "solver": {"method": "bfgs"}}`
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	cfg, err = loadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Options.FreeLambdas, test.ShouldBeTrue)
	test.That(t, cfg.Options.LambdaWeight, test.ShouldEqual, 0.1)
	test.That(t, cfg.Options.PlaneWeight, test.ShouldEqual, adjust.DefaultOptions().PlaneWeight)
	test.That(t, cfg.Solver.Method, test.ShouldEqual, "bfgs")
	test.That(t, cfg.Solver.MaxIterations, test.ShouldEqual, adjust.DefaultSolveSettings().MaxIterations)

	test.That(t, os.WriteFile(path, []byte(`{"solver": {"iterations": 3}}`), 0o600), test.ShouldBeNil)
	_, err = loadConfig(path)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInspectLogsValidation(t *testing.T) {
	dir := t.TempDir()
	weights := unitWeights()
	weights[2] = 1.5
	path := writePoseProblem(t, dir, weights)

	core, logs := observer.New(zap.WarnLevel)
	var out bytes.Buffer
	a := NewApp(zap.New(core).Sugar(), &out)
	test.That(t, a.Inspect(POSE, path), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "keypoints")
	test.That(t, logs.FilterMessage("suspicious problem data").Len(), test.ShouldEqual, 1)

	err := a.Inspect(SHAPE, path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, problems.KindOf(err), test.ShouldEqual, problems.PrematureEOF)
}

func TestInspectReportsCameras(t *testing.T) {
	path := writeGroundPlaneProblem(t, t.TempDir())
	a, out := newTestApp(t)
	test.That(t, a.Inspect(GROUND_PLANE, path), test.ShouldBeNil)
	test.That(t, strings.ToLower(out.String()), test.ShouldContainSubstring, "cameras")

	p, err := problems.LoadGroundPlaneProblem(path)
	test.That(t, err, test.ShouldBeNil)
	views := viewReports(p)
	test.That(t, views, test.ShouldHaveLength, 2)
	// Two cameras sit opposite each other around their centroid.
	test.That(t, views[0].Latitude, test.ShouldAlmostEqual, -views[1].Latitude, 1e-6)
}

func TestSolveGroundPlane(t *testing.T) {
	dir := t.TempDir()
	path := writeGroundPlaneProblem(t, dir)
	out := filepath.Join(dir, "solved.txt")
	a, buf := newTestApp(t)

	report, err := a.Solve(context.Background(), GROUND_PLANE, path, defaultConfig(), out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Kind, test.ShouldEqual, "ground")
	test.That(t, report.FinalCost, test.ShouldBeLessThan, report.InitialCost)
	test.That(t, report.After, test.ShouldHaveLength, 2)
	test.That(t, buf.String(), test.ShouldContainSubstring, "reprojection (after)")

	solved, err := problems.LoadGroundPlaneProblem(out)
	test.That(t, err, test.ShouldBeNil)
	before, err := problems.LoadGroundPlaneProblem(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, solved.Points3D(), test.ShouldNotResemble, before.Points3D())
	test.That(t, solved.Points2D(), test.ShouldResemble, before.Points2D())
}

func TestSolvePoseWritesShapeProblem(t *testing.T) {
	dir := t.TempDir()
	path := writePoseProblem(t, dir, unitWeights())
	out := filepath.Join(dir, "shape.txt")
	a, _ := newTestApp(t)

	cfg := defaultConfig()
	cfg.Options.FreeLambdas = true
	report, err := a.Solve(context.Background(), POSE, path, cfg, out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.FinalCost, test.ShouldBeLessThan, report.InitialCost)

	shape, err := problems.LoadShapeProblem(out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, shape.NumPts(), test.ShouldEqual, len(carKeypoints))
	test.That(t, shape.Translation()[2], test.ShouldAlmostEqual, truePose().Translation[2], 0.5)
}

func TestChain(t *testing.T) {
	dir := t.TempDir()
	path := writePoseProblem(t, dir, unitWeights())
	out := filepath.Join(dir, "chained.txt")
	a, _ := newTestApp(t)

	reports, err := a.Chain(context.Background(), path, defaultConfig(), out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reports, test.ShouldHaveLength, 2)
	test.That(t, reports[0].Kind, test.ShouldEqual, "chain/pose")
	test.That(t, reports[1].Kind, test.ShouldEqual, "chain/shape")
	test.That(t, reports[1].FinalCost, test.ShouldBeLessThanOrEqualTo, reports[0].FinalCost)

	shape, err := problems.LoadShapeProblem(out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, shape.Lambdas(), test.ShouldHaveLength, 1)

	reportPath := filepath.Join(dir, "report.json")
	test.That(t, a.WriteReports(reportPath, reports), test.ShouldBeNil)
	raw, err := os.ReadFile(reportPath)
	test.That(t, err, test.ShouldBeNil)
	var decoded []SolveReport
	test.That(t, json.Unmarshal(raw, &decoded), test.ShouldBeNil)
	test.That(t, decoded[1].Kind, test.ShouldEqual, "chain/shape")
}

func TestCLI(t *testing.T) {
	dir := t.TempDir()
	path := writePoseProblem(t, dir, unitWeights())

	t.Run("inspect", func(t *testing.T) {
		var out bytes.Buffer
		err := newCLI(&out).Run([]string{"carfit", "inspect", "--kind", "pose", path})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, strings.ToLower(out.String()), test.ShouldContainSubstring, "car center")
	})

	t.Run("solve with report", func(t *testing.T) {
		var out bytes.Buffer
		report := filepath.Join(dir, "report.json")
		err := newCLI(&out).Run([]string{"carfit", "solve", "-k", "pose", "--report", report, path})
		test.That(t, err, test.ShouldBeNil)
		_, err = os.Stat(report)
		test.That(t, err, test.ShouldBeNil)
	})

	t.Run("unknown kind", func(t *testing.T) {
		var out bytes.Buffer
		err := newCLI(&out).Run([]string{"carfit", "inspect", "--kind", "boat", path})
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("missing file", func(t *testing.T) {
		var out bytes.Buffer
		err := newCLI(&out).Run([]string{"carfit", "inspect", "--kind", "pose", filepath.Join(dir, "nope.txt")})
		test.That(t, problems.IsNotFound(err), test.ShouldBeTrue)
	})

	t.Run("convert without exports", func(t *testing.T) {
		var out bytes.Buffer
		err := newCLI(&out).Run([]string{"carfit", "convert", "-o", filepath.Join(dir, "g.txt"), t.TempDir()})
		test.That(t, err, test.ShouldNotBeNil)
	})
}
