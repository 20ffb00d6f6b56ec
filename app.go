package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/adjust"
	"github.com/datomi79/Earth-ain-t-Flat-IROS18/imports"
	sph "github.com/datomi79/Earth-ain-t-Flat-IROS18/photogrammetry"
	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

// App struct
type App struct {
	logger *zap.SugaredLogger
	out    io.Writer
}

// NewApp creates an App that logs to logger and prints tables to out.
func NewApp(logger *zap.SugaredLogger, out io.Writer) *App {
	return &App{logger: logger, out: out}
}

func (a *App) load(kind Type, path string) (problemFile, error) {
	var (
		p   problemFile
		err error
	)
	switch kind {
	case POSE:
		p, err = problems.LoadPoseProblem(path)
	case SHAPE:
		p, err = problems.LoadShapeProblem(path)
	case GROUND_PLANE:
		p, err = problems.LoadGroundPlaneProblem(path)
	case MULTI_VIEW:
		p, err = problems.LoadMultiViewProblem(path)
	default:
		return nil, errors.Errorf("cannot load problems of kind %s", kind)
	}
	if err != nil {
		return nil, err
	}
	a.logger.Infow("loaded problem", "kind", kind, "path", path)
	return p, nil
}

// warnInvalid logs every finding of Validate. Findings never stop a command.
func (a *App) warnInvalid(p problemFile) {
	for _, err := range multierr.Errors(p.Validate()) {
		a.logger.Warnw("suspicious problem data", "error", err)
	}
}

// Inspect loads a problem, prints its layout and per-view camera positions, and logs
// validation findings.
func (a *App) Inspect(kind Type, path string) error {
	p, err := a.load(kind, path)
	if err != nil {
		return err
	}
	a.warnInvalid(p)
	fmt.Fprintln(a.out, describe(kind, p))
	if views := viewReports(p); len(views) > 0 {
		fmt.Fprintln(a.out, viewTable(views))
	}
	return nil
}

// Solve loads a problem, refines it and writes the refined problem to out when out is
// not empty. A pose problem is written as a shape problem holding the solved pose.
func (a *App) Solve(ctx context.Context, kind Type, path string, cfg solverConfig, out string) (*SolveReport, error) {
	p, err := a.load(kind, path)
	if err != nil {
		return nil, err
	}
	a.warnInvalid(p)

	var solved problemFile
	var report *SolveReport
	switch p := p.(type) {
	case *problems.PoseProblem:
		solved, report, err = a.solvePose(ctx, p, cfg)
	case *problems.ShapeProblem:
		solved, report, err = a.solveShape(ctx, p, cfg)
	case *problems.GroundPlaneProblem:
		solved, report, err = a.solveGroundPlane(ctx, p, cfg)
	case *problems.MultiViewShapeAndPoseProblem:
		solved, report, err = a.solveMultiView(ctx, p, cfg)
	}
	if err != nil {
		return nil, err
	}
	report.Kind = kind.String()
	if err := a.save(solved, out); err != nil {
		return nil, err
	}
	return report, nil
}

// Chain solves the pose of a pose problem with fixed coefficients, then solves the
// coefficients of the derived shape problem from that pose.
func (a *App) Chain(ctx context.Context, path string, cfg solverConfig, out string) ([]*SolveReport, error) {
	p, err := a.load(POSE, path)
	if err != nil {
		return nil, err
	}
	a.warnInvalid(p)

	poseCfg := cfg
	poseCfg.Options.FreeLambdas = false
	shape, poseReport, err := a.solvePose(ctx, p.(*problems.PoseProblem), poseCfg)
	if err != nil {
		return nil, errors.Wrap(err, "pose stage")
	}
	poseReport.Kind = "chain/pose"

	solved, shapeReport, err := a.solveShape(ctx, shape, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "shape stage")
	}
	shapeReport.Kind = "chain/shape"
	if err := a.save(solved, out); err != nil {
		return nil, err
	}
	return []*SolveReport{poseReport, shapeReport}, nil
}

// Convert builds a ground plane problem from photogrammetry exports found in dir and
// writes it to out.
func (a *App) Convert(dir string, override imports.Exports, labels []string, out string) error {
	ex, err := imports.FindExports(dir, override)
	if err != nil {
		return err
	}
	a.logger.Infow("found exports", "intrinsics", ex.Intrinsics, "extrinsics", ex.Extrinsics, "tracks", ex.Tracks)
	p, err := imports.ImportGroundPlane(ex, labels)
	if err != nil {
		return err
	}
	a.warnInvalid(p)
	fmt.Fprintln(a.out, describe(GROUND_PLANE, p))
	return a.save(p, out)
}

func (a *App) save(p problemFile, out string) error {
	if out == "" {
		return nil
	}
	if err := p.Save(out); err != nil {
		return errors.Wrapf(err, "writing %s", out)
	}
	a.logger.Infow("wrote problem", "path", out)
	return nil
}

// WriteReports writes reports as indented JSON to path.
func (a *App) WriteReports(path string, reports []*SolveReport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func (a *App) solvePose(ctx context.Context, p *problems.PoseProblem, cfg solverConfig) (*problems.ShapeProblem, *SolveReport, error) {
	adj, err := adjust.NewPoseAdjustment(p, cfg.Options)
	if err != nil {
		return nil, nil, err
	}
	res, report, err := a.run(ctx, adj, cfg)
	if err != nil {
		return nil, nil, err
	}
	sol := adj.Decode(res.Params)
	shape, err := problems.ShapeProblemFromPose(p, sol.Pose, sol.Lambdas)
	return shape, report, err
}

func (a *App) solveShape(ctx context.Context, p *problems.ShapeProblem, cfg solverConfig) (*problems.ShapeProblem, *SolveReport, error) {
	adj, err := adjust.NewShapeAdjustment(p, cfg.Options)
	if err != nil {
		return nil, nil, err
	}
	res, report, err := a.run(ctx, adj, cfg)
	if err != nil {
		return nil, nil, err
	}
	sol := adj.Decode(res.Params)
	shape, err := p.WithEstimate(sol.Lambdas, sol.Pose)
	return shape, report, err
}

func (a *App) solveGroundPlane(ctx context.Context, p *problems.GroundPlaneProblem, cfg solverConfig) (*problems.GroundPlaneProblem, *SolveReport, error) {
	adj, err := adjust.NewGroundPlaneAdjustment(p, cfg.Options)
	if err != nil {
		return nil, nil, err
	}
	res, report, err := a.run(ctx, adj, cfg)
	if err != nil {
		return nil, nil, err
	}
	sol, err := adj.Decode(res.Params)
	if err != nil {
		return nil, nil, err
	}
	solved, err := p.WithEstimate(sol.Points, sol.Plane)
	return solved, report, err
}

func (a *App) solveMultiView(
	ctx context.Context,
	p *problems.MultiViewShapeAndPoseProblem,
	cfg solverConfig,
) (*problems.MultiViewShapeAndPoseProblem, *SolveReport, error) {
	adj, err := adjust.NewMultiViewAdjustment(p, cfg.Options)
	if err != nil {
		return nil, nil, err
	}
	res, report, err := a.run(ctx, adj, cfg)
	if err != nil {
		return nil, nil, err
	}
	sol := adj.Decode(res.Params)
	solved, err := p.WithEstimate(sol.Lambdas, sol.Poses)
	return solved, report, err
}

// run solves adj and prints the residual summaries before and after.
func (a *App) run(ctx context.Context, adj adjust.Problem, cfg solverConfig) (*adjust.Result, *SolveReport, error) {
	before, err := adjust.Summarize(adj, adj.Initial())
	if err != nil {
		return nil, nil, err
	}
	settings := cfg.Solver
	settings.Logger = a.logger
	a.logger.Infow("solving",
		"params", adj.NumParams(),
		"residuals", adj.NumResiduals(),
		"method", settings.Method,
		"cost", before.Cost,
	)
	res, err := adjust.Solve(ctx, adj, settings)
	if err != nil {
		return nil, nil, err
	}
	after, err := adjust.Summarize(adj, res.Params)
	if err != nil {
		return nil, nil, err
	}

	report := &SolveReport{
		Method:      settings.Method,
		InitialCost: res.InitialCost,
		FinalCost:   res.FinalCost,
		Iterations:  res.Iterations,
		Evaluations: res.FuncEvaluations,
		Status:      res.Status,
		Before:      blockSummaries(before),
		After:       blockSummaries(after),
	}
	if res.Err != nil {
		report.Warning = res.Err.Error()
		a.logger.Warnw("solver stopped early", "status", res.Status, "error", res.Err)
	}
	a.logger.Infow("solved",
		"status", res.Status,
		"iterations", res.Iterations,
		"initial_cost", res.InitialCost,
		"final_cost", res.FinalCost,
	)
	fmt.Fprintln(a.out, reportTable(report))
	return res, report, nil
}

func describe(kind Type, p problemFile) string {
	t := table.NewWriter()
	t.SetTitle(kind.String())
	t.AppendHeader(table.Row{"Field", "Value"})
	type shaped interface {
		K() problems.CameraIntrinsics
	}
	switch p := p.(type) {
	case *problems.PoseProblem:
		appendSingleView(t, p.NumPts(), p.NumVec(), p.CarCenter(), p.CarDimensions(), p.Lambdas())
	case *problems.ShapeProblem:
		appendSingleView(t, p.NumPts(), p.NumVec(), p.CarCenter(), p.CarDimensions(), p.Lambdas())
		c := p.Pose().CameraCenter()
		t.AppendRow(table.Row{"camera center", fmt.Sprintf("%.3f %.3f %.3f", c.X, c.Y, c.Z)})
	case *problems.GroundPlaneProblem:
		t.AppendRow(table.Row{"views", p.NumViews()})
		t.AppendRow(table.Row{"points", p.NumPts()})
		plane := p.Plane()
		t.AppendRow(table.Row{"plane", fmt.Sprintf("%.4f %.4f %.4f %.4f", plane[0], plane[1], plane[2], plane[3])})
	case *problems.MultiViewShapeAndPoseProblem:
		t.AppendRow(table.Row{"views", p.NumViews()})
		t.AppendRow(table.Row{"keypoints", p.NumPts()})
		t.AppendRow(table.Row{"observations per view", p.NumObs()})
		t.AppendRow(table.Row{"basis vectors", p.NumVec()})
		d := p.CarDimensions()
		t.AppendRow(table.Row{"dimensions (h w l)", fmt.Sprintf("%.3f %.3f %.3f", d.Height, d.Width, d.Length)})
		t.AppendRow(table.Row{"lambdas", fmt.Sprint(p.Lambdas())})
	}
	if s, ok := p.(shaped); ok {
		t.AppendRow(table.Row{"K", fmt.Sprintf("%v", sph.FormatMatrixPrint(s.K().Dense()))})
	}
	return t.Render()
}

func appendSingleView(t table.Writer, numPts, numVec int, center r3.Vector, d problems.CarDimensions, lambdas []float64) {
	t.AppendRow(table.Row{"keypoints", numPts})
	t.AppendRow(table.Row{"basis vectors", numVec})
	t.AppendRow(table.Row{"car center", fmt.Sprintf("%.3f %.3f %.3f", center.X, center.Y, center.Z)})
	t.AppendRow(table.Row{"dimensions (h w l)", fmt.Sprintf("%.3f %.3f %.3f", d.Height, d.Width, d.Length)})
	t.AppendRow(table.Row{"lambdas", fmt.Sprint(lambdas)})
}

// viewReports places every camera on a sphere around the centroid of the camera
// centers. Problems with fewer than two views report nothing.
func viewReports(p problemFile) []ViewReport {
	var poses problems.PoseSet
	switch p := p.(type) {
	case *problems.GroundPlaneProblem:
		poses = p.Poses()
	case *problems.MultiViewShapeAndPoseProblem:
		poses = p.Poses()
	default:
		return nil
	}
	if poses.Len() < 2 {
		return nil
	}

	centers := make([]r3.Vector, poses.Len())
	var centroid r3.Vector
	for v := range centers {
		centers[v] = poses.At(v).CameraCenter()
		centroid = centroid.Add(centers[v])
	}
	centroid = centroid.Mul(1 / float64(len(centers)))

	return lo.Map(centers, func(c r3.Vector, v int) ViewReport {
		d := c.Sub(centroid)
		report := ViewReport{View: v, Center: [3]float64{c.X, c.Y, c.Z}}
		if d.Norm() > 0 {
			long, lat := sph.GetLongLat(d)
			report.Longitude = sph.Rad2Degrees(long)
			report.Latitude = sph.Rad2Degrees(lat)
		}
		return report
	})
}

func viewTable(views []ViewReport) string {
	t := table.NewWriter()
	t.SetTitle("cameras")
	t.AppendHeader(table.Row{"View", "Center", "Longitude", "Latitude"})
	for _, v := range views {
		t.AppendRow(table.Row{
			v.View,
			fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", v.Center[0], v.Center[1], v.Center[2]),
			fmt.Sprintf("%.2f", v.Longitude),
			fmt.Sprintf("%.2f", v.Latitude),
		})
	}
	return t.Render()
}

func reportTable(r *SolveReport) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s: cost %.6g -> %.6g (%s, %d iterations)", r.Method, r.InitialCost, r.FinalCost, r.Status, r.Iterations))
	t.AppendHeader(table.Row{"Residuals", "Count", "Mean", "Median", "Max", "RMS"})
	for _, pair := range lo.Zip2(r.Before, r.After) {
		for _, s := range []struct {
			label string
			b     BlockSummary
		}{{"before", pair.A}, {"after", pair.B}} {
			t.AppendRow(table.Row{
				fmt.Sprintf("%s (%s)", s.b.Kind, s.label),
				s.b.Count,
				fmt.Sprintf("%.4g", s.b.Mean),
				fmt.Sprintf("%.4g", s.b.Median),
				fmt.Sprintf("%.4g", s.b.Max),
				fmt.Sprintf("%.4g", s.b.RMS),
			})
		}
	}
	return t.Render()
}
