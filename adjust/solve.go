package adjust

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// SolveSettings configures Solve.
type SolveSettings struct {
	// Method is one of "lbfgs", "bfgs" or "nelder-mead". Empty means lbfgs.
	Method string `json:"method"`
	// MaxIterations bounds the major iterations. Zero means no bound.
	MaxIterations int `json:"max_iterations"`
	// GradientThreshold stops the gradient based methods once the gradient's infinity
	// norm falls below it. Zero uses the solver default.
	GradientThreshold float64 `json:"gradient_threshold"`

	// Logger receives one debug line per major iteration when set.
	Logger *zap.SugaredLogger `json:"-"`
}

// DefaultSolveSettings returns the settings used when none are configured.
func DefaultSolveSettings() SolveSettings {
	return SolveSettings{Method: "lbfgs", MaxIterations: 500, GradientThreshold: 1e-8}
}

// Result is the outcome of Solve.
type Result struct {
	Params          []float64
	InitialCost     float64
	FinalCost       float64
	Iterations      int
	FuncEvaluations int
	Status          string
	// Err is set when the solver stopped early without failing outright, such as on
	// a line search that could not make progress. Params still holds the best point.
	Err error
}

func method(name string) (optimize.Method, error) {
	switch strings.ToLower(name) {
	case "", "lbfgs":
		return &optimize.LBFGS{}, nil
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "nelder-mead", "neldermead":
		return &optimize.NelderMead{}, nil
	default:
		return nil, errors.Errorf("unknown solver method %q", name)
	}
}

// ctxRecorder stops the solver once ctx is done.
type ctxRecorder struct {
	ctx    context.Context
	logger *zap.SugaredLogger
}

func (r *ctxRecorder) Init() error { return r.ctx.Err() }

func (r *ctxRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if r.logger != nil && op == optimize.MajorIteration {
		r.logger.Debugw("solver iteration", "iteration", stats.MajorIterations, "cost", loc.F)
	}
	return nil
}

// Solve minimizes Cost(p, x) from p.Initial() and returns the best parameters found.
// Gradients are central finite differences of the cost.
func Solve(ctx context.Context, p Problem, settings SolveSettings) (*Result, error) {
	m, err := method(settings.Method)
	if err != nil {
		return nil, err
	}
	x0 := p.Initial()
	if len(x0) != p.NumParams() {
		return nil, errors.Errorf("initial parameters have length %d, expected %d", len(x0), p.NumParams())
	}
	initial := Cost(p, x0)
	if len(x0) == 0 {
		return &Result{Params: x0, InitialCost: initial, FinalCost: initial, Status: optimize.Success.String()}, nil
	}

	cost := func(x []float64) float64 { return Cost(p, x) }
	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, &fd.Settings{Formula: fd.Central})
		},
	}
	opt := &optimize.Settings{
		MajorIterations:   settings.MaxIterations,
		GradientThreshold: settings.GradientThreshold,
		Recorder:          &ctxRecorder{ctx: ctx, logger: settings.Logger},
	}

	res, err := optimize.Minimize(problem, x0, opt, m)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.Wrap(ctxErr, "solve interrupted")
	}
	if res == nil {
		return nil, errors.Wrap(err, "solver failed")
	}
	return &Result{
		Params:          res.X,
		InitialCost:     initial,
		FinalCost:       res.F,
		Iterations:      res.MajorIterations,
		FuncEvaluations: res.FuncEvaluations,
		Status:          res.Status.String(),
		Err:             err,
	}, nil
}
