package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/imports"
)

const (
	// Flags.
	flagDebug      = "debug"
	flagKind       = "kind"
	flagConfig     = "config"
	flagOut        = "out"
	flagReport     = "report"
	flagIntrinsics = "intrinsics"
	flagExtrinsics = "extrinsics"
	flagTracks     = "tracks"
	flagLabels     = "label"
)

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func appFrom(c *cli.Context) (*App, error) {
	logger, err := newLogger(c.Bool(flagDebug))
	if err != nil {
		return nil, err
	}
	return NewApp(logger, c.App.Writer), nil
}

func problemPath(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("%s expects exactly one problem file", c.Command.Name), 2)
	}
	return c.Args().First(), nil
}

func kindFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     flagKind,
		Aliases:  []string{"k"},
		Required: true,
		Usage:    "problem `KIND`: pose, shape, ground or multiview",
	}
}

var solverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "load solver options from JSON `FILE`",
	},
	&cli.StringFlag{
		Name:    flagOut,
		Aliases: []string{"o"},
		Usage:   "write the refined problem to `FILE`",
	},
	&cli.StringFlag{
		Name:  flagReport,
		Usage: "write a JSON solve report to `FILE`",
	},
}

func InspectAction(c *cli.Context) error {
	path, err := problemPath(c)
	if err != nil {
		return err
	}
	kind, err := ParseType(c.String(flagKind))
	if err != nil {
		return err
	}
	a, err := appFrom(c)
	if err != nil {
		return err
	}
	defer a.logger.Sync() //nolint:errcheck
	return a.Inspect(kind, path)
}

func SolveAction(c *cli.Context) error {
	path, err := problemPath(c)
	if err != nil {
		return err
	}
	kind, err := ParseType(c.String(flagKind))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c.String(flagConfig))
	if err != nil {
		return err
	}
	a, err := appFrom(c)
	if err != nil {
		return err
	}
	defer a.logger.Sync() //nolint:errcheck

	report, err := a.Solve(c.Context, kind, path, cfg, c.String(flagOut))
	if err != nil {
		return err
	}
	if out := c.String(flagReport); out != "" {
		return a.WriteReports(out, []*SolveReport{report})
	}
	return nil
}

func ChainAction(c *cli.Context) error {
	path, err := problemPath(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c.String(flagConfig))
	if err != nil {
		return err
	}
	a, err := appFrom(c)
	if err != nil {
		return err
	}
	defer a.logger.Sync() //nolint:errcheck

	reports, err := a.Chain(c.Context, path, cfg, c.String(flagOut))
	if err != nil {
		return err
	}
	if out := c.String(flagReport); out != "" {
		return a.WriteReports(out, reports)
	}
	return nil
}

func ConvertAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("convert expects exactly one export directory", 2)
	}
	a, err := appFrom(c)
	if err != nil {
		return err
	}
	defer a.logger.Sync() //nolint:errcheck

	override := imports.Exports{
		Intrinsics: c.String(flagIntrinsics),
		Extrinsics: c.String(flagExtrinsics),
		Tracks:     c.String(flagTracks),
	}
	return a.Convert(c.Args().First(), override, c.StringSlice(flagLabels), c.String(flagOut))
}

func newCLI(out io.Writer) *cli.App {
	return &cli.App{
		Name:            "carfit",
		Usage:           "load, inspect and refine car shape, pose and ground plane problems",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       os.Stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "print the layout of a problem file and check its values",
				ArgsUsage: "<problem file>",
				Flags:     []cli.Flag{kindFlag()},
				Action:    InspectAction,
			},
			{
				Name:      "solve",
				Usage:     "refine a problem with the least-squares solver",
				ArgsUsage: "<problem file>",
				Flags:     append([]cli.Flag{kindFlag()}, solverFlags...),
				Action:    SolveAction,
			},
			{
				Name:      "chain",
				Usage:     "solve the pose of a pose problem, then its shape",
				ArgsUsage: "<pose problem file>",
				Flags:     solverFlags,
				Action:    ChainAction,
			},
			{
				Name:      "convert",
				Usage:     "build a ground plane problem from photogrammetry exports",
				ArgsUsage: "<export directory>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagIntrinsics, Usage: "intrinsics XML `FILE`"},
					&cli.StringFlag{Name: flagExtrinsics, Usage: "tab separated camera `FILE`"},
					&cli.StringFlag{Name: flagTracks, Usage: "keypoint track CSV `FILE`"},
					&cli.StringSliceFlag{Name: flagLabels, Usage: "image `LABEL` to use, in order (repeatable)"},
					&cli.StringFlag{
						Name:     flagOut,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "write the ground plane problem to `FILE`",
					},
				},
				Action: ConvertAction,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newCLI(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
