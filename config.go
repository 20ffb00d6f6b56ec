package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/adjust"
)

// solverConfig is the optional JSON file passed with --config. Missing fields keep
// their defaults.
type solverConfig struct {
	Options adjust.Options       `json:"options"`
	Solver  adjust.SolveSettings `json:"solver"`
}

func defaultConfig() solverConfig {
	return solverConfig{
		Options: adjust.DefaultOptions(),
		Solver:  adjust.DefaultSolveSettings(),
	}
}

func loadConfig(path string) (_ solverConfig, err error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	jsonFile, err := os.Open(path)
	if err != nil {
		return solverConfig{}, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(jsonFile))

	dec := json.NewDecoder(jsonFile)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return solverConfig{}, errors.Wrapf(err, "reading config %s", path)
	}
	return cfg, nil
}
