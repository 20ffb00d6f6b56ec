package main

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/adjust"
)

type Type int

const (
	NONE Type = iota
	POSE
	SHAPE
	GROUND_PLANE
	MULTI_VIEW
)

var typeNames = map[Type]string{
	POSE:         "pose",
	SHAPE:        "shape",
	GROUND_PLANE: "ground",
	MULTI_VIEW:   "multiview",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "none"
}

// ParseType maps a --kind flag value to a problem type.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return NONE, errors.Errorf("unknown problem kind %q (want pose, shape, ground or multiview)", name)
}

// problemFile is what every loaded problem offers.
type problemFile interface {
	io.WriterTo
	Save(path string) error
	Validate() error
}

// Camera position report

type ViewReport struct {
	View      int        `json:"view"`
	Center    [3]float64 `json:"center"`
	Longitude float64    `json:"longitude"`
	Latitude  float64    `json:"latitude"`
}

// Solve report

type SolveReport struct {
	Kind        string         `json:"kind"`
	Method      string         `json:"method"`
	InitialCost float64        `json:"initialCost"`
	FinalCost   float64        `json:"finalCost"`
	Iterations  int            `json:"iterations"`
	Evaluations int            `json:"evaluations"`
	Status      string         `json:"status"`
	Warning     string         `json:"warning,omitempty"`
	Before      []BlockSummary `json:"before"`
	After       []BlockSummary `json:"after"`
}

type BlockSummary struct {
	Kind   string  `json:"kind"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	RMS    float64 `json:"rms"`
}

func blockSummaries(s adjust.Summary) []BlockSummary {
	out := make([]BlockSummary, len(s.ByKind))
	for i, b := range s.ByKind {
		out[i] = BlockSummary{
			Kind:   b.Kind.String(),
			Count:  b.Count,
			Mean:   b.Mean,
			Median: b.Median,
			Max:    b.Max,
			RMS:    b.RMS,
		}
	}
	return out
}
