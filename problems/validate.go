package problems

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// OrthonormalTolerance is the largest deviation of R^T*R from the identity accepted by
// Validate.
const OrthonormalTolerance = 1e-6

func viewField(field string, view int) string {
	return fmt.Sprintf("%s[%d]", field, view)
}

func checkFinite(field string, vals []float64) error {
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("%s: non-finite value %v at index %d", field, v, i)
		}
	}
	return nil
}

func checkIntrinsics(k CameraIntrinsics) error {
	if err := checkFinite("camera intrinsics", k[:]); err != nil {
		return err
	}
	if k.At(0, 0) == 0 || k.At(1, 1) == 0 || k.At(2, 2) == 0 {
		return errors.Errorf("camera intrinsics: degenerate diagonal (%v, %v, %v)", k.At(0, 0), k.At(1, 1), k.At(2, 2))
	}
	return nil
}

func checkWeights(obs ObservationSet) error {
	err := checkFinite("observations", obs.xy)
	for i, w := range obs.weights {
		if !(w >= 0 && w <= 1) {
			err = multierr.Append(err, errors.Errorf("observation weights: %v at index %d is outside [0, 1]", w, i))
		}
	}
	return err
}

// checkRotation only reports; rotations are never re-orthogonalized here.
func checkRotation(field string, rot [9]float64) error {
	if err := checkFinite(field, rot[:]); err != nil {
		return err
	}
	worst := 0.0
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			dot := 0.0
			for r := 0; r < 3; r++ {
				dot += rot[a*3+r] * rot[b*3+r]
			}
			if a == b {
				dot--
			}
			worst = math.Max(worst, math.Abs(dot))
		}
	}
	if worst > OrthonormalTolerance {
		return errors.Errorf("%s: not orthonormal (max |R^T R - I| = %g)", field, worst)
	}
	det := rot[0]*(rot[4]*rot[8]-rot[7]*rot[5]) -
		rot[3]*(rot[1]*rot[8]-rot[7]*rot[2]) +
		rot[6]*(rot[1]*rot[5]-rot[4]*rot[2])
	if det < 0 {
		return errors.Errorf("%s: reflection (det = %g)", field, det)
	}
	return nil
}

func checkPlane(g GroundPlane) error {
	if err := checkFinite("ground plane", g[:]); err != nil {
		return err
	}
	if g.Normal().Norm() == 0 {
		return errors.New("ground plane: zero normal")
	}
	return nil
}
