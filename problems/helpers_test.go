package problems

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"go.viam.com/test"
)

// fileBuilder appends tokens in the order they appear in a problem file. Float values
// come from a running counter so that any transposition shows up as a wrong value.
type fileBuilder struct {
	tokens []string
	next   float64
}

func (b *fileBuilder) count(n int) {
	b.tokens = append(b.tokens, strconv.Itoa(n))
}

func (b *fileBuilder) values(vals ...float64) {
	for _, v := range vals {
		b.tokens = append(b.tokens, strconv.FormatFloat(v, 'g', -1, 64))
	}
}

// seq appends n counter values and returns them.
func (b *fileBuilder) seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		b.next += 0.25
		out[i] = b.next
	}
	b.values(out...)
	return out
}

func (b *fileBuilder) String() string {
	return strings.Join(b.tokens, " ") + "\n"
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problem.txt")
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

type poseFixture struct {
	numPts, numVec int
	carCenter      []float64
	dims           []float64
	k              []float64
	obs            []float64
	weights        []float64
	mean           []float64
	basis          []float64
	lambdas        []float64
	rotation       []float64
	translation    []float64
}

// buildSingleView writes a pose problem file, followed by a pose when withPose is set.
func buildSingleView(numPts, numVec int, withPose bool) (*fileBuilder, poseFixture) {
	b := &fileBuilder{}
	f := poseFixture{numPts: numPts, numVec: numVec}
	b.count(numPts)
	f.carCenter = b.seq(3)
	f.dims = b.seq(3)
	f.k = b.seq(9)
	f.obs = b.seq(2 * numPts)
	f.weights = b.seq(numPts)
	f.mean = b.seq(3 * numPts)
	b.count(numVec)
	f.basis = b.seq(numVec * 3 * numPts)
	f.lambdas = b.seq(numVec)
	if withPose {
		f.rotation = b.seq(9)
		f.translation = b.seq(3)
	}
	return b, f
}

type groundFixture struct {
	numViews, numPts int
	k, points        []float64
	rotations        []float64
	translations     []float64
	xs, plane        []float64
}

func buildGroundPlane(numViews, numPts int) (*fileBuilder, groundFixture) {
	b := &fileBuilder{}
	f := groundFixture{numViews: numViews, numPts: numPts}
	b.count(numViews)
	b.count(numPts)
	f.k = b.seq(9)
	f.points = b.seq(3 * numPts)
	f.rotations = b.seq(9 * numViews)
	f.translations = b.seq(3 * numViews)
	f.xs = b.seq(2 * numPts * numViews)
	f.plane = b.seq(4)
	return b, f
}

type multiViewFixture struct {
	numViews, numPts, numObs, numVec int
	dims, k, carCenters              []float64
	obs, weights, mean               []float64
	basis, lambdas                   []float64
	rotations, translations          []float64
}

// buildMultiView writes basis values as sentinels encoding (view, vec, pt, coord) when
// sentinel is set, and counter values otherwise.
func buildMultiView(numViews, numPts, numObs, numVec int, sentinel bool) (*fileBuilder, multiViewFixture) {
	b := &fileBuilder{}
	f := multiViewFixture{numViews: numViews, numPts: numPts, numObs: numObs, numVec: numVec}
	b.count(numViews)
	b.count(numPts)
	b.count(numObs)
	f.dims = b.seq(3)
	f.k = b.seq(9)
	f.carCenters = b.seq(3 * numViews)
	f.obs = b.seq(2 * numObs * numViews)
	f.weights = b.seq(numObs * numViews)
	f.mean = b.seq(3 * numObs * numViews)
	b.count(numVec)
	if sentinel {
		for v := 0; v < numViews; v++ {
			for i := 0; i < numVec; i++ {
				for j := 0; j < numPts; j++ {
					for c := 0; c < 3; c++ {
						val := sentinelValue(v, i, j, c)
						f.basis = append(f.basis, val)
						b.values(val)
					}
				}
			}
		}
	} else {
		f.basis = b.seq(numViews * numVec * 3 * numPts)
	}
	f.lambdas = b.seq(numVec)
	f.rotations = b.seq(9 * numViews)
	f.translations = b.seq(3 * numViews)
	return b, f
}

func sentinelValue(view, vec, pt, coord int) float64 {
	return float64(view*1000000 + vec*10000 + pt*10 + coord)
}

// tokensOf splits serialized output back into floats for comparison.
func tokensOf(t *testing.T, s string) []float64 {
	t.Helper()
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		test.That(t, err, test.ShouldBeNil)
		out[i] = v
	}
	return out
}
