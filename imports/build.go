package imports

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	sph "github.com/datomi79/Earth-ain-t-Flat-IROS18/photogrammetry"
	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

// BuildGroundPlaneProblem assembles a ground plane problem from calibrated cameras and
// tracked ground points. Views follow labels. Only points tracked in every view are
// kept; each is triangulated from all views and a plane is fitted through them with
// its normal facing the first camera.
func BuildGroundPlaneProblem(
	k problems.CameraIntrinsics,
	labels []string,
	poses map[string]problems.Pose,
	tracks Tracks,
) (*problems.GroundPlaneProblem, error) {
	if len(labels) < 2 {
		return nil, errors.Errorf("need at least 2 views, got %d", len(labels))
	}
	if missing := lo.Filter(labels, func(label string, _ int) bool {
		_, ok := poses[label]
		return !ok
	}); len(missing) > 0 {
		return nil, errors.Errorf("no camera pose for %v", missing)
	}
	ids := tracks.Common(labels)
	if len(ids) < sph.MIN_PLANE_POINTS {
		return nil, errors.Errorf("%d points tracked in every view, need at least %d", len(ids), sph.MIN_PLANE_POINTS)
	}

	K := k.Dense()
	viewPoses := lo.Map(labels, func(label string, _ int) problems.Pose { return poses[label] })
	projMats := lo.Map(viewPoses, func(pose problems.Pose, _ int) mat.Matrix {
		return sph.ProjectionMatrix(K, sph.Extrinsics(pose.Rotation, pose.Translation))
	})

	points := make([]r3.Vector, len(ids))
	for i, id := range ids {
		projPoints := make([]sph.ProjPoint, len(labels))
		for v, label := range labels {
			projPoints[v] = sph.ProjPoint{Mat: projMats[v], Point: tracks[label][id]}
		}
		X, err := sph.TriangulatePoint(projPoints)
		if err != nil {
			return nil, errors.Wrapf(err, "point %d", id)
		}
		points[i] = r3.Vector{X: X[0], Y: X[1], Z: X[2]}
	}

	plane, err := sph.FitPlane(points)
	if err != nil {
		return nil, err
	}
	ground := problems.GroundPlane(plane)
	if ground.SignedDistance(viewPoses[0].CameraCenter()) < 0 {
		for i := range ground {
			ground[i] = -ground[i]
		}
	}

	xy := make([]float64, 0, 2*len(labels)*len(ids))
	for _, label := range labels {
		for _, id := range ids {
			p := tracks[label][id]
			xy = append(xy, p.X, p.Y)
		}
	}
	obs, err := problems.NewObservationSet(len(labels), len(ids), xy, nil)
	if err != nil {
		return nil, err
	}
	return problems.NewGroundPlaneProblem(
		k,
		problems.NewPointSetFromVectors(points),
		problems.NewPoseSet(viewPoses...),
		obs,
		ground,
	)
}

// ImportGroundPlane reads the exports and builds a ground plane problem over labels. A
// nil labels uses every tracked image that has a camera pose, in sorted order.
func ImportGroundPlane(ex Exports, labels []string) (*problems.GroundPlaneProblem, error) {
	intrinsics, err := ReadIntrinsicMetashape(ex.Intrinsics)
	if err != nil {
		return nil, err
	}
	poses, err := ReadExtrinsicMetashape(ex.Extrinsics)
	if err != nil {
		return nil, err
	}
	tracks, err := ReadTracks(ex.Tracks)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = lo.Filter(tracks.Labels(), func(label string, _ int) bool {
			_, ok := poses[label]
			return ok
		})
	}
	return BuildGroundPlaneProblem(intrinsics.K, labels, poses, tracks)
}
