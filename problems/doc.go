// Package problems holds the input data of the car shape, pose and ground plane
// adjustment problems.
//
// Each problem variant is loaded in one pass from a whitespace separated file whose
// tokens appear in a fixed order: counts first, then small fixed-size fields, then the
// large tensors in view, point (or basis vector), coordinate order. A load either returns
// a fully populated problem or a *ParseError; no partially filled value is ever exposed.
// Tokens left after the last field are rejected with DimensionMismatch, so files carrying
// trailing data must be trimmed before loading.
//
// The variants are assembled from a few value types:
//
//   - CameraIntrinsics, a row-major 3x3 K.
//   - Pose and PoseSet, column-major rotations with translations.
//   - ObservationSet, 2D keypoints with optional confidence weights.
//   - PointSet, 3D points such as a mean shape or triangulated points.
//   - ShapeBasis, deformation vectors indexed by
//     view*3*numVec*numPts + vec*3*numPts + 3*pt + coord.
//
// Loaded problems are immutable. Every accessor returns a value or a copy, so a solver
// may read a problem from several goroutines without locking.
package problems
