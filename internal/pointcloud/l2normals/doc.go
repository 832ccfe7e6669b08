// Package l2normals owns Layer 2 (Normals) of the normals model.
//
// Responsibilities: fitting a local plane to each point's neighbourhood
// by eigen-analysis of a 3×3 scatter matrix, and flagging neighbourhoods
// that cannot define a plane.
// Key types: Estimator, PointEstimate, Report.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2normals
