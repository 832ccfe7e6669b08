// Package pointcloud owns the shared data model for surface normal
// estimation: point clouds, polygon faces, neighbour graphs and normal
// fields.
//
// Responsibilities: input validation (3D only), the error taxonomy,
// recoverable per-point diagnostics, and the ops/diag/trace log streams.
// Key types: Cloud, Faces, NeighborGraph, NormalField, Diagnostic.
//
// Dependency rule: the layer packages build on this one.
//   - l1neighbors: spatial index and face adjacency (neighbour graphs)
//   - l2normals:   covariance plane fit per point (may use L1)
//   - l3orient:    sign propagation over a graph (may use L1-L2)
//
// Only pipeline ties the layers together. No SQL or HTTP code is allowed
// in this package or its layers.
package pointcloud
