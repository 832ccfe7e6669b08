// Package l1neighbors owns Layer 1 (Neighbourhoods) of the normals model.
//
// Responsibilities: building neighbour graphs, either from spatial
// proximity (k nearest neighbours over a k-d tree) or from polygon
// connectivity (1-ring edge adjacency of face loops).
// Key types: Index.
//
// Dependency rule: L1 depends only on the shared pointcloud types, never
// on L2+.
package l1neighbors
