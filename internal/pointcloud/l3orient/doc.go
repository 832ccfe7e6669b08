// Package l3orient owns Layer 3 (Orientation) of the normals model.
//
// Responsibilities: resolving the sign ambiguity left by plane fitting so
// that adjacent normals agree, by breadth-first propagation over a
// neighbour graph from a deterministic seed.
// Key types: Result, SeedStrategy.
//
// Dependency rule: L3 may depend on L1 and L2. Propagation is sequential.
package l3orient
