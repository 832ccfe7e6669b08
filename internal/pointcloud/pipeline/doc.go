// Package pipeline ties the normals layers together: neighbour graph
// construction (L1), per-point estimation (L2) and sign propagation (L3).
//
// Recalc is the single entry point used by the CLI, the sweep tool and the
// viewer server whenever a parameter changes. It owns nothing between
// calls; the caller keeps the cloud and the returned field.
package pipeline
