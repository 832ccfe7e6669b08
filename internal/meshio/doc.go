// Package meshio loads point clouds and polygon meshes from disk and
// writes estimated normals back out. It is the loader collaborator of the
// normals core: the core never parses files.
//
// Readers: OFF (and NOFF/COFF variants), Wavefront OBJ (v and f records),
// and whitespace-separated XYZ point lists.
// Writers: XYZN, CSV and NOFF (OFF with per-vertex normals).
package meshio
