package meshio

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/normals.report/internal/fsutil"
	"github.com/banshee-data/normals.report/internal/pointcloud"
)

// MaxFileSize bounds the size of a mesh file Load will read.
const MaxFileSize = 512 * 1024 * 1024

// ErrFormat is returned when a file does not follow its declared format.
var ErrFormat = errors.New("malformed mesh file")

// Mesh is a loaded point cloud with optional faces. Normals is set only
// when the file carried them (NOFF).
type Mesh struct {
	Cloud   pointcloud.Cloud
	Faces   pointcloud.Faces
	Normals pointcloud.NormalField
}

// Format identifies a file layout by extension.
type Format string

const (
	FormatOFF  Format = "off"
	FormatOBJ  Format = "obj"
	FormatXYZ  Format = "xyz"
	FormatXYZN Format = "xyzn"
	FormatCSV  Format = "csv"
)

// FormatOf returns the format implied by the file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".off", ".noff", ".coff":
		return FormatOFF, nil
	case ".obj":
		return FormatOBJ, nil
	case ".xyz", ".pts", ".txt":
		return FormatXYZ, nil
	case ".xyzn":
		return FormatXYZN, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported mesh extension %q", ext)
	}
}

// Load reads a mesh or point cloud from fsys, choosing the reader by
// extension.
func Load(fsys fsutil.FileSystem, path string) (*Mesh, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := fsutil.OpenLimited(fsys, path, MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m *Mesh
	switch format {
	case FormatOFF:
		m, err = ReadOFF(f)
	case FormatOBJ:
		m, err = ReadOBJ(f)
	case FormatXYZ, FormatXYZN:
		m, err = ReadXYZ(f)
	default:
		return nil, fmt.Errorf("cannot read %s files", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	pointcloud.Opsf("loaded %s: %d points, %d faces", path, len(m.Cloud), len(m.Faces))
	return m, nil
}

// Save writes the mesh with the given normals to fsys, choosing the writer
// by extension. The file is replaced atomically.
func Save(fsys fsutil.FileSystem, path string, m *Mesh, normals pointcloud.NormalField) error {
	if len(normals) != len(m.Cloud) {
		return fmt.Errorf("%d normals for %d points", len(normals), len(m.Cloud))
	}
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(fsys, path, func(w io.Writer) error {
		switch format {
		case FormatOFF:
			return WriteNOFF(w, m.Cloud, m.Faces, normals)
		case FormatXYZN, FormatXYZ:
			return WriteXYZN(w, m.Cloud, normals)
		case FormatCSV:
			return WriteCSV(w, m.Cloud, normals)
		default:
			return fmt.Errorf("cannot write %s files", format)
		}
	})
}
