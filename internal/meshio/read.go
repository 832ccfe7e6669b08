package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/pointcloud"
)

// lineReader yields non-empty, comment-free lines split into fields.
type lineReader struct {
	scanner *bufio.Scanner
	line    int
}

func newLineReader(r io.Reader) *lineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &lineReader{scanner: s}
}

// next returns the fields of the next meaningful line, or io.EOF.
func (lr *lineReader) next() ([]string, error) {
	for lr.scanner.Scan() {
		lr.line++
		line := lr.scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return fields, nil
	}
	if err := lr.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (lr *lineReader) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrFormat, lr.line, fmt.Sprintf(format, args...))
}

func parseVec(fields []string) (r3.Vec, error) {
	var v [3]float64
	for i := range v {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return r3.Vec{}, err
		}
		v[i] = f
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

// ReadOFF parses an Object File Format mesh. The header keyword is
// optional; NOFF files also yield per-vertex normals and COFF colours are
// ignored. Face index validation against the cloud is left to the caller.
func ReadOFF(r io.Reader) (*Mesh, error) {
	lr := newLineReader(r)
	fields, err := lr.next()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header", ErrFormat)
	}

	withNormals := false
	if kw := strings.ToUpper(fields[0]); strings.HasSuffix(kw, "OFF") {
		withNormals = strings.Contains(kw, "N")
		fields = fields[1:]
		if len(fields) == 0 {
			if fields, err = lr.next(); err != nil {
				return nil, fmt.Errorf("%w: missing counts", ErrFormat)
			}
		}
	}
	if len(fields) < 2 {
		return nil, lr.errorf("want vertex and face counts, got %q", strings.Join(fields, " "))
	}
	nv, err1 := strconv.Atoi(fields[0])
	nf, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || nv < 0 || nf < 0 {
		return nil, lr.errorf("bad counts %q", strings.Join(fields, " "))
	}

	m := &Mesh{Cloud: make(pointcloud.Cloud, 0, nv)}
	if withNormals {
		m.Normals = make(pointcloud.NormalField, 0, nv)
	}
	for i := 0; i < nv; i++ {
		fields, err := lr.next()
		if err != nil {
			return nil, fmt.Errorf("%w: vertex %d of %d: %v", ErrFormat, i, nv, err)
		}
		want := 3
		if withNormals {
			want = 6
		}
		if len(fields) < want {
			return nil, lr.errorf("vertex %d has %d values, want %d", i, len(fields), want)
		}
		p, err := parseVec(fields)
		if err != nil {
			return nil, lr.errorf("vertex %d: %v", i, err)
		}
		m.Cloud = append(m.Cloud, p)
		if withNormals {
			n, err := parseVec(fields[3:])
			if err != nil {
				return nil, lr.errorf("vertex %d normal: %v", i, err)
			}
			m.Normals = append(m.Normals, n)
		}
	}

	m.Faces = make(pointcloud.Faces, 0, nf)
	for i := 0; i < nf; i++ {
		fields, err := lr.next()
		if err != nil {
			return nil, fmt.Errorf("%w: face %d of %d: %v", ErrFormat, i, nf, err)
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil || count < 0 || len(fields) < 1+count {
			return nil, lr.errorf("face %d: bad vertex count", i)
		}
		face := make([]int, count)
		for j := range face {
			if face[j], err = strconv.Atoi(fields[1+j]); err != nil {
				return nil, lr.errorf("face %d: %v", i, err)
			}
		}
		m.Faces = append(m.Faces, face)
	}
	return m, nil
}

// ReadOBJ reads the v and f records of a Wavefront OBJ file. Face indices
// are converted to 0-based; negative (relative) indices are resolved
// against the vertices read so far. Other records are ignored.
func ReadOBJ(r io.Reader) (*Mesh, error) {
	lr := newLineReader(r)
	m := &Mesh{}
	for {
		fields, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, lr.errorf("vertex has %d coordinates, want 3", len(fields)-1)
			}
			p, err := parseVec(fields[1:])
			if err != nil {
				return nil, lr.errorf("vertex: %v", err)
			}
			m.Cloud = append(m.Cloud, p)
		case "f":
			face := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				// v, v/vt, v/vt/vn and v//vn all start with the vertex index.
				idx, err := strconv.Atoi(strings.SplitN(tok, "/", 2)[0])
				if err != nil || idx == 0 {
					return nil, lr.errorf("bad face index %q", tok)
				}
				if idx < 0 {
					idx += len(m.Cloud)
				} else {
					idx--
				}
				face = append(face, idx)
			}
			m.Faces = append(m.Faces, face)
		}
	}
	return m, nil
}

// ReadXYZ reads one point per line. Lines with six or more values also
// carry a normal, and the field is returned when every line has one.
func ReadXYZ(r io.Reader) (*Mesh, error) {
	lr := newLineReader(r)
	m := &Mesh{}
	var normals pointcloud.NormalField
	allNormals := true
	for {
		fields, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: line %d: point has %d coordinates, want 3",
				pointcloud.ErrDimensionMismatch, lr.line, len(fields))
		}
		p, err := parseVec(fields)
		if err != nil {
			return nil, lr.errorf("point: %v", err)
		}
		m.Cloud = append(m.Cloud, p)
		if len(fields) >= 6 {
			if n, err := parseVec(fields[3:]); err == nil {
				normals = append(normals, n)
				continue
			}
		}
		allNormals = false
	}
	if allNormals && len(normals) == len(m.Cloud) && len(normals) > 0 {
		m.Normals = normals
	}
	return m, nil
}
