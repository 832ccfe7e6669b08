package meshio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/normals.report/internal/pointcloud"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteXYZN writes one "x y z nx ny nz" line per point.
func WriteXYZN(w io.Writer, cloud pointcloud.Cloud, normals pointcloud.NormalField) error {
	bw := bufio.NewWriter(w)
	for i, p := range cloud {
		n := normals[i]
		if _, err := fmt.Fprintf(bw, "%s %s %s %s %s %s\n",
			formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z),
			formatFloat(n.X), formatFloat(n.Y), formatFloat(n.Z)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"id", "x", "y", "z", "nx", "ny", "nz", "degenerate"}

// WriteCSV writes a header row followed by one row per point. Sentinel
// normals are marked in the degenerate column.
func WriteCSV(w io.Writer, cloud pointcloud.Cloud, normals pointcloud.NormalField) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for i, p := range cloud {
		n := normals[i]
		row := []string{
			strconv.Itoa(i),
			formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z),
			formatFloat(n.X), formatFloat(n.Y), formatFloat(n.Z),
			strconv.FormatBool(normals.IsSentinel(i)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteNOFF writes an OFF file whose vertex lines also carry the normal.
func WriteNOFF(w io.Writer, cloud pointcloud.Cloud, faces pointcloud.Faces, normals pointcloud.NormalField) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "NOFF\n%d %d 0\n", len(cloud), len(faces))
	for i, p := range cloud {
		n := normals[i]
		fmt.Fprintf(bw, "%s %s %s %s %s %s\n",
			formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z),
			formatFloat(n.X), formatFloat(n.Y), formatFloat(n.Z))
	}
	for _, face := range faces {
		fmt.Fprintf(bw, "%d", len(face))
		for _, v := range face {
			fmt.Fprintf(bw, " %d", v)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
