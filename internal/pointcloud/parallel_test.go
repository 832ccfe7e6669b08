package pointcloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEachChunkCoversEveryIndexOnce(t *testing.T) {
	for _, tc := range []struct {
		name    string
		n       int
		workers int
	}{
		{"empty", 0, 4},
		{"small sequential", 10, 4},
		{"single worker", 1000, 1},
		{"parallel", 5000, 4},
		{"default workers", 3000, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hits := make([]int, tc.n)
			ForEachChunk(tc.n, tc.workers, func(lo, hi int) {
				for i := lo; i < hi; i++ {
					hits[i]++
				}
			})
			for i, h := range hits {
				assert.Equal(t, 1, h, "index %d", i)
			}
		})
	}
}
