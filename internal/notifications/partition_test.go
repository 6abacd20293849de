package notifications

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("tok-%04d", i)
	}
	return ids
}

func TestPartition_Sizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n     int
		size  int
		sizes []int
	}{
		{n: 0, size: 500, sizes: nil},
		{n: 1, size: 500, sizes: []int{1}},
		{n: 500, size: 500, sizes: []int{500}},
		{n: 501, size: 500, sizes: []int{500, 1}},
		{n: 1250, size: 500, sizes: []int{500, 500, 250}},
		{n: 7, size: 3, sizes: []int{3, 3, 1}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.n, tt.size), func(t *testing.T) {
			t.Parallel()
			batches := Partition(makeIDs(tt.n), tt.size)

			var got []int
			for _, b := range batches {
				got = append(got, len(b))
			}
			assert.Equal(t, tt.sizes, got)
		})
	}
}

func TestPartition_PreservesOrderAndCoverage(t *testing.T) {
	t.Parallel()
	ids := makeIDs(1250)

	var flat []string
	for _, b := range Partition(ids, 500) {
		require.LessOrEqual(t, len(b), 500)
		flat = append(flat, b...)
	}
	assert.Equal(t, ids, flat)
}

func TestPartition_BatchesDoNotAlias(t *testing.T) {
	t.Parallel()
	ids := makeIDs(4)
	batches := Partition(ids, 2)

	_ = append(batches[0], "intruder")
	assert.Equal(t, "tok-0002", batches[1][0])
}
