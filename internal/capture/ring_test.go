package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSize(t *testing.T) {
	tests := []struct {
		name      string
		bufferMB  int
		snaplen   int
		frameSize int
		numBlocks int
	}{
		{"full snaplen", 8, 65535, 65600, 1},
		{"mtu snaplen", 8, 1500, 1552, 21},
		{"tiny buffer", 1, 65535, 65600, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, block, blocks, err := ringSize(tt.bufferMB, tt.snaplen, 4096)
			require.NoError(t, err)
			assert.Equal(t, tt.frameSize, frame)
			assert.Equal(t, tt.numBlocks, blocks)
			assert.Zero(t, frame%16)
			assert.Zero(t, block%4096)
			assert.Zero(t, block%frame)
		})
	}
}

func TestRingSize_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		bufferMB int
		snap     int
		pageSize int
	}{
		{"buffer", 0, 1500, 4096},
		{"snaplen", 8, 0, 4096},
		{"page size", 8, 1500, 4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ringSize(tt.bufferMB, tt.snap, tt.pageSize)
			assert.Error(t, err)
		})
	}
}
