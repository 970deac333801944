package multipart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = int64(1024 * 1024)

func TestPlanParts(t *testing.T) {
	tests := []struct {
		name      string
		fileSize  int64
		partSize  int64
		wantSizes []int64
	}{
		{
			name:      "25MB file with 10MB parts",
			fileSize:  25 * mb,
			partSize:  10 * mb,
			wantSizes: []int64{10 * mb, 10 * mb, 5 * mb},
		},
		{
			name:      "exact multiple",
			fileSize:  30,
			partSize:  10,
			wantSizes: []int64{10, 10, 10},
		},
		{
			name:      "part bigger than file",
			fileSize:  7,
			partSize:  100,
			wantSizes: []int64{7},
		},
		{
			name:      "single byte parts",
			fileSize:  3,
			partSize:  1,
			wantSizes: []int64{1, 1, 1},
		},
		{
			name:      "empty file",
			fileSize:  0,
			partSize:  10,
			wantSizes: []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := PlanParts(tt.fileSize, tt.partSize)

			require.Len(t, parts, len(tt.wantSizes))
			for i, part := range parts {
				assert.Equal(t, i, part.Index)
				assert.Equal(t, tt.wantSizes[i], part.Size)
				assert.False(t, part.Completed)
				assert.Empty(t, part.ETag)
			}
		})
	}
}

func TestPlanParts_CoversFileExactly(t *testing.T) {
	for fileSize := int64(1); fileSize <= 64; fileSize++ {
		for partSize := int64(1); partSize <= 20; partSize++ {
			parts := PlanParts(fileSize, partSize)

			require.Equal(t, PartCount(fileSize, partSize), len(parts))

			var next, sum int64
			for _, part := range parts {
				require.Equal(t, next, part.Offset, "file=%d part=%d", fileSize, partSize)
				require.Greater(t, part.Size, int64(0))
				require.LessOrEqual(t, part.Size, partSize)
				next = part.End()
				sum += part.Size
			}
			require.Equal(t, fileSize, sum)
			require.Equal(t, fileSize, next)
		}
	}
}

func TestPart_Number(t *testing.T) {
	assert.Equal(t, int32(1), Part{Index: 0}.Number())
	assert.Equal(t, int32(3), Part{Index: 2}.Number())
}

func TestAdjustPartSize(t *testing.T) {
	tests := []struct {
		name     string
		fileSize int64
		partSize int64
		want     int64
	}{
		{
			name:     "fits the part limit",
			fileSize: 25 * mb,
			partSize: 10 * mb,
			want:     10 * mb,
		},
		{
			name:     "unset part size",
			fileSize: 25 * mb,
			partSize: 0,
			want:     DefaultPartSize,
		},
		{
			name:     "too many parts",
			fileSize: int64(MaxPartCount)*100 + 1,
			partSize: 100,
			want:     101,
		},
		{
			name:     "exactly at the limit",
			fileSize: int64(MaxPartCount) * 100,
			partSize: 100,
			want:     100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdjustPartSize(tt.fileSize, tt.partSize)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, PartCount(tt.fileSize, got), MaxPartCount)
		})
	}
}
