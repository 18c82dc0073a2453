package humanize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileSizeBinary(t *testing.T) {
	assert.Equal(t, "1.0 B", FileSize(1, false))
	assert.Equal(t, "1.0 KiB", FileSize(1024, false))
	assert.Equal(t, "1.5 KiB", FileSize(1524, false))
	assert.Equal(t, "5.2 MiB", FileSize(5500928, false))
	assert.Equal(t, "6.8 GiB", FileSize(7300613312, false))
}

func TestFileSizeSI(t *testing.T) {
	assert.Equal(t, "1.0 KB", FileSize(1024, true))
	assert.Equal(t, "5.5 MB", FileSize(5500928, true))
	assert.Equal(t, "7.3 GB", FileSize(7300613312, true))
}
