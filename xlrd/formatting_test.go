package xlrd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDateFormatString(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"m/d/yy", true},
		{"yyyy-mm-dd", true},
		{"d-mmm-yy", true},
		{"h:mm:ss", true},
		{"m/d/yy h:mm", true},
		{"0.00", false},
		{"#,##0", false},
		{"0%", false},
		{"General", false},
		{"general", false},
		{"@", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDateFormatString(tt.format), "format %q", tt.format)
	}
}

func TestClassifyFormat(t *testing.T) {
	assert.Equal(t, FGE, classifyFormat("General"))
	assert.Equal(t, FTX, classifyFormat("@"))
	assert.Equal(t, FDT, classifyFormat("dd/mm/yyyy"))
	assert.NotEqual(t, FDT, classifyFormat("0.00"))
}
