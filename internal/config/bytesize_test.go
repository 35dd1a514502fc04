package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
		wantErr  bool
	}{
		{"raw bytes", "4096", 4096, false},
		{"si megabytes", "32MB", 32_000_000, false},
		{"iec mebibytes", "32MiB", 32 << 20, false},
		{"with space", "1.5 GiB", 3 << 29, false},
		{"lowercase", "512kib", 512 << 10, false},
		{"zero", "0", 0, false},
		{"empty", "", 0, true},
		{"invalid", "lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, size.Bytes())
		})
	}
}

func TestByteSize_TextRoundTrip(t *testing.T) {
	original := ByteSize(32 << 20)
	text, err := original.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "32 MiB", string(text))

	var parsed ByteSize
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, original, parsed)
}
