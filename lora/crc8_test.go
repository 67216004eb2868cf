package lora

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC8KnownValues(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"empty input", nil, 0x00},
		{"single zero byte", []byte{0x00}, 0x00},
		{"single one byte", []byte{0x01}, 0x31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC8(tt.data))
		})
	}
}

func TestCRC8Residue(t *testing.T) {
	// appending the checksum to its input must yield a zero checksum
	inputs := [][]byte{
		{0x10, 0x00, 0x01, 0x02, 'H', 'i'},
		{0xFF, 0xFF, 0xFF},
		[]byte("the quick brown fox jumps over the lazy dog"),
		{0x00, 0x00, 0x00, 0x00},
	}

	for _, data := range inputs {
		crc := CRC8(data)
		assert.Equal(t, byte(0), CRC8(append(append([]byte(nil), data...), crc)))
	}
}

func TestCRC8DetectsBitFlip(t *testing.T) {
	require := require.New(t)

	data := []byte{0x10, 0x03, 0x05, 0x02, 0xDE, 0xAD}
	want := CRC8(data)

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), data...)
			flipped[i] ^= 1 << bit
			require.NotEqual(want, CRC8(flipped), "flip of byte %d bit %d not detected", i, bit)
		}
	}
}
