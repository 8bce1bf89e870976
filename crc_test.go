package dnp3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16KnownVector(t *testing.T) {
	// CRC-16/DNP check value for the ASCII string "123456789".
	crc := CalcCRC16([]byte("123456789"))
	assert.EqualValues(t, 0xEA82, crc)
}

func TestCRC16RoundTrip(t *testing.T) {
	data := []byte{0xC4, 0x01, 0x00, 0x0A, 0x00}
	block := AppendCRC16(nil, data)
	assert.True(t, VerifyCRC16(block))
}

func TestCRC16DetectsSingleBitFlip(t *testing.T) {
	data := []byte{0xC4, 0x01, 0x00, 0x0A, 0x00}
	block := AppendCRC16(nil, data)
	for i := 0; i < len(data)*8; i++ {
		mutated := append([]byte(nil), block...)
		mutated[i/8] ^= 1 << uint(i%8)
		assert.Falsef(t, VerifyCRC16(mutated), "bit flip at position %d not detected", i)
	}
}
