package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFifoWriteRead(t *testing.T) {
	f := New(10)
	n := f.Write([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, f.Occupied())

	n = f.Write(make([]byte, 500))
	assert.Equal(t, 5, n) // only 5 slots left in a 10-capacity ring

	out := make([]byte, 3)
	n = f.Read(out)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, out)
}

func TestFifoAltReadDoesNotCommit(t *testing.T) {
	f := New(10)
	f.Write([]byte{1, 2, 3, 4})

	f.AltBegin(0)
	buf := make([]byte, 4)
	n := f.AltRead(buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)

	// nothing was committed, a real Read still sees everything
	n = f.Read(buf)
	assert.Equal(t, 4, n)
}

func TestFifoAltCommitDiscards(t *testing.T) {
	f := New(10)
	f.Write([]byte{1, 2, 3, 4})
	f.AltBegin(2)
	f.AltCommit()
	assert.Equal(t, 2, f.Occupied())
}
