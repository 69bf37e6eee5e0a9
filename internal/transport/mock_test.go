package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_ReadWrite(t *testing.T) {
	m := NewMock()
	m.Feed([]byte("hello"))

	buf := make([]byte, 5)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	_, err = m.Write([]byte("AT+UNIT=2\r"))
	require.NoError(t, err)
	assert.Equal(t, "AT+UNIT=2\r", string(m.Written()))
}

func TestMock_ReadTimeoutReturnsZeroNil(t *testing.T) {
	m := NewMock()

	buf := make([]byte, 4)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMock_ReadErrorIsOneShot(t *testing.T) {
	m := NewMock()
	m.ReadError = errors.New("boom")
	m.Feed([]byte("x"))

	buf := make([]byte, 1)
	_, err := m.Read(buf)
	assert.EqualError(t, err, "boom")

	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMock_CloseUnblocksBlockedRead(t *testing.T) {
	m := NewMock()
	m.BlockReads = true

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := m.Read(buf)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}

func TestMock_WriteAfterCloseErrors(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Close())

	_, err := m.Write([]byte("x"))
	assert.Error(t, err)
}
