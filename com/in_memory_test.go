package com

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemory_Read(t *testing.T) {
	tt := []struct {
		desc     string
		in       []byte
		bufLen   int
		expected []byte
	}{
		{"short", []byte{0x00, 0x01, 0x0e}, 10, []byte{0x00, 0x01, 0x0e}},
		{"exact", []byte{0x00, 0x01, 0x0e}, 3, []byte{0x00, 0x01, 0x0e}},
		{"long", []byte{0x00, 0x01, 0x0e}, 2, []byte{0x00, 0x01}},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			rw := NewInMemory()
			rw.PrepareRead(tc.in)
			buf := make([]byte, tc.bufLen)

			n, err := rw.Read(buf)

			assert.NoError(t, err)
			assert.Equal(t, len(tc.expected), n)
			assert.Equal(t, tc.expected, buf[0:n])
		})
	}
}

func TestInMemory_ReadClose(t *testing.T) {
	rw := NewInMemory()

	go func() {
		time.Sleep(100 * time.Nanosecond)
		rw.Close()
	}()

	buf := make([]byte, 10)
	n, err := rw.Read(buf)

	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
}

func TestInMemory_ReadLater(t *testing.T) {
	rw := NewInMemory()

	go func() {
		time.Sleep(100 * time.Nanosecond)
		rw.PrepareRead([]byte("hello"))
	}()

	buf := make([]byte, 10)
	n, err := rw.Read(buf)

	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[0:n]))
}

func TestInMemory_CloseWhenEmpty(t *testing.T) {
	rw := NewInMemory()
	rw.PrepareRead([]byte{1, 2})
	rw.CloseWhenEmpty(true)

	buf := make([]byte, 10)
	n, err := rw.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = rw.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestInMemory_Write(t *testing.T) {
	rw := NewInMemory()

	n, err := rw.Write([]byte{0x00, 0x02, 0x0a, 0x00})

	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	rw.WaitUntilWritten()
	assert.Equal(t, [][]byte{{0x0a, 0x00}}, rw.WrittenMessages(LengthPrefixed{}))

	rw.ClearWrite()
	assert.Empty(t, rw.Written())

	rw.Close()
	_, err = rw.Write([]byte{0x00})
	assert.Error(t, err)
}
