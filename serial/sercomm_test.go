package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSercomm_Encode(t *testing.T) {
	tt := []struct {
		desc     string
		msg      []byte
		expected []byte
	}{
		{"empty", []byte{}, []byte{0x7e, 0x05, 0x03, 0x7e}},
		{"plain", []byte{0x0d, 0x01}, []byte{0x7e, 0x05, 0x03, 0x0d, 0x01, 0x7e}},
		{"zero", []byte{0x0d, 0x00}, []byte{0x7e, 0x05, 0x03, 0x0d, 0x7d, 0x20, 0x7e}},
		{"flag and escape", []byte{0x7e, 0x7d}, []byte{0x7e, 0x05, 0x03, 0x7d, 0x5e, 0x7d, 0x5d, 0x7e}},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual, err := NewSercomm().Encode(tc.msg)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestSercomm_Decode(t *testing.T) {
	tt := []struct {
		desc             string
		in               []byte
		expectedMsg      []byte
		expectedConsumed int
	}{
		{"empty", []byte{}, nil, 0},
		{"garbage before flag", []byte{0x01, 0x02, 0x7e, 0x05}, nil, 2},
		{"back to back flags", []byte{0x7e, 0x7e, 0x05}, nil, 1},
		{"incomplete", []byte{0x7e, 0x05, 0x03, 0x0d}, nil, 0},
		{"complete", []byte{0x7e, 0x05, 0x03, 0x0d, 0x7d, 0x20, 0x7e, 0x7e}, []byte{0x0d, 0x00}, 7},
		{"other DLCI", []byte{0x7e, 0x0a, 0x03, 0x41, 0x7e}, nil, 5},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			msg, consumed := NewSercomm().Decode(tc.in)
			assert.Equal(t, tc.expectedMsg, msg)
			assert.Equal(t, tc.expectedConsumed, consumed)
		})
	}
}

func TestSercomm_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		framing := NewSercomm()
		msg := rapid.SliceOfN(rapid.Byte(), 1, maxSercommMsgLen).Draw(t, "msg")

		frame, err := framing.Encode(msg)
		require.NoError(t, err)
		decoded, consumed := framing.Decode(frame)

		assert.Equal(t, msg, decoded)
		assert.Equal(t, len(frame), consumed)
	})
}
