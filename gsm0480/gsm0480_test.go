package gsm0480

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var ussdRequest = []byte{
	0x0b, 0x7b, 0x1c, 0x15, 0xa1, 0x13, 0x02, 0x01,
	0x03, 0x02, 0x01, 0x3b, 0x30, 0x0b, 0x04, 0x01,
	0x0f, 0x04, 0x06, 0x2a, 0xd5, 0x4c, 0x16, 0x1b,
	0x01, 0x7f, 0x01, 0x00,
}

func TestUnstructuredSSNotifyRoundTrip(t *testing.T) {
	bytes, err := CreateUnstructuredSSNotify(1, "TEST")
	require.NoError(t, err)

	notify, err := ParseUnstructuredSSNotify(bytes)

	require.NoError(t, err)
	assert.Equal(t, Notify{DCS: DCSDefault, Text: "TEST", AlertPattern: 0x01, HasAlertPattern: true}, notify)
}

func TestCreateUnstructuredSSNotify(t *testing.T) {
	tt := []struct {
		desc         string
		alertPattern byte
		text         string
		expected     []byte
	}{
		{
			desc:     "empty",
			expected: []byte{0x30, 0x08, 0x04, 0x01, 0x0f, 0x04, 0x00, 0x04, 0x01, 0x00},
		},
		{
			desc:         "forty-two",
			alertPattern: 0x42,
			text:         "forty-two",
			expected: []byte{
				0x30, 0x10, 0x04, 0x01, 0x0f, 0x04, 0x08, 0xe6, 0xb7, 0x9c,
				0x9e, 0x6f, 0xd1, 0xef, 0x6f, 0x04, 0x01, 0x42,
			},
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual, err := CreateUnstructuredSSNotify(tc.alertPattern, tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestParseUnstructuredSSNotifyErrors(t *testing.T) {
	bytes, err := CreateUnstructuredSSNotify(7, "hello")
	require.NoError(t, err)

	for i := 0; i < len(bytes); i++ {
		_, err := ParseUnstructuredSSNotify(bytes[:i])
		assert.Error(t, err, "length %d", i)
	}

	withoutAlertPattern := append([]byte{TagSequence, 0x08}, bytes[2:len(bytes)-3]...)
	withoutAlertPattern[1] = byte(len(withoutAlertPattern) - 2)
	notify, err := ParseUnstructuredSSNotify(withoutAlertPattern)
	require.NoError(t, err)
	assert.Equal(t, "hello", notify.Text)
	assert.False(t, notify.HasAlertPattern)
}

func TestDecodeSSRequest(t *testing.T) {
	request, err := DecodeSSRequest(ussdRequest)

	require.NoError(t, err)
	assert.Equal(t, SSRequest{
		MsgType:  MsgRegister,
		InvokeID: 3,
		Opcode:   OpProcessUSSRequest,
		DCS:      DCSDefault,
		USSDText: "**321#",
	}, request)
}

func TestDecodeTruncatedSSRequest(t *testing.T) {
	facilityEnd := 4 + 0x15
	for i := len(ussdRequest); i > 0; i-- {
		_, err := DecodeSSRequest(ussdRequest[:i])
		if i >= facilityEnd {
			assert.NoError(t, err, "length %d", i)
		} else {
			assert.Error(t, err, "length %d", i)
		}
	}
}

func TestDecodeSSRequestFromInvoke(t *testing.T) {
	ussdString, err := Encode7BitUSSD("*100#")
	require.NoError(t, err)
	arguments := append([]byte{TagSequence, byte(5 + len(ussdString)), TagOctetString, 1, DCSDefault, TagOctetString, byte(len(ussdString))}, ussdString...)

	invoke, err := WrapInvoke(arguments, OpProcessUSSRequest, 7)
	require.NoError(t, err)
	facility, err := WrapFacility(invoke)
	require.NoError(t, err)
	msg := append([]byte{PDiscNCSS | 0x20, MsgFacility}, facility...)

	request, err := DecodeSSRequest(msg)

	require.NoError(t, err)
	assert.Equal(t, byte(0x20), request.TransactionID)
	assert.Equal(t, MsgFacility, request.MsgType)
	assert.Equal(t, byte(7), request.InvokeID)
	assert.Equal(t, "*100#", request.USSDText)
}

func TestDecodeInterrogateSS(t *testing.T) {
	invoke, err := WrapInvoke([]byte{TagSequence, 0x03, TagOctetString, 0x01, 0x21}, OpInterrogateSS, 1)
	require.NoError(t, err)
	facility, err := WrapFacility(invoke)
	require.NoError(t, err)

	request, err := DecodeSSRequest(append([]byte{PDiscNCSS, MsgRegister}, facility...))

	require.NoError(t, err)
	assert.Equal(t, OpInterrogateSS, request.Opcode)
	assert.Equal(t, byte(0x21), request.SSCode)
}

func TestDecodeSSRequestErrors(t *testing.T) {
	tt := []struct {
		desc     string
		msg      []byte
		expected error
	}{
		{"too short", []byte{0x0b, 0x3b, 0x1c}, ErrTooShort},
		{"wrong protocol", []byte{0x05, 0x3b, 0x1c, 0x00}, ErrNotSS},
		{"unknown message type", []byte{0x0b, 0x10, 0x1c, 0x00}, ErrUnsupportedMsgType},
		{"unknown IE", []byte{0x0b, 0x3b, 0x55, 0x00}, ErrUnsupportedIE},
		{"unknown component", []byte{0x0b, 0x3b, 0x1c, 0x02, 0xa9, 0x00}, ErrUnsupportedComponent},
		{"unsupported operation", []byte{0x0b, 0x3b, 0x1c, 0x08, 0xa1, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x77}, ErrUnsupportedOperation},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := DecodeSSRequest(tc.msg)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestReleaseComplete(t *testing.T) {
	request, err := DecodeSSRequest([]byte{0x8b, 0x2a, 0x00, 0x00})

	require.NoError(t, err)
	assert.True(t, request.ReleaseComplete)
}

func TestCreateUSSDResponse(t *testing.T) {
	actual, err := CreateUSSDResponse(3, 0x10, "TEST")

	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x9b, 0x2a,
		0x1c, 0x15,
		0xa2, 0x13, 0x02, 0x01, 0x03,
		0x30, 0x0e, 0x02, 0x01, 0x3b,
		0x30, 0x09, 0x04, 0x01, 0x0f, 0x04, 0x04, 0xd4, 0xe2, 0x94, 0x0a,
	}, actual)
}

func TestCreateNotifySS(t *testing.T) {
	actual, err := CreateNotifySS("Bob")

	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x30, 0x14,
		0x81, 0x01, 0x19,
		0xb4, 0x0f, 0xa0, 0x0d, 0xa0, 0x0b,
		0x80, 0x01, 0x0f,
		0x81, 0x01, 0x03,
		0x82, 0x03, 0xc2, 0xb7, 0x18,
	}, actual)

	_, err = CreateNotifySS("")
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestDecodeSSRequestDoesNotPanic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "msg")
		if len(msg) > 1 && rapid.Bool().Draw(t, "ss") {
			msg[0] = PDiscNCSS
			msg[1] = MsgRegister
		}
		DecodeSSRequest(msg)
	})
}
