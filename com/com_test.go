package com

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/l1ctl"
)

func TestLengthPrefixed_Decode(t *testing.T) {
	tt := []struct {
		desc             string
		in               []byte
		expectedMsg      []byte
		expectedConsumed int
	}{
		{"empty", []byte{}, nil, 0},
		{"incomplete length", []byte{0x00}, nil, 0},
		{"incomplete message", []byte{0x00, 0x03, 0x01}, nil, 0},
		{"complete", []byte{0x00, 0x02, 0x0e, 0x00}, []byte{0x0e, 0x00}, 4},
		{"trailing data", []byte{0x00, 0x01, 0x0e, 0x00, 0x05}, []byte{0x0e}, 3},
		{"zero length", []byte{0x00, 0x00, 0x00, 0x01}, nil, 2},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			msg, consumed := LengthPrefixed{}.Decode(tc.in)
			assert.Equal(t, tc.expectedMsg, msg)
			assert.Equal(t, tc.expectedConsumed, consumed)
		})
	}
}

func TestLengthPrefixed_Encode(t *testing.T) {
	frame, err := LengthPrefixed{}.Encode([]byte{0x0d, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x04, 0x0d, 0x00, 0x00, 0x00}, frame)

	_, err = LengthPrefixed{}.Encode(make([]byte, 0x10000))
	assert.ErrorIs(t, err, ErrFrameTooLong)
}

func TestReadLoop_CloseDevice(t *testing.T) {
	device := NewInMemory()
	frames := readLoop(device, LengthPrefixed{}, discardLogger())
	device.Close()

	_, valid := <-frames

	assert.False(t, valid)
}

func TestReadLoop_SplitFrames(t *testing.T) {
	device := NewInMemory()
	frames := readLoop(device, LengthPrefixed{}, discardLogger())

	go func() {
		device.PrepareRead([]byte{0x00, 0x02, 0x07})
		time.Sleep(20 * time.Millisecond)
		device.PrepareRead([]byte{0x00, 0x00, 0x01, 0x0e})
	}()

	first, valid := <-frames
	assert.True(t, valid)
	assert.Equal(t, []byte{0x07, 0x00}, first)

	second, valid := <-frames
	assert.True(t, valid)
	assert.Equal(t, []byte{0x0e}, second)

	device.Close()
	_, valid = <-frames
	assert.False(t, valid)
}

func TestLink_CloseDevice(t *testing.T) {
	device := NewInMemory()
	link := New(device)

	device.Close()
	link.WaitUntilClosed()

	assert.True(t, link.Closed())
	_, err := link.Request(context.Background(), l1ctl.Reset{Type: l1ctl.MsgResetReq, ResetType: l1ctl.ResetFull})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, link.Send(l1ctl.Empty{Type: l1ctl.MsgDMRelReq}), ErrClosed)
}

func TestLink_Indications(t *testing.T) {
	device := NewInMemory()
	link := New(device)

	recorder := new(messageRecorder)
	link.AddIndication(l1ctl.MsgDataInd, recorder.Record)
	link.AddIndication(l1ctl.MsgResetInd, recorder.Record)
	var unhandled []byte
	link.SetUnhandled(func(msg []byte) { unhandled = msg })

	dataInd := l1ctl.Marshal(l1ctl.DataInd{Info: l1ctl.InfoDL{ChanNr: gsm.ChanBCCH, FN: 51}}, 0)
	resetInd := l1ctl.Marshal(l1ctl.Reset{Type: l1ctl.MsgResetInd, ResetType: l1ctl.ResetBoot}, 0)
	echoConf := l1ctl.Marshal(l1ctl.Echo{Type: l1ctl.MsgEchoConf, Data: []byte{1}}, 0)

	require.NoError(t, device.PrepareMessages(LengthPrefixed{}, dataInd, []byte{0x01}, resetInd, echoConf))
	device.CloseWhenEmpty(true)
	link.WaitUntilClosed()

	assert.Equal(t, [][]byte{dataInd, resetInd}, recorder.Messages())
	assert.Equal(t, echoConf, unhandled)
}

func TestLink_SimpleRequest(t *testing.T) {
	device := NewInMemory()
	defer device.Close()
	link := New(device)
	go func() {
		device.WaitUntilWritten()
		time.Sleep(10 * time.Millisecond)
		device.PrepareMessages(LengthPrefixed{}, l1ctl.Marshal(l1ctl.Reset{Type: l1ctl.MsgResetConf, ResetType: l1ctl.ResetFull}, 0))
	}()

	response, err := link.Request(context.Background(), l1ctl.Reset{Type: l1ctl.MsgResetReq, ResetType: l1ctl.ResetFull})

	require.NoError(t, err)
	assert.Equal(t, []l1ctl.Message{l1ctl.Reset{Type: l1ctl.MsgResetConf, ResetType: l1ctl.ResetFull}}, response)
	assert.Equal(t, [][]byte{{0x0d, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}}, device.WrittenMessages(LengthPrefixed{}))
}

func TestLink_PowerMeasurementUntilDone(t *testing.T) {
	device := NewInMemory()
	defer device.Close()
	link := New(device)
	first := l1ctl.PMConf{Results: []l1ctl.PMResult{{BandARFCN: 1, PM: [2]uint8{10, 0}}}}
	last := l1ctl.PMConf{Results: []l1ctl.PMResult{{BandARFCN: 2, PM: [2]uint8{20, 0}}}}
	go func() {
		device.WaitUntilWritten()
		time.Sleep(10 * time.Millisecond)
		device.PrepareMessages(LengthPrefixed{}, l1ctl.Marshal(first, 0))
		time.Sleep(10 * time.Millisecond)
		device.PrepareMessages(LengthPrefixed{}, l1ctl.Marshal(last, l1ctl.FlagDone))
	}()

	response, err := link.Request(context.Background(), l1ctl.PMReq{Type: l1ctl.PMTypeRange, From: 1, To: 2})

	require.NoError(t, err)
	assert.Equal(t, []l1ctl.Message{first, last}, response)
}

func TestLink_IndicationDuringRequest(t *testing.T) {
	device := NewInMemory()
	defer device.Close()
	link := New(device)
	recorder := new(messageRecorder)
	link.AddIndication(l1ctl.MsgDataInd, recorder.Record)
	dataInd := l1ctl.Marshal(l1ctl.DataInd{Info: l1ctl.InfoDL{ChanNr: gsm.ChanBCCH}}, 0)
	fbsbConf := l1ctl.FBSBConf{BSIC: 0x3f}
	go func() {
		device.WaitUntilWritten()
		time.Sleep(10 * time.Millisecond)
		device.PrepareMessages(LengthPrefixed{}, dataInd, l1ctl.Marshal(fbsbConf, 0))
	}()

	response, err := link.Request(context.Background(), l1ctl.FBSBReq{BandARFCN: 871, Flags: l1ctl.FBSBFlagFB01SB})

	require.NoError(t, err)
	assert.Equal(t, []l1ctl.Message{fbsbConf}, response)
	assert.Equal(t, [][]byte{dataInd}, recorder.Messages())
}

func TestLink_RequestWithoutConfirmation(t *testing.T) {
	device := NewInMemory()
	defer device.Close()
	link := New(device)

	response, err := link.Request(context.Background(), l1ctl.Empty{Type: l1ctl.MsgDMRelReq})

	assert.NoError(t, err)
	assert.Empty(t, response)
	assert.Equal(t, [][]byte{{0x12, 0x00, 0x00, 0x00}}, device.WrittenMessages(LengthPrefixed{}))
}

func TestLink_CancelRequest(t *testing.T) {
	device := NewInMemory()
	defer device.Close()
	ctx, cancel := context.WithCancel(context.Background())
	link := New(device)
	go func() {
		device.WaitUntilWritten()
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	response, err := link.Request(ctx, l1ctl.Echo{Type: l1ctl.MsgEchoReq})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, response)
}

func TestLink_Send(t *testing.T) {
	device := NewInMemory()
	defer device.Close()
	link := New(device)

	err := link.Send(l1ctl.Empty{Type: l1ctl.MsgDMRelReq})
	require.NoError(t, err)
	device.WaitUntilWritten()

	assert.Equal(t, [][]byte{{0x12, 0x00, 0x00, 0x00}}, device.WrittenMessages(LengthPrefixed{}))
}

type messageRecorder struct {
	lock     sync.Mutex
	messages [][]byte
}

func (r *messageRecorder) Record(msg []byte) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *messageRecorder) Messages() [][]byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.messages
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
