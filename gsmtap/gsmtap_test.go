package gsmtap

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/l1ctl"
)

func TestSerialize(t *testing.T) {
	hdr := &GSMTAP{
		Type:        TypeUm,
		Timeslot:    2,
		ARFCN:       871,
		SignalDBm:   -60,
		SNR:         12,
		FrameNumber: 0x01020304,
		SubType:     ChannelSDCCH8 | ChannelACCH,
		SubSlot:     5,
	}

	actual, err := Serialize(hdr, []byte{0xaa, 0xbb})

	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x02, 0x04, 0x01, 0x02,
		0x03, 0x67, 0xc4, 0x0c,
		0x01, 0x02, 0x03, 0x04,
		0x88, 0x00, 0x05, 0x00,
		0xaa, 0xbb,
	}, actual)
}

func TestDecodeTruncated(t *testing.T) {
	packet := gopacket.NewPacket([]byte{0x02, 0x04, 0x01}, LayerTypeGSMTAP, gopacket.Default)

	assert.NotNil(t, packet.ErrorLayer())
	assert.Nil(t, packet.Layer(LayerTypeGSMTAP))
}

func TestChannelFor(t *testing.T) {
	tt := []struct {
		chanNr  gsm.ChanNr
		linkID  gsm.LinkID
		channel Channel
		subslot uint8
	}{
		{gsm.ChanNrBCCH(0), 0, ChannelBCCH, 0},
		{gsm.ChanNrPCHAGCH(0), 0, ChannelCCCH, 0},
		{gsm.ChanNrSDCCH4(0, 3), 0, ChannelSDCCH4, 3},
		{gsm.ChanNrSDCCH8(1, 6), gsm.LinkIDSACCH, ChannelSDCCH8 | ChannelACCH, 6},
		{gsm.ChanNrTCHF(2), gsm.LinkIDSACCH, ChannelTCHF | ChannelACCH, 0},
		{gsm.ChanNrTCHH(3, 1), 0, ChannelTCHH, 1},
		{gsm.ChanNrPDCH(7), 0, ChannelPDTCH, 0},
	}
	for _, tc := range tt {
		t.Run(tc.chanNr.String(), func(t *testing.T) {
			channel, subslot := ChannelFor(tc.chanNr, tc.linkID)
			assert.Equal(t, tc.channel, channel)
			assert.Equal(t, tc.subslot, subslot)
		})
	}
	assert.Equal(t, "SDCCH/8/ACCH", (ChannelSDCCH8 | ChannelACCH).String())
}

func TestNewDownlink(t *testing.T) {
	hdr := NewDownlink(l1ctl.InfoDL{
		ChanNr:    gsm.ChanNrSDCCH4(0, 2),
		BandARFCN: gsm.NewBandARFCN(42, false, false),
		FN:        1234,
		RxLevel:   50,
		SNR:       7,
	})

	assert.Equal(t, ChannelSDCCH4, hdr.SubType)
	assert.Equal(t, uint8(2), hdr.SubSlot)
	assert.Equal(t, uint16(42), hdr.ARFCN)
	assert.Equal(t, int8(-60), hdr.SignalDBm)
	assert.Equal(t, uint32(1234), hdr.FrameNumber)
	assert.False(t, hdr.Uplink())

	assert.True(t, NewUplink(gsm.ChanNrRACH(0), 0, gsm.NewBandARFCN(42, false, false), 1).Uplink())
}

func TestPcapWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	writer, err := NewPcapWriter(buf)
	require.NoError(t, err)
	timestamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	writer.clock = func() time.Time { return timestamp }
	hdr := NewPDTCH(l1ctl.GPRSDLBlockInd{FN: 99, TN: 3}, gsm.NewBandARFCN(10, false, false))

	require.NoError(t, writer.Send(hdr, []byte{1, 2, 3}))
	require.NoError(t, writer.Close())

	reader, err := pcapgo.NewReader(buf)
	require.NoError(t, err)
	data, ci, err := reader.ReadPacketData()
	require.NoError(t, err)
	assert.True(t, timestamp.Equal(ci.Timestamp))

	packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
	layer := packet.Layer(LayerTypeGSMTAP)
	require.NotNil(t, layer)
	decoded := layer.(*GSMTAP)
	assert.Equal(t, uint8(Version), decoded.Version)
	assert.Equal(t, ChannelPDTCH, decoded.SubType)
	assert.Equal(t, uint8(3), decoded.Timeslot)
	assert.Equal(t, uint32(99), decoded.FrameNumber)
	assert.Equal(t, []byte{1, 2, 3}, decoded.LayerPayload())
}

func TestUDPSink(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	sink, err := DialUDP(listener.LocalAddr().String())
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Send(&GSMTAP{Type: TypeUm, SubType: ChannelBCCH}, []byte{0x55}))

	listener.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	n, _, err := listener.ReadFrom(buf)
	require.NoError(t, err)

	packet := gopacket.NewPacket(buf[:n], LayerTypeGSMTAP, gopacket.Default)
	layer := packet.Layer(LayerTypeGSMTAP)
	require.NotNil(t, layer)
	assert.Equal(t, ChannelBCCH, layer.(*GSMTAP).SubType)
	assert.Equal(t, []byte{0x55}, layer.(*GSMTAP).LayerPayload())
}

type recordingSink struct {
	payloads [][]byte
	closed   bool
}

func (s *recordingSink) Send(_ *GSMTAP, payload []byte) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sinks := Sinks{a, b}

	require.NoError(t, sinks.Send(&GSMTAP{}, []byte{1}))
	require.NoError(t, sinks.Close())

	assert.Equal(t, [][]byte{{1}}, a.payloads)
	assert.Equal(t, [][]byte{{1}}, b.payloads)
	assert.True(t, a.closed && b.closed)
}

func TestHeaderRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hdr := &GSMTAP{
			Version:     Version,
			Type:        Type(rapid.Byte().Draw(t, "type")),
			Timeslot:    rapid.Uint8Range(0, 7).Draw(t, "ts"),
			ARFCN:       rapid.Uint16().Draw(t, "arfcn"),
			SignalDBm:   rapid.Int8().Draw(t, "signal"),
			SNR:         rapid.Int8().Draw(t, "snr"),
			FrameNumber: rapid.Uint32().Draw(t, "fn"),
			SubType:     Channel(rapid.Byte().Draw(t, "subtype")),
			Antenna:     rapid.Byte().Draw(t, "antenna"),
			SubSlot:     rapid.Uint8Range(0, 7).Draw(t, "subslot"),
		}
		payload := rapid.SliceOfN(rapid.Byte(), 0, 40).Draw(t, "payload")

		data, err := Serialize(hdr, payload)
		require.NoError(t, err)

		decoded := &GSMTAP{}
		require.NoError(t, decoded.DecodeFromBytes(data, gopacket.NilDecodeFeedback))
		assert.Equal(t, hdr.FrameNumber, decoded.FrameNumber)
		assert.Equal(t, hdr.ARFCN, decoded.ARFCN)
		assert.Equal(t, hdr.SignalDBm, decoded.SignalDBm)
		assert.Equal(t, hdr.SNR, decoded.SNR)
		assert.Equal(t, hdr.SubType, decoded.SubType)
		assert.Equal(t, hdr.SubSlot, decoded.SubSlot)
		assert.Equal(t, payload, append([]byte{}, decoded.LayerPayload()...))
	})
}
