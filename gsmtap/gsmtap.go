/*
The package gsmtap wraps received and sent GSM frames into GSMTAP packets, so that they can be inspected
with Wireshark, either live over UDP or from a pcap file.

The GSMTAP header is available as a gopacket layer:

	+---------+---------+---------+---------+
	| version | hdr_len |  type   |timeslot |
	+---------+---------+---------+---------+
	|   ARFCN + flags   | signal  |   SNR   |
	+---------+---------+---------+---------+
	|            frame number               |
	+---------+---------+---------+---------+
	|sub_type | antenna |sub_slot |reserved |
	+---------+---------+---------+---------+
*/
package gsmtap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Port is the well known UDP port of GSMTAP.
const Port = 4729

const (
	// Version of the GSMTAP header
	Version = 2
	// HdrLen is the length of the GSMTAP header in bytes.
	HdrLen = 16
)

var ErrInvalidHeader = errors.New("invalid GSMTAP header")

// Type of the payload
type Type uint8

// Payload types
const (
	TypeUm          Type = 0x01
	TypeAbis        Type = 0x02
	TypeUmBurst     Type = 0x03
	TypeLAPD        Type = 0x0e
	TypeOsmocoreLog Type = 0x10
)

// Channel is the sub type of Um payloads.
type Channel uint8

// Um channels
const (
	ChannelUnknown Channel = 0x00
	ChannelBCCH    Channel = 0x01
	ChannelCCCH    Channel = 0x02
	ChannelRACH    Channel = 0x03
	ChannelAGCH    Channel = 0x04
	ChannelPCH     Channel = 0x05
	ChannelSDCCH   Channel = 0x06
	ChannelSDCCH4  Channel = 0x07
	ChannelSDCCH8  Channel = 0x08
	ChannelTCHF    Channel = 0x09
	ChannelTCHH    Channel = 0x0a
	ChannelPACCH   Channel = 0x0b
	ChannelCBCH52  Channel = 0x0c
	ChannelPDTCH   Channel = 0x0d
	ChannelPTCCH   Channel = 0x0e
	ChannelCBCH51  Channel = 0x0f

	// ChannelACCH marks the associated control channel of a dedicated channel.
	ChannelACCH Channel = 0x80
)

var channelNames = map[Channel]string{
	ChannelUnknown: "UNKNOWN",
	ChannelBCCH:    "BCCH",
	ChannelCCCH:    "CCCH",
	ChannelRACH:    "RACH",
	ChannelAGCH:    "AGCH",
	ChannelPCH:     "PCH",
	ChannelSDCCH:   "SDCCH",
	ChannelSDCCH4:  "SDCCH/4",
	ChannelSDCCH8:  "SDCCH/8",
	ChannelTCHF:    "TCH/F",
	ChannelTCHH:    "TCH/H",
	ChannelPACCH:   "PACCH",
	ChannelCBCH52:  "CBCH/52",
	ChannelPDTCH:   "PDTCH",
	ChannelPTCCH:   "PTCCH",
	ChannelCBCH51:  "CBCH/51",
}

func (c Channel) String() string {
	name, ok := channelNames[c&^ChannelACCH]
	if !ok {
		name = fmt.Sprintf("CHANNEL(%d)", uint8(c&^ChannelACCH))
	}
	if c&ChannelACCH != 0 {
		return name + "/ACCH"
	}
	return name
}

// LayerTypeGSMTAP is registered with gopacket and decodes UDP packets on the GSMTAP port.
var LayerTypeGSMTAP = gopacket.RegisterLayerType(Port, gopacket.LayerTypeMetadata{
	Name:    "GSMTAP",
	Decoder: gopacket.DecodeFunc(decodeGSMTAP),
})

func init() {
	layers.RegisterUDPPortLayerType(layers.UDPPort(Port), LayerTypeGSMTAP)
}

// GSMTAP is the header of a GSMTAP packet.
type GSMTAP struct {
	layers.BaseLayer
	Version     uint8
	Type        Type
	Timeslot    uint8
	ARFCN       uint16 // including the PCS and uplink flags
	SignalDBm   int8
	SNR         int8
	FrameNumber uint32
	SubType     Channel
	Antenna     uint8
	SubSlot     uint8
}

func (g *GSMTAP) LayerType() gopacket.LayerType { return LayerTypeGSMTAP }

func (g *GSMTAP) CanDecode() gopacket.LayerClass { return LayerTypeGSMTAP }

func (g *GSMTAP) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// Uplink reports whether the packet was sent by the mobile station.
func (g *GSMTAP) Uplink() bool {
	return g.ARFCN&0x4000 != 0
}

func (g *GSMTAP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < HdrLen {
		df.SetTruncated()
		return fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(data))
	}
	hdrLen := int(data[1]) * 4
	if hdrLen < HdrLen || hdrLen > len(data) {
		df.SetTruncated()
		return fmt.Errorf("%w: header length %d", ErrInvalidHeader, hdrLen)
	}

	g.Version = data[0]
	g.Type = Type(data[2])
	g.Timeslot = data[3]
	g.ARFCN = binary.BigEndian.Uint16(data[4:6])
	g.SignalDBm = int8(data[6])
	g.SNR = int8(data[7])
	g.FrameNumber = binary.BigEndian.Uint32(data[8:12])
	g.SubType = Channel(data[12])
	g.Antenna = data[13]
	g.SubSlot = data[14]
	g.BaseLayer = layers.BaseLayer{Contents: data[:hdrLen], Payload: data[hdrLen:]}
	return nil
}

func (g *GSMTAP) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(HdrLen)
	if err != nil {
		return err
	}
	version := g.Version
	if version == 0 {
		version = Version
	}
	bytes[0] = version
	bytes[1] = HdrLen / 4
	bytes[2] = byte(g.Type)
	bytes[3] = g.Timeslot
	binary.BigEndian.PutUint16(bytes[4:6], g.ARFCN)
	bytes[6] = byte(g.SignalDBm)
	bytes[7] = byte(g.SNR)
	binary.BigEndian.PutUint32(bytes[8:12], g.FrameNumber)
	bytes[12] = byte(g.SubType)
	bytes[13] = g.Antenna
	bytes[14] = g.SubSlot
	bytes[15] = 0
	return nil
}

func decodeGSMTAP(data []byte, p gopacket.PacketBuilder) error {
	g := &GSMTAP{}
	err := g.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(g)
	return p.NextDecoder(g.NextLayerType())
}
