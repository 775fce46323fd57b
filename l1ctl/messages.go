package l1ctl

import (
	"encoding/binary"
	"fmt"

	"github.com/ftl/gsm-ms/gsm"
)

// CCCH configurations
const (
	CCCHModeNone uint8 = iota
	CCCHModeNonCombined
	CCCHModeCombined
	CCCHModeCombinedCBCH
)

// Flags of the FBSB request
const (
	FBSBFlagFB0    uint8 = 1 << 0
	FBSBFlagFB1    uint8 = 1 << 1
	FBSBFlagSB     uint8 = 1 << 2
	FBSBFlagFB01SB       = FBSBFlagFB0 | FBSBFlagFB1 | FBSBFlagSB
)

// Audio routing of the TCH mode request
const (
	AudioTxMicrophone  uint8 = 1 << 0
	AudioTxTrafficReq  uint8 = 1 << 1
	AudioRxSpeaker     uint8 = 1 << 2
	AudioRxTrafficInd  uint8 = 1 << 3
	audioModeAllRoutes       = AudioTxMicrophone | AudioTxTrafficReq | AudioRxSpeaker | AudioRxTrafficInd
)

// Reset types
const (
	ResetBoot uint8 = iota // only in RESET_IND
	ResetFull
	ResetSched
)

const (
	TrafficDataLen = 40
	maxMA          = 64
	maxNeighbours  = 64
	fbsbReqLen     = 13
	hoppingLen     = 4 + 2*maxMA
	neighPMReqLen  = 2 + 2*maxNeighbours + maxNeighbours
)

// FBSBReq starts the search for the frequency and synchronization bursts on an ARFCN.
type FBSBReq struct {
	BandARFCN      gsm.BandARFCN
	Timeout        uint16 // TDMA frames
	FreqErrThresh1 uint16
	FreqErrThresh2 uint16
	NumFreqErrAvg  uint8
	Flags          uint8
	SyncInfoIdx    uint8
	CCCHMode       uint8
	RxLevExp       uint8
}

func ParseFBSBReq(bytes []byte) (FBSBReq, error) {
	if err := expectLen(bytes, fbsbReqLen); err != nil {
		return FBSBReq{}, err
	}
	return FBSBReq{
		BandARFCN:      gsm.BandARFCN(binary.BigEndian.Uint16(bytes[0:2])),
		Timeout:        binary.BigEndian.Uint16(bytes[2:4]),
		FreqErrThresh1: binary.BigEndian.Uint16(bytes[4:6]),
		FreqErrThresh2: binary.BigEndian.Uint16(bytes[6:8]),
		NumFreqErrAvg:  bytes[8],
		Flags:          bytes[9],
		SyncInfoIdx:    bytes[10],
		CCCHMode:       bytes[11],
		RxLevExp:       bytes[12],
	}, nil
}

func (FBSBReq) MsgType() MsgType { return MsgFBSBReq }

func (m FBSBReq) Encode(bytes []byte) []byte {
	bytes = binary.BigEndian.AppendUint16(bytes, uint16(m.BandARFCN))
	bytes = binary.BigEndian.AppendUint16(bytes, m.Timeout)
	bytes = binary.BigEndian.AppendUint16(bytes, m.FreqErrThresh1)
	bytes = binary.BigEndian.AppendUint16(bytes, m.FreqErrThresh2)
	return append(bytes, m.NumFreqErrAvg, m.Flags, m.SyncInfoIdx, m.CCCHMode, m.RxLevExp)
}

// FBSBResultFailed is the result of an FBSB confirmation when no cell was found.
const FBSBResultFailed uint8 = 255

// FBSBConf reports the result of the FBSB search.
type FBSBConf struct {
	Info           InfoDL
	InitialFreqErr int16
	Result         uint8
	BSIC           uint8
}

func ParseFBSBConf(bytes []byte) (FBSBConf, error) {
	info, err := ParseInfoDL(bytes)
	if err != nil {
		return FBSBConf{}, err
	}
	bytes = bytes[InfoDLLen:]
	if err := expectLen(bytes, 4); err != nil {
		return FBSBConf{}, err
	}
	return FBSBConf{
		Info:           info,
		InitialFreqErr: int16(binary.BigEndian.Uint16(bytes[0:2])),
		Result:         bytes[2],
		BSIC:           bytes[3],
	}, nil
}

func (FBSBConf) MsgType() MsgType { return MsgFBSBConf }

func (m FBSBConf) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	bytes = binary.BigEndian.AppendUint16(bytes, uint16(m.InitialFreqErr))
	return append(bytes, m.Result, m.BSIC)
}

// Success reports whether a cell was found.
func (m FBSBConf) Success() bool {
	return m.Result == 0
}

// DataInd carries a MAC block that was received on a signalling channel.
type DataInd struct {
	Info InfoDL
	Data [gsm.MacBlockLen]byte
}

func ParseDataInd(bytes []byte) (DataInd, error) {
	info, err := ParseInfoDL(bytes)
	if err != nil {
		return DataInd{}, err
	}
	bytes = bytes[InfoDLLen:]
	if err := expectLen(bytes, gsm.MacBlockLen); err != nil {
		return DataInd{}, err
	}
	result := DataInd{Info: info}
	copy(result.Data[:], bytes)
	return result, nil
}

func (DataInd) MsgType() MsgType { return MsgDataInd }

func (m DataInd) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	return append(bytes, m.Data[:]...)
}

// DataReq carries a MAC block that is sent on a signalling channel.
type DataReq struct {
	Info InfoUL
	Data [gsm.MacBlockLen]byte
}

// NewDataReq copies the given frame into a data request.
func NewDataReq(chanNr gsm.ChanNr, linkID gsm.LinkID, frame []byte) DataReq {
	result := DataReq{Info: InfoUL{ChanNr: chanNr, LinkID: linkID}}
	copy(result.Data[:], frame)
	return result
}

func ParseDataReq(bytes []byte) (DataReq, error) {
	info, err := ParseInfoUL(bytes)
	if err != nil {
		return DataReq{}, err
	}
	bytes = bytes[InfoULLen:]
	if err := expectLen(bytes, gsm.MacBlockLen); err != nil {
		return DataReq{}, err
	}
	result := DataReq{Info: info}
	copy(result.Data[:], bytes)
	return result, nil
}

func (DataReq) MsgType() MsgType { return MsgDataReq }

func (m DataReq) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	return append(bytes, m.Data[:]...)
}

// Conf confirms a data, traffic or RACH request. It carries only the downlink info.
type Conf struct {
	Type MsgType
	Info InfoDL
}

func parseConf(msgType MsgType, bytes []byte) (Conf, error) {
	info, err := ParseInfoDL(bytes)
	if err != nil {
		return Conf{}, err
	}
	return Conf{Type: msgType, Info: info}, nil
}

func (m Conf) MsgType() MsgType { return m.Type }

func (m Conf) Encode(bytes []byte) []byte {
	return m.Info.Encode(bytes)
}

// RACHReq requests an access burst.
type RACHReq struct {
	Info     InfoUL
	RA       uint8
	Combined bool
	Offset   uint16
}

func ParseRACHReq(bytes []byte) (RACHReq, error) {
	info, err := ParseInfoUL(bytes)
	if err != nil {
		return RACHReq{}, err
	}
	bytes = bytes[InfoULLen:]
	if err := expectLen(bytes, 4); err != nil {
		return RACHReq{}, err
	}
	return RACHReq{
		Info:     info,
		RA:       bytes[0],
		Combined: bytes[1] != 0,
		Offset:   binary.BigEndian.Uint16(bytes[2:4]),
	}, nil
}

func (RACHReq) MsgType() MsgType { return MsgRACHReq }

func (m RACHReq) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	bytes = append(bytes, m.RA, boolByte(m.Combined))
	return binary.BigEndian.AppendUint16(bytes, m.Offset)
}

// ExtRACHReq requests an access burst with an 11 bit random access value.
type ExtRACHReq struct {
	Info     InfoUL
	SynchSeq uint8
	Combined bool
	Offset   uint16
	RA11     uint16
}

func ParseExtRACHReq(bytes []byte) (ExtRACHReq, error) {
	info, err := ParseInfoUL(bytes)
	if err != nil {
		return ExtRACHReq{}, err
	}
	bytes = bytes[InfoULLen:]
	if err := expectLen(bytes, 6); err != nil {
		return ExtRACHReq{}, err
	}
	return ExtRACHReq{
		Info:     info,
		SynchSeq: bytes[0],
		Combined: bytes[1] != 0,
		Offset:   binary.BigEndian.Uint16(bytes[2:4]),
		RA11:     binary.BigEndian.Uint16(bytes[4:6]),
	}, nil
}

func (ExtRACHReq) MsgType() MsgType { return MsgExtRACHReq }

func (m ExtRACHReq) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	bytes = append(bytes, m.SynchSeq, boolByte(m.Combined))
	bytes = binary.BigEndian.AppendUint16(bytes, m.Offset)
	return binary.BigEndian.AppendUint16(bytes, m.RA11)
}

// ParReq sets the timing advance and the transmit power.
type ParReq struct {
	Info    InfoUL
	TA      int8
	TxPower uint8
}

func ParseParReq(bytes []byte) (ParReq, error) {
	info, err := ParseInfoUL(bytes)
	if err != nil {
		return ParReq{}, err
	}
	bytes = bytes[InfoULLen:]
	if err := expectLen(bytes, 4); err != nil {
		return ParReq{}, err
	}
	return ParReq{Info: info, TA: int8(bytes[0]), TxPower: bytes[1]}, nil
}

func (ParReq) MsgType() MsgType { return MsgParamReq }

func (m ParReq) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	return append(bytes, byte(m.TA), m.TxPower, 0, 0)
}

// Hopping describes the frequency of a dedicated channel: either a single ARFCN or a hopping
// sequence over the mobile allocation.
type Hopping interface {
	Hopping() bool
	encodeHopping(bytes []byte) []byte
}

// HoppingFixed is a channel on a single ARFCN (h=0).
type HoppingFixed struct {
	BandARFCN gsm.BandARFCN
}

func (HoppingFixed) Hopping() bool { return false }

func (h HoppingFixed) encodeHopping(bytes []byte) []byte {
	bytes = binary.BigEndian.AppendUint16(bytes, uint16(h.BandARFCN))
	return append(bytes, make([]byte, hoppingLen-2)...)
}

// HoppingList is a channel that hops over the mobile allocation (h=1).
type HoppingList struct {
	HSN  uint8
	MAIO uint8
	MA   []gsm.BandARFCN
}

func (HoppingList) Hopping() bool { return true }

func (h HoppingList) encodeHopping(bytes []byte) []byte {
	bytes = append(bytes, h.HSN, h.MAIO, uint8(len(h.MA)), 0)
	for i := 0; i < maxMA; i++ {
		var arfcn gsm.BandARFCN
		if i < len(h.MA) {
			arfcn = h.MA[i]
		}
		bytes = binary.BigEndian.AppendUint16(bytes, uint16(arfcn))
	}
	return bytes
}

func parseHopping(h uint8, bytes []byte) (Hopping, error) {
	if err := expectLen(bytes, hoppingLen); err != nil {
		return nil, err
	}
	switch h {
	case 0:
		return HoppingFixed{BandARFCN: gsm.BandARFCN(binary.BigEndian.Uint16(bytes[0:2]))}, nil
	case 1:
		n := int(bytes[2])
		if n == 0 || n > maxMA {
			return nil, fmt.Errorf("%w: %d channels in the mobile allocation", ErrInvalidHopping, n)
		}
		result := HoppingList{HSN: bytes[0], MAIO: bytes[1], MA: make([]gsm.BandARFCN, n)}
		for i := range result.MA {
			result.MA[i] = gsm.BandARFCN(binary.BigEndian.Uint16(bytes[4+2*i:]))
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: h=%d", ErrInvalidHopping, h)
	}
}

func encodeHopping(bytes []byte, hopping Hopping) []byte {
	if hopping == nil {
		hopping = HoppingFixed{}
	}
	return hopping.encodeHopping(bytes)
}

// DMEstReq establishes a dedicated channel.
type DMEstReq struct {
	Info      InfoUL
	TSC       uint8
	Hopping   Hopping
	TCHMode   uint8
	AudioMode uint8
}

func ParseDMEstReq(bytes []byte) (DMEstReq, error) {
	info, err := ParseInfoUL(bytes)
	if err != nil {
		return DMEstReq{}, err
	}
	bytes = bytes[InfoULLen:]
	if err := expectLen(bytes, 2+hoppingLen+2); err != nil {
		return DMEstReq{}, err
	}
	hopping, err := parseHopping(bytes[1], bytes[2:])
	if err != nil {
		return DMEstReq{}, err
	}
	return DMEstReq{
		Info:      info,
		TSC:       bytes[0],
		Hopping:   hopping,
		TCHMode:   bytes[2+hoppingLen],
		AudioMode: bytes[2+hoppingLen+1],
	}, nil
}

func (DMEstReq) MsgType() MsgType { return MsgDMEstReq }

func (m DMEstReq) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	bytes = append(bytes, m.TSC, hoppingFlag(m.Hopping))
	bytes = encodeHopping(bytes, m.Hopping)
	return append(bytes, m.TCHMode, m.AudioMode)
}

// DMFreqReq changes the frequency of the dedicated channel at the given frame (T1', T2, T3 packed).
type DMFreqReq struct {
	Info    InfoUL
	FN      uint16
	TSC     uint8
	Hopping Hopping
}

func ParseDMFreqReq(bytes []byte) (DMFreqReq, error) {
	info, err := ParseInfoUL(bytes)
	if err != nil {
		return DMFreqReq{}, err
	}
	bytes = bytes[InfoULLen:]
	if err := expectLen(bytes, 4+hoppingLen); err != nil {
		return DMFreqReq{}, err
	}
	hopping, err := parseHopping(bytes[3], bytes[4:])
	if err != nil {
		return DMFreqReq{}, err
	}
	return DMFreqReq{
		Info:    info,
		FN:      binary.BigEndian.Uint16(bytes[0:2]),
		TSC:     bytes[2],
		Hopping: hopping,
	}, nil
}

func (DMFreqReq) MsgType() MsgType { return MsgDMFreqReq }

func (m DMFreqReq) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	bytes = binary.BigEndian.AppendUint16(bytes, m.FN)
	bytes = append(bytes, m.TSC, hoppingFlag(m.Hopping))
	return encodeHopping(bytes, m.Hopping)
}

func hoppingFlag(hopping Hopping) uint8 {
	if hopping != nil && hopping.Hopping() {
		return 1
	}
	return 0
}

// Empty is a message without payload, e.g. DM_REL_REQ.
type Empty struct {
	Type MsgType
}

func (m Empty) MsgType() MsgType { return m.Type }

func (m Empty) Encode(bytes []byte) []byte {
	return bytes
}

// Echo carries arbitrary data that is returned by layer 1.
type Echo struct {
	Type MsgType
	Data []byte
}

func (m Echo) MsgType() MsgType { return m.Type }

func (m Echo) Encode(bytes []byte) []byte {
	return append(bytes, m.Data...)
}

// CCCHMode requests or confirms the CCCH configuration.
type CCCHMode struct {
	Type MsgType
	Mode uint8
}

func ParseCCCHMode(msgType MsgType, bytes []byte) (CCCHMode, error) {
	if err := expectLen(bytes, 4); err != nil {
		return CCCHMode{}, err
	}
	return CCCHMode{Type: msgType, Mode: bytes[0]}, nil
}

func (m CCCHMode) MsgType() MsgType { return m.Type }

func (m CCCHMode) Encode(bytes []byte) []byte {
	return append(bytes, m.Mode, 0, 0, 0)
}

// TCHMode requests or confirms the channel mode and the audio routing of a traffic channel.
type TCHMode struct {
	Type      MsgType
	TCHMode   uint8
	AudioMode uint8
}

func ParseTCHMode(msgType MsgType, bytes []byte) (TCHMode, error) {
	if err := expectLen(bytes, 4); err != nil {
		return TCHMode{}, err
	}
	return TCHMode{Type: msgType, TCHMode: bytes[0], AudioMode: bytes[1] & audioModeAllRoutes}, nil
}

func (m TCHMode) MsgType() MsgType { return m.Type }

func (m TCHMode) Encode(bytes []byte) []byte {
	return append(bytes, m.TCHMode, m.AudioMode, 0, 0)
}

// PMTypeRange is the only type of power measurement request.
const PMTypeRange uint8 = 1

// PMReq requests a power measurement over a range of ARFCNs.
type PMReq struct {
	Type uint8
	From gsm.BandARFCN
	To   gsm.BandARFCN
}

func ParsePMReq(bytes []byte) (PMReq, error) {
	if err := expectLen(bytes, 8); err != nil {
		return PMReq{}, err
	}
	return PMReq{
		Type: bytes[0],
		From: gsm.BandARFCN(binary.BigEndian.Uint16(bytes[4:6])),
		To:   gsm.BandARFCN(binary.BigEndian.Uint16(bytes[6:8])),
	}, nil
}

func (PMReq) MsgType() MsgType { return MsgPMReq }

func (m PMReq) Encode(bytes []byte) []byte {
	bytes = append(bytes, m.Type, 0, 0, 0)
	bytes = binary.BigEndian.AppendUint16(bytes, uint16(m.From))
	return binary.BigEndian.AppendUint16(bytes, uint16(m.To))
}

// PMResult is the measured level of one ARFCN.
type PMResult struct {
	BandARFCN gsm.BandARFCN
	PM        [2]uint8
}

// PMConf carries a batch of power measurement results.
type PMConf struct {
	Results []PMResult
}

func ParsePMConf(bytes []byte) (PMConf, error) {
	if err := expectLen(bytes, 4); err != nil {
		return PMConf{}, err
	}
	var result PMConf
	for len(bytes) >= 4 {
		result.Results = append(result.Results, PMResult{
			BandARFCN: gsm.BandARFCN(binary.BigEndian.Uint16(bytes[0:2])),
			PM:        [2]uint8{bytes[2], bytes[3]},
		})
		bytes = bytes[4:]
	}
	return result, nil
}

func (PMConf) MsgType() MsgType { return MsgPMConf }

func (m PMConf) Encode(bytes []byte) []byte {
	for _, r := range m.Results {
		bytes = binary.BigEndian.AppendUint16(bytes, uint16(r.BandARFCN))
		bytes = append(bytes, r.PM[0], r.PM[1])
	}
	return bytes
}

// Reset requests, indicates or confirms a reset of layer 1.
type Reset struct {
	Type      MsgType
	ResetType uint8
}

func ParseReset(msgType MsgType, bytes []byte) (Reset, error) {
	if err := expectLen(bytes, 4); err != nil {
		return Reset{}, err
	}
	return Reset{Type: msgType, ResetType: bytes[0]}, nil
}

func (m Reset) MsgType() MsgType { return m.Type }

func (m Reset) Encode(bytes []byte) []byte {
	return append(bytes, m.ResetType, 0, 0, 0)
}

// Neighbour is an ARFCN to measure and the timeslot to measure it in.
type Neighbour struct {
	BandARFCN gsm.BandARFCN
	TN        uint8
}

// NeighPMReq sets the list of neighbour cells to measure during dedicated mode.
type NeighPMReq struct {
	Neighbours []Neighbour
}

func ParseNeighPMReq(bytes []byte) (NeighPMReq, error) {
	if err := expectLen(bytes, neighPMReqLen); err != nil {
		return NeighPMReq{}, err
	}
	n := int(bytes[0])
	if n > maxNeighbours {
		return NeighPMReq{}, fmt.Errorf("too many neighbours: %d", n)
	}
	result := NeighPMReq{Neighbours: make([]Neighbour, n)}
	for i := range result.Neighbours {
		result.Neighbours[i] = Neighbour{
			BandARFCN: gsm.BandARFCN(binary.BigEndian.Uint16(bytes[2+2*i:])),
			TN:        bytes[2+2*maxNeighbours+i],
		}
	}
	return result, nil
}

func (NeighPMReq) MsgType() MsgType { return MsgNeighPMReq }

func (m NeighPMReq) Encode(bytes []byte) []byte {
	n := min(len(m.Neighbours), maxNeighbours)
	bytes = append(bytes, uint8(n), 0)
	for i := 0; i < maxNeighbours; i++ {
		var arfcn gsm.BandARFCN
		if i < n {
			arfcn = m.Neighbours[i].BandARFCN
		}
		bytes = binary.BigEndian.AppendUint16(bytes, uint16(arfcn))
	}
	for i := 0; i < maxNeighbours; i++ {
		var tn uint8
		if i < n {
			tn = m.Neighbours[i].TN
		}
		bytes = append(bytes, tn)
	}
	return bytes
}

// NeighPMResult is the measured level of one neighbour cell.
type NeighPMResult struct {
	BandARFCN gsm.BandARFCN
	PM        [2]uint8
	TN        uint8
}

// NeighPMInd carries neighbour cell measurement results.
type NeighPMInd struct {
	Results []NeighPMResult
}

func ParseNeighPMInd(bytes []byte) (NeighPMInd, error) {
	if err := expectLen(bytes, 6); err != nil {
		return NeighPMInd{}, err
	}
	var result NeighPMInd
	for len(bytes) >= 6 {
		result.Results = append(result.Results, NeighPMResult{
			BandARFCN: gsm.BandARFCN(binary.BigEndian.Uint16(bytes[0:2])),
			PM:        [2]uint8{bytes[2], bytes[3]},
			TN:        bytes[4],
		})
		bytes = bytes[6:]
	}
	return result, nil
}

func (NeighPMInd) MsgType() MsgType { return MsgNeighPMInd }

func (m NeighPMInd) Encode(bytes []byte) []byte {
	for _, r := range m.Results {
		bytes = binary.BigEndian.AppendUint16(bytes, uint16(r.BandARFCN))
		bytes = append(bytes, r.PM[0], r.PM[1], r.TN, 0)
	}
	return bytes
}

// TrafficReq carries a speech or data frame towards the network.
type TrafficReq struct {
	Info InfoUL
	Data [TrafficDataLen]byte
}

func ParseTrafficReq(bytes []byte) (TrafficReq, error) {
	info, err := ParseInfoUL(bytes)
	if err != nil {
		return TrafficReq{}, err
	}
	bytes = bytes[InfoULLen:]
	if err := expectLen(bytes, TrafficDataLen); err != nil {
		return TrafficReq{}, err
	}
	result := TrafficReq{Info: info}
	copy(result.Data[:], bytes)
	return result, nil
}

func (TrafficReq) MsgType() MsgType { return MsgTrafficReq }

func (m TrafficReq) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	return append(bytes, m.Data[:]...)
}

// TrafficInd carries a speech or data frame from the network.
type TrafficInd struct {
	Info InfoDL
	Data [TrafficDataLen]byte
}

func ParseTrafficInd(bytes []byte) (TrafficInd, error) {
	info, err := ParseInfoDL(bytes)
	if err != nil {
		return TrafficInd{}, err
	}
	bytes = bytes[InfoDLLen:]
	if err := expectLen(bytes, TrafficDataLen); err != nil {
		return TrafficInd{}, err
	}
	result := TrafficInd{Info: info}
	copy(result.Data[:], bytes)
	return result, nil
}

func (TrafficInd) MsgType() MsgType { return MsgTrafficInd }

func (m TrafficInd) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	return append(bytes, m.Data[:]...)
}

// CryptoReq configures the ciphering of the dedicated channel.
type CryptoReq struct {
	Info InfoUL
	Algo uint8
	Key  []byte
}

func ParseCryptoReq(bytes []byte) (CryptoReq, error) {
	info, err := ParseInfoUL(bytes)
	if err != nil {
		return CryptoReq{}, err
	}
	bytes = bytes[InfoULLen:]
	if err := expectLen(bytes, 1); err != nil {
		return CryptoReq{}, err
	}
	return CryptoReq{
		Info: info,
		Algo: bytes[0],
		Key:  append([]byte{}, bytes[1:]...),
	}, nil
}

func (CryptoReq) MsgType() MsgType { return MsgCryptoReq }

func (m CryptoReq) Encode(bytes []byte) []byte {
	bytes = m.Info.Encode(bytes)
	bytes = append(bytes, m.Algo)
	return append(bytes, m.Key...)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
