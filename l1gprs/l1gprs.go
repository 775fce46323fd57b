/*
The package l1gprs keeps track of the GPRS Temporary Block Flows (TBF) on the eight timeslots of a
carrier. It tells layer 1 which timeslots (PDCH) must be active, filters the received downlink
blocks by the TFI of the configured downlink TBFs and builds the L1CTL messages towards the GPRS
MAC layer.

A State is owned by one layer 1 context and is not safe for concurrent use.
*/
package l1gprs

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/ftl/gsm-ms/coding"
	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/l1ctl"
)

// Errors returned by the L1CTL handlers.
var (
	ErrMalformed  = errors.New("malformed message")
	ErrInvalidTN  = errors.New("invalid timeslot")
	ErrInvalidTFI = errors.New("invalid downlink TFI")
	ErrNoTBF      = errors.New("no TBF configured on this PDCH")
)

const (
	// PDCHCount is the number of timeslots of a carrier.
	PDCHCount = 8
	// MaxTFI is the highest valid TFI.
	MaxTFI = 31
	// StartFNNone activates a TBF with the next frame.
	StartFNNone uint32 = 0xffffffff
)

// RLC/MAC block types (3GPP TS 44.060 10.4.7)
const (
	blockTypeData       = 0x00
	blockTypeControl    = 0x01
	blockTypeControlOpt = 0x02
)

// PDCH is a timeslot that carries packet data.
type PDCH struct {
	TN                uint8
	ULTBFCount        int
	DLTBFCount        int
	PendingULTBFCount int
	PendingDLTBFCount int
	// DLTFIMask has bit n set if a downlink TBF with TFI n uses this PDCH.
	DLTFIMask uint32
}

// UseCount is the number of active and pending TBFs that use the PDCH.
func (p PDCH) UseCount() int {
	return p.ULTBFCount + p.DLTBFCount + p.PendingULTBFCount + p.PendingDLTBFCount
}

// Active reports whether an active TBF uses the PDCH.
func (p PDCH) Active() bool {
	return p.ULTBFCount+p.DLTBFCount > 0
}

// TBF is a Temporary Block Flow, identified by its reference and direction.
type TBF struct {
	Ref      uint8
	Uplink   bool
	Slotmask uint8
	DLTFI    uint8
}

func (t TBF) String() string {
	direction := 'D'
	if t.Uplink {
		direction = 'U'
	}
	return fmt.Sprintf("%cL-TBF#%03d", direction, t.Ref)
}

func (t TBF) uses(tn uint8) bool {
	return t.Slotmask&(1<<tn) != 0
}

func (t TBF) sameAs(uplink bool, ref uint8) bool {
	return t.Uplink == uplink && t.Ref == ref
}

// PendingTBF is a TBF that becomes active at its starting time.
type PendingTBF struct {
	TBF
	StartFN uint32
}

func (p PendingTBF) due(fn uint32) bool {
	return p.StartFN == StartFNNone || gsm.FNCompare(fn, p.StartFN) >= 0
}

// PDCHChangedFunc is called when a PDCH becomes used (active=true) or unused (active=false).
type PDCHChangedFunc func(tn uint8, active bool)

// Option configures a State.
type Option func(*State)

// WithLogger sets the logger of the State. The default discards everything.
func WithLogger(logger *log.Logger) Option {
	return func(s *State) {
		s.logger = logger
	}
}

// WithPDCHChanged sets the callback that is called on each transition of a PDCH between used
// and unused.
func WithPDCHChanged(f PDCHChangedFunc) Option {
	return func(s *State) {
		s.pdchChanged = f
	}
}

// State tracks the TBFs of one MS.
type State struct {
	pdch    [PDCHCount]PDCH
	tbfs    []TBF
	pending []PendingTBF

	pdchChanged PDCHChangedFunc
	logger      *log.Logger
}

// New returns a State without any TBF.
func New(options ...Option) *State {
	result := &State{
		logger: log.New(io.Discard),
	}
	for i := range result.pdch {
		result.pdch[i].TN = uint8(i)
	}
	for _, option := range options {
		option(result)
	}
	return result
}

// PDCH returns a copy of the state of the given timeslot.
func (s *State) PDCH(tn uint8) PDCH {
	return s.pdch[tn&0x07]
}

// PDCHUseCount returns the number of active and pending TBFs that use the given timeslot.
func (s *State) PDCHUseCount(tn uint8) int {
	return s.PDCH(tn).UseCount()
}

// TBFs returns the active TBFs in the order of their activation.
func (s *State) TBFs() []TBF {
	return slices.Clone(s.tbfs)
}

// Pending returns the TBF configurations that wait for their starting time.
func (s *State) Pending() []PendingTBF {
	return slices.Clone(s.pending)
}

// Reset releases all TBFs.
func (s *State) Reset() {
	s.transition(func() {
		for _, p := range s.pending {
			s.unlinkPending(p)
		}
		for _, t := range s.tbfs {
			s.unlink(t)
		}
		s.pending = nil
		s.tbfs = nil
	})
}

// transition applies a change of the TBF configuration and reports the PDCHs that became used or
// unused through it. Intermediate counts inside the change are not reported.
func (s *State) transition(change func()) {
	var before [PDCHCount]int
	for i, pdch := range s.pdch {
		before[i] = pdch.UseCount()
	}

	change()

	for i, pdch := range s.pdch {
		wasUsed := before[i] > 0
		isUsed := pdch.UseCount() > 0
		if wasUsed == isUsed {
			continue
		}
		s.logger.Info("PDCH changed", "tn", i, "active", isUsed)
		if s.pdchChanged != nil {
			s.pdchChanged(uint8(i), isUsed)
		}
	}
}

func (s *State) link(t TBF) {
	for i := range s.pdch {
		pdch := &s.pdch[i]
		if !t.uses(pdch.TN) {
			continue
		}
		if t.Uplink {
			pdch.ULTBFCount++
		} else {
			pdch.DLTBFCount++
			pdch.DLTFIMask |= 1 << t.DLTFI
		}
		s.logger.Debug("linked", "tn", pdch.TN, "tbf", t)
	}
}

func (s *State) unlink(t TBF) {
	for i := range s.pdch {
		pdch := &s.pdch[i]
		if !t.uses(pdch.TN) {
			continue
		}
		if t.Uplink {
			if pdch.ULTBFCount == 0 {
				panic(fmt.Sprintf("PDCH-%d: no uplink TBF to unlink", pdch.TN))
			}
			pdch.ULTBFCount--
		} else {
			if pdch.DLTBFCount == 0 {
				panic(fmt.Sprintf("PDCH-%d: no downlink TBF to unlink", pdch.TN))
			}
			pdch.DLTBFCount--
			pdch.DLTFIMask &^= 1 << t.DLTFI
		}
		s.logger.Debug("unlinked", "tn", pdch.TN, "tbf", t)
	}
}

func (s *State) linkPending(p PendingTBF) {
	for i := range s.pdch {
		pdch := &s.pdch[i]
		if !p.uses(pdch.TN) {
			continue
		}
		if p.Uplink {
			pdch.PendingULTBFCount++
		} else {
			pdch.PendingDLTBFCount++
		}
	}
}

func (s *State) unlinkPending(p PendingTBF) {
	for i := range s.pdch {
		pdch := &s.pdch[i]
		if !p.uses(pdch.TN) {
			continue
		}
		if p.Uplink {
			pdch.PendingULTBFCount--
		} else {
			pdch.PendingDLTBFCount--
		}
	}
}

func (s *State) removePending(uplink bool, ref uint8) bool {
	i := slices.IndexFunc(s.pending, func(p PendingTBF) bool { return p.sameAs(uplink, ref) })
	if i == -1 {
		return false
	}
	s.unlinkPending(s.pending[i])
	s.pending = slices.Delete(s.pending, i, i+1)
	return true
}

func (s *State) removeTBF(uplink bool, ref uint8) bool {
	i := slices.IndexFunc(s.tbfs, func(t TBF) bool { return t.sameAs(uplink, ref) })
	if i == -1 {
		return false
	}
	s.unlink(s.tbfs[i])
	s.tbfs = slices.Delete(s.tbfs, i, i+1)
	return true
}

// configure handles a validated TBF configuration. A new configuration supersedes a pending one
// with the same reference, an empty slotmask releases the TBF immediately.
func (s *State) configure(t TBF, startFN uint32) {
	s.transition(func() {
		if s.removePending(t.Uplink, t.Ref) {
			s.logger.Info("pending configuration superseded", "tbf", t)
		}
		if t.Slotmask == 0 {
			if s.removeTBF(t.Uplink, t.Ref) {
				s.logger.Info("released", "tbf", t)
			} else {
				s.logger.Warn("release of unknown TBF", "tbf", t)
			}
			return
		}
		p := PendingTBF{TBF: t, StartFN: startFN}
		s.pending = append(s.pending, p)
		s.linkPending(p)
		s.logger.Info("pending", "tbf", t, "slotmask", fmt.Sprintf("0x%02x", t.Slotmask), "start_fn", startFN)
	})
}

// HandleULTBFConfigReq handles the payload of an L1CTL_GPRS_UL_TBF_CFG_REQ message.
func (s *State) HandleULTBFConfigReq(payload []byte) error {
	req, err := l1ctl.ParseGPRSULTBFCfgReq(payload)
	if err != nil {
		s.logger.Error("malformed uplink TBF config", "error", err)
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	s.logger.Info("uplink TBF config", "tbf_ref", req.TBFRef, "slotmask", fmt.Sprintf("0x%02x", req.Slotmask))
	s.configure(TBF{Ref: req.TBFRef, Uplink: true, Slotmask: req.Slotmask}, req.StartFN)
	return nil
}

// HandleDLTBFConfigReq handles the payload of an L1CTL_GPRS_DL_TBF_CFG_REQ message.
func (s *State) HandleDLTBFConfigReq(payload []byte) error {
	req, err := l1ctl.ParseGPRSDLTBFCfgReq(payload)
	if err != nil {
		s.logger.Error("malformed downlink TBF config", "error", err)
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	s.logger.Info("downlink TBF config", "tbf_ref", req.TBFRef, "slotmask", fmt.Sprintf("0x%02x", req.Slotmask), "dl_tfi", req.DLTFI)
	if req.DLTFI > MaxTFI {
		s.logger.Error("invalid downlink TFI", "dl_tfi", req.DLTFI)
		return fmt.Errorf("%w: %d", ErrInvalidTFI, req.DLTFI)
	}
	s.configure(TBF{Ref: req.TBFRef, Uplink: false, Slotmask: req.Slotmask, DLTFI: req.DLTFI}, req.StartFN)
	return nil
}

// Tick activates the pending TBFs whose starting time is reached in the given frame. An active
// TBF with the same reference is replaced.
func (s *State) Tick(fn uint32) {
	if !slices.ContainsFunc(s.pending, func(p PendingTBF) bool { return p.due(fn) }) {
		return
	}
	s.transition(func() {
		remaining := s.pending[:0]
		due := make([]PendingTBF, 0, len(s.pending))
		for _, p := range s.pending {
			if p.due(fn) {
				due = append(due, p)
			} else {
				remaining = append(remaining, p)
			}
		}
		s.pending = remaining

		for _, p := range due {
			s.unlinkPending(p)
			if s.removeTBF(p.Uplink, p.Ref) {
				s.logger.Info("replaced", "tbf", p.TBF)
			}
			s.tbfs = append(s.tbfs, p.TBF)
			s.link(p.TBF)
			s.logger.Info("activated", "tbf", p.TBF, "fn", fn)
		}
	})
}

// ULBlockReq is an uplink block that shall be sent on a PDCH.
type ULBlockReq struct {
	FN   uint32
	TN   uint8
	Data []byte
}

// HandleULBlockReq handles the payload of an L1CTL_GPRS_UL_BLOCK_REQ message.
func (s *State) HandleULBlockReq(payload []byte) (ULBlockReq, error) {
	req, err := l1ctl.ParseGPRSULBlockReq(payload)
	if err != nil {
		s.logger.Error("malformed UL BLOCK.req", "error", err)
		return ULBlockReq{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if req.TN >= PDCHCount {
		s.logger.Error("malformed UL BLOCK.req", "tn", req.TN)
		return ULBlockReq{}, fmt.Errorf("%w: %d", ErrInvalidTN, req.TN)
	}
	s.logger.Debug("UL BLOCK.req", "tn", req.TN, "fn", req.FN, "len", len(req.Data))

	// control blocks of a downlink TBF are sent without an uplink TBF
	if !s.pdch[req.TN].Active() {
		s.logger.Error("UL BLOCK.req on PDCH without TBF", "tn", req.TN)
		return ULBlockReq{}, fmt.Errorf("%w: TS%d", ErrNoTBF, req.TN)
	}
	return ULBlockReq(req), nil
}

// DLBlockInd is a downlink block that was received on a PDCH.
type DLBlockInd struct {
	FN   uint32
	TN   uint8
	Meas l1ctl.GPRSMeas
	Data []byte
}

// IsPTCCH reports whether the block was received on the PTCCH/D (3GPP TS 45.002 table 6).
func (ind DLBlockInd) IsPTCCH() bool {
	return ind.FN%104 == 12
}

// HandleDLBlockInd builds the L1CTL_GPRS_DL_BLOCK_IND message for a received downlink block. It
// also returns the USF of the block, or l1ctl.USFNone if the block carries no USF. The payload is
// only included if the block is addressed to one of the downlink TBFs on this PDCH.
func (s *State) HandleDLBlockInd(ind DLBlockInd) ([]byte, uint8, error) {
	if ind.TN >= PDCHCount {
		s.logger.Error("malformed DL BLOCK.ind", "tn", ind.TN)
		return nil, l1ctl.USFNone, fmt.Errorf("%w: %d", ErrInvalidTN, ind.TN)
	}
	s.Tick(ind.FN)
	pdch := s.pdch[ind.TN]
	s.logger.Debug("DL BLOCK.ind", "tn", ind.TN, "fn", ind.FN, "ptcch", ind.IsPTCCH(), "len", len(ind.Data))

	if !pdch.Active() {
		s.logger.Error("DL BLOCK.ind on PDCH without TBF", "tn", ind.TN)
		return nil, l1ctl.USFNone, fmt.Errorf("%w: TS%d", ErrNoTBF, ind.TN)
	}

	result := l1ctl.GPRSDLBlockInd{
		FN:   ind.FN,
		TN:   ind.TN,
		Meas: ind.Meas,
		USF:  l1ctl.USFNone,
	}
	switch {
	case len(ind.Data) == 0:
	case ind.IsPTCCH():
		result.Data = ind.Data
	default:
		cs := coding.CodingSchemeForLen(len(ind.Data))
		if cs == coding.CSNone {
			s.logger.Error("cannot determine the coding scheme", "tn", ind.TN, "len", len(ind.Data))
			break
		}
		result.USF = ind.Data[0] & 0x07
		if s.acceptDLBlock(pdch, ind.Data) {
			result.Data = ind.Data
		}
	}

	return l1ctl.Marshal(result, 0), result.USF, nil
}

func (s *State) acceptDLBlock(pdch PDCH, data []byte) bool {
	var tfi uint8
	switch data[0] >> 6 {
	case blockTypeData:
		tfi = (data[1] >> 1) & 0x1f
	case blockTypeControlOpt:
		tfi = (data[2] >> 1) & 0x1f
	case blockTypeControl:
		return true
	default:
		s.logger.Info("downlink block with unknown payload type", "tn", pdch.TN, "type", data[0]>>6)
		return false
	}
	return pdch.DLTFIMask&(1<<tfi) != 0
}

// HandleRTSInd builds the L1CTL_GPRS_RTS_IND message for an uplink block opportunity. It returns
// no message if no uplink TBF uses the PDCH.
func (s *State) HandleRTSInd(fn uint32, tn uint8, usf uint8) ([]byte, error) {
	if tn >= PDCHCount {
		s.logger.Error("malformed RTS.ind", "tn", tn)
		return nil, fmt.Errorf("%w: %d", ErrInvalidTN, tn)
	}
	s.Tick(fn)
	if s.pdch[tn].ULTBFCount == 0 {
		return nil, nil
	}
	s.logger.Debug("RTS.ind", "tn", tn, "fn", fn, "usf", usf)
	return l1ctl.Marshal(l1ctl.GPRSRTSInd{FN: fn, TN: tn, USF: usf}, 0), nil
}
