package lapdm

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/lapd"
)

// Mode selects the side of an entity.
type Mode int

// Sides of the air interface
const (
	ModeMS Mode = iota
	ModeBTS
)

func (m Mode) String() string {
	if m == ModeBTS {
		return "BTS"
	}
	return "MS"
}

func (m Mode) lapdMode() lapd.Mode {
	if m == ModeBTS {
		return lapd.ModeNetwork
	}
	return lapd.ModeUser
}

// Flags of an entity
type Flags uint

// Entity flags
const (
	// FlagEmptyFrame sends a PH-EMPTY-FRAME request when layer 1 is ready but no frame is pending.
	FlagEmptyFrame Flags = 1 << iota
	// FlagPollingOnly queues all frames until layer 1 polls for them.
	FlagPollingOnly
)

// Option configures an entity or channel.
type Option func(*settings)

type settings struct {
	clock    lapd.Clock
	logger   *log.Logger
	name     string
	t200ACCH time.Duration
	t200DCCH time.Duration
	n200     int
}

func newSettings(options []Option) settings {
	s := settings{
		clock:  time.Now,
		logger: log.New(io.Discard),
	}
	for _, option := range options {
		option(&s)
	}
	return s
}

// WithClock sets the clock that is used to arm the timers.
func WithClock(clock lapd.Clock) Option {
	return func(s *settings) {
		s.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithT200 replaces the default T200 values of a channel's entities. Zero keeps the default.
func WithT200(acch, dcch time.Duration) Option {
	return func(s *settings) {
		s.t200ACCH = acch
		s.t200DCCH = dcch
	}
}

// WithN200 sets a fixed N200 instead of the value for the channel type.
func WithN200(n200 int) Option {
	return func(s *settings) {
		s.n200 = n200
	}
}

func withName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

type queuedFrame struct {
	chanNr   gsm.ChanNr
	linkID   gsm.LinkID
	frame    []byte
	l2Offset int
	pad      int
}

func (f queuedFrame) prim() PHPrim {
	return PHPrim{
		Type:   PHData,
		ChanNr: f.chanNr,
		LinkID: f.linkID,
		Data:   Pad(f.frame, f.pad),
	}
}

// datalink binds a LAPD data link to the entity: it frames the outgoing messages and adds the
// channel context to the delivered primitives.
type datalink struct {
	entity *Entity
	link   *lapd.Datalink
	ctx    MsgCtx
	hasCtx bool
	queue  []queuedFrame
}

func (d *datalink) setContext(chanNr gsm.ChanNr, linkID gsm.LinkID) {
	d.ctx = MsgCtx{ChanNr: chanNr, LinkID: linkID, Format: FormatB}
	d.hasCtx = true
	if linkID.SACCH() {
		d.link.SetN201(N201ABSACCH)
	} else {
		d.link.SetN201(N201ABSDCCH)
	}
	if d.entity.n200 > 0 {
		d.link.SetN200(d.entity.n200)
	} else {
		d.link.SetN200(N200ForChan(chanNr, linkID))
	}
}

// SendPH frames a message of the data link and passes it on to layer 1.
func (d *datalink) SendPH(msg lapd.Msg) error {
	l2, err := Encode(msg)
	if err != nil {
		return err
	}
	return d.entity.enqueue(d, d.ctx.ChanNr, d.ctx.LinkID, l2)
}

// ReceiveDL delivers a primitive of the data link to layer 3.
func (d *datalink) ReceiveDL(prim lapd.DLPrim) error {
	return d.entity.deliver(Primitive{
		Kind:    KindRLL,
		Prim:    prim.Prim,
		Op:      prim.Op,
		Ctx:     d.ctx,
		Payload: prim.Payload,
		Cause:   prim.Cause,
	})
}

// Entity is one LAPDm entity of a channel, either on the main channel (DCCH) or on the SACCH.
// It holds the data links for SAPI 0 and SAPI 3.
//
// An Entity is not safe for concurrent use.
type Entity struct {
	mode    Mode
	flags   Flags
	ta      uint8
	txPower uint8
	lower   Lower
	upper   Upper
	logger  *log.Logger
	n200    int

	datalinks   [2]*datalink
	lastDequeue int
	txPending   bool
	lastRA      uint8
}

// NewEntity returns a new entity. Frames and random access requests are sent to lower,
// primitives are delivered to upper.
func NewEntity(mode Mode, t200 time.Duration, lower Lower, upper Upper, options ...Option) *Entity {
	s := newSettings(options)
	logger := s.logger
	if s.name != "" {
		logger = logger.With("entity", s.name)
	}

	result := &Entity{
		mode:   mode,
		lower:  lower,
		upper:  upper,
		logger: logger,
		n200:   s.n200,
	}
	for i, sapi := range []uint8{SAPINormal, SAPISMS} {
		dl := &datalink{entity: result}
		dl.link = lapd.New(lapd.Options{
			K:           1,
			VRange:      8,
			N200:        N200SDCCH,
			N200EstRel:  N200EstRel,
			T200:        t200,
			N201:        N201ABSDCCH,
			MaxFrame:    maxFrameBuffer,
			Reestablish: false,
			Mode:        mode.lapdMode(),
			LPD:         LPDNormal,
			SAPI:        sapi,
			Clock:       s.clock,
			Logger:      logger,
		}, dl, dl)
		result.datalinks[i] = dl
	}
	return result
}

func (e *Entity) datalinkForSAPI(sapi uint8) *datalink {
	switch sapi {
	case SAPINormal:
		return e.datalinks[0]
	case SAPISMS:
		return e.datalinks[1]
	default:
		return nil
	}
}

func (e *Entity) datalinkFor(linkID gsm.LinkID) (*datalink, error) {
	d := e.datalinkForSAPI(linkID.SAPI())
	if d == nil {
		e.logger.Error("no instance for SAPI", "sapi", linkID.SAPI())
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSAPI, linkID.SAPI())
	}
	return d, nil
}

// DatalinkForSAPI returns the data link of the given SAPI, or nil if the SAPI is not supported.
func (e *Entity) DatalinkForSAPI(sapi uint8) *lapd.Datalink {
	d := e.datalinkForSAPI(sapi)
	if d == nil {
		return nil
	}
	return d.link
}

// Mode returns the side of this entity.
func (e *Entity) Mode() Mode {
	return e.mode
}

// SetMode sets the side of this entity and its data links.
func (e *Entity) SetMode(mode Mode) {
	for _, d := range e.datalinks {
		d.link.SetMode(mode.lapdMode())
	}
	e.mode = mode
}

func (e *Entity) Flags() Flags {
	return e.flags
}

func (e *Entity) SetFlags(flags Flags) {
	e.flags = flags
}

// TA returns the timing advance that is indicated to the network on the SACCH.
func (e *Entity) TA() uint8 {
	return e.ta
}

// SetTA sets the timing advance that is indicated to the network on the SACCH.
func (e *Entity) SetTA(ta uint8) {
	e.ta = ta
}

// TxPower returns the MS power level that is indicated to the network on the SACCH.
func (e *Entity) TxPower() uint8 {
	return e.txPower
}

// SetTxPower sets the MS power level that is indicated to the network on the SACCH.
func (e *Entity) SetTxPower(power uint8) {
	e.txPower = power
}

// Queued returns the number of frames that wait for layer 1.
func (e *Entity) Queued() int {
	result := 0
	for _, d := range e.datalinks {
		result += len(d.queue)
	}
	return result
}

// Reset returns all data links to Idle state and drops all queued frames.
func (e *Entity) Reset() {
	for _, d := range e.datalinks {
		d.link.Reset()
		d.queue = nil
	}
	e.txPending = false
}

// Poll handles the timers of all data links.
func (e *Entity) Poll(now time.Time) {
	for _, d := range e.datalinks {
		d.link.Poll(now)
	}
}

// NextDeadline returns the earliest timer expiry of all data links.
func (e *Entity) NextDeadline() (time.Time, bool) {
	var result time.Time
	found := false
	for _, d := range e.datalinks {
		deadline, ok := d.link.NextDeadline()
		if !ok {
			continue
		}
		if !found || deadline.Before(result) {
			result = deadline
			found = true
		}
	}
	return result, found
}

func (e *Entity) deliver(prim Primitive) error {
	e.logger.Debug("deliver to layer 3", "prim", prim)
	if e.upper == nil {
		return nil
	}
	return e.upper.ReceiveRSL(prim)
}

func (e *Entity) mdlError(ctx MsgCtx, cause lapd.MDLCause) {
	err := e.deliver(Primitive{Kind: KindRLL, Prim: lapd.MDLError, Op: lapd.Indication, Ctx: ctx, Cause: cause})
	if err != nil {
		e.logger.Warn("layer 3 rejected MDL error", "cause", cause, "error", err)
	}
}

func (e *Entity) releaseInd(d *datalink) error {
	return e.deliver(Primitive{Kind: KindRLL, Prim: lapd.DLRelease, Op: lapd.Indication, Ctx: d.ctx})
}

// enqueue sends the frame to layer 1, or queues it while layer 1 has not confirmed the previous
// frame or when layer 1 polls for frames.
func (e *Entity) enqueue(d *datalink, chanNr gsm.ChanNr, linkID gsm.LinkID, l2 []byte) error {
	f := queuedFrame{
		chanNr: chanNr,
		linkID: linkID,
		frame:  l2,
		pad:    FrameLen,
	}
	if linkID.SACCH() {
		// layer 1 header with the MS power and the timing advance in use
		f.frame = append([]byte{e.txPower, e.ta}, l2...)
		f.l2Offset = l1HeaderLen
	}

	if e.txPending || e.flags&FlagPollingOnly != 0 {
		d.queue = append(d.queue, f)
		e.logger.Debug("frame queued", "link", linkID, "queued", len(d.queue))
		return nil
	}

	return e.lower.SendPH(f.prim())
}

func (e *Entity) dequeue() (queuedFrame, bool) {
	n := len(e.datalinks)
	i := e.lastDequeue
	for {
		i = (i + 1) % n
		d := e.datalinks[i]
		if len(d.queue) > 0 {
			result := d.queue[0]
			d.queue = d.queue[1:]
			e.lastDequeue = i
			return result, true
		}
		if i == e.lastDequeue {
			return queuedFrame{}, false
		}
	}
}

// Dequeue returns the next queued frame as PH-DATA request. The queues of the data links are
// served round robin. It returns ErrNoFrame if no frame is queued.
func (e *Entity) Dequeue() (PHPrim, error) {
	f, ok := e.dequeue()
	if !ok {
		return PHPrim{}, ErrNoFrame
	}
	return f.prim(), nil
}

// PHRTSInd handles a PH-RTS indication: layer 1 is ready to send the next frame.
func (e *Entity) PHRTSInd() error {
	e.txPending = false

	prim, err := e.Dequeue()
	if err != nil {
		if e.flags&FlagEmptyFrame == 0 {
			return nil
		}
		prim = PHPrim{Type: PHEmptyFrame}
	} else {
		e.txPending = true
	}
	return e.lower.SendPH(prim)
}

// PHDataConf handles the confirmation of a sent frame. The next queued frame is sent.
func (e *Entity) PHDataConf() error {
	return e.PHRTSInd()
}

// updatePending sets N(R) of the queued I frames to the current V(R).
func (e *Entity) updatePending(d *datalink) {
	_, _, vr := d.link.SequenceState()
	for _, f := range d.queue {
		i := f.l2Offset + 1
		if i >= len(f.frame) {
			continue
		}
		ctrl := f.frame[i]
		if CtrlIsI(ctrl) {
			f.frame[i] = CtrlI(vr, CtrlNS(ctrl), CtrlPF(ctrl))
		}
	}
}

// PHDataInd handles a MAC block that was received on the given channel (PH-DATA indication).
func (e *Entity) PHDataInd(data []byte, chanNr gsm.ChanNr, linkID gsm.LinkID) error {
	ctx := MsgCtx{ChanNr: chanNr, LinkID: linkID}
	l2 := data
	var n201 int
	var sapi uint8

	switch {
	case chanNr.CommonChannel():
		// BCCH and CCCH
		ctx.Format = FormatBbis
		n201 = N201Bbis
		sapi = SAPINormal
	case linkID.SACCH():
		if len(l2) < l1HeaderLen+2 {
			return ErrShortFrame
		}
		if e.mode == ModeMS && CtrlIsU(l2[3]) && CtrlUBits(l2[3]) == lapd.UUI {
			ctx.Format = FormatB4
			n201 = N201B4
		} else {
			ctx.Format = FormatB
			n201 = N201ABSACCH
		}
		// layer 1 header
		ctx.TxPowerInd = l2[0] & 0x1f
		ctx.TAInd = l2[1]
		l2 = l2[l1HeaderLen:]
		sapi = AddrSAPI(l2[0])
	default:
		if len(l2) < 1 {
			return ErrShortFrame
		}
		ctx.Format = FormatB
		n201 = N201ABSDCCH
		sapi = AddrSAPI(l2[0])
	}
	e.logger.Debug("received frame", "chan", chanNr, "link", linkID, "format", ctx.Format)

	d := e.datalinkForSAPI(sapi)
	if d == nil {
		e.logger.Info("received frame for unsupported SAPI", "sapi", sapi)
		return fmt.Errorf("%w: %d", ErrUnsupportedSAPI, sapi)
	}

	if ctx.Format == FormatBbis {
		return e.deliver(Primitive{
			Kind:    KindRLL,
			Prim:    lapd.DLUnitData,
			Op:      lapd.Indication,
			Ctx:     ctx,
			Payload: clone(l2),
		})
	}

	ctx.LinkID |= gsm.LinkID(sapi)
	msg, err := Decode(l2, ctx.Format, n201)
	switch {
	case errors.Is(err, ErrExtendedAddress), errors.Is(err, ErrMultiOctetLength):
		e.logger.Info("frame not implemented", "error", err)
		e.mdlError(ctx, lapd.CauseFrmUnimpl)
		return fmt.Errorf("%w: %w", lapd.ErrInvalidFrame, err)
	case err != nil:
		return err
	}

	d.ctx = ctx
	d.hasCtx = true
	err = d.link.Receive(msg)
	e.updatePending(d)
	return err
}

// RachInd handles a received access burst (PH-RACH indication, network side). A CHANNEL
// REQUIRED primitive is delivered to layer 3.
func (e *Entity) RachInd(ra uint8, fn uint32, accessDelay uint8) error {
	return e.deliver(Primitive{
		Kind:             KindChanRqd,
		Ctx:              MsgCtx{ChanNr: gsm.ChanRACH},
		RequestReference: NewRequestReference(ra, fn),
		AccessDelay:      accessDelay,
	})
}

// RachConf handles the confirmation of a sent access burst (PH-RACH confirm, MS side). A
// CHANNEL CONFIRM primitive with the request reference is delivered to layer 3.
func (e *Entity) RachConf(fn uint32) error {
	return e.deliver(Primitive{
		Kind:             KindChanConf,
		Ctx:              MsgCtx{ChanNr: gsm.ChanRACH},
		RequestReference: NewRequestReference(e.lastRA, fn),
	})
}

// ChannelRequest sends an access burst (PH-RACH request).
func (e *Entity) ChannelRequest(req RachRequest) error {
	if req.Offset > 0x7fff {
		return fmt.Errorf("%w: %d", ErrInvalidRACHOffset, req.Offset)
	}
	e.lastRA = req.RA
	return e.lower.SendPH(PHPrim{
		Type:     PHRach,
		ChanNr:   gsm.ChanRACH,
		RA:       req.RA,
		Offset:   req.Offset,
		Combined: req.Combined,
		TA:       -int(req.AccessDelay),
		TxPower:  req.TxPower,
	})
}

// Establish requests the establishment of multiple frame operation on the given link. A
// non-empty l3 message starts the contention resolution, which is only allowed on SAPI 0.
func (e *Entity) Establish(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte) error {
	d, err := e.datalinkFor(linkID)
	if err != nil {
		return err
	}
	d.setContext(chanNr, linkID)

	if len(l3) > 0 && linkID.SAPI() != SAPINormal {
		e.logger.Error("contention resolution is only allowed on SAPI 0", "sapi", linkID.SAPI())
		return errors.Join(
			fmt.Errorf("%w: contention resolution on SAPI %d", ErrUnsupportedSAPI, linkID.SAPI()),
			e.releaseInd(d),
		)
	}
	if len(l3) > d.link.N201() {
		e.logger.Error("frame too large", "len", len(l3), "n201", d.link.N201())
		return errors.Join(
			fmt.Errorf("%w: %d > N201(%d)", ErrFrameTooLarge, len(l3), d.link.N201()),
			e.releaseInd(d),
		)
	}
	return d.link.Establish(l3)
}

// Data requests the acknowledged transfer of the l3 message.
func (e *Entity) Data(linkID gsm.LinkID, l3 []byte) error {
	d, err := e.datalinkFor(linkID)
	if err != nil {
		return err
	}
	if !d.hasCtx {
		return fmt.Errorf("%w: SAPI %d", ErrNoContext, linkID.SAPI())
	}
	if len(l3) == 0 {
		return ErrMissingMessage
	}
	return d.link.Data(l3)
}

// UnitData sends the l3 message in a UI frame. On the SACCH the current timing advance and
// MS power are put into the layer 1 header.
func (e *Entity) UnitData(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte) error {
	d, err := e.datalinkFor(linkID)
	if err != nil {
		return err
	}
	if len(l3) == 0 {
		return ErrMissingMessage
	}

	// the network sends UI frames on the SACCH in format B4, without length octet
	uiBTS := e.mode == ModeBTS && linkID.SACCH()
	overhead := 2
	if linkID.SACCH() {
		overhead = 4
	}
	if !uiBTS {
		overhead++
	}
	if len(l3)+overhead > FrameLen {
		return fmt.Errorf("%w: %d > N201(%d)", ErrFrameTooLarge, len(l3), FrameLen-overhead)
	}
	e.logger.Debug("sending unit data", "tx_power", e.txPower, "ta", e.ta)

	cr := lapd.CRUser2NetCmd
	if e.mode == ModeBTS {
		cr = lapd.CRNet2UserCmd
	}
	l2 := make([]byte, 0, FrameLen)
	l2 = append(l2, Addr(LPDNormal, linkID.SAPI(), cr), CtrlU(lapd.UUI, false))
	if !uiBTS {
		l2 = append(l2, Len(len(l3), false))
	}
	l2 = append(l2, l3...)
	return e.enqueue(d, chanNr, linkID, l2)
}

// Suspend suspends the data link on SAPI 0 for a channel change.
func (e *Entity) Suspend(linkID gsm.LinkID) error {
	if e.mode == ModeBTS {
		return fmt.Errorf("%w: suspend", ErrNotSupported)
	}
	if linkID.SAPI() != SAPINormal {
		return fmt.Errorf("%w: suspend on SAPI %d", ErrUnsupportedSAPI, linkID.SAPI())
	}
	d, err := e.datalinkFor(linkID)
	if err != nil {
		return err
	}
	if !d.hasCtx {
		return fmt.Errorf("%w: SAPI %d", ErrNoContext, linkID.SAPI())
	}
	return d.link.Suspend()
}

// Resume resumes the suspended data link on the new channel and sends the l3 message first.
func (e *Entity) Resume(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte) error {
	return e.resume(chanNr, linkID, l3, false)
}

// Reconnect resumes the suspended data link on the old channel and sends the l3 message first.
func (e *Entity) Reconnect(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte) error {
	return e.resume(chanNr, linkID, l3, true)
}

func (e *Entity) resume(chanNr gsm.ChanNr, linkID gsm.LinkID, l3 []byte, reconnect bool) error {
	if e.mode == ModeBTS {
		return fmt.Errorf("%w: resume", ErrNotSupported)
	}
	d, err := e.datalinkFor(linkID)
	if err != nil {
		return err
	}
	d.setContext(chanNr, linkID)

	if len(l3) == 0 {
		e.logger.Error("resume without message")
		return errors.Join(ErrMissingMessage, e.releaseInd(d))
	}
	if reconnect {
		return d.link.Reconnect(l3)
	}
	return d.link.Resume(l3)
}

// Release releases the data link.
func (e *Entity) Release(linkID gsm.LinkID, mode lapd.ReleaseMode) error {
	d, err := e.datalinkFor(linkID)
	if err != nil {
		return err
	}
	if !d.hasCtx {
		return fmt.Errorf("%w: SAPI %d", ErrNoContext, linkID.SAPI())
	}
	return d.link.Release(mode)
}

func clone(b []byte) []byte {
	result := make([]byte, len(b))
	copy(result, b)
	return result
}
