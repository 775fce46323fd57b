package lapd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Clock returns the current time. It is used to arm the timers.
type Clock func() time.Time

// Options configure a data link.
type Options struct {
	// K is the window size, the number of outstanding I frames.
	K uint8
	// VRange is the range of the sequence numbers (8 for LAPDm, 128 for LAPD).
	VRange uint8
	// N200 is the maximum number of retransmissions in timer recovery state.
	N200 int
	// N200EstRel is the maximum number of retransmissions of SABM and DISC.
	N200EstRel int
	T200       time.Duration
	// T203 is the idle supervision timer, 0 disables it.
	T203 time.Duration
	// N201 is the maximum length of the information field.
	N201 int
	// MaxFrame is the maximum size of a reassembled layer 3 message.
	MaxFrame    int
	Reestablish bool
	UseSABME    bool
	Mode        Mode
	LPD         uint8
	SAPI        uint8
	TEI         uint8
	Clock       Clock
	Logger      *log.Logger
}

// DefaultOptions returns the defaults of Q.921 with a LAPDm sized window.
func DefaultOptions() Options {
	return Options{
		K:           1,
		VRange:      8,
		N200:        3,
		N200EstRel:  3,
		T200:        1 * time.Second,
		T203:        10 * time.Second,
		N201:        20,
		MaxFrame:    200,
		Reestablish: true,
	}
}

type crValues struct {
	loc2remCmd  uint8
	loc2remResp uint8
	rem2locCmd  uint8
	rem2locResp uint8
}

func crForMode(mode Mode) crValues {
	if mode == ModeNetwork {
		return crValues{
			loc2remCmd:  CRNet2UserCmd,
			loc2remResp: CRNet2UserResp,
			rem2locCmd:  CRUser2NetCmd,
			rem2locResp: CRUser2NetResp,
		}
	}
	return crValues{
		loc2remCmd:  CRUser2NetCmd,
		loc2remResp: CRUser2NetResp,
		rem2locCmd:  CRNet2UserCmd,
		rem2locResp: CRNet2UserResp,
	}
}

type timer struct {
	running  bool
	deadline time.Time
}

func (t timer) expired(now time.Time) bool {
	return t.running && !now.Before(t.deadline)
}

type histEntry struct {
	used    bool
	payload []byte
	more    bool
}

// Datalink is the state machine of one data link (one SAPI on one channel).
//
// A Datalink is not safe for concurrent use. The owner serializes all calls, usually from the
// layer 1 event loop.
type Datalink struct {
	opts   Options
	cr     crValues
	lower  PHSender
	upper  Upper
	clock  Clock
	logger *log.Logger

	k         uint8
	vRange    uint8
	rangeHist uint8

	state      State
	vSend      uint8
	vAck       uint8
	vRecv      uint8
	seqErrCond int
	ownBusy    bool
	peerBusy   bool
	retransCtr int

	t200 timer
	t203 timer

	sendQueue  [][]byte
	sendBuffer []byte
	sendOut    int
	hist       []histEntry

	rcvBuffer []byte
	rcvActive bool
	contRes   []byte
}

// New returns a new data link in Idle state. Frames are sent to lower, primitives are delivered
// to upper.
func New(opts Options, lower PHSender, upper Upper) *Datalink {
	if opts.VRange == 0 {
		opts.VRange = 8
	}
	if opts.K > opts.VRange-1 {
		opts.K = opts.VRange - 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	result := &Datalink{
		opts:      opts,
		cr:        crForMode(opts.Mode),
		lower:     lower,
		upper:     upper,
		clock:     opts.Clock,
		logger:    opts.Logger,
		k:         opts.K,
		vRange:    opts.VRange,
		rangeHist: histRange(opts.K),
		state:     Null,
	}
	result.hist = make([]histEntry, result.rangeHist)
	result.logger.Debug("init data link", "sapi", opts.SAPI, "range", result.vRange, "k", result.k, "history", result.rangeHist)
	result.newState(Idle)
	return result
}

// histRange is the smallest power of two that holds k+1 entries.
func histRange(k uint8) uint8 {
	result := uint8(1)
	for int(result) < int(k)+1 {
		result <<= 1
	}
	return result
}

// WithLogger sets the logger of this data link.
func (d *Datalink) WithLogger(logger *log.Logger) *Datalink {
	d.logger = logger
	d.opts.Logger = logger
	return d
}

// SetMode sets the side of the link.
func (d *Datalink) SetMode(mode Mode) {
	d.opts.Mode = mode
	d.cr = crForMode(mode)
}

// SetN201 sets the maximum length of the information field of sent I frames.
func (d *Datalink) SetN201(n201 int) {
	d.opts.N201 = n201
}

// N201 returns the maximum length of the information field of sent I frames.
func (d *Datalink) N201() int {
	return d.opts.N201
}

// SetN200 sets the maximum number of retransmissions in timer recovery state.
func (d *Datalink) SetN200(n200 int) {
	d.opts.N200 = n200
}

// N200 returns the maximum number of retransmissions.
func (d *Datalink) N200() int {
	return d.opts.N200
}

// Mode returns the side of the link.
func (d *Datalink) Mode() Mode {
	return d.opts.Mode
}

// SAPI returns the service access point identifier of this data link.
func (d *Datalink) SAPI() uint8 {
	return d.opts.SAPI
}

// State returns the current state.
func (d *Datalink) State() State {
	return d.state
}

// SequenceState returns the send, acknowledge and receive state variables V(S), V(A) and V(R).
func (d *Datalink) SequenceState() (vs, va, vr uint8) {
	return d.vSend, d.vAck, d.vRecv
}

// OwnBusy reports the own receiver busy condition.
func (d *Datalink) OwnBusy() bool {
	return d.ownBusy
}

// SetOwnBusy sets the own receiver busy condition. While busy, received I frames are
// acknowledged with RNR and not delivered to layer 3.
func (d *Datalink) SetOwnBusy(busy bool) {
	d.ownBusy = busy
}

// PeerBusy reports the peer receiver busy condition.
func (d *Datalink) PeerBusy() bool {
	return d.peerBusy
}

// T200Pending reports if T200 is running.
func (d *Datalink) T200Pending() bool {
	return d.t200.running
}

// T203Pending reports if T203 is running.
func (d *Datalink) T203Pending() bool {
	return d.t203.running
}

// Outstanding returns the number of sent but unacknowledged I frames.
func (d *Datalink) Outstanding() int {
	return int(subMod(d.vSend, d.vAck, d.vRange))
}

// Queued returns the number of layer 3 messages waiting in the send queue.
func (d *Datalink) Queued() int {
	result := len(d.sendQueue)
	if d.sendBuffer != nil {
		result++
	}
	return result
}

func doMod(x, m uint8) uint8 {
	return x & (m - 1)
}

func incMod(x, m uint8) uint8 {
	return (x + 1) & (m - 1)
}

func addMod(x, y, m uint8) uint8 {
	return (x + y) & (m - 1)
}

func subMod(x, y, m uint8) uint8 {
	return (x - y) & (m - 1)
}

func (d *Datalink) n201(msg Msg) int {
	if msg.N201 > 0 {
		return msg.N201
	}
	return d.opts.N201
}

func (d *Datalink) newState(state State) {
	d.logger.Debug("state change", "sapi", d.opts.SAPI, "from", d.state, "to", state)

	if state != MFEst && d.state == MFEst {
		d.stopT203()
		d.contRes = nil
	}
	if state == MFEst && d.opts.T203 > 0 {
		d.startT203()
	}
	d.state = state
}

func (d *Datalink) startT200() {
	if d.t200.running {
		return
	}
	d.t200 = timer{running: true, deadline: d.clock().Add(d.opts.T200)}
}

func (d *Datalink) stopT200() {
	d.t200.running = false
}

func (d *Datalink) startT203() {
	if d.t203.running || d.opts.T203 == 0 {
		return
	}
	d.t203 = timer{running: true, deadline: d.clock().Add(d.opts.T203)}
}

func (d *Datalink) stopT203() {
	d.t203.running = false
}

func (d *Datalink) flushSend() {
	d.sendQueue = nil
	d.sendBuffer = nil
	d.sendOut = 0
}

func (d *Datalink) flushHist() {
	for i := range d.hist {
		d.hist[i] = histEntry{}
	}
}

func (d *Datalink) flushRcv() {
	d.rcvBuffer = nil
	d.rcvActive = false
}

// Reset drops all buffers, stops the timers and returns to Idle state without notifying
// the peer or layer 3.
func (d *Datalink) Reset() {
	if d.state == Idle {
		return
	}
	d.logger.Debug("reset data link", "sapi", d.opts.SAPI)
	d.newState(Idle)
	d.flushHist()
	d.flushSend()
	d.flushRcv()
	d.stopT200()
	d.stopT203()
}

// Poll handles the expiry of T200 and T203. It must be called regularly with the current time.
func (d *Datalink) Poll(now time.Time) {
	if d.t200.expired(now) {
		d.t200.running = false
		d.t200Expired()
	}
	if d.t203.expired(now) {
		d.t203.running = false
		d.t203Expired()
	}
}

// NextDeadline returns the earliest running timer deadline.
func (d *Datalink) NextDeadline() (time.Time, bool) {
	switch {
	case d.t200.running && d.t203.running:
		if d.t200.deadline.Before(d.t203.deadline) {
			return d.t200.deadline, true
		}
		return d.t203.deadline, true
	case d.t200.running:
		return d.t200.deadline, true
	case d.t203.running:
		return d.t203.deadline, true
	default:
		return time.Time{}, false
	}
}

func (d *Datalink) t200Expired() {
	d.logger.Debug("T200 expired", "sapi", d.opts.SAPI, "state", d.state)

	switch d.state {
	case SABMSent, DISCSent:
		if d.retransCtr+1 >= d.opts.N200EstRel+1 {
			if d.state == SABMSent {
				d.deliver(DLRelease, Indication, nil)
			} else {
				d.deliver(DLRelease, Confirm, nil)
			}
			d.mdlError(CauseT200Expired)
			d.flushHist()
			d.flushSend()
			// the remaining state is kept for a reconnect after handover failure
			d.newState(Idle)
			return
		}
		d.resend()
		d.retransCtr++
		d.startT200()
	case MFEst:
		d.retransCtr = 0
		d.newState(TimerRecov)
		d.timerRecovery()
	case TimerRecov:
		d.timerRecovery()
	default:
		d.logger.Warn("T200 expired in unexpected state", "sapi", d.opts.SAPI, "state", d.state)
	}
}

func (d *Datalink) timerRecovery() {
	d.retransCtr++
	if d.retransCtr >= d.opts.N200 {
		d.mdlError(CauseT200Expired)
		if !d.opts.Reestablish {
			d.logger.Info("N200 reached, releasing locally", "sapi", d.opts.SAPI)
			d.Reset()
			d.vSend, d.vAck, d.vRecv = 0, 0, 0
			d.deliver(DLRelease, Indication, nil)
			return
		}
		d.logger.Info("N200 reached, performing reestablishment", "sapi", d.opts.SAPI)
		d.reestablish()
		return
	}

	vs := subMod(d.vSend, 1, d.vRange)
	h := doMod(vs, d.rangeHist)
	if d.hist[h].used {
		d.logger.Debug("retransmit last frame", "sapi", d.opts.SAPI, "vs", vs)
		d.send(Msg{
			Format:  FormatI,
			CR:      d.cr.loc2remCmd,
			PF:      true,
			NS:      vs,
			NR:      d.vRecv,
			Length:  len(d.hist[h].payload),
			More:    d.hist[h].more,
			Payload: clone(d.hist[h].payload),
		})
	} else {
		switch {
		case !d.ownBusy && d.seqErrCond == 0:
			d.sendRR(true, true)
		case d.ownBusy:
			d.sendRNR(true, true)
		default:
			// the REJ was already sent when entering the sequence error condition
		}
	}
	d.startT200()
}

func (d *Datalink) t203Expired() {
	d.logger.Debug("T203 expired", "sapi", d.opts.SAPI, "state", d.state)
	if d.state != MFEst {
		d.logger.Warn("T203 expired outside multiple frame established state", "sapi", d.opts.SAPI, "state", d.state)
		return
	}

	d.retransCtr = 0
	d.newState(TimerRecov)
	if !d.ownBusy {
		d.sendRR(true, true)
	} else {
		d.sendRNR(true, true)
	}
	d.startT200()
}

func (d *Datalink) reestablish() {
	d.establish(nil)
}

func (d *Datalink) frame(format Format, cr uint8, code uint8, pf bool) Msg {
	return Msg{
		Format: format,
		CR:     cr,
		SU:     code,
		PF:     pf,
	}
}

func (d *Datalink) send(msg Msg) {
	msg.LPD = d.opts.LPD
	msg.SAPI = d.opts.SAPI
	msg.TEI = d.opts.TEI
	msg.N201 = d.opts.N201
	d.logger.Debug("send frame", "frame", msg)
	err := d.lower.SendPH(msg)
	if err != nil {
		d.logger.Warn("cannot send frame", "frame", msg, "error", err)
	}
}

func (d *Datalink) sendUA(pf bool, payload []byte) {
	msg := d.frame(FormatU, d.cr.loc2remResp, UUA, pf)
	msg.Length = len(payload)
	msg.Payload = clone(payload)
	d.send(msg)
}

func (d *Datalink) sendDM(pf bool) {
	d.send(d.frame(FormatU, d.cr.loc2remResp, UDM, pf))
}

func (d *Datalink) sendSupervisory(code uint8, pf bool, cmd bool) {
	cr := d.cr.loc2remResp
	if cmd {
		cr = d.cr.loc2remCmd
	}
	msg := d.frame(FormatS, cr, code, pf)
	msg.NR = d.vRecv
	d.send(msg)
}

func (d *Datalink) sendRR(pf bool, cmd bool) {
	d.sendSupervisory(SRR, pf, cmd)
}

func (d *Datalink) sendRNR(pf bool, cmd bool) {
	d.sendSupervisory(SRNR, pf, cmd)
}

func (d *Datalink) sendREJ(pf bool) {
	d.sendSupervisory(SREJ, pf, false)
}

// resend repeats the SABM or DISC that is stored in the history.
func (d *Datalink) resend() {
	h := doMod(d.vSend, d.rangeHist)
	code := UDISC
	if d.state == SABMSent {
		code = d.sabmCode()
	}
	msg := d.frame(FormatU, d.cr.loc2remCmd, code, true)
	msg.Length = len(d.hist[h].payload)
	msg.Payload = clone(d.hist[h].payload)
	d.send(msg)
}

func (d *Datalink) sabmCode() uint8 {
	if d.opts.UseSABME {
		return USABME
	}
	return USABM
}

func (d *Datalink) deliver(prim Prim, op Op, payload []byte) {
	d.deliverPrim(DLPrim{Prim: prim, Op: op, Payload: payload})
}

func (d *Datalink) mdlError(cause MDLCause) {
	d.logger.Info("MDL error", "sapi", d.opts.SAPI, "cause", cause)
	d.deliverPrim(DLPrim{Prim: MDLError, Op: Indication, Cause: cause})
}

func (d *Datalink) deliverPrim(prim DLPrim) {
	if d.upper == nil {
		return
	}
	err := d.upper.ReceiveDL(prim)
	if err != nil {
		d.logger.Warn("layer 3 rejected primitive", "sapi", d.opts.SAPI, "prim", prim, "error", err)
	}
}

// invalid reports a protocol violation of a received frame.
func (d *Datalink) invalid(cause MDLCause) error {
	d.mdlError(cause)
	return fmt.Errorf("%w: %s", ErrInvalidFrame, cause)
}

// acknowledge handles N(R) of a received I or S frame: all frames up to N(R)-1 are acknowledged.
func (d *Datalink) acknowledge(msg Msg) {
	nr := msg.NR
	rej := msg.Format == FormatS && msg.SU == SREJ
	t200Reset := false

	for i := d.vAck; i != nr; i = incMod(i, d.vRange) {
		h := doMod(i, d.rangeHist)
		if d.hist[h].used {
			d.hist[h] = histEntry{}
		}
	}

	if d.state != TimerRecov {
		if (!rej && nr != d.vAck) || (rej && nr == d.vAck) {
			t200Reset = true
			d.stopT200()
		}
		if subMod(nr, d.vAck, d.vRange) > subMod(d.vSend, d.vAck, d.vRange) {
			d.logger.Info("N(R) sequence error", "sapi", d.opts.SAPI, "nr", nr, "va", d.vAck, "vs", d.vSend)
			d.mdlError(CauseSeqErr)
		}
	}

	d.vAck = nr

	if t200Reset && !rej {
		h := doMod(subMod(d.vSend, 1, d.vRange), d.rangeHist)
		if d.hist[h].used {
			d.startT200()
		}
	}

	d.stopT203()
	if !d.t200.running && d.state == MFEst {
		d.startT203()
	}
}

// sendI transmits I frames from the send queue as far as the window allows. It reports
// whether at least one frame was sent.
func (d *Datalink) sendI() bool {
	sent := false
	for {
		if d.peerBusy {
			return sent
		}
		if d.state == TimerRecov {
			return sent
		}
		if d.vSend == addMod(d.vAck, d.k, d.vRange) {
			d.logger.Debug("window full", "sapi", d.opts.SAPI, "k", d.k, "vs", d.vSend, "va", d.vAck)
			return sent
		}

		h := doMod(d.vSend, d.rangeHist)
		msg := Msg{
			Format: FormatI,
			CR:     d.cr.loc2remCmd,
			NS:     d.vSend,
			NR:     d.vRecv,
		}
		if !d.hist[h].used {
			for d.sendBuffer == nil || d.sendOut >= len(d.sendBuffer) {
				if len(d.sendQueue) == 0 {
					d.sendBuffer = nil
					d.sendOut = 0
					return sent
				}
				d.sendBuffer = d.sendQueue[0]
				d.sendQueue = d.sendQueue[1:]
				d.sendOut = 0
			}

			left := len(d.sendBuffer) - d.sendOut
			length := left
			if length > d.opts.N201 {
				length = d.opts.N201
			}
			payload := clone(d.sendBuffer[d.sendOut : d.sendOut+length])
			msg.Length = length
			msg.More = left > length
			msg.Payload = payload
			d.hist[h] = histEntry{used: true, payload: payload, more: msg.More}
			d.sendOut += length
			if d.sendOut >= len(d.sendBuffer) {
				d.sendBuffer = nil
				d.sendOut = 0
			}
		} else {
			d.logger.Debug("resend I frame from history", "sapi", d.opts.SAPI, "vs", d.vSend)
			msg.Length = len(d.hist[h].payload)
			msg.More = d.hist[h].more
			msg.Payload = clone(d.hist[h].payload)
		}

		d.vSend = incMod(d.vSend, d.vRange)
		if !d.t200.running {
			d.stopT203()
			d.startT200()
		}
		d.send(msg)
		sent = true
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	result := make([]byte, len(b))
	copy(result, b)
	return result
}
