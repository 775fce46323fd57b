/*
The package stack ties the layer 2 parts of the mobile station together: the TDMA scheduler with its
GSM time events and multiframe tasks, the LAPDm channel, the GPRS TBF state and an optional GSMTAP export.
Received L1CTL messages are routed with HandleL1CTL, time is advanced with Tick.
*/
package stack

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/gsmtap"
	"github.com/ftl/gsm-ms/l1ctl"
	"github.com/ftl/gsm-ms/l1gprs"
	"github.com/ftl/gsm-ms/lapdm"
	"github.com/ftl/gsm-ms/sched"
)

// FrameDuration is the duration of one TDMA frame.
const FrameDuration = 120 * time.Millisecond / 26

var ErrNoSender = errors.New("no L1CTL sender")

// Sender sends L1CTL messages to layer 1.
type Sender interface {
	Send(msg l1ctl.Message) error
}

// SenderFunc wraps a function into a Sender.
type SenderFunc func(msg l1ctl.Message) error

func (f SenderFunc) Send(msg l1ctl.Message) error {
	return f(msg)
}

// L3Callback receives the primitives that LAPDm delivers to layer 3.
type L3Callback func(prim lapdm.Primitive)

// L1CTLCallback receives L1CTL messages that are passed on to the upper layers.
type L1CTLCallback func(msg []byte)

// Option configures a Stack.
type Option func(*Stack)

func WithLogger(logger *log.Logger) Option {
	return func(s *Stack) {
		s.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Stack) {
		s.clock = clock
	}
}

// WithGSMTAP exports all received and sent blocks to the given sink.
func WithGSMTAP(sink gsmtap.Sink) Option {
	return func(s *Stack) {
		s.gsmtap = sink
	}
}

// WithExecutor sets the executor of the scheduled TDMA items. By default, the items are only logged.
func WithExecutor(executor sched.Executor) Option {
	return func(s *Stack) {
		s.executor = executor
	}
}

// WithLAPDm passes the given options to the LAPDm channel.
func WithLAPDm(options ...lapdm.Option) Option {
	return func(s *Stack) {
		s.lapdmOptions = append(s.lapdmOptions, options...)
	}
}

func WithL3Callback(callback L3Callback) Option {
	return func(s *Stack) {
		s.l3Callback = callback
	}
}

// WithGPRSCallback receives the filtered GPRS downlink blocks and RTS indications.
func WithGPRSCallback(callback L1CTLCallback) Option {
	return func(s *Stack) {
		s.gprsCallback = callback
	}
}

// Stack is the explicit context of the layer 2 state of one mobile station. It is safe for concurrent
// use, the callbacks are invoked without holding the lock of the stack.
type Stack struct {
	lock     sync.Mutex
	sender   Sender
	logger   *log.Logger
	clock    func() time.Time
	gsmtap   gsmtap.Sink
	executor sched.Executor

	tdma    *sched.TDMA
	gsmTime *sched.GSMTime
	mframe  *sched.Mframe
	channel *lapdm.Channel
	gprs    *l1gprs.State

	lapdmOptions []lapdm.Option
	l3Callback   L3Callback
	gprsCallback L1CTLCallback

	fn       uint32
	arfcn    gsm.BandARFCN
	bsic     uint8
	synced   bool
	upward   []lapdm.Primitive
	gprsMsgs [][]byte
}

// New returns a new stack that sends its requests to layer 1 through the given sender.
func New(sender Sender, options ...Option) *Stack {
	result := &Stack{
		sender: sender,
		logger: log.New(io.Discard),
		clock:  time.Now,
	}
	for _, option := range options {
		option(result)
	}
	if result.executor == nil {
		result.executor = sched.ExecutorFunc(result.logItem)
	}

	result.tdma = sched.NewTDMA().WithLogger(result.logger.With("module", "tdma"))
	result.gsmTime = sched.NewGSMTime().WithLogger(result.logger.With("module", "gsmtime"))
	result.mframe = sched.NewMframe().WithLogger(result.logger.With("module", "mframe"))
	result.gprs = l1gprs.New(l1gprs.WithLogger(result.logger.With("module", "l1gprs")))

	lapdmOptions := append([]lapdm.Option{
		lapdm.WithClock(result.now),
		lapdm.WithLogger(result.logger.With("module", "lapdm")),
	}, result.lapdmOptions...)
	result.channel = lapdm.NewChannel("ms", lapdm.ModeMS, lapdm.LowerFunc(result.sendPH), lapdm.UpperFunc(result.receiveRSL), lapdmOptions...)

	return result
}

func (s *Stack) now() time.Time {
	return s.clock()
}

func (s *Stack) logItem(item sched.Item, p3 uint16) error {
	s.logger.Debug("tdma item", "item", item, "p3", fmt.Sprintf("0x%04x", p3))
	return nil
}

// TDMA returns the TDMA scheduler. Its methods are safe for concurrent use.
func (s *Stack) TDMA() *sched.TDMA {
	return s.tdma
}

// GSMTime returns the GSM time event scheduler. Its methods are safe for concurrent use.
func (s *Stack) GSMTime() *sched.GSMTime {
	return s.gsmTime
}

// Mframe returns the multiframe scheduler. Its methods are safe for concurrent use.
func (s *Stack) Mframe() *sched.Mframe {
	return s.mframe
}

// FN returns the current frame number.
func (s *Stack) FN() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.fn
}

// Cell returns the ARFCN and BSIC of the cell the stack is synchronized to.
func (s *Stack) Cell() (gsm.BandARFCN, uint8, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.arfcn, s.bsic, s.synced
}

// WithChannel runs f with exclusive access to the LAPDm channel.
func (s *Stack) WithChannel(f func(*lapdm.Channel) error) error {
	s.lock.Lock()
	err := f(s.channel)
	s.unlockAndDispatch()
	return err
}

// WithGPRS runs f with exclusive access to the GPRS TBF state.
func (s *Stack) WithGPRS(f func(*l1gprs.State)) {
	s.lock.Lock()
	f(s.gprs)
	s.unlockAndDispatch()
}

// unlockAndDispatch releases the lock and invokes the callbacks for everything that was collected
// while the lock was held.
func (s *Stack) unlockAndDispatch() {
	upward := s.upward
	gprsMsgs := s.gprsMsgs
	s.upward = nil
	s.gprsMsgs = nil
	s.lock.Unlock()

	if s.l3Callback != nil {
		for _, prim := range upward {
			s.l3Callback(prim)
		}
	}
	if s.gprsCallback != nil {
		for _, msg := range gprsMsgs {
			s.gprsCallback(msg)
		}
	}
}

// Reset returns all components to their initial state.
func (s *Stack) Reset() {
	s.lock.Lock()
	s.reset()
	s.unlockAndDispatch()
}

func (s *Stack) reset() {
	s.tdma.Reset()
	s.gsmTime.Reset()
	s.mframe.Reset()
	s.channel.Reset()
	s.gprs.Reset()
	s.synced = false
	s.logger.Info("stack reset")
}

// Tick advances the stack to the given frame: due GSM time events and multiframe tasks are armed,
// the items of the frame are executed, pending TBFs are activated and the LAPDm timers are handled.
func (s *Stack) Tick(fn uint32) error {
	s.lock.Lock()
	defer s.unlockAndDispatch()
	return s.tick(fn)
}

// Advance ticks the frame after the current one.
func (s *Stack) Advance() error {
	s.lock.Lock()
	defer s.unlockAndDispatch()
	return s.tick(gsm.FNAdd(s.fn, 1))
}

func (s *Stack) tick(fn uint32) error {
	s.fn = fn
	var errs []error
	if err := s.gsmTime.Execute(fn, s.tdma); err != nil {
		errs = append(errs, fmt.Errorf("gsm time: %w", err))
	}
	if err := s.mframe.Schedule(fn, s.tdma); err != nil {
		errs = append(errs, fmt.Errorf("mframe: %w", err))
	}
	if _, err := s.tdma.Execute(s.executor); err != nil {
		errs = append(errs, fmt.Errorf("tdma: %w", err))
	}
	s.gprs.Tick(fn)
	s.channel.Poll(s.clock())
	return errors.Join(errs...)
}

// HandleL1CTL routes a complete L1CTL message to the responsible component.
func (s *Stack) HandleL1CTL(bytes []byte) error {
	hdr, msg, err := l1ctl.Parse(bytes)
	if err != nil {
		s.logger.Warn("cannot parse L1CTL message", "error", err)
		return err
	}
	payload := bytes[l1ctl.HdrLen:]

	s.lock.Lock()
	defer s.unlockAndDispatch()

	switch m := msg.(type) {
	case l1ctl.DataInd:
		return s.handleDataInd(m)
	case l1ctl.Conf:
		if m.Type == l1ctl.MsgDataConf {
			return s.channel.EntityFor(m.Info.LinkID).PHDataConf()
		}
		s.logger.Debug("confirmation", "type", m.Type, "chan", m.Info.ChanNr)
		return nil
	case l1ctl.FBSBConf:
		s.handleFBSBConf(m)
		return nil
	case l1ctl.Reset:
		if m.Type == l1ctl.MsgResetInd || m.Type == l1ctl.MsgResetConf {
			s.reset()
		}
		return nil
	case l1ctl.GPRSDLBlockInd:
		return s.handleGPRSDLBlockInd(m)
	case l1ctl.GPRSRTSInd:
		return s.handleGPRSRTSInd(m)
	}

	switch hdr.MsgType {
	case l1ctl.MsgGPRSULTBFCfgReq:
		return s.gprs.HandleULTBFConfigReq(payload)
	case l1ctl.MsgGPRSDLTBFCfgReq:
		return s.gprs.HandleDLTBFConfigReq(payload)
	default:
		s.logger.Debug("unhandled L1CTL message", "type", hdr.MsgType)
		return nil
	}
}

func (s *Stack) handleDataInd(m l1ctl.DataInd) error {
	s.fn = m.Info.FN
	if m.Info.CRCError() {
		s.logger.Debug("dropping block with CRC error", "chan", m.Info.ChanNr, "fn", m.Info.FN)
		return nil
	}
	s.export(gsmtap.NewDownlink(m.Info), m.Data[:])
	return s.channel.PHDataInd(m.Data[:], m.Info.ChanNr, m.Info.LinkID)
}

// Synchronized records the result of a cell synchronization that was requested by the upper layers.
func (s *Stack) Synchronized(conf l1ctl.FBSBConf) {
	s.lock.Lock()
	defer s.unlockAndDispatch()
	s.handleFBSBConf(conf)
}

func (s *Stack) handleFBSBConf(m l1ctl.FBSBConf) {
	if !m.Success() {
		s.logger.Info("cell sync failed", "arfcn", m.Info.BandARFCN)
		s.synced = false
		return
	}
	s.fn = m.Info.FN
	s.arfcn = m.Info.BandARFCN
	s.bsic = m.BSIC
	s.synced = true
	s.logger.Info("synchronized to cell", "arfcn", m.Info.BandARFCN, "bsic", m.BSIC, "fn", m.Info.FN)
}

func (s *Stack) handleGPRSDLBlockInd(m l1ctl.GPRSDLBlockInd) error {
	msg, usf, err := s.gprs.HandleDLBlockInd(l1gprs.DLBlockInd{
		FN:   m.FN,
		TN:   m.TN,
		Meas: m.Meas,
		Data: m.Data,
	})
	if err != nil {
		return err
	}
	if len(m.Data) > 0 {
		s.export(gsmtap.NewPDTCH(m, s.arfcn), m.Data)
	}
	s.logger.Debug("GPRS downlink block", "tn", m.TN, "fn", m.FN, "usf", usf)
	s.gprsMsgs = append(s.gprsMsgs, msg)
	return nil
}

func (s *Stack) handleGPRSRTSInd(m l1ctl.GPRSRTSInd) error {
	msg, err := s.gprs.HandleRTSInd(m.FN, m.TN, m.USF)
	if err != nil {
		return err
	}
	if msg != nil {
		s.gprsMsgs = append(s.gprsMsgs, msg)
	}
	return nil
}

// SendGPRSBlock checks the uplink block against the active TBFs and sends it to layer 1.
func (s *Stack) SendGPRSBlock(req l1ctl.GPRSULBlockReq) error {
	s.lock.Lock()
	defer s.unlockAndDispatch()

	_, err := s.gprs.HandleULBlockReq(req.Encode(nil))
	if err != nil {
		return err
	}
	return s.send(req)
}

func (s *Stack) export(hdr *gsmtap.GSMTAP, data []byte) {
	if s.gsmtap == nil {
		return
	}
	err := s.gsmtap.Send(hdr, data)
	if err != nil {
		s.logger.Warn("cannot export GSMTAP packet", "error", err)
	}
}

func (s *Stack) send(msg l1ctl.Message) error {
	if s.sender == nil {
		return ErrNoSender
	}
	return s.sender.Send(msg)
}

// sendPH is called by LAPDm while the lock is held.
func (s *Stack) sendPH(prim lapdm.PHPrim) error {
	switch prim.Type {
	case lapdm.PHData:
		s.export(gsmtap.NewUplink(prim.ChanNr, prim.LinkID, s.arfcn, s.fn), prim.Data)
		return s.send(l1ctl.NewDataReq(prim.ChanNr, prim.LinkID, prim.Data))
	case lapdm.PHRach:
		return s.send(l1ctl.RACHReq{
			Info:     l1ctl.InfoUL{ChanNr: prim.ChanNr},
			RA:       prim.RA,
			Combined: prim.Combined,
			Offset:   prim.Offset,
		})
	default:
		s.logger.Debug("dropping PH primitive", "type", prim.Type)
		return nil
	}
}

// receiveRSL is called by LAPDm while the lock is held.
func (s *Stack) receiveRSL(prim lapdm.Primitive) error {
	s.logger.Debug("upward", "prim", prim)
	s.upward = append(s.upward, prim)
	return nil
}
