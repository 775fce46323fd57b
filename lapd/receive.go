package lapd

import (
	"bytes"
	"fmt"
)

// Receive handles a frame that was received from the layer below (PH-DATA indication).
// A frame that violates the protocol is reported to layer 3 with an MDL-ERROR indication and
// returns an error wrapping ErrInvalidFrame.
func (d *Datalink) Receive(msg Msg) error {
	d.logger.Debug("received frame", "state", d.state, "frame", msg)

	switch msg.Format {
	case FormatU:
		return d.receiveU(msg)
	case FormatS:
		return d.receiveS(msg)
	case FormatI:
		return d.receiveI(msg)
	default:
		return fmt.Errorf("%w: unknown format", ErrInvalidFrame)
	}
}

func (d *Datalink) payload(msg Msg) []byte {
	if msg.Length < len(msg.Payload) {
		return msg.Payload[:msg.Length]
	}
	return msg.Payload
}

func (d *Datalink) receiveU(msg Msg) error {
	n201 := d.n201(msg)
	switch msg.SU {
	case USABM, USABME:
		return d.receiveSABM(msg, n201)
	case UDM:
		return d.receiveDM(msg)
	case UUI:
		if msg.CR == d.cr.rem2locResp {
			return d.invalid(CauseFrmUnimpl)
		}
		if msg.Length > n201 || msg.More {
			return d.invalid(CauseUFrmIncParam)
		}
		if msg.Length == 0 {
			// UI frames without information are ignored
			return nil
		}
		d.deliver(DLUnitData, Indication, clone(d.payload(msg)))
		return nil
	case UDISC:
		return d.receiveDISC(msg)
	case UUA:
		return d.receiveUA(msg, n201)
	case UFRMR:
		d.mdlError(CauseFRMR)
		if d.opts.Reestablish {
			d.reestablish()
		}
		return nil
	default:
		return d.invalid(CauseFrmUnimpl)
	}
}

func (d *Datalink) receiveSABM(msg Msg, n201 int) error {
	d.seqErrCond = 0
	if msg.CR == d.cr.rem2locResp {
		return d.invalid(CauseFrmUnimpl)
	}
	if msg.More || msg.Length > n201 {
		return d.invalid(CauseUFrmIncParam)
	}
	content := d.payload(msg)

	switch d.state {
	case Idle:
	case MFEst:
		if d.vSend != d.vRecv {
			// the link was lost on the remote side, start over
			d.mdlError(CauseSABMMF)
			break
		}
		if d.opts.Mode == ModeNetwork && len(content) > 0 && d.contRes != nil {
			if !bytes.Equal(d.contRes, content) {
				d.logger.Info("ignoring SABM with different content", "sapi", d.opts.SAPI)
				return nil
			}
		}
		d.sendUA(msg.PF, content)
		return nil
	case DISCSent:
		d.sendDM(msg.PF)
		d.stopT200()
		d.deliver(DLEstablish, Indication, nil)
		return nil
	default:
		// collision: answer with UA, but still wait for the UA of the peer
		if d.hist[0].used && len(d.hist[0].payload) > 0 {
			d.mdlError(CauseSABMInfoNotAll)
		}
		d.sendUA(msg.PF, content)
		return nil
	}

	d.sendUA(msg.PF, content)
	d.vSend = 0
	d.vRecv = 0
	d.vAck = 0
	d.flushHist()
	d.newState(MFEst)
	// the contention resolution data is dropped on the next state change
	if d.opts.Mode == ModeNetwork && len(content) > 0 {
		d.contRes = clone(content)
	}
	if len(content) == 0 {
		d.deliver(DLEstablish, Indication, nil)
	} else {
		d.deliver(DLEstablish, Indication, clone(content))
	}
	return nil
}

func (d *Datalink) receiveDM(msg Msg) error {
	if msg.CR == d.cr.rem2locCmd {
		return d.invalid(CauseFrmUnimpl)
	}
	if !msg.PF {
		// DM responses with F=0 are ignored
		return nil
	}

	switch d.state {
	case SABMSent:
	case MFEst:
		d.mdlError(CauseUnsolDMResp)
		return nil
	case TimerRecov:
		// DM with F=1 is the regular answer to the poll
	case DISCSent:
		d.stopT200()
		d.flushHist()
		d.flushSend()
		d.newState(Idle)
		d.deliver(DLRelease, Confirm, nil)
		return nil
	default:
		d.logger.Info("unsolicited DM response, discarding", "sapi", d.opts.SAPI, "state", d.state)
		return nil
	}

	d.stopT200()
	d.newState(Idle)
	d.deliver(DLRelease, Indication, nil)
	return nil
}

func (d *Datalink) receiveDISC(msg Msg) error {
	d.flushHist()
	d.flushSend()
	d.seqErrCond = 0
	if msg.CR == d.cr.rem2locResp {
		return d.invalid(CauseFrmUnimpl)
	}
	if msg.Length > 0 || msg.More {
		return d.invalid(CauseUFrmIncParam)
	}

	op := Indication
	switch d.state {
	case Idle:
		d.sendDM(msg.PF)
		return nil
	case SABMSent:
		d.sendDM(msg.PF)
		d.stopT200()
		d.newState(Idle)
		d.deliver(DLRelease, Indication, nil)
		return nil
	case MFEst, TimerRecov:
	case DISCSent:
		op = Confirm
	default:
		d.sendUA(msg.PF, nil)
		return nil
	}

	d.sendUA(msg.PF, nil)
	d.stopT200()
	d.newState(Idle)
	d.deliver(DLRelease, op, nil)
	return nil
}

func (d *Datalink) receiveUA(msg Msg, n201 int) error {
	if msg.CR == d.cr.rem2locCmd {
		return d.invalid(CauseFrmUnimpl)
	}
	if msg.More || msg.Length > n201 {
		return d.invalid(CauseUFrmIncParam)
	}
	if !msg.PF {
		// UA responses with F=0 are ignored
		return nil
	}

	switch d.state {
	case SABMSent:
	case MFEst, TimerRecov:
		d.mdlError(CauseUnsolUAResp)
		return nil
	case DISCSent:
		d.stopT200()
		d.flushHist()
		d.flushSend()
		d.newState(Idle)
		d.deliver(DLRelease, Confirm, nil)
		return nil
	default:
		d.logger.Info("unsolicited UA response, discarding", "sapi", d.opts.SAPI, "state", d.state)
		return nil
	}

	d.stopT200()
	// contention resolution: the UA must echo the content of the SABM
	if len(d.hist[0].payload) > 0 && !bytes.Equal(d.hist[0].payload, d.payload(msg)) {
		d.logger.Info("UA content differs from SABM content", "sapi", d.opts.SAPI)
		d.deliver(DLRelease, Indication, nil)
		d.flushHist()
		d.flushSend()
		d.newState(Idle)
		return nil
	}

	d.vSend = 0
	d.vRecv = 0
	d.vAck = 0
	d.flushHist()
	d.newState(MFEst)
	// pending frames after resume or reconnect
	d.sendI()
	d.deliver(DLEstablish, Confirm, nil)
	return nil
}

func (d *Datalink) receiveS(msg Msg) error {
	if msg.Length > 0 || msg.More {
		return d.invalid(CauseSFrmIncParam)
	}
	if msg.CR == d.cr.rem2locResp && msg.PF && d.state != TimerRecov {
		d.mdlError(CauseUnsolSprvResp)
	}

	switch d.state {
	case Idle:
		if msg.PF {
			d.sendDM(true)
		}
		return nil
	case SABMSent, DISCSent:
		return nil
	}

	isCmd := msg.CR == d.cr.rem2locCmd
	isResp := msg.CR == d.cr.rem2locResp

	switch msg.SU {
	case SRR:
		d.acknowledge(msg)
		d.peerBusy = false
		if isCmd && msg.PF {
			d.answerPoll()
		} else if isResp && msg.PF && d.state == TimerRecov {
			d.vSend = msg.NR
			d.stopT200()
			d.newState(MFEst)
		}
		d.sendI()
	case SRNR:
		d.acknowledge(msg)
		d.peerBusy = true
		if msg.PF {
			if isCmd {
				if !d.ownBusy {
					d.sendRR(true, false)
				} else {
					d.sendRNR(true, false)
				}
			} else if d.state == TimerRecov {
				d.newState(MFEst)
				d.vSend = msg.NR
			}
		} else {
			d.sendI()
		}
	case SREJ:
		d.acknowledge(msg)
		switch {
		case d.state != TimerRecov:
			d.peerBusy = false
			d.vSend = msg.NR
			d.vAck = msg.NR
			d.stopT200()
			if isCmd && msg.PF {
				d.answerPoll()
			} else if isResp && msg.PF {
				d.mdlError(CauseUnsolSprvResp)
			}
		case isResp && msg.PF:
			d.peerBusy = false
			d.vSend = msg.NR
			d.vAck = msg.NR
			d.stopT200()
			d.newState(MFEst)
		default:
			d.peerBusy = false
			d.vSend = msg.NR
			d.vAck = msg.NR
			if isCmd && msg.PF {
				d.answerPoll()
			}
		}
		d.sendI()
	default:
		return d.invalid(CauseFrmUnimpl)
	}
	return nil
}

// answerPoll responds to a supervisory command with P=1.
func (d *Datalink) answerPoll() {
	switch {
	case !d.ownBusy && d.seqErrCond == 0:
		d.sendRR(true, false)
	case d.ownBusy:
		d.sendRNR(true, false)
	default:
		// the REJ was already sent when entering the sequence error condition
	}
}

func (d *Datalink) receiveI(msg Msg) error {
	n201 := d.n201(msg)
	if msg.CR == d.cr.rem2locResp {
		return d.invalid(CauseFrmUnimpl)
	}
	if msg.Length == 0 || msg.Length > n201 {
		return d.invalid(CauseIFrmIncLen)
	}
	if msg.More && msg.Length < n201 {
		return d.invalid(CauseIFrmIncMBits)
	}

	switch d.state {
	case Idle:
		if msg.PF {
			d.sendDM(true)
		}
		return nil
	case SABMSent, DISCSent:
		return nil
	}

	if msg.NS != d.vRecv {
		d.logger.Debug("N(S) sequence error", "sapi", d.opts.SAPI, "ns", msg.NS, "vr", d.vRecv)
		if d.seqErrCond != 1 {
			d.seqErrCond = 1
			d.sendREJ(msg.PF)
		} else {
			// every second subsequent sequence error is ignored, a second REJ may
			// cause the peer to abort
			d.seqErrCond = 2
		}
		d.acknowledge(msg)
		d.sendI()
		return nil
	}
	d.seqErrCond = 0
	d.vRecv = incMod(d.vRecv, d.vRange)
	d.acknowledge(msg)

	if !d.ownBusy {
		d.reassemble(msg)
	} else {
		d.logger.Info("own receiver busy, discarding I frame", "sapi", d.opts.SAPI)
	}

	if msg.PF {
		if !d.ownBusy {
			d.sendRR(true, false)
		} else {
			d.sendRNR(true, false)
		}
	} else {
		if !d.ownBusy {
			if !d.sendI() {
				d.sendRR(false, false)
			}
			return nil
		}
		d.sendRNR(false, false)
	}

	d.sendI()
	return nil
}

func (d *Datalink) reassemble(msg Msg) {
	segment := d.payload(msg)
	if !msg.More && !d.rcvActive {
		d.deliver(DLData, Indication, clone(segment))
		return
	}

	if !d.rcvActive {
		d.rcvActive = true
		d.rcvBuffer = make([]byte, 0, d.opts.MaxFrame)
	}
	if len(d.rcvBuffer)+len(segment) > d.opts.MaxFrame {
		d.logger.Warn("received message exceeds maximum frame size, dropping segment", "sapi", d.opts.SAPI, "max", d.opts.MaxFrame)
	} else {
		d.rcvBuffer = append(d.rcvBuffer, segment...)
	}
	if !msg.More {
		data := d.rcvBuffer
		d.flushRcv()
		d.deliver(DLData, Indication, data)
	}
}
