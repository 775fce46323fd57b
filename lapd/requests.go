package lapd

import "fmt"

var allowedStates = map[Prim][]State{
	DLEstablish: {Idle},
	DLData:      {MFEst, TimerRecov},
	DLSuspend:   {MFEst, TimerRecov},
	DLResume:    {MFEst, TimerRecov},
	DLReconnect: {Idle, MFEst, TimerRecov},
	DLRelease:   {Idle, SABMSent, MFEst, TimerRecov, DISCSent},
}

func (d *Datalink) allowed(prim Prim) error {
	states, ok := allowedStates[prim]
	if !ok {
		return nil
	}
	for _, state := range states {
		if state == d.state {
			return nil
		}
	}
	d.logger.Info("primitive unhandled", "sapi", d.opts.SAPI, "prim", prim, "state", d.state)
	return fmt.Errorf("%w: %s in %s", ErrUnhandled, prim, d.state)
}

// UnitData sends the given layer 3 message in a UI command (DL-UNIT-DATA request).
// It is allowed in all states.
func (d *Datalink) UnitData(l3 []byte) error {
	msg := d.frame(FormatU, d.cr.loc2remCmd, UUI, false)
	msg.Length = len(l3)
	msg.Payload = clone(l3)
	d.send(msg)
	return nil
}

// Establish requests the establishment of multiple frame operation (DL-ESTABLISH request).
// A non-empty l3 message is sent in the SABM for contention resolution.
func (d *Datalink) Establish(l3 []byte) error {
	if err := d.allowed(DLEstablish); err != nil {
		return err
	}
	d.establish(l3)
	return nil
}

func (d *Datalink) establish(l3 []byte) {
	if len(l3) > 0 {
		d.logger.Debug("establishment with content", "sapi", d.opts.SAPI, "len", len(l3))
	} else {
		d.logger.Debug("normal establishment", "sapi", d.opts.SAPI)
	}

	d.flushSend()
	d.flushHist()
	d.flushRcv()

	payload := clone(l3)
	d.hist[0] = histEntry{used: true, payload: payload}
	// V(S) is the history index when resending the SABM
	d.vSend = 0

	d.ownBusy = false
	d.peerBusy = false
	d.retransCtr = 0
	d.newState(SABMSent)

	msg := d.frame(FormatU, d.cr.loc2remCmd, d.sabmCode(), true)
	msg.Length = len(payload)
	msg.Payload = clone(payload)
	d.send(msg)
	d.startT200()
}

// Data queues the given layer 3 message for acknowledged transfer (DL-DATA request).
func (d *Datalink) Data(l3 []byte) error {
	if err := d.allowed(DLData); err != nil {
		return err
	}
	if len(l3) == 0 {
		return ErrEmptyMessage
	}
	d.sendQueue = append(d.sendQueue, clone(l3))
	d.sendI()
	return nil
}

// Suspend suspends the data link for a dedicated channel change (DL-SUSPEND request).
// The pending layer 3 messages are kept and sent after Resume.
func (d *Datalink) Suspend() error {
	if err := d.allowed(DLSuspend); err != nil {
		return err
	}
	d.logger.Debug("suspend", "sapi", d.opts.SAPI)

	if d.sendBuffer != nil {
		d.sendQueue = append([][]byte{d.sendBuffer}, d.sendQueue...)
		d.sendBuffer = nil
		d.sendOut = 0
	}
	d.flushHist()
	// there is no state change, so all timers must be stopped here
	d.stopT200()
	d.stopT203()

	d.deliver(DLSuspend, Confirm, nil)
	return nil
}

// Resume re-establishes the data link on the new channel after Suspend (DL-RESUME request).
// A non-empty l3 message is sent first after the establishment.
func (d *Datalink) Resume(l3 []byte) error {
	if err := d.allowed(DLResume); err != nil {
		return err
	}
	d.resume(l3)
	return nil
}

// Reconnect re-establishes the data link on the old channel after a failed channel change
// (DL-RECONNECT request).
func (d *Datalink) Reconnect(l3 []byte) error {
	if err := d.allowed(DLReconnect); err != nil {
		return err
	}
	d.resume(l3)
	return nil
}

func (d *Datalink) resume(l3 []byte) {
	d.logger.Debug("re-establishment", "sapi", d.opts.SAPI, "len", len(l3))

	d.flushHist()
	d.sendOut = 0
	if len(l3) > 0 {
		d.sendBuffer = clone(l3)
	} else {
		d.sendBuffer = nil
	}
	d.flushRcv()

	d.hist[0] = histEntry{used: true}
	d.vSend = 0

	d.ownBusy = false
	d.peerBusy = false
	d.retransCtr = 0
	d.newState(SABMSent)

	d.send(d.frame(FormatU, d.cr.loc2remCmd, d.sabmCode(), true))
	d.startT200()
}

// Release releases the data link (DL-RELEASE request). A local release returns to Idle
// immediately without a DISC.
func (d *Datalink) Release(mode ReleaseMode) error {
	if err := d.allowed(DLRelease); err != nil {
		return err
	}
	if d.state == Idle {
		d.deliver(DLRelease, Confirm, nil)
		return nil
	}

	if mode == ReleaseLocal {
		d.stopT200()
		d.newState(Idle)
		d.flushHist()
		d.flushSend()
		d.deliver(DLRelease, Confirm, nil)
		return nil
	}

	if d.state == DISCSent {
		return ErrBusy
	}

	d.flushHist()
	d.hist[0] = histEntry{used: true}
	d.vSend = 0

	d.ownBusy = false
	d.peerBusy = false
	d.retransCtr = 0
	d.newState(DISCSent)

	d.send(d.frame(FormatU, d.cr.loc2remCmd, UDISC, true))
	d.startT200()
	return nil
}
