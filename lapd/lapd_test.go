package lapd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recorder struct {
	frames []Msg
	prims  []DLPrim
}

func (r *recorder) SendPH(msg Msg) error {
	r.frames = append(r.frames, msg)
	return nil
}

func (r *recorder) ReceiveDL(prim DLPrim) error {
	r.prims = append(r.prims, prim)
	return nil
}

func (r *recorder) reset() {
	r.frames = nil
	r.prims = nil
}

func (r *recorder) lastFrame() Msg {
	if len(r.frames) == 0 {
		return Msg{}
	}
	return r.frames[len(r.frames)-1]
}

func (r *recorder) lastPrim() DLPrim {
	if len(r.prims) == 0 {
		return DLPrim{Prim: -1}
	}
	return r.prims[len(r.prims)-1]
}

func (r *recorder) framesOf(format Format) []Msg {
	result := make([]Msg, 0, len(r.frames))
	for _, frame := range r.frames {
		if frame.Format == format {
			result = append(result, frame)
		}
	}
	return result
}

func (r *recorder) mdlErrors() []MDLCause {
	result := []MDLCause{}
	for _, prim := range r.prims {
		if prim.Prim == MDLError {
			result = append(result, prim.Cause)
		}
	}
	return result
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func newTestDatalink(modify ...func(*Options)) (*Datalink, *recorder, *fakeClock) {
	rec := &recorder{}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts := DefaultOptions()
	opts.T203 = 0
	opts.Clock = clock.Now
	for _, m := range modify {
		m(&opts)
	}
	return New(opts, rec, rec), rec, clock
}

// frames as sent by the network side
func netUA(payload []byte) Msg {
	return Msg{Format: FormatU, SU: UUA, CR: CRNet2UserResp, PF: true, Length: len(payload), Payload: payload}
}

func netI(ns, nr uint8, more bool, payload []byte) Msg {
	return Msg{Format: FormatI, CR: CRNet2UserCmd, NS: ns, NR: nr, More: more, Length: len(payload), Payload: payload}
}

func netRR(nr uint8, f bool) Msg {
	return Msg{Format: FormatS, SU: SRR, CR: CRNet2UserResp, NR: nr, PF: f}
}

func testData(n int) []byte {
	result := make([]byte, n)
	for i := range result {
		result[i] = byte(i + 1)
	}
	return result
}

func establish(d *Datalink, rec *recorder) error {
	err := d.Establish(nil)
	if err != nil {
		return err
	}
	err = d.Receive(netUA(nil))
	rec.reset()
	return err
}

func TestHistRange(t *testing.T) {
	tt := []struct {
		k        uint8
		expected uint8
	}{
		{0, 1},
		{1, 2},
		{2, 4},
		{3, 4},
		{4, 8},
		{7, 8},
		{8, 16},
		{127, 128},
	}
	for _, tc := range tt {
		assert.Equal(t, tc.expected, histRange(tc.k), "k=%d", tc.k)
	}
}

func TestEstablishAndRelease(t *testing.T) {
	d, rec, _ := newTestDatalink()
	assert.Equal(t, Idle, d.State())

	require.NoError(t, d.Establish(nil))
	assert.Equal(t, SABMSent, d.State())
	assert.True(t, d.T200Pending())
	sabm := rec.lastFrame()
	assert.Equal(t, FormatU, sabm.Format)
	assert.Equal(t, USABM, sabm.SU)
	assert.Equal(t, CRUser2NetCmd, sabm.CR)
	assert.True(t, sabm.PF)

	require.NoError(t, d.Receive(netUA(nil)))
	assert.Equal(t, MFEst, d.State())
	assert.False(t, d.T200Pending())
	assert.Equal(t, DLPrim{Prim: DLEstablish, Op: Confirm}, rec.lastPrim())

	require.NoError(t, d.Release(ReleaseNormal))
	assert.Equal(t, DISCSent, d.State())
	assert.Equal(t, UDISC, rec.lastFrame().SU)
	assert.ErrorIs(t, d.Release(ReleaseNormal), ErrBusy)

	require.NoError(t, d.Receive(netUA(nil)))
	assert.Equal(t, Idle, d.State())
	assert.Equal(t, DLPrim{Prim: DLRelease, Op: Confirm}, rec.lastPrim())
}

func TestEstablishTimeout(t *testing.T) {
	d, rec, clock := newTestDatalink()
	require.NoError(t, d.Establish(nil))

	for i := 0; i < 4; i++ {
		d.Poll(clock.advance(time.Second))
	}

	sabms := rec.framesOf(FormatU)
	assert.Len(t, sabms, 4)
	for _, sabm := range sabms {
		assert.Equal(t, USABM, sabm.SU)
		assert.True(t, sabm.PF)
	}
	assert.Equal(t, Idle, d.State())
	assert.False(t, d.T200Pending())
	require.Len(t, rec.prims, 2)
	assert.Equal(t, DLPrim{Prim: DLRelease, Op: Indication}, rec.prims[0])
	assert.Equal(t, DLPrim{Prim: MDLError, Op: Indication, Cause: CauseT200Expired}, rec.prims[1])
}

func TestContentResolution(t *testing.T) {
	tt := []struct {
		desc          string
		ua            []byte
		expectedState State
		expectedPrim  DLPrim
	}{
		{
			desc:          "matching content",
			ua:            []byte{1, 2, 3},
			expectedState: MFEst,
			expectedPrim:  DLPrim{Prim: DLEstablish, Op: Confirm},
		},
		{
			desc:          "different content",
			ua:            []byte{1, 2, 4},
			expectedState: Idle,
			expectedPrim:  DLPrim{Prim: DLRelease, Op: Indication},
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			d, rec, _ := newTestDatalink()
			require.NoError(t, d.Establish([]byte{1, 2, 3}))
			sabm := rec.lastFrame()
			assert.Equal(t, 3, sabm.Length)
			assert.Equal(t, []byte{1, 2, 3}, sabm.Payload)

			require.NoError(t, d.Receive(netUA(tc.ua)))
			assert.Equal(t, tc.expectedState, d.State())
			assert.Equal(t, tc.expectedPrim, rec.lastPrim())
		})
	}
}

func TestPeerEstablishment(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, d.Receive(Msg{Format: FormatU, SU: USABM, CR: CRNet2UserCmd, PF: true}))

	assert.Equal(t, MFEst, d.State())
	ua := rec.lastFrame()
	assert.Equal(t, UUA, ua.SU)
	assert.Equal(t, CRUser2NetResp, ua.CR)
	assert.True(t, ua.PF)
	assert.Equal(t, DLPrim{Prim: DLEstablish, Op: Indication}, rec.lastPrim())
}

func TestPeerDisconnect(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))

	require.NoError(t, d.Receive(Msg{Format: FormatU, SU: UDISC, CR: CRNet2UserCmd, PF: true}))
	assert.Equal(t, Idle, d.State())
	assert.Equal(t, UUA, rec.lastFrame().SU)
	assert.True(t, rec.lastFrame().PF)
	assert.Equal(t, DLPrim{Prim: DLRelease, Op: Indication}, rec.lastPrim())

	// DISC in idle state is answered with DM
	require.NoError(t, d.Receive(Msg{Format: FormatU, SU: UDISC, CR: CRNet2UserCmd, PF: true}))
	assert.Equal(t, UDM, rec.lastFrame().SU)
}

func TestLocalRelease(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))

	require.NoError(t, d.Release(ReleaseLocal))
	assert.Equal(t, Idle, d.State())
	assert.Empty(t, rec.frames)
	assert.Equal(t, DLPrim{Prim: DLRelease, Op: Confirm}, rec.lastPrim())

	require.NoError(t, d.Release(ReleaseNormal))
	assert.Empty(t, rec.frames)
	assert.Equal(t, DLPrim{Prim: DLRelease, Op: Confirm}, rec.lastPrim())
}

func TestUnhandledPrimitives(t *testing.T) {
	d, rec, _ := newTestDatalink()
	assert.ErrorIs(t, d.Data([]byte{1}), ErrUnhandled)
	assert.ErrorIs(t, d.Suspend(), ErrUnhandled)
	assert.ErrorIs(t, d.Resume(nil), ErrUnhandled)

	require.NoError(t, establish(d, rec))
	assert.ErrorIs(t, d.Establish(nil), ErrUnhandled)
	assert.ErrorIs(t, d.Data(nil), ErrEmptyMessage)
}

func TestSegmentation(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))

	data := testData(45)
	require.NoError(t, d.Data(data))
	require.Len(t, rec.frames, 1)
	assert.True(t, d.T200Pending())

	require.NoError(t, d.Receive(netRR(1, false)))
	require.NoError(t, d.Receive(netRR(2, false)))
	require.NoError(t, d.Receive(netRR(3, false)))

	iframes := rec.framesOf(FormatI)
	require.Len(t, iframes, 3)
	var joined []byte
	for i, frame := range iframes {
		assert.Equal(t, uint8(i), frame.NS)
		assert.Equal(t, CRUser2NetCmd, frame.CR)
		assert.Equal(t, i < 2, frame.More)
		joined = append(joined, frame.Payload...)
	}
	assert.Equal(t, []int{20, 20, 5}, []int{iframes[0].Length, iframes[1].Length, iframes[2].Length})
	assert.Equal(t, data, joined)
	assert.Equal(t, 0, d.Outstanding())
	assert.False(t, d.T200Pending())
	assert.Empty(t, rec.mdlErrors())
}

func TestReassembly(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))

	data := testData(25)
	require.NoError(t, d.Receive(netI(0, 0, true, data[:20])))
	assert.Empty(t, rec.prims)
	rr := rec.lastFrame()
	assert.Equal(t, FormatS, rr.Format)
	assert.Equal(t, SRR, rr.SU)
	assert.Equal(t, uint8(1), rr.NR)
	assert.Equal(t, CRUser2NetResp, rr.CR)

	require.NoError(t, d.Receive(netI(1, 0, false, data[20:])))
	assert.Equal(t, DLPrim{Prim: DLData, Op: Indication, Payload: data}, rec.lastPrim())
	assert.Equal(t, uint8(2), rec.lastFrame().NR)
}

func TestReassemblyLimit(t *testing.T) {
	d, rec, _ := newTestDatalink(func(o *Options) { o.MaxFrame = 30 })
	require.NoError(t, establish(d, rec))

	data := testData(45)
	require.NoError(t, d.Receive(netI(0, 0, true, data[:20])))
	require.NoError(t, d.Receive(netI(1, 0, true, data[20:40])))
	require.NoError(t, d.Receive(netI(2, 0, false, data[40:])))

	last := rec.lastPrim()
	assert.Equal(t, DLData, last.Prim)
	assert.True(t, bytes.Equal(append(data[:20:20], data[40:]...), last.Payload))
}

func TestOwnBusy(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))
	d.SetOwnBusy(true)

	require.NoError(t, d.Receive(netI(0, 0, false, []byte{1})))
	assert.Empty(t, rec.prims)
	assert.Equal(t, SRNR, rec.lastFrame().SU)
}

func TestPeerBusy(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))

	require.NoError(t, d.Receive(Msg{Format: FormatS, SU: SRNR, CR: CRNet2UserResp}))
	assert.True(t, d.PeerBusy())
	require.NoError(t, d.Data([]byte{1, 2, 3}))
	assert.Empty(t, rec.framesOf(FormatI))

	require.NoError(t, d.Receive(netRR(0, false)))
	assert.False(t, d.PeerBusy())
	assert.Len(t, rec.framesOf(FormatI), 1)
}

func TestSequenceError(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))

	require.NoError(t, d.Receive(netI(1, 0, false, []byte{1})))
	require.NoError(t, d.Receive(netI(2, 0, false, []byte{2})))

	rejs := rec.framesOf(FormatS)
	require.Len(t, rejs, 1)
	assert.Equal(t, SREJ, rejs[0].SU)
	assert.Equal(t, uint8(0), rejs[0].NR)
	assert.Empty(t, rec.prims)

	require.NoError(t, d.Receive(netI(0, 0, false, []byte{3})))
	assert.Equal(t, DLPrim{Prim: DLData, Op: Indication, Payload: []byte{3}}, rec.lastPrim())
	_, _, vr := d.SequenceState()
	assert.Equal(t, uint8(1), vr)
}

func TestNRSequenceError(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))

	require.NoError(t, d.Receive(netRR(3, false)))
	assert.Equal(t, []MDLCause{CauseSeqErr}, rec.mdlErrors())
}

func TestInvalidFrames(t *testing.T) {
	tt := []struct {
		desc     string
		msg      Msg
		expected MDLCause
	}{
		{"I frame response", Msg{Format: FormatI, CR: CRNet2UserResp, Length: 1, Payload: []byte{1}}, CauseFrmUnimpl},
		{"I frame without information", netI(0, 0, false, nil), CauseIFrmIncLen},
		{"I frame too long", netI(0, 0, false, testData(21)), CauseIFrmIncLen},
		{"I frame with incorrect M bit", netI(0, 0, true, testData(10)), CauseIFrmIncMBits},
		{"S frame with information", Msg{Format: FormatS, SU: SRR, CR: CRNet2UserCmd, Length: 1}, CauseSFrmIncParam},
		{"S frame with unknown code", Msg{Format: FormatS, SU: 3, CR: CRNet2UserCmd}, CauseFrmUnimpl},
		{"UI response", Msg{Format: FormatU, SU: UUI, CR: CRNet2UserResp, Length: 1}, CauseFrmUnimpl},
		{"UI too long", Msg{Format: FormatU, SU: UUI, CR: CRNet2UserCmd, Length: 21}, CauseUFrmIncParam},
		{"unknown U frame", Msg{Format: FormatU, SU: 0x1f, CR: CRNet2UserCmd}, CauseFrmUnimpl},
		{"SABM with M bit", Msg{Format: FormatU, SU: USABM, CR: CRNet2UserCmd, More: true}, CauseUFrmIncParam},
		{"DM command", Msg{Format: FormatU, SU: UDM, CR: CRNet2UserCmd, PF: true}, CauseFrmUnimpl},
		{"DISC with information", Msg{Format: FormatU, SU: UDISC, CR: CRNet2UserCmd, Length: 1}, CauseUFrmIncParam},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			d, rec, _ := newTestDatalink()
			require.NoError(t, establish(d, rec))

			err := d.Receive(tc.msg)
			assert.ErrorIs(t, err, ErrInvalidFrame)
			assert.Equal(t, DLPrim{Prim: MDLError, Op: Indication, Cause: tc.expected}, rec.lastPrim())
		})
	}
}

func TestUnitData(t *testing.T) {
	d, rec, _ := newTestDatalink()

	require.NoError(t, d.UnitData([]byte{1, 2}))
	ui := rec.lastFrame()
	assert.Equal(t, UUI, ui.SU)
	assert.Equal(t, CRUser2NetCmd, ui.CR)
	assert.Equal(t, 2, ui.Length)

	require.NoError(t, d.Receive(Msg{Format: FormatU, SU: UUI, CR: CRNet2UserCmd, Length: 2, Payload: []byte{3, 4}}))
	assert.Equal(t, DLPrim{Prim: DLUnitData, Op: Indication, Payload: []byte{3, 4}}, rec.lastPrim())

	rec.reset()
	require.NoError(t, d.Receive(Msg{Format: FormatU, SU: UUI, CR: CRNet2UserCmd}))
	assert.Empty(t, rec.prims)
}

func TestTimerRecovery(t *testing.T) {
	d, rec, clock := newTestDatalink()
	require.NoError(t, establish(d, rec))
	require.NoError(t, d.Data([]byte{1, 2, 3}))

	d.Poll(clock.advance(time.Second))
	assert.Equal(t, TimerRecov, d.State())
	iframes := rec.framesOf(FormatI)
	require.Len(t, iframes, 2)
	assert.Equal(t, uint8(0), iframes[1].NS)
	assert.True(t, iframes[1].PF)
	assert.Equal(t, []byte{1, 2, 3}, iframes[1].Payload)

	require.NoError(t, d.Receive(netRR(1, true)))
	assert.Equal(t, MFEst, d.State())
	assert.False(t, d.T200Pending())
	assert.Equal(t, 0, d.Outstanding())
	assert.Empty(t, rec.mdlErrors())
}

func TestTimerRecoveryExhausted(t *testing.T) {
	tt := []struct {
		desc          string
		reestablish   bool
		expectedState State
	}{
		{"with reestablishment", true, SABMSent},
		{"without reestablishment", false, Idle},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			d, rec, clock := newTestDatalink(func(o *Options) { o.Reestablish = tc.reestablish })
			require.NoError(t, establish(d, rec))
			require.NoError(t, d.Data([]byte{1}))

			for i := 0; i < 3; i++ {
				d.Poll(clock.advance(time.Second))
			}

			assert.Equal(t, tc.expectedState, d.State())
			assert.Equal(t, []MDLCause{CauseT200Expired}, rec.mdlErrors())
			assert.Len(t, rec.framesOf(FormatI), 3)
			if tc.reestablish {
				assert.Equal(t, USABM, rec.lastFrame().SU)
			} else {
				assert.Equal(t, DLPrim{Prim: DLRelease, Op: Indication}, rec.lastPrim())
				assert.False(t, d.T200Pending())
				assert.Equal(t, 0, d.Outstanding())
				assert.Equal(t, 0, d.Queued())
			}
		})
	}
}

func TestT203Supervision(t *testing.T) {
	d, rec, clock := newTestDatalink(func(o *Options) { o.T203 = 10 * time.Second })
	require.NoError(t, establish(d, rec))
	assert.True(t, d.T203Pending())

	deadline, ok := d.NextDeadline()
	assert.True(t, ok)
	assert.Equal(t, clock.now.Add(10*time.Second), deadline)

	d.Poll(clock.advance(10 * time.Second))
	assert.Equal(t, TimerRecov, d.State())
	poll := rec.lastFrame()
	assert.Equal(t, SRR, poll.SU)
	assert.Equal(t, CRUser2NetCmd, poll.CR)
	assert.True(t, poll.PF)
	assert.True(t, d.T200Pending())
	assert.False(t, d.T203Pending())
}

func TestSuspendResume(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, establish(d, rec))

	data := testData(45)
	require.NoError(t, d.Data(data))
	require.NoError(t, d.Suspend())
	assert.False(t, d.T200Pending())
	assert.Equal(t, DLPrim{Prim: DLSuspend, Op: Confirm}, rec.lastPrim())
	assert.Equal(t, 1, d.Queued())

	rec.reset()
	require.NoError(t, d.Resume(nil))
	assert.Equal(t, SABMSent, d.State())
	assert.Equal(t, USABM, rec.lastFrame().SU)
	assert.Equal(t, 0, rec.lastFrame().Length)

	require.NoError(t, d.Receive(netUA(nil)))
	assert.Equal(t, MFEst, d.State())
	iframes := rec.framesOf(FormatI)
	require.Len(t, iframes, 1)
	assert.Equal(t, uint8(0), iframes[0].NS)
	assert.Equal(t, data[:20], iframes[0].Payload)
	assert.Equal(t, DLPrim{Prim: DLEstablish, Op: Confirm}, rec.lastPrim())
}

func TestReconnect(t *testing.T) {
	d, rec, _ := newTestDatalink()
	require.NoError(t, d.Reconnect([]byte{9, 8, 7}))
	assert.Equal(t, SABMSent, d.State())

	require.NoError(t, d.Receive(netUA(nil)))
	iframes := rec.framesOf(FormatI)
	require.Len(t, iframes, 1)
	assert.Equal(t, []byte{9, 8, 7}, iframes[0].Payload)
}

func TestNetworkMode(t *testing.T) {
	d, rec, _ := newTestDatalink(func(o *Options) { o.Mode = ModeNetwork })

	require.NoError(t, d.Receive(Msg{Format: FormatU, SU: USABM, CR: CRUser2NetCmd, PF: true, Length: 2, Payload: []byte{1, 2}}))
	assert.Equal(t, MFEst, d.State())
	ua := rec.lastFrame()
	assert.Equal(t, CRNet2UserResp, ua.CR)
	assert.Equal(t, []byte{1, 2}, ua.Payload)
	assert.Equal(t, DLPrim{Prim: DLEstablish, Op: Indication, Payload: []byte{1, 2}}, rec.lastPrim())

	// a repeated SABM with different content is ignored
	rec.reset()
	require.NoError(t, d.Receive(Msg{Format: FormatU, SU: USABM, CR: CRUser2NetCmd, PF: true, Length: 2, Payload: []byte{1, 3}}))
	assert.Empty(t, rec.frames)

	// a repeated SABM with the same content is answered again
	require.NoError(t, d.Receive(Msg{Format: FormatU, SU: USABM, CR: CRUser2NetCmd, PF: true, Length: 2, Payload: []byte{1, 2}}))
	assert.Equal(t, UUA, rec.lastFrame().SU)
	assert.Empty(t, rec.prims)
}

func TestWindowProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.Uint8Range(1, 7).Draw(t, "k")
		d, rec, _ := newTestDatalink(func(o *Options) { o.K = k })
		require.NoError(t, establish(d, rec))

		for step := 0; step < 40; step++ {
			if rapid.Bool().Draw(t, "data") {
				length := rapid.IntRange(1, 60).Draw(t, "length")
				require.NoError(t, d.Data(testData(length)))
			} else {
				vs, va, _ := d.SequenceState()
				acked := rapid.IntRange(0, int(subMod(vs, va, 8))).Draw(t, "acked")
				require.NoError(t, d.Receive(netRR(uint8(int(va)+acked)&7, false)))
			}
			if d.Outstanding() > int(k) {
				t.Fatalf("%d frames outstanding with k=%d", d.Outstanding(), k)
			}
		}

		ns := uint8(0)
		for _, frame := range rec.framesOf(FormatI) {
			if frame.NS != ns {
				t.Fatalf("unexpected N(S) %d, expected %d", frame.NS, ns)
			}
			if frame.Length == 0 || frame.Length > 20 {
				t.Fatalf("invalid I frame length %d", frame.Length)
			}
			ns = (ns + 1) & 7
		}
		if len(rec.mdlErrors()) > 0 {
			t.Fatalf("unexpected MDL errors: %v", rec.mdlErrors())
		}
	})
}
