package stack

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/gsmtap"
	"github.com/ftl/gsm-ms/l1ctl"
	"github.com/ftl/gsm-ms/l1gprs"
	"github.com/ftl/gsm-ms/lapd"
	"github.com/ftl/gsm-ms/lapdm"
	"github.com/ftl/gsm-ms/sched"
)

type sentMessages struct {
	lock sync.Mutex
	msgs []l1ctl.Message
}

func (s *sentMessages) Send(msg l1ctl.Message) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

type exported struct {
	hdr     gsmtap.GSMTAP
	payload []byte
}

type exportRecorder struct {
	packets []exported
}

func (r *exportRecorder) Send(hdr *gsmtap.GSMTAP, payload []byte) error {
	r.packets = append(r.packets, exported{hdr: *hdr, payload: append([]byte{}, payload...)})
	return nil
}

func (r *exportRecorder) Close() error {
	return nil
}

type testStack struct {
	*Stack
	sent     *sentMessages
	gsmtap   *exportRecorder
	prims    []lapdm.Primitive
	gprsMsgs [][]byte
}

func newTestStack(options ...Option) *testStack {
	result := &testStack{
		sent:   &sentMessages{},
		gsmtap: &exportRecorder{},
	}
	options = append([]Option{
		WithGSMTAP(result.gsmtap),
		WithL3Callback(func(prim lapdm.Primitive) { result.prims = append(result.prims, prim) }),
		WithGPRSCallback(func(msg []byte) { result.gprsMsgs = append(result.gprsMsgs, msg) }),
	}, options...)
	result.Stack = New(result.sent, options...)
	return result
}

func dataInd(chanNr gsm.ChanNr, linkID gsm.LinkID, fn uint32, data ...byte) []byte {
	msg := l1ctl.DataInd{Info: l1ctl.InfoDL{
		ChanNr:    chanNr,
		LinkID:    linkID,
		BandARFCN: gsm.NewBandARFCN(42, false, false),
		FN:        fn,
		RxLevel:   40,
	}}
	copy(msg.Data[:], lapdm.Pad(data, gsm.MacBlockLen))
	return l1ctl.Marshal(msg, 0)
}

func TestDataIndOnBCCH(t *testing.T) {
	s := newTestStack()

	err := s.HandleL1CTL(dataInd(gsm.ChanNrBCCH(0), 0, 1234, 0x55, 0x06, 0x19))

	require.NoError(t, err)
	require.Len(t, s.prims, 1)
	assert.Equal(t, lapd.DLUnitData, s.prims[0].Prim)
	assert.Equal(t, lapd.Indication, s.prims[0].Op)
	assert.Equal(t, []byte{0x55, 0x06, 0x19}, s.prims[0].Payload[:3])
	assert.Equal(t, uint32(1234), s.FN())

	require.Len(t, s.gsmtap.packets, 1)
	assert.Equal(t, gsmtap.ChannelBCCH, s.gsmtap.packets[0].hdr.SubType)
	assert.Equal(t, int8(-70), s.gsmtap.packets[0].hdr.SignalDBm)
	assert.Len(t, s.gsmtap.packets[0].payload, gsm.MacBlockLen)
}

func TestDataIndWithCRCError(t *testing.T) {
	s := newTestStack()
	msg := l1ctl.DataInd{Info: l1ctl.InfoDL{ChanNr: gsm.ChanNrBCCH(0), FireCRC: 2}}

	err := s.HandleL1CTL(l1ctl.Marshal(msg, 0))

	require.NoError(t, err)
	assert.Empty(t, s.prims)
	assert.Empty(t, s.gsmtap.packets)
}

func TestEstablishSendsDataReq(t *testing.T) {
	s := newTestStack()
	sdcch := gsm.ChanNrSDCCH4(0, 1)

	err := s.WithChannel(func(c *lapdm.Channel) error {
		return c.Establish(sdcch, gsm.NewLinkID(lapdm.SAPINormal, false), nil)
	})

	require.NoError(t, err)
	require.Len(t, s.sent.msgs, 1)
	req, ok := s.sent.msgs[0].(l1ctl.DataReq)
	require.True(t, ok)
	assert.Equal(t, sdcch, req.Info.ChanNr)
	assert.Equal(t, lapdm.CtrlU(lapd.USABM, true), req.Data[1])

	require.Len(t, s.gsmtap.packets, 1)
	assert.True(t, s.gsmtap.packets[0].hdr.Uplink())
	assert.Equal(t, gsmtap.ChannelSDCCH4, s.gsmtap.packets[0].hdr.SubType)
}

func TestEstablishmentTimeoutIsDeliveredUpward(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStack(WithClock(func() time.Time { return now }), WithLAPDm(lapdm.WithT200(0, 100*time.Millisecond)))
	sdcch := gsm.ChanNrSDCCH4(0, 1)

	require.NoError(t, s.WithChannel(func(c *lapdm.Channel) error {
		return c.Establish(sdcch, gsm.NewLinkID(lapdm.SAPINormal, false), nil)
	}))
	for i := 0; i <= lapdm.N200EstRel; i++ {
		now = now.Add(100 * time.Millisecond)
		require.NoError(t, s.Advance())
	}

	require.NotEmpty(t, s.prims)
	assert.Equal(t, lapd.DLRelease, s.prims[0].Prim)
	assert.Equal(t, lapd.Indication, s.prims[0].Op)
}

func TestRetryExhaustionReleasesDatalink(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStack(WithClock(func() time.Time { return now }), WithLAPDm(lapdm.WithT200(0, 100*time.Millisecond), lapdm.WithN200(2)))
	sdcch := gsm.ChanNrSDCCH4(0, 1)
	sapi0 := gsm.NewLinkID(lapdm.SAPINormal, false)

	require.NoError(t, s.WithChannel(func(c *lapdm.Channel) error {
		return c.Establish(sdcch, sapi0, nil)
	}))
	ua := []byte{lapdm.Addr(lapdm.LPDNormal, lapdm.SAPINormal, lapd.CRNet2UserResp), lapdm.CtrlU(lapd.UUA, true), lapdm.Len(0, false)}
	require.NoError(t, s.HandleL1CTL(dataInd(sdcch, sapi0, 100, ua...)))
	require.NoError(t, s.WithChannel(func(c *lapdm.Channel) error {
		return c.Data(sapi0, []byte{0x05, 0x08})
	}))
	s.prims = nil

	for i := 0; i < 4; i++ {
		now = now.Add(100 * time.Millisecond)
		require.NoError(t, s.Advance())
	}

	require.Len(t, s.prims, 2)
	assert.Equal(t, lapd.MDLError, s.prims[0].Prim)
	assert.Equal(t, lapd.CauseT200Expired, s.prims[0].Cause)
	assert.Equal(t, lapd.DLRelease, s.prims[1].Prim)
	assert.Equal(t, lapd.Indication, s.prims[1].Op)
	require.NoError(t, s.WithChannel(func(c *lapdm.Channel) error {
		assert.Equal(t, lapd.Idle, c.DCCH().DatalinkForSAPI(lapdm.SAPINormal).State())
		return nil
	}))
}

func TestResetInd(t *testing.T) {
	s := newTestStack()
	require.NoError(t, s.GSMTime().Schedule(100, sched.Set{sched.Command(sched.OpRxNormalBurst, 0, 0, 0), sched.EndSet()}, 0))
	s.Mframe().Enable(sched.TaskBCCHNorm)
	require.NoError(t, s.HandleL1CTL(l1ctl.Marshal(l1ctl.FBSBConf{Info: l1ctl.InfoDL{BandARFCN: 42}, BSIC: 7}, 0)))
	_, _, synced := s.Cell()
	require.True(t, synced)

	err := s.HandleL1CTL(l1ctl.Marshal(l1ctl.Reset{Type: l1ctl.MsgResetInd, ResetType: 1}, 0))

	require.NoError(t, err)
	assert.Equal(t, 0, s.GSMTime().Len())
	assert.Equal(t, uint32(0), s.Mframe().Target())
	_, _, synced = s.Cell()
	assert.False(t, synced)
}

func TestFBSBConf(t *testing.T) {
	s := newTestStack()

	err := s.HandleL1CTL(l1ctl.Marshal(l1ctl.FBSBConf{Info: l1ctl.InfoDL{BandARFCN: 871, FN: 500}, BSIC: 0x3f}, 0))

	require.NoError(t, err)
	arfcn, bsic, synced := s.Cell()
	assert.True(t, synced)
	assert.Equal(t, gsm.BandARFCN(871), arfcn)
	assert.Equal(t, uint8(0x3f), bsic)
	assert.Equal(t, uint32(500), s.FN())

	require.NoError(t, s.HandleL1CTL(l1ctl.Marshal(l1ctl.FBSBConf{Result: 255}, 0)))
	_, _, synced = s.Cell()
	assert.False(t, synced)
}

func TestTickExecutesGSMTimeEvents(t *testing.T) {
	var executed []uint32
	var s *testStack
	s = newTestStack(WithExecutor(sched.ExecutorFunc(func(item sched.Item, p3 uint16) error {
		if item.Op == sched.OpRxNormalBurst {
			executed = append(executed, s.fn)
		}
		return nil
	})))
	set := sched.Set{sched.Command(sched.OpRxNormalBurst, 0, 0, 0), sched.EndSet()}
	require.NoError(t, s.GSMTime().Schedule(102, set, 0))

	for fn := uint32(100); fn < 105; fn++ {
		require.NoError(t, s.Tick(fn))
	}

	assert.Equal(t, []uint32{101}, executed)
	assert.Equal(t, 0, s.GSMTime().Len())
	assert.Equal(t, uint32(104), s.FN())
}

func TestGPRSDownlink(t *testing.T) {
	s := newTestStack()
	cfg := l1ctl.GPRSDLTBFCfgReq{TBFRef: 1, Slotmask: 0x08, DLTFI: 5, StartFN: l1gprs.StartFNNone}
	require.NoError(t, s.HandleL1CTL(l1ctl.Marshal(cfg, 0)))

	block := make([]byte, 23)
	block[0] = 0x03
	block[1] = 5 << 1
	err := s.HandleL1CTL(l1ctl.Marshal(l1ctl.GPRSDLBlockInd{FN: 20, TN: 3, Data: block}, 0))

	require.NoError(t, err)
	require.Len(t, s.gprsMsgs, 1)
	_, msg, err := l1ctl.Parse(s.gprsMsgs[0])
	require.NoError(t, err)
	ind := msg.(l1ctl.GPRSDLBlockInd)
	assert.Equal(t, uint8(3), ind.USF)
	assert.Equal(t, block, ind.Data)

	require.Len(t, s.gsmtap.packets, 1)
	assert.Equal(t, gsmtap.ChannelPDTCH, s.gsmtap.packets[0].hdr.SubType)
	assert.Equal(t, uint8(3), s.gsmtap.packets[0].hdr.Timeslot)

	s.WithGPRS(func(state *l1gprs.State) {
		assert.True(t, state.PDCH(3).Active())
	})
}

func TestGPRSBlockWithoutTBF(t *testing.T) {
	s := newTestStack()

	err := s.HandleL1CTL(l1ctl.Marshal(l1ctl.GPRSDLBlockInd{FN: 20, TN: 3, Data: make([]byte, 23)}, 0))

	assert.ErrorIs(t, err, l1gprs.ErrNoTBF)
	assert.Empty(t, s.gprsMsgs)
}

func TestSendGPRSBlock(t *testing.T) {
	s := newTestStack()
	req := l1ctl.GPRSULBlockReq{FN: 30, TN: 2, Data: make([]byte, 23)}

	err := s.SendGPRSBlock(req)
	assert.ErrorIs(t, err, l1gprs.ErrNoTBF)

	cfg := l1ctl.GPRSULTBFCfgReq{TBFRef: 1, Slotmask: 0x04, StartFN: l1gprs.StartFNNone}
	require.NoError(t, s.HandleL1CTL(l1ctl.Marshal(cfg, 0)))
	require.NoError(t, s.Tick(29))

	err = s.SendGPRSBlock(req)
	require.NoError(t, err)
	require.Len(t, s.sent.msgs, 1)
	assert.Equal(t, req, s.sent.msgs[0])
}

func TestUnparsableMessage(t *testing.T) {
	s := newTestStack()

	err := s.HandleL1CTL([]byte{byte(l1ctl.MsgDataInd), 0, 0})

	assert.ErrorIs(t, err, l1ctl.ErrShortMessage)
}

func TestNoSender(t *testing.T) {
	s := New(nil)

	err := s.WithChannel(func(c *lapdm.Channel) error {
		return c.ChannelRequest(lapdm.RachRequest{RA: 0x23})
	})

	assert.ErrorIs(t, err, ErrNoSender)
}

func TestChannelRequestSendsRACHReq(t *testing.T) {
	s := newTestStack()

	err := s.WithChannel(func(c *lapdm.Channel) error {
		return c.ChannelRequest(lapdm.RachRequest{RA: 0x23, Offset: 10, Combined: true})
	})

	require.NoError(t, err)
	require.Len(t, s.sent.msgs, 1)
	assert.Equal(t, l1ctl.RACHReq{
		Info:     l1ctl.InfoUL{ChanNr: gsm.ChanRACH},
		RA:       0x23,
		Combined: true,
		Offset:   10,
	}, s.sent.msgs[0])
}
