package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ftl/gsm-ms/com"
	"github.com/ftl/gsm-ms/ctrl"
	"github.com/ftl/gsm-ms/gsm"
	"github.com/ftl/gsm-ms/gsm0480"
	"github.com/ftl/gsm-ms/gsmtap"
	"github.com/ftl/gsm-ms/l1ctl"
	"github.com/ftl/gsm-ms/lapd"
	"github.com/ftl/gsm-ms/lapdm"
	"github.com/ftl/gsm-ms/sched"
	"github.com/ftl/gsm-ms/serial"
	"github.com/ftl/gsm-ms/stack"
)

const requestTimeout = 5 * time.Second

// autoDetect as serial port looks for a connected phone.
const autoDetect = "auto"

var (
	configFile = pflag.StringP("config", "c", "", "YAML configuration file")
	socketPath = pflag.StringP("socket", "s", stack.DefaultSocketPath, "L1CTL unix socket of layer 1")
	serialPort = pflag.StringP("serial", "p", "", "serial port of the phone, \"auto\" to detect it")
	baudRate   = pflag.UintP("baud", "b", serial.DefaultBaudRate, "baud rate of the serial port")
	traceFile  = pflag.String("trace", "", "trace all L1CTL messages into this file")
	arfcn      = pflag.IntP("arfcn", "a", -1, "ARFCN of the cell to synchronize to")
	pcs        = pflag.Bool("pcs", false, "the ARFCN is in the PCS 1900 band")
	ccchMode   = pflag.String("ccch-mode", ctrl.CCCHCombined.String(), "CCCH mode of the cell: NON-COMBINED, COMBINED, COMBINED-CBCH")
	gsmtapAddr = pflag.StringP("gsmtap", "g", "", "send GSMTAP packets to this host")
	pcapFile   = pflag.String("pcap", "", "write GSMTAP packets into this pcap file")
	logLevel   = pflag.StringP("log-level", "l", "info", "log level: debug, info, warn, error")
	logFile    = pflag.String("log-file", "", "also write the log into this file")
	help       = pflag.BoolP("help", "h", false, "display this help text")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nConnects to the layer 1 of an osmocom-bb phone.\n\nOptions:\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot setup logging: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = run(ctx, cfg, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("gsm-ms failed", "error", err)
	}
}

func loadConfig() (stack.Config, error) {
	cfg := stack.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = stack.LoadConfig(*configFile)
		if err != nil {
			return stack.Config{}, err
		}
	}

	changed := pflag.CommandLine.Changed
	if changed("socket") {
		cfg.L1CTL.Socket = *socketPath
	}
	if changed("serial") {
		cfg.L1CTL.SerialPort = *serialPort
	}
	if changed("baud") {
		cfg.L1CTL.BaudRate = *baudRate
	}
	if changed("trace") {
		cfg.L1CTL.TraceFile = *traceFile
	}
	if changed("gsmtap") {
		cfg.GSMTAP.Remote = *gsmtapAddr
	}
	if changed("pcap") {
		cfg.GSMTAP.PcapFile = *pcapFile
	}
	if changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if changed("log-file") {
		cfg.Log.File = *logFile
	}

	return cfg, cfg.Validate()
}

func setupLogging(cfg stack.LogConfig) (*log.Logger, error) {
	var output io.Writer = os.Stderr
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		}
		output = io.MultiWriter(os.Stderr, rotator)
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(output, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	}), nil
}

func run(ctx context.Context, cfg stack.Config, logger *log.Logger) error {
	link, closer, err := openLink(cfg.L1CTL, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	var sinks gsmtap.Sinks
	defer func() { sinks.Close() }()
	if cfg.GSMTAP.Remote != "" {
		sink, err := gsmtap.DialUDP(cfg.GSMTAP.Remote)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if cfg.GSMTAP.PcapFile != "" {
		sink, err := gsmtap.CreatePcapFile(cfg.GSMTAP.PcapFile)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}

	options := []stack.Option{
		stack.WithLogger(logger.With("module", "stack")),
		stack.WithLAPDm(cfg.LAPDm.Options()...),
		stack.WithL3Callback(func(prim lapdm.Primitive) { logL3(logger, prim) }),
		stack.WithGPRSCallback(func(msg []byte) { logger.Debug("GPRS", "msg", gsm.BinaryToHex(msg)) }),
	}
	if len(sinks) > 0 {
		options = append(options, stack.WithGSMTAP(sinks))
	}
	ms := stack.New(link, options...)
	link.SetUnhandled(func(msg []byte) {
		err := ms.HandleL1CTL(msg)
		if err != nil {
			logger.Debug("cannot handle L1CTL message", "error", err)
		}
	})

	err = request(ctx, func(ctx context.Context) error {
		return ctrl.Reset(ctx, link, ctrl.ResetFull)
	})
	if err != nil {
		return fmt.Errorf("cannot reset layer 1: %w", err)
	}
	ms.Reset()
	logger.Info("layer 1 reset")

	if *arfcn >= 0 {
		err = syncToCell(ctx, link, ms, logger)
		if err != nil {
			return err
		}
	}

	go tickFrames(ctx, ms, logger)

	closed := make(chan struct{})
	go func() {
		link.WaitUntilClosed()
		close(closed)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-closed:
		return errors.New("connection to layer 1 closed")
	}
}

func openLink(cfg stack.L1CTLConfig, logger *log.Logger) (*com.Link, io.Closer, error) {
	linkOptions := []com.Option{com.WithLogger(logger.With("module", "l1ctl"))}
	var tracer io.WriteCloser
	if cfg.TraceFile != "" {
		f, err := os.Create(cfg.TraceFile)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot create trace file: %w", err)
		}
		tracer = f
	}

	if cfg.SerialPort != "" {
		portName := cfg.SerialPort
		if portName == autoDetect {
			var err error
			portName, err = serial.FindPhonePortName()
			if err != nil {
				return nil, nil, err
			}
		}
		logger.Info("connecting to phone", "port", portName, "baud", cfg.BaudRate)
		var link *com.Link
		var device io.Closer
		var err error
		if tracer != nil {
			link, device, err = serial.OpenWithTrace(portName, cfg.BaudRate, tracer, linkOptions...)
		} else {
			link, device, err = serial.Open(portName, cfg.BaudRate, linkOptions...)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open %s: %w", portName, err)
		}
		return link, closers{device, tracer}, nil
	}

	logger.Info("connecting to layer 1", "socket", cfg.Socket)
	conn, err := net.Dial("unix", cfg.Socket)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to %s: %w", cfg.Socket, err)
	}
	if tracer != nil {
		return com.NewWithTrace(conn, tracer, linkOptions...), closers{conn, tracer}, nil
	}
	return com.New(conn, linkOptions...), conn, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for _, closer := range c {
		if closer != nil {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

func request(ctx context.Context, f func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return f(ctx)
}

func syncToCell(ctx context.Context, link *com.Link, ms *stack.Stack, logger *log.Logger) error {
	mode, err := ctrl.CCCHModeByName(*ccchMode)
	if err != nil {
		return err
	}
	bandARFCN := gsm.NewBandARFCN(uint16(*arfcn), *pcs, false)

	var conf l1ctl.FBSBConf
	err = request(ctx, func(ctx context.Context) error {
		var err error
		conf, err = ctrl.SyncToCell(ctx, link, bandARFCN, mode, 0)
		return err
	})
	if err != nil {
		return fmt.Errorf("cannot synchronize to %s: %w", bandARFCN, err)
	}
	ms.Synchronized(conf)

	err = request(ctx, func(ctx context.Context) error {
		return ctrl.SetCCCHMode(ctx, link, mode)
	})
	if err != nil {
		return fmt.Errorf("cannot set CCCH mode: %w", err)
	}
	ms.Mframe().Enable(sched.TaskBCCHNorm)
	if mode == ctrl.CCCHNonCombined {
		ms.Mframe().Enable(sched.TaskCCCH)
	} else {
		ms.Mframe().Enable(sched.TaskCCCHComb)
	}
	logger.Info("camping on cell", "arfcn", bandARFCN, "bsic", conf.BSIC, "ccch", mode)
	return nil
}

func tickFrames(ctx context.Context, ms *stack.Stack, logger *log.Logger) {
	ticker := time.NewTicker(stack.FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ms.Advance()
			if err != nil {
				logger.Debug("frame tick failed", "fn", ms.FN(), "error", err)
			}
		}
	}
}

func logL3(logger *log.Logger, prim lapdm.Primitive) {
	if prim.Prim == lapd.MDLError {
		logger.Warn("data link error", "cause", prim.Cause, "chan", prim.Ctx.ChanNr)
		return
	}
	if len(prim.Payload) == 0 {
		logger.Info("L3", "prim", prim)
		return
	}
	if prim.Payload[0]&0x0f == gsm0480.PDiscNCSS {
		ss, err := gsm0480.DecodeSSRequest(prim.Payload)
		if err == nil {
			logger.Info("supplementary service", "type", fmt.Sprintf("0x%02x", ss.MsgType), "ussd", ss.USSDText, "release", ss.ReleaseComplete)
			return
		}
	}
	logger.Info("L3", "prim", prim, "data", gsm.BinaryToHex(prim.Payload))
}
