package gsmtap

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapshotLen = 65536

// Sink receives GSMTAP packets.
type Sink interface {
	Send(hdr *GSMTAP, payload []byte) error
	Close() error
}

// Sinks sends every packet to all contained sinks.
type Sinks []Sink

func (s Sinks) Send(hdr *GSMTAP, payload []byte) error {
	var errs []error
	for _, sink := range s {
		errs = append(errs, sink.Send(hdr, payload))
	}
	return errors.Join(errs...)
}

func (s Sinks) Close() error {
	var errs []error
	for _, sink := range s {
		errs = append(errs, sink.Close())
	}
	return errors.Join(errs...)
}

// Serialize returns the GSMTAP header followed by the payload.
func Serialize(hdr *GSMTAP, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, hdr, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UDPSink sends GSMTAP packets to a remote host.
type UDPSink struct {
	conn net.Conn
}

// DialUDP connects to the given remote address. The GSMTAP port is used if the address contains no port.
func DialUDP(remote string) (*UDPSink, error) {
	if _, _, err := net.SplitHostPort(remote); err != nil {
		remote = net.JoinHostPort(remote, strconv.Itoa(Port))
	}
	conn, err := net.Dial("udp", remote)
	if err != nil {
		return nil, fmt.Errorf("cannot open GSMTAP socket: %w", err)
	}
	return &UDPSink{conn: conn}, nil
}

func (s *UDPSink) Send(hdr *GSMTAP, payload []byte) error {
	bytes, err := Serialize(hdr, payload)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(bytes)
	return err
}

func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// PcapWriter writes GSMTAP packets as UDP/IPv4 datagrams into a pcap file.
type PcapWriter struct {
	lock   sync.Mutex
	writer *pcapgo.Writer
	closer io.Closer
	clock  func() time.Time
	addr   net.IP
}

// CreatePcapFile creates or truncates the given file and writes the pcap file header.
func CreatePcapFile(filename string) (*PcapWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot create pcap file: %w", err)
	}
	result, err := NewPcapWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	result.closer = f
	return result, nil
}

// NewPcapWriter writes the pcap file header to the given writer.
func NewPcapWriter(w io.Writer) (*PcapWriter, error) {
	writer := pcapgo.NewWriter(w)
	err := writer.WriteFileHeader(snapshotLen, layers.LinkTypeRaw)
	if err != nil {
		return nil, fmt.Errorf("cannot write pcap header: %w", err)
	}
	return &PcapWriter{
		writer: writer,
		clock:  time.Now,
		addr:   net.IPv4(127, 0, 0, 1),
	}, nil
}

func (w *PcapWriter) Send(hdr *GSMTAP, payload []byte) error {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    w.addr,
		DstIP:    w.addr,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(Port),
		DstPort: layers.UDPPort(Port),
	}
	udp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts, ip, udp, hdr, gopacket.Payload(payload))
	if err != nil {
		return err
	}
	data := buf.Bytes()

	w.lock.Lock()
	defer w.lock.Unlock()
	return w.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     w.clock(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

func (w *PcapWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
