/*
The package serial connects to the layer 1 firmware of a Calypso based phone through its serial line.
*/
package serial

import (
	"errors"
	"io"

	"github.com/jacobsa/go-serial/serial"

	"github.com/ftl/gsm-ms/com"
)

// DefaultBaudRate is the baud rate of the layer 1 firmware images.
const DefaultBaudRate = 115200

var ErrNoPhoneFound = errors.New("no phone found")

// Open connects to the phone at the given port.
func Open(portName string, baudRate uint, options ...com.Option) (*com.Link, io.Closer, error) {
	device, err := openSerial(portName, baudRate)
	if err != nil {
		return nil, nil, err
	}

	options = append([]com.Option{com.WithFraming(NewSercomm())}, options...)
	return com.New(device, options...), device, nil
}

// OpenWithTrace connects to the phone at the given port and traces all communications to the
// given writer.
func OpenWithTrace(portName string, baudRate uint, tracer io.Writer, options ...com.Option) (*com.Link, io.Closer, error) {
	device, err := openSerial(portName, baudRate)
	if err != nil {
		return nil, nil, err
	}

	options = append([]com.Option{com.WithFraming(NewSercomm())}, options...)
	return com.NewWithTrace(device, tracer, options...), device, nil
}

func openSerial(portName string, baudRate uint) (io.ReadWriteCloser, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	portConfig := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		RTSCTSFlowControl:     false,
		MinimumReadSize:       1,
		InterCharacterTimeout: 100,
	}

	return serial.Open(portConfig)
}
