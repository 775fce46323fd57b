/*
The package gsm0480 implements the supplementary service messages of GSM 04.80 that are used for USSD
and notifications, and the text encodings that they use.
*/
package gsm0480

import (
	"errors"
	"fmt"
)

var (
	ErrTooShort              = errors.New("message too short")
	ErrTooLong               = errors.New("message too long")
	ErrTruncated             = errors.New("element does not fit")
	ErrNotSS                 = errors.New("not a supplementary service message")
	ErrUnexpectedTag         = errors.New("unexpected tag")
	ErrUnsupportedMsgType    = errors.New("unsupported message type")
	ErrUnsupportedIE         = errors.New("unsupported information element")
	ErrUnsupportedComponent  = errors.New("unsupported component type")
	ErrUnsupportedOperation  = errors.New("unsupported operation")
	ErrUnsupportedDCS        = errors.New("unsupported data coding scheme")
	ErrMissingOperationCode  = errors.New("missing operation code")
	ErrMalformedSSParameters = errors.New("malformed SS parameters")
)

// PDiscNCSS is the protocol discriminator of non call related supplementary services.
const PDiscNCSS byte = 0x0b

// Message types
const (
	MsgReleaseComplete byte = 0x2a
	MsgFacility        byte = 0x3a
	MsgRegister        byte = 0x3b
)

// Information elements
const (
	IECause     byte = 0x08
	IEFacility  byte = 0x1c
	IESSVersion byte = 0x7f
)

// Component types
const (
	ComponentInvoke       byte = 0xa1
	ComponentReturnResult byte = 0xa2
	ComponentReturnError  byte = 0xa3
	ComponentReject       byte = 0xa4
)

// Tags within components
const (
	TagInvokeID      byte = 0x02
	TagLinkedID      byte = 0x80
	TagOperationCode byte = 0x02
	TagSequence      byte = 0x30
	TagOctetString   byte = 0x04
)

// Operation codes
const (
	OpRegisterSS            byte = 0x0a
	OpEraseSS               byte = 0x0b
	OpActivateSS            byte = 0x0c
	OpDeactivateSS          byte = 0x0d
	OpInterrogateSS         byte = 0x0e
	OpNotifySS              byte = 0x10
	OpProcessUSSData        byte = 0x13
	OpProcessUSSRequest     byte = 0x3b
	OpUnstructuredSSRequest byte = 0x3c
	OpUnstructuredSSNotify  byte = 0x3d
)

const (
	// MaxUSSDOctets is the maximum length of an encoded USSD string.
	MaxUSSDOctets = 160
	// MaxNotifySSLength is the maximum number of characters of a calling name.
	MaxNotifySSLength = 160

	ssCodeCNAP   byte = 0x19
	tiDirection  byte = 0x80
	maxTLVLength      = 0xff
)

func wrapTL(tag byte, data []byte) ([]byte, error) {
	if len(data) > maxTLVLength {
		return nil, fmt.Errorf("%w: %d bytes in %02x", ErrTooLong, len(data), tag)
	}
	result := make([]byte, 0, len(data)+2)
	result = append(result, tag, byte(len(data)))
	return append(result, data...), nil
}

func tlv1(bytes []byte, tag byte, value byte) []byte {
	return append(bytes, tag, 1, value)
}

func encodeUSSDString(text string) ([]byte, error) {
	result, err := Encode7BitUSSD(text)
	if err != nil {
		return nil, err
	}
	if len(result) > MaxUSSDOctets {
		return nil, fmt.Errorf("%w: USSD string with %d octets", ErrTooLong, len(result))
	}
	return result, nil
}

// WrapInvoke wraps the given operation arguments into an invoke component.
func WrapInvoke(msg []byte, op byte, invokeID byte) ([]byte, error) {
	component := make([]byte, 0, len(msg)+6)
	component = tlv1(component, TagInvokeID, invokeID)
	component = tlv1(component, TagOperationCode, op)
	component = append(component, msg...)
	return wrapTL(ComponentInvoke, component)
}

// WrapFacility wraps the given components into the facility information element.
func WrapFacility(msg []byte) ([]byte, error) {
	return wrapTL(IEFacility, msg)
}

// CreateUnstructuredSSNotify encodes the arguments of the UnstructuredSS-Notify operation with the
// given alerting pattern and text.
func CreateUnstructuredSSNotify(alertPattern byte, text string) ([]byte, error) {
	ussdString, err := encodeUSSDString(text)
	if err != nil {
		return nil, err
	}

	sequence := make([]byte, 0, len(ussdString)+8)
	sequence = tlv1(sequence, TagOctetString, DCSDefault)
	sequence = append(sequence, TagOctetString, byte(len(ussdString)))
	sequence = append(sequence, ussdString...)
	sequence = tlv1(sequence, TagOctetString, alertPattern)

	return wrapTL(TagSequence, sequence)
}

// Notify is the content of an UnstructuredSS-Notify.
type Notify struct {
	DCS             byte
	Text            string
	AlertPattern    byte
	HasAlertPattern bool
}

// ParseUnstructuredSSNotify decodes the arguments of the UnstructuredSS-Notify operation.
func ParseUnstructuredSSNotify(bytes []byte) (Notify, error) {
	sequence, _, err := readTLV(bytes, TagSequence)
	if err != nil {
		return Notify{}, err
	}

	dcs, rest, err := readTLV(sequence, TagOctetString)
	if err != nil {
		return Notify{}, err
	}
	if len(dcs) != 1 {
		return Notify{}, fmt.Errorf("%w: DCS with %d bytes", ErrUnsupportedDCS, len(dcs))
	}
	ussdString, rest, err := readTLV(rest, TagOctetString)
	if err != nil {
		return Notify{}, err
	}

	result := Notify{DCS: dcs[0]}
	result.Text, err = DecodeUSSDString(result.DCS, ussdString)
	if err != nil {
		return Notify{}, err
	}

	if len(rest) == 0 {
		return result, nil
	}
	alertPattern, _, err := readTLV(rest, TagOctetString)
	if err != nil {
		return Notify{}, err
	}
	if len(alertPattern) != 1 {
		return Notify{}, fmt.Errorf("alerting pattern with %d bytes: %w", len(alertPattern), ErrTruncated)
	}
	result.AlertPattern = alertPattern[0]
	result.HasAlertPattern = true

	return result, nil
}

func readTLV(bytes []byte, tag byte) (value []byte, rest []byte, err error) {
	if len(bytes) < 2 {
		return nil, nil, fmt.Errorf("%w: %d", ErrTooShort, len(bytes))
	}
	if bytes[0] != tag {
		return nil, nil, fmt.Errorf("%w: %02x instead of %02x", ErrUnexpectedTag, bytes[0], tag)
	}
	length := int(bytes[1])
	if len(bytes) < 2+length {
		return nil, nil, fmt.Errorf("%w: %02x needs %d bytes, got %d", ErrTruncated, tag, length, len(bytes)-2)
	}
	return bytes[2 : 2+length], bytes[2+length:], nil
}

// CreateUSSDResponse creates the RELEASE COMPLETE message that answers a USSD request with the given
// text. The transaction ID is expected in bits 5-7 as it is received in the request.
func CreateUSSDResponse(invokeID byte, transactionID byte, text string) ([]byte, error) {
	ussdString, err := encodeUSSDString(text)
	if err != nil {
		return nil, err
	}

	arguments := tlv1(nil, TagOctetString, DCSDefault)
	arguments = append(arguments, TagOctetString, byte(len(ussdString)))
	arguments = append(arguments, ussdString...)
	arguments, err = wrapTL(TagSequence, arguments)
	if err != nil {
		return nil, err
	}

	result := tlv1(nil, TagOperationCode, OpProcessUSSRequest)
	result, err = wrapTL(TagSequence, append(result, arguments...))
	if err != nil {
		return nil, err
	}
	result, err = wrapTL(ComponentReturnResult, append(tlv1(nil, TagInvokeID, invokeID), result...))
	if err != nil {
		return nil, err
	}
	result, err = WrapFacility(result)
	if err != nil {
		return nil, err
	}

	hdr := []byte{PDiscNCSS | (transactionID & 0x70) | tiDirection, MsgReleaseComplete}
	return append(hdr, result...), nil
}

// CreateNotifySS encodes the arguments of the NotifySS operation that presents the given calling
// name.
func CreateNotifySS(text string) ([]byte, error) {
	if len(text) < 1 || len(text) > MaxNotifySSLength {
		return nil, fmt.Errorf("%w: calling name with %d characters", ErrTooLong, len(text))
	}
	nameString, err := encodeUSSDString(text)
	if err != nil {
		return nil, err
	}

	// namePresentationAllowed
	name := make([]byte, 0, len(nameString)+8)
	name = tlv1(name, 0x80, DCSDefault)
	name = tlv1(name, 0x81, byte(len(text)))
	name = append(name, 0x82, byte(len(nameString)))
	name = append(name, nameString...)

	// callingName
	name, err = wrapTL(0xa0, name)
	if err != nil {
		return nil, err
	}
	name, err = wrapTL(0xa0, name)
	if err != nil {
		return nil, err
	}
	// nameIndicator
	name, err = wrapTL(0xb4, name)
	if err != nil {
		return nil, err
	}

	sequence := tlv1(nil, 0x81, ssCodeCNAP)
	return wrapTL(TagSequence, append(sequence, name...))
}
