package gsm0480

import "fmt"

// SSRequest is a mobile originated supplementary service request.
type SSRequest struct {
	TransactionID   byte // bits 5-7 of the first octet
	MsgType         byte
	InvokeID        byte
	Opcode          byte
	SSCode          byte
	DCS             byte
	USSDText        string
	ReleaseComplete bool
}

const l3HdrLen = 2

// DecodeSSRequest decodes a layer 3 supplementary service message. Only the first information
// element is evaluated, which is the facility in REGISTER and FACILITY messages.
func DecodeSSRequest(bytes []byte) (SSRequest, error) {
	if len(bytes) < l3HdrLen+2 {
		return SSRequest{}, fmt.Errorf("SS request too short: %d: %w", len(bytes), ErrTooShort)
	}
	if bytes[0]&0x0f != PDiscNCSS {
		return SSRequest{}, fmt.Errorf("%w: protocol discriminator %x", ErrNotSS, bytes[0]&0x0f)
	}

	result := SSRequest{
		TransactionID: bytes[0] & 0x70,
		MsgType:       bytes[1] & 0xbf,
	}
	switch result.MsgType {
	case MsgReleaseComplete:
		result.ReleaseComplete = true
		return result, nil
	case MsgRegister, MsgFacility:
		err := result.parseInfoElement(bytes[l3HdrLen:])
		return result, err
	default:
		return result, fmt.Errorf("%w: %02x", ErrUnsupportedMsgType, bytes[1])
	}
}

func (r *SSRequest) parseInfoElement(bytes []byte) error {
	iei := bytes[0]
	length := int(bytes[1])
	if len(bytes)-2 < length {
		return fmt.Errorf("%w: IE %02x needs %d bytes, got %d", ErrTruncated, iei, length, len(bytes)-2)
	}

	switch iei {
	case IECause, IESSVersion:
		return nil
	case IEFacility:
		return r.parseFacility(bytes[2 : 2+length])
	default:
		return fmt.Errorf("%w: %02x", ErrUnsupportedIE, iei)
	}
}

func (r *SSRequest) parseFacility(bytes []byte) error {
	for offset := 0; offset+2 <= len(bytes); {
		componentType := bytes[offset]
		length := int(bytes[offset+1])
		if offset+2+length > len(bytes) {
			return fmt.Errorf("%w: component %02x", ErrTruncated, componentType)
		}

		switch componentType {
		case ComponentInvoke:
			err := r.parseInvoke(bytes[offset+2 : offset+2+length])
			if err != nil {
				return err
			}
		case ComponentReturnResult, ComponentReturnError, ComponentReject:
		default:
			return fmt.Errorf("%w: %02x", ErrUnsupportedComponent, componentType)
		}
		offset += length + 2
	}
	return nil
}

func (r *SSRequest) parseInvoke(bytes []byte) error {
	if len(bytes) < 3 {
		return fmt.Errorf("invoke component too short: %d: %w", len(bytes), ErrTooShort)
	}
	if bytes[0] != TagInvokeID {
		return fmt.Errorf("%w: %02x instead of invoke ID", ErrUnexpectedTag, bytes[0])
	}
	offset := int(bytes[1]) + 2
	r.InvokeID = bytes[2]

	if offset >= len(bytes) {
		return ErrMissingOperationCode
	}
	if bytes[offset] == TagLinkedID {
		if offset+1 >= len(bytes) {
			return fmt.Errorf("%w: linked ID", ErrTruncated)
		}
		offset += int(bytes[offset+1]) + 2
		if offset >= len(bytes) {
			return ErrMissingOperationCode
		}
	}

	if bytes[offset] != TagOperationCode {
		return fmt.Errorf("%w: %02x instead of operation code", ErrUnexpectedTag, bytes[offset])
	}
	if offset+3 > len(bytes) {
		return fmt.Errorf("%w: operation code", ErrTruncated)
	}
	r.Opcode = bytes[offset+2]
	arguments := bytes[offset+3:]

	switch r.Opcode {
	case OpProcessUSSRequest:
		return r.parseProcessUSSRequest(arguments)
	case OpActivateSS, OpDeactivateSS, OpInterrogateSS:
		return r.parseSSForBSCode(arguments)
	default:
		return fmt.Errorf("%w: %02x", ErrUnsupportedOperation, r.Opcode)
	}
}

func (r *SSRequest) parseProcessUSSRequest(bytes []byte) error {
	sequence, _, err := readTLV(bytes, TagSequence)
	if err != nil {
		return err
	}
	dcs, rest, err := readTLV(sequence, TagOctetString)
	if err != nil {
		return err
	}
	if len(dcs) != 1 {
		return fmt.Errorf("%w: DCS with %d bytes", ErrUnsupportedDCS, len(dcs))
	}
	ussdString, _, err := readTLV(rest, TagOctetString)
	if err != nil {
		return err
	}

	r.DCS = dcs[0]
	r.USSDText, err = DecodeUSSDString(r.DCS, ussdString)
	return err
}

func (r *SSRequest) parseSSForBSCode(bytes []byte) error {
	if len(bytes) < 5 {
		return fmt.Errorf("SS-ForBS-Code too short: %d: %w", len(bytes), ErrTooShort)
	}
	if bytes[0] != TagSequence || bytes[2] != TagOctetString || bytes[3] != 1 {
		return ErrMalformedSSParameters
	}
	r.SSCode = bytes[4]
	return nil
}
