package l1ctl

import "context"

// Requester sends a request to layer 1 and returns the confirmations that belong to it. Requests
// without a confirmation return as soon as they are sent.
type Requester interface {
	Request(ctx context.Context, msg Message) ([]Message, error)
}

// RequesterFunc wraps a matching function into the Requester interface.
type RequesterFunc func(ctx context.Context, msg Message) ([]Message, error)

// Request calls the wrapped function.
func (f RequesterFunc) Request(ctx context.Context, msg Message) ([]Message, error) {
	return f(ctx, msg)
}

var confirmations = map[MsgType]MsgType{
	MsgResetReq:    MsgResetConf,
	MsgFBSBReq:     MsgFBSBConf,
	MsgPMReq:       MsgPMConf,
	MsgEchoReq:     MsgEchoConf,
	MsgCCCHModeReq: MsgCCCHModeConf,
	MsgTCHModeReq:  MsgTCHModeConf,
}

// ConfirmFor returns the type of the message that confirms the given request type.
func ConfirmFor(request MsgType) (MsgType, bool) {
	result, ok := confirmations[request]
	return result, ok
}

// Final reports if the message with the given header is the last confirmation of its request.
// Power measurement results arrive in batches until one is flagged as done.
func Final(hdr Hdr) bool {
	if hdr.MsgType == MsgPMConf {
		return hdr.Done()
	}
	return true
}
