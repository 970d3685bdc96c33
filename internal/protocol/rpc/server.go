package rpc

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// ParseCall decodes an RPC call header and returns it along with the
// procedure parameters that follow the credentials and verifier.
//
// Variable-length credential and verifier bodies are padded to 4-byte
// boundaries; go-xdr consumes that padding, so the remaining bytes of the
// reader are exactly the parameters.
func ParseCall(data []byte) (*RPCCallMessage, []byte, error) {
	call := &RPCCallMessage{}
	r := bytes.NewReader(data)

	if _, err := xdr.Unmarshal(r, call); err != nil {
		return nil, nil, fmt.Errorf("unmarshal RPC call: %w", err)
	}
	if call.MsgType != RPCCall {
		return nil, nil, fmt.Errorf("expected CALL (0), got %d", call.MsgType)
	}

	params := data[len(data)-r.Len():]
	return call, params, nil
}

// EncodeReply builds an accepted REPLY with an AUTH_NULL verifier. data is
// appended only for RPCSuccess.
func EncodeReply(xid, acceptStat uint32, data []byte) ([]byte, error) {
	reply := RPCReplyMessage{
		XID:        xid,
		MsgType:    RPCReply,
		ReplyState: RPCMsgAccepted,
		Verf:       nullAuth(),
		AcceptStat: acceptStat,
	}

	// Reply header is 24 bytes with an empty verifier.
	buf := bytes.NewBuffer(make([]byte, 0, 24+len(data)))
	if _, err := xdr.Marshal(buf, &reply); err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	if acceptStat == RPCSuccess {
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// EncodeProgMismatchReply builds a PROG_MISMATCH reply advertising the
// supported version range.
func EncodeProgMismatchReply(xid, low, high uint32) ([]byte, error) {
	head, err := EncodeReply(xid, RPCProgMismatch, nil)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(head)
	if _, err := xdr.Marshal(buf, &struct{ Low, High uint32 }{low, high}); err != nil {
		return nil, fmt.Errorf("marshal version range: %w", err)
	}
	return buf.Bytes(), nil
}
