package rpc

// RPCCallMessage is the header of every RPC request.
//
// Wire Format (XDR encoding):
//   - XID:        4 bytes (transaction identifier)
//   - MsgType:    4 bytes (0 for CALL)
//   - RPCVersion: 4 bytes (2)
//   - Program:    4 bytes
//   - Version:    4 bytes
//   - Procedure:  4 bytes
//   - Cred:       variable
//   - Verf:       variable
//   - [procedure-specific parameters follow]
//
// Reference: RFC 5531 Section 9
type RPCCallMessage struct {
	// XID is echoed by the server; the client uses it to discard stale or
	// duplicated replies after retransmission.
	XID uint32

	MsgType    uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32

	Cred OpaqueAuth
	Verf OpaqueAuth
}

// RPCReplyMessage is the header of an accepted RPC reply. Denied replies do not
// carry a verifier and are decoded by hand in DecodeReply.
//
// Wire Format (XDR encoding):
//   - XID:        4 bytes
//   - MsgType:    4 bytes (1 for REPLY)
//   - ReplyState: 4 bytes (0=MSG_ACCEPTED)
//   - Verf:       variable
//   - AcceptStat: 4 bytes
//   - [if SUCCESS: procedure results follow]
type RPCReplyMessage struct {
	XID        uint32
	MsgType    uint32
	ReplyState uint32
	Verf       OpaqueAuth
	AcceptStat uint32
}

// OpaqueAuth represents authentication credentials or verifiers.
//
// Reference: RFC 5531 Section 8
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte `xdr:"opaque"`
}

// GetAuthFlavor returns the authentication flavor of the call credentials.
func (c *RPCCallMessage) GetAuthFlavor() uint32 {
	return c.Cred.Flavor
}

// nullAuth is the AUTH_NULL credential and verifier used by all calls the
// client makes.
func nullAuth() OpaqueAuth {
	return OpaqueAuth{Flavor: AuthNull, Body: []byte{}}
}
