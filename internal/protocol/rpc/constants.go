package rpc

// RPCVersion is the only ONC RPC protocol version (RFC 5531).
const RPCVersion = 2

// RPC Program Numbers
//
// Reference: RFC 1833 (portmapper) and the Sun NIS protocol definitions
// (yp.x, ypbind.x, yppasswd.x).
const (
	// ProgramPortmap is the port mapper program number (RFC 1833).
	// It typically runs on port 111 and maps program/version/protocol to a port.
	ProgramPortmap = 100000

	// ProgramYP is the NIS map server (ypserv).
	ProgramYP = 100004

	// ProgramYPBind is the local binding daemon that tracks which server
	// currently serves each domain.
	ProgramYPBind = 100007

	// ProgramYPPasswd is the password update daemon (rpc.yppasswdd) running on
	// the master server.
	ProgramYPPasswd = 100009
)

// RPC Message Types
//
// Reference: RFC 5531 Section 9
const (
	RPCCall  = 0
	RPCReply = 1
)

// RPC Reply States
const (
	// RPCMsgAccepted means the server recognised the program and attempted
	// the call; accept_stat says how that went.
	RPCMsgAccepted = 0

	// RPCMsgDenied means the call was rejected before dispatch, either for an
	// RPC version mismatch or an authentication failure.
	RPCMsgDenied = 1
)

// RPC Accept Status
const (
	RPCSuccess      = 0
	RPCProgUnavail  = 1
	RPCProgMismatch = 2
	RPCProcUnavail  = 3
	RPCGarbageArgs  = 4
	RPCSystemErr    = 5
)

// RPC Reject Status
const (
	RPCMismatch  = 0
	RPCAuthError = 1
)

// Authentication flavors. The NIS client speaks AUTH_NULL only.
const (
	AuthNull  uint32 = 0
	AuthUnix  uint32 = 1
	AuthShort uint32 = 2
	AuthDES   uint32 = 3
)

// Transport protocol numbers as used by the portmapper.
const (
	ProtoTCP = 6
	ProtoUDP = 17
)

// lastFragment is the high bit of a record-marking header.
const lastFragment = 0x80000000
