// Package yp defines the wire types of the NIS map service (program 100004,
// version 2) shared by the client and the development responder.
package yp

// Version is the only supported YP protocol version.
const Version = 2

// YP Procedure Numbers
const (
	// ProcNull - Do nothing (connectivity test)
	ProcNull = 0

	// ProcDomain - Does the server serve this domain? Always answers.
	ProcDomain = 1

	// ProcDomainNonack - Like ProcDomain but stays silent for unknown domains
	ProcDomainNonack = 2

	// ProcMatch - Look up a single key
	ProcMatch = 3

	// ProcFirst - Return the first entry of a map
	ProcFirst = 4

	// ProcNext - Return the entry following a key
	ProcNext = 5

	// ProcXfr, ProcClear and ProcAll are part of the protocol but only used
	// between servers or by map transfer tools.
	ProcXfr   = 6
	ProcClear = 7
	ProcAll   = 8

	// ProcMaster - Return the master server of a map
	ProcMaster = 9

	// ProcOrder - Return the order number (build timestamp) of a map
	ProcOrder = 10

	// ProcMapList - Return the names of all maps in a domain
	ProcMapList = 11
)

// Wire limits from yp.x.
const (
	MaxDomainLen = 64
	MaxMapLen    = 64
	MaxRecordLen = 1024
)

// Status is the ypstat value carried by every YP response.
type Status int32

// YP Status Codes
const (
	StatusTrue    Status = 1
	StatusNoMore  Status = 2
	StatusFalse   Status = 0
	StatusNoMap   Status = -1
	StatusNoDom   Status = -2
	StatusNoKey   Status = -3
	StatusBadOp   Status = -4
	StatusBadDB   Status = -5
	StatusYPErr   Status = -6
	StatusBadArgs Status = -7
	StatusVers    Status = -8
)
