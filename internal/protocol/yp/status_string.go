package yp

import "fmt"

// String returns the canonical ypstat name, suitable for log lines and metric
// labels. Unknown values render as "YP_UNKNOWN_<n>".
func (s Status) String() string {
	switch s {
	case StatusTrue:
		return "YP_TRUE"
	case StatusNoMore:
		return "YP_NOMORE"
	case StatusFalse:
		return "YP_FALSE"
	case StatusNoMap:
		return "YP_NOMAP"
	case StatusNoDom:
		return "YP_NODOM"
	case StatusNoKey:
		return "YP_NOKEY"
	case StatusBadOp:
		return "YP_BADOP"
	case StatusBadDB:
		return "YP_BADDB"
	case StatusYPErr:
		return "YP_YPERR"
	case StatusBadArgs:
		return "YP_BADARGS"
	case StatusVers:
		return "YP_VERS"
	default:
		return fmt.Sprintf("YP_UNKNOWN_%d", int32(s))
	}
}
