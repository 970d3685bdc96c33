package server

import (
	"bytes"
	"fmt"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/rpc"
)

// Statuser is implemented by results that carry a protocol status, so the
// generic handler can label metrics with it.
type Statuser interface {
	StatusString() string
}

// HandleCall decodes args into a new Req, runs handle and encodes the
// result. A decode failure becomes ErrGarbageArgs.
func HandleCall[Req any, Resp any](args []byte, handle func(*Req) (*Resp, error)) ([]byte, string, error) {
	req := new(Req)
	if err := rpc.Unmarshal(bytes.NewReader(args), req); err != nil {
		logger.Debug("Error decoding request: %v", err)
		return nil, "GARBAGE_ARGS", ErrGarbageArgs
	}

	resp, err := handle(req)
	if err != nil {
		return nil, "", err
	}

	buf := new(bytes.Buffer)
	if err := rpc.Marshal(buf, resp); err != nil {
		return nil, "", fmt.Errorf("encode response: %w", err)
	}

	status := "OK"
	if s, ok := any(resp).(Statuser); ok {
		status = s.StatusString()
	}
	return buf.Bytes(), status, nil
}

// Void is the empty argument or result.
type Void struct{}
