package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

type echoArgs struct {
	Name string
	Data []byte
}

type echoResult struct {
	Status int32
	Data   []byte
}

func encodeResult(t *testing.T, v any) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, Marshal(buf, v))
	return buf.Bytes()
}

// startUDPResponder answers every call with handler's reply bytes. The first
// `drop` datagrams are ignored to exercise retransmission.
func startUDPResponder(t *testing.T, drop int32, handler func(call *RPCCallMessage, params []byte) []byte) (netip.AddrPort, *atomic.Int32) {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	received := new(atomic.Int32)
	go func() {
		buf := make([]byte, 65536)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if received.Add(1) <= drop {
				continue
			}
			call, params, err := ParseCall(buf[:n])
			if err != nil {
				continue
			}
			if reply := handler(call, params); reply != nil {
				_, _ = conn.WriteToUDP(reply, from)
			}
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).AddrPort(), received
}

func successReply(t *testing.T, xid uint32, v any) []byte {
	t.Helper()
	reply, err := EncodeReply(xid, RPCSuccess, encodeResult(t, v))
	require.NoError(t, err)
	return reply
}

// ============================================================================
// Call encoding and parsing
// ============================================================================

func TestEncodeAndParseCall(t *testing.T) {
	args := &echoArgs{Name: "passwd.byname", Data: []byte("alice")}

	msg, err := EncodeCall(42, ProgramYP, 2, 3, args)
	require.NoError(t, err)
	assert.Equal(t, 0, len(msg)%4, "call should be 4-byte aligned")

	call, params, err := ParseCall(msg)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), call.XID)
	assert.Equal(t, uint32(RPCCall), call.MsgType)
	assert.Equal(t, uint32(RPCVersion), call.RPCVersion)
	assert.Equal(t, uint32(ProgramYP), call.Program)
	assert.Equal(t, uint32(2), call.Version)
	assert.Equal(t, uint32(3), call.Procedure)
	assert.Equal(t, AuthNull, call.GetAuthFlavor())

	var decoded echoArgs
	require.NoError(t, Unmarshal(bytes.NewReader(params), &decoded))
	assert.Equal(t, *args, decoded)
}

func TestParseCallRejectsReply(t *testing.T) {
	reply, err := EncodeReply(7, RPCSuccess, nil)
	require.NoError(t, err)

	_, _, err = ParseCall(reply)
	require.Error(t, err)
}

// ============================================================================
// Reply decoding
// ============================================================================

func TestDecodeReply(t *testing.T) {
	t.Run("DecodesSuccessResults", func(t *testing.T) {
		reply := successReply(t, 9, &echoResult{Status: 1, Data: []byte{0, 1, 0}})

		var res echoResult
		require.NoError(t, DecodeReply(reply, &res))
		assert.Equal(t, int32(1), res.Status)
		assert.Equal(t, []byte{0, 1, 0}, res.Data)
	})

	t.Run("MapsAcceptStatus", func(t *testing.T) {
		tests := []struct {
			accept uint32
			want   Stat
		}{
			{RPCProgUnavail, StatProgUnavail},
			{RPCProcUnavail, StatProcUnavail},
			{RPCGarbageArgs, StatCantDecodeArgs},
			{RPCSystemErr, StatSystemError},
		}
		for _, tt := range tests {
			reply, err := EncodeReply(1, tt.accept, nil)
			require.NoError(t, err)

			err = DecodeReply(reply, nil)
			assert.Equal(t, tt.want, StatOf(err), "accept_stat %d", tt.accept)
		}
	})

	t.Run("MapsProgMismatch", func(t *testing.T) {
		reply, err := EncodeProgMismatchReply(1, 2, 2)
		require.NoError(t, err)

		err = DecodeReply(reply, nil)
		assert.Equal(t, StatProgVersMismatch, StatOf(err))
		assert.Contains(t, err.Error(), "2-2")
	})

	t.Run("MapsDeniedAuth", func(t *testing.T) {
		buf := new(bytes.Buffer)
		for _, v := range []uint32{1, RPCReply, RPCMsgDenied, RPCAuthError, 5} {
			_ = binary.Write(buf, binary.BigEndian, v)
		}

		err := DecodeReply(buf.Bytes(), nil)
		assert.Equal(t, StatAuthError, StatOf(err))
	})

	t.Run("RejectsTruncatedHeader", func(t *testing.T) {
		err := DecodeReply([]byte{0, 0, 0, 1}, nil)
		assert.Equal(t, StatCantDecodeRes, StatOf(err))
	})

	t.Run("RejectsCall", func(t *testing.T) {
		msg, err := EncodeCall(1, ProgramYP, 2, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, StatCantDecodeRes, StatOf(DecodeReply(msg, nil)))
	})
}

func TestStat(t *testing.T) {
	assert.Equal(t, "RPC_TIMEDOUT", StatTimedOut.String())
	assert.Equal(t, "RPC_STAT_99", Stat(99).String())
	assert.Equal(t, StatSuccess, StatOf(nil))
	assert.Equal(t, StatFailed, StatOf(assert.AnError))

	err := &Error{Stat: StatCantRecv, Err: net.ErrClosed}
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.Contains(t, err.Error(), "RPC_CANTRECV")
}

// ============================================================================
// Record marking
// ============================================================================

func TestRecordMarking(t *testing.T) {
	t.Run("RoundTripsSingleFragment", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteRecord(buf, []byte("hello")))
		assert.Equal(t, []byte{0x80, 0, 0, 5}, buf.Bytes()[:4])

		msg, err := ReadRecord(buf, 1024)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), msg)
	})

	t.Run("ReassemblesFragments", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.BigEndian, uint32(3))
		buf.WriteString("abc")
		_ = binary.Write(buf, binary.BigEndian, uint32(lastFragment|2))
		buf.WriteString("de")

		msg, err := ReadRecord(buf, 1024)
		require.NoError(t, err)
		assert.Equal(t, []byte("abcde"), msg)
	})

	t.Run("RejectsOversizedRecord", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.BigEndian, uint32(lastFragment|4096))

		_, err := ReadRecord(buf, 1024)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum")
	})
}

// ============================================================================
// UDP client
// ============================================================================

func TestUDPClientCall(t *testing.T) {
	t.Run("ReturnsDecodedResult", func(t *testing.T) {
		addr, _ := startUDPResponder(t, 0, func(call *RPCCallMessage, params []byte) []byte {
			var args echoArgs
			require.NoError(t, Unmarshal(bytes.NewReader(params), &args))
			return successReply(t, call.XID, &echoResult{Status: int32(call.Procedure), Data: args.Data})
		})

		client, err := DialUDP(context.Background(), addr, ProgramYP, 2, UDPConfig{})
		require.NoError(t, err)
		defer client.Close()

		var res echoResult
		require.NoError(t, client.Call(context.Background(), 3, &echoArgs{Name: "m", Data: []byte("k")}, &res))
		assert.Equal(t, int32(3), res.Status)
		assert.Equal(t, []byte("k"), res.Data)
	})

	t.Run("RetransmitsAfterLoss", func(t *testing.T) {
		addr, received := startUDPResponder(t, 1, func(call *RPCCallMessage, _ []byte) []byte {
			return successReply(t, call.XID, &echoResult{Status: 1})
		})

		client, err := DialUDP(context.Background(), addr, ProgramYP, 2, UDPConfig{
			RetryTimeout: 50 * time.Millisecond,
			CallTimeout:  2 * time.Second,
		})
		require.NoError(t, err)
		defer client.Close()

		var res echoResult
		require.NoError(t, client.Call(context.Background(), 0, nil, &res))
		assert.GreaterOrEqual(t, received.Load(), int32(2))
	})

	t.Run("IgnoresMismatchedXID", func(t *testing.T) {
		addr, _ := startUDPResponder(t, 0, func(call *RPCCallMessage, _ []byte) []byte {
			return successReply(t, call.XID+100, &echoResult{Status: 1})
		})

		client, err := DialUDP(context.Background(), addr, ProgramYP, 2, UDPConfig{
			RetryTimeout: 20 * time.Millisecond,
			CallTimeout:  100 * time.Millisecond,
		})
		require.NoError(t, err)
		defer client.Close()

		err = client.Call(context.Background(), 0, nil, &echoResult{})
		assert.Equal(t, StatTimedOut, StatOf(err))
	})

	t.Run("TimesOutWithoutReply", func(t *testing.T) {
		addr, received := startUDPResponder(t, 1000, nil)

		client, err := DialUDP(context.Background(), addr, ProgramYP, 2, UDPConfig{
			RetryTimeout: 30 * time.Millisecond,
			CallTimeout:  150 * time.Millisecond,
		})
		require.NoError(t, err)
		defer client.Close()

		start := time.Now()
		err = client.Call(context.Background(), 0, nil, nil)
		assert.Equal(t, StatTimedOut, StatOf(err))
		assert.Less(t, time.Since(start), time.Second)
		assert.GreaterOrEqual(t, received.Load(), int32(3), "call should be retransmitted")
	})

	t.Run("ContextDeadlineShortensCall", func(t *testing.T) {
		addr, _ := startUDPResponder(t, 1000, nil)

		client, err := DialUDP(context.Background(), addr, ProgramYP, 2, UDPConfig{})
		require.NoError(t, err)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		err = client.Call(ctx, 0, nil, nil)
		assert.Equal(t, StatTimedOut, StatOf(err))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("RejectsOversizedCall", func(t *testing.T) {
		addr, received := startUDPResponder(t, 0, nil)

		client, err := DialUDP(context.Background(), addr, ProgramYP, 2, UDPConfig{SendSize: 64})
		require.NoError(t, err)
		defer client.Close()

		err = client.Call(context.Background(), 3, &echoArgs{Data: make([]byte, 128)}, nil)
		assert.Equal(t, StatCantEncodeArgs, StatOf(err))
		assert.Zero(t, received.Load(), "nothing should be sent")
	})
}

// ============================================================================
// TCP client
// ============================================================================

func TestTCPClientCall(t *testing.T) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		msg, err := ReadRecord(conn, 4096)
		if err != nil {
			return
		}
		call, params, err := ParseCall(msg)
		if err != nil {
			return
		}
		var args echoArgs
		_ = Unmarshal(bytes.NewReader(params), &args)

		buf := new(bytes.Buffer)
		_ = Marshal(buf, &echoResult{Status: 7, Data: args.Data})
		reply, _ := EncodeReply(call.XID, RPCSuccess, buf.Bytes())
		_ = WriteRecord(conn, reply)
	}()

	addr := listener.Addr().(*net.TCPAddr).AddrPort()
	client, err := DialTCP(context.Background(), addr, ProgramYPBind, 2, time.Second)
	require.NoError(t, err)
	defer client.Close()

	var res echoResult
	require.NoError(t, client.Call(context.Background(), 1, &echoArgs{Data: []byte("example.com")}, &res))
	assert.Equal(t, int32(7), res.Status)
	assert.Equal(t, []byte("example.com"), res.Data)
}

func TestTCPClientTimeout(t *testing.T) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(500 * time.Millisecond)
	}()

	addr := listener.Addr().(*net.TCPAddr).AddrPort()
	client, err := DialTCP(context.Background(), addr, ProgramYPBind, 2, 100*time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	err = client.Call(context.Background(), 1, nil, nil)
	assert.Equal(t, StatTimedOut, StatOf(err))
}
