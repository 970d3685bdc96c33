package rpc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteRecord sends msg as a single last fragment using RPC record marking
// (RFC 5531 Section 11). Stream transports need this; datagrams do not.
//
// Fragment header: [last_fragment_bit (1 bit)][fragment_length (31 bits)]
func WriteRecord(w io.Writer, msg []byte) error {
	record := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(record, lastFragment|uint32(len(msg)))
	copy(record[4:], msg)

	if _, err := w.Write(record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// ReadRecord reads fragments until the last-fragment bit is seen and returns
// the reassembled message. Records larger than maxSize are rejected.
func ReadRecord(r io.Reader, maxSize int) ([]byte, error) {
	var (
		msg    []byte
		header [4]byte
	)

	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, fmt.Errorf("read fragment header: %w", err)
		}

		word := binary.BigEndian.Uint32(header[:])
		length := int(word &^ lastFragment)
		if len(msg)+length > maxSize {
			return nil, fmt.Errorf("record size %d exceeds maximum %d", len(msg)+length, maxSize)
		}

		start := len(msg)
		msg = append(msg, make([]byte, length)...)
		if _, err := io.ReadFull(r, msg[start:]); err != nil {
			return nil, fmt.Errorf("read fragment body: %w", err)
		}

		if word&lastFragment != 0 {
			return msg, nil
		}
	}
}
