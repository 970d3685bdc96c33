// Package xdr holds the hand-written XDR (RFC 4506) primitives used where a
// structure cannot be expressed with go-xdr struct tags: linked lists,
// discriminated unions and fixed-size opaque fields.
package xdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxOpaqueLength bounds variable-length opaque and string fields read from
// the wire. YP keys and values are limited to 1024 bytes by the protocol; the
// bound here only protects against hostile length prefixes.
const MaxOpaqueLength = 64 * 1024

// Padding returns the number of zero bytes that align length to 4 bytes.
func Padding(length uint32) uint32 {
	return (4 - (length % 4)) % 4
}

// ReadUint32 decodes an unsigned 32-bit integer.
func ReadUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// ReadInt32 decodes a signed 32-bit integer.
func ReadInt32(r io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// WriteUint32 encodes an unsigned 32-bit integer.
func WriteUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.BigEndian, v)
}

// WriteInt32 encodes a signed 32-bit integer.
func WriteInt32(w io.Writer, v int32) error {
	return binary.Write(w, binary.BigEndian, v)
}

// ReadOpaque decodes variable-length opaque data:
// [length:uint32][data][padding:0-3 bytes].
func ReadOpaque(r io.Reader) ([]byte, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	if length > MaxOpaqueLength {
		return nil, fmt.Errorf("opaque length %d exceeds maximum %d", length, MaxOpaqueLength)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	if err := skip(r, Padding(length)); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadFixedOpaque decodes fixed-length opaque data of n bytes plus padding.
func ReadFixedOpaque(r io.Reader, n int) ([]byte, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read fixed opaque: %w", err)
	}
	if err := skip(r, Padding(uint32(n))); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadString decodes an XDR string.
func ReadString(r io.Reader) (string, error) {
	data, err := ReadOpaque(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteOpaque encodes variable-length opaque data with padding.
func WriteOpaque(w io.Writer, data []byte) error {
	if err := WriteUint32(w, uint32(len(data))); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	return writePadded(w, data)
}

// WriteFixedOpaque encodes fixed-length opaque data with padding and no
// length prefix.
func WriteFixedOpaque(w io.Writer, data []byte) error {
	return writePadded(w, data)
}

// WriteString encodes an XDR string.
func WriteString(w io.Writer, s string) error {
	return WriteOpaque(w, []byte(s))
}

// WriteBool encodes an XDR boolean.
func WriteBool(w io.Writer, b bool) error {
	if b {
		return WriteUint32(w, 1)
	}
	return WriteUint32(w, 0)
}

// ReadBool decodes an XDR boolean. Values other than 0 and 1 are rejected.
func ReadBool(r io.Reader) (bool, error) {
	v, err := ReadUint32(r)
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid boolean %d", v)
	}
}

func writePadded(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	var zeros [3]byte
	if pad := Padding(uint32(len(data))); pad > 0 {
		if _, err := w.Write(zeros[:pad]); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}
	}
	return nil
}

func skip(r io.Reader, n uint32) error {
	if n == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		return fmt.Errorf("skip padding: %w", err)
	}
	return nil
}
