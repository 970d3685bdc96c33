package xdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadding(t *testing.T) {
	tests := []struct {
		length uint32
		want   uint32
	}{
		{0, 0}, {1, 3}, {2, 2}, {3, 1}, {4, 0}, {5, 3}, {41, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Padding(tt.length), "length %d", tt.length)
	}
}

func TestWriteOpaque(t *testing.T) {
	t.Run("PadsToFourBytes", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteOpaque(buf, []byte{0x01, 0x02, 0x03}))

		expected := []byte{
			0, 0, 0, 3,
			0x01, 0x02, 0x03, 0,
		}
		assert.Equal(t, expected, buf.Bytes())
	})

	t.Run("EncodesEmpty", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteOpaque(buf, nil))
		assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())
	})
}

func TestReadOpaque(t *testing.T) {
	t.Run("KeepsEmbeddedNulBytes", func(t *testing.T) {
		buf := new(bytes.Buffer)
		data := []byte{'a', 0, 'b', 0, 'c'}
		require.NoError(t, WriteOpaque(buf, data))
		buf.Write([]byte{0xde, 0xad, 0xbe, 0xef})

		got, err := ReadOpaque(buf)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, buf.Bytes(), "padding should be consumed exactly")
	})

	t.Run("RejectsHugeLength", func(t *testing.T) {
		_, err := ReadOpaque(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum")
	})

	t.Run("RejectsShortData", func(t *testing.T) {
		_, err := ReadOpaque(bytes.NewReader([]byte{0, 0, 0, 8, 'a', 'b'}))
		require.Error(t, err)
	})
}

func TestFixedOpaque(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteFixedOpaque(buf, []byte{0x02, 0x6f}))
	assert.Equal(t, []byte{0x02, 0x6f, 0, 0}, buf.Bytes())

	got, err := ReadFixedOpaque(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x6f}, got)
	assert.Zero(t, buf.Len())
}

func TestStringAndBool(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteString(buf, "passwd.byname"))
	require.NoError(t, WriteBool(buf, true))
	require.NoError(t, WriteInt32(buf, -3))

	s, err := ReadString(buf)
	require.NoError(t, err)
	assert.Equal(t, "passwd.byname", s)

	b, err := ReadBool(buf)
	require.NoError(t, err)
	assert.True(t, b)

	n, err := ReadInt32(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(-3), n)

	_, err = ReadBool(bytes.NewReader([]byte{0, 0, 0, 7}))
	assert.Error(t, err)
}
