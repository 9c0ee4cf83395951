package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

var defaultCandidates = []string{"utf-8", "utf-8-sig", "shift_jis", "euc-jp", "utf-16"}

const sample = "2024/01/15(月)\r\n09:00\tアリス\tこんにちは！\r\n"

func TestDecode_UTF8(t *testing.T) {
	text, enc, err := Decode([]byte(sample), defaultCandidates)
	require.NoError(t, err)

	assert.Equal(t, "utf-8", enc)
	assert.Equal(t, "2024/01/15(月)\n09:00\tアリス\tこんにちは！\n", text)
}

func TestDecode_UTF8BOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)

	text, _, err := Decode(raw, defaultCandidates)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestDecode_ShiftJIS(t *testing.T) {
	raw, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(sample))
	require.NoError(t, err)

	text, enc, err := Decode(raw, defaultCandidates)
	require.NoError(t, err)

	assert.Equal(t, "shift_jis", enc)
	assert.Contains(t, text, "こんにちは！")
}

func TestDecode_UTF16WithBOM(t *testing.T) {
	raw, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte("hi\r\nthere"))
	require.NoError(t, err)

	text, enc, err := Decode(raw, []string{"utf-8", "utf-16"})
	require.NoError(t, err)

	assert.Equal(t, "utf-16", enc)
	assert.Equal(t, "hi\nthere", text)
}

func TestDecode_Undecodable(t *testing.T) {
	_, _, err := Decode([]byte{0xff, 0xfe, 0xfd, 0x80}, []string{"utf-8", "unknown-enc"})

	assert.ErrorIs(t, err, ErrUndecodable)
}
