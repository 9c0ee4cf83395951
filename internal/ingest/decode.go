package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUndecodable is returned when no candidate encoding yields valid text
var ErrUndecodable = errors.New("transcript could not be decoded with any configured encoding")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func lookup(name string) (encoding.Encoding, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return unicode.UTF8, true
	case "utf-8-sig", "utf8-sig":
		return unicode.UTF8BOM, true
	case "shift_jis", "shift-jis", "sjis", "cp932":
		return japanese.ShiftJIS, true
	case "euc-jp", "eucjp":
		return japanese.EUCJP, true
	case "iso-2022-jp":
		return japanese.ISO2022JP, true
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), true
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), true
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), true
	}
	return nil, false
}

// Decode tries each candidate encoding in order and returns the text and the
// name of the first encoding that decodes raw cleanly. Line endings are
// normalised to "\n".
func Decode(raw []byte, candidates []string) (string, string, error) {
	for _, name := range candidates {
		enc, ok := lookup(name)
		if !ok {
			continue
		}

		text, err := decodeStrict(raw, name, enc)
		if err != nil {
			continue
		}

		text = strings.ReplaceAll(text, "\r\n", "\n")
		return text, name, nil
	}

	return "", "", fmt.Errorf("%w (tried %s)", ErrUndecodable, strings.Join(candidates, ", "))
}

func decodeStrict(raw []byte, name string, enc encoding.Encoding) (string, error) {
	if enc == unicode.UTF8 {
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("invalid utf-8")
		}
		return string(bytes.TrimPrefix(raw, utf8BOM)), nil
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", err
	}
	// x/text decoders substitute U+FFFD instead of failing
	if !utf8.Valid(out) || bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("%s produced replacement characters", name)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}
