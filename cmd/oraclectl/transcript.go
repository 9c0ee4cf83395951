package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stellar-oracle/love-oracle/internal/chatlog"
	"github.com/stellar-oracle/love-oracle/internal/ingest"
)

var defaultEncodings = []string{"utf-8", "utf-8-sig", "shift_jis", "euc-jp", "utf-16"}

// readTranscript decodes and parses a transcript file; "-" reads stdin
func readTranscript(path string, encodings string) (*chatlog.Result, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	candidates := defaultEncodings
	if encodings != "" {
		candidates = strings.Split(encodings, ",")
	}

	text, _, err := ingest.Decode(raw, candidates)
	if err != nil {
		return nil, err
	}
	return chatlog.Parse(text), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
