package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stellar-oracle/love-oracle/internal/engagement"
	"github.com/stellar-oracle/love-oracle/internal/extract"
	"github.com/stellar-oracle/love-oracle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transcript = "2024/01/15(月)\n09:00\tアリス\tおはよう！\n09:05\tボブ\tおはよう\n2024/01/16(火)\n21:00\tアリス\t元気？\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := run(t, "parse", writeFile(t, "talk.txt", transcript))
	require.NoError(t, err)

	var messages []models.Message
	require.NoError(t, json.Unmarshal([]byte(out), &messages))
	require.Len(t, messages, 3)
	assert.Equal(t, "2024/01/15(月) 09:00", messages[0].Timestamp)
	assert.Equal(t, "元気？", messages[2].Text)
}

func TestParseCommand_Senders(t *testing.T) {
	out, err := run(t, "parse", "--senders", writeFile(t, "talk.txt", transcript))
	require.NoError(t, err)
	assert.JSONEq(t, `{"アリス":2,"ボブ":1}`, out)
}

func TestParseCommand_Empty(t *testing.T) {
	out, err := run(t, "parse", writeFile(t, "empty.txt", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestScoreCommand(t *testing.T) {
	out, err := run(t, "score", writeFile(t, "talk.txt", transcript))
	require.NoError(t, err)

	var result engagement.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Len(t, result.Series, 2)
	assert.Equal(t, models.TrendInsufficient, result.Trend)
}

func TestExtractCommand(t *testing.T) {
	out, err := run(t, "extract", writeFile(t, "reading.txt", "要約: 順調\n【総合マッチ度】: 91%"))
	require.NoError(t, err)

	var result extract.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 91, result.Percent)
	assert.True(t, result.Matched)
	assert.Contains(t, out, `"summary": "順調"`)
	assert.NotContains(t, out, `"patterns"`)
}

func TestExtractCommand_Verbose(t *testing.T) {
	out, err := run(t, "extract", "--verbose", writeFile(t, "reading.txt", "マッチ度 40%"))
	require.NoError(t, err)

	var result struct {
		Percent  int      `json:"percent"`
		Patterns []string `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	extractor, err := extract.NewExtractor(nil)
	require.NoError(t, err)
	assert.Equal(t, extractor.Patterns(), result.Patterns)
	assert.NotEmpty(t, result.Patterns)
}

func TestPromptCommand(t *testing.T) {
	out, err := run(t, "prompt", "--partner", "アリス", "--persona", "kaito", writeFile(t, "talk.txt", transcript))
	require.NoError(t, err)

	assert.Contains(t, out, "=== system ===")
	assert.Contains(t, out, "恋愛参謀カイト")
	assert.Contains(t, out, "アリス")
}

func TestCommands_MissingFile(t *testing.T) {
	_, err := run(t, "parse", filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)

	_, err = run(t, "score")
	assert.Error(t, err)
}
