package jsonl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestAppendThenScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "log.jsonl")

	appender, err := OpenAppender(path)
	require.NoError(t, err)
	require.NoError(t, appender.Append(record{Name: "a", Count: 1}))
	require.NoError(t, appender.Append(record{Name: "b", Count: 2}))
	require.NoError(t, appender.Close())

	// Reopening appends instead of truncating.
	appender, err = OpenAppender(path)
	require.NoError(t, err)
	require.NoError(t, appender.Append(record{Name: "c", Count: 3}))
	require.NoError(t, appender.Close())

	scanner, err := Open[record](path)
	require.NoError(t, err)
	defer scanner.Close()

	var got []record
	for scanner.Scan() {
		got = append(got, scanner.Entry())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []record{{"a", 1}, {"b", 2}, {"c", 3}}, got)
}

func TestScannerSkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	content := "{\"name\":\"a\",\"count\":1}\n" +
		"not json at all\n" +
		"\n" +
		"{\"name\":\"b\",\"count\":2}\n" +
		"{\"truncated\": \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	scanner, err := Open[record](path)
	require.NoError(t, err)
	defer scanner.Close()

	var got []record
	for scanner.Scan() {
		got = append(got, scanner.Entry())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []record{{"a", 1}, {"b", 2}}, got)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open[record](filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
