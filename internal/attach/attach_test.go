package attach

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestSummarizeTextFile(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("first line\nsecond line\n"))

	summary, err := Summarize(path)
	require.NoError(t, err)

	assert.Contains(t, summary, "notes.txt")
	assert.Contains(t, summary, "first line")
	assert.Contains(t, summary, "second line")
	assert.NotContains(t, summary, "...", "short files are not truncated")
}

func TestSummarizeLongTextFileTruncates(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("line of content\n")
	}
	path := writeFile(t, "long.txt", []byte(sb.String()))

	summary, err := Summarize(path)
	require.NoError(t, err)

	assert.Contains(t, summary, "...")
	assert.Less(t, len(summary), sb.Len(), "summary is smaller than the file")
}

func TestSummarizeCSV(t *testing.T) {
	path := writeFile(t, "data.csv", []byte("name,year\napollo,1969\nvoyager,1977\n"))

	summary, err := Summarize(path)
	require.NoError(t, err)

	assert.Contains(t, summary, "data.csv")
	assert.Contains(t, summary, "name, year")
	assert.Contains(t, summary, "2 data rows")
}

func TestSummarizeBinaryFile(t *testing.T) {
	path := writeFile(t, "blob.bin", []byte{0x00, 0x01, 0xff, 0xfe, 0x00})

	summary, err := Summarize(path)
	require.NoError(t, err)

	assert.Contains(t, summary, "binary file")
	assert.Contains(t, summary, "5 bytes")
}

func TestSummarizeMissingFile(t *testing.T) {
	_, err := Summarize(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestSummarizeDirectory(t *testing.T) {
	_, err := Summarize(t.TempDir())
	assert.Error(t, err)
}

func TestSummarizeAll(t *testing.T) {
	t.Run("empty input yields no summaries", func(t *testing.T) {
		summaries, err := SummarizeAll(nil)
		require.NoError(t, err)
		assert.Nil(t, summaries)
	})

	t.Run("summaries come back in input order", func(t *testing.T) {
		a := writeFile(t, "a.txt", []byte("alpha"))
		b := writeFile(t, "b.txt", []byte("beta"))

		summaries, err := SummarizeAll([]string{a, b})
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Contains(t, summaries[0], "alpha")
		assert.Contains(t, summaries[1], "beta")
	})

	t.Run("one unreadable attachment fails the batch", func(t *testing.T) {
		a := writeFile(t, "a.txt", []byte("alpha"))
		_, err := SummarizeAll([]string{a, filepath.Join(t.TempDir(), "nope.txt")})
		assert.Error(t, err)
	})
}
