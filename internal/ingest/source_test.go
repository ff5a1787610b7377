package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadText_ExtractsPDFText(t *testing.T) {
	text, err := LoadText(filepath.Join("testdata", "faq.pdf"))
	require.NoError(t, err)
	assert.Contains(t, text, "Refunds are processed within five business days.")
	assert.NotContains(t, text, "%PDF")

	chunks := Chunk(text)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0], "Refunds")
}

func TestLoadText_DetectsPDFByHeader(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "faq.pdf"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	text, err := LoadText(path)
	require.NoError(t, err)
	assert.Contains(t, text, "five business days")
}

func TestLoadText_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.md")
	require.NoError(t, os.WriteFile(path, []byte("Shipping is free.\n"), 0o600))

	text, err := LoadText(path)
	require.NoError(t, err)
	assert.Equal(t, "Shipping is free.\n", text)
}

func TestLoadText_Errors(t *testing.T) {
	_, err := LoadText(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not really a pdf"), 0o600))
	_, err = LoadText(path)
	assert.Error(t, err)
}
