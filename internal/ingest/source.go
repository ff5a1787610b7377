package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// LoadText returns the plain text of the document at path. PDFs, recognised by extension
// or by their header, have their text layer extracted; anything else is read as text.
func LoadText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") && !bytes.HasPrefix(raw, pdfMagic) {
		return string(raw), nil
	}
	return pdfText(raw)
}

func pdfText(raw []byte) (text string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("open pdf: malformed document: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return buf.String(), nil
}
