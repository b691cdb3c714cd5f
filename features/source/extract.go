package source

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// kindForExt maps an upload's file extension to the document kind.
func kindForExt(ext string) (string, bool) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "pdf", true
	case ".md":
		return "markdown", true
	case ".txt":
		return "text", true
	default:
		return "", false
	}
}

// ExtractText pulls plain text out of an uploaded file. PDFs go through
// the pdf reader; markdown and plain text pass through as-is.
func ExtractText(path, kind string) (string, error) {
	if kind == "pdf" {
		return extractPDF(path)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	if _, err := buf.ReadFrom(b); err != nil {
		return "", err
	}
	return buf.String(), nil
}
