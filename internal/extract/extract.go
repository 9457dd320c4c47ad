// Package extract turns uploaded governance documents into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupported is returned for file types that cannot be ingested.
var ErrUnsupported = errors.New("unsupported file type")

// Supported reports whether filename has an extension ingestion accepts.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

// ContentType maps a supported filename to its MIME type.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}
	return ""
}

// Text extracts the text of a .txt, .md or .pdf file.
func Text(filename string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return PDF(content)
	case ".txt", ".md":
		if !utf8.Valid(content) {
			return strings.ToValidUTF8(string(content), ""), nil
		}
		return string(content), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filename)
}

// PDF returns the plain text of every page that has content. Pages that fail
// to extract are skipped.
func PDF(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
