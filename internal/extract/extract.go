// Package extract turns uploaded file bytes into plain text.
//
// Supported types: pdf, txt, docx, md. Markdown is treated as plain text:
// headings, links and other structure are discarded, matching the upstream
// ingestion behavior this service replaces. That is a known fidelity loss,
// not an oversight.
package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedType is returned for file types the extractor cannot handle.
// It is a caller-input error and must be surfaced before ingestion starts.
var ErrUnsupportedType = errors.New("unsupported file type")

// SupportedTypes lists the accepted file extensions, without the dot.
var SupportedTypes = []string{"pdf", "txt", "docx", "md"}

// TypeFromFilename derives the declared file type from a filename extension.
func TypeFromFilename(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// Text extracts plain text from file bytes of the declared type.
func Text(data []byte, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "txt", "md":
		return string(data), nil
	case "pdf":
		text, err := pdfText(data)
		if err != nil {
			return "", fmt.Errorf("extracting pdf text: %w", err)
		}
		return text, nil
	case "docx":
		text, err := docxText(data)
		if err != nil {
			return "", fmt.Errorf("extracting docx text: %w", err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
}
