package ingest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/starford/mimir/internal/apperr"
)

// Supported document types.
const (
	TypeText        = "txt"
	TypePDF         = "pdf"
	TypeSpreadsheet = "xlsx"
)

// SupportedType reports whether docType has a loader.
func SupportedType(docType string) bool {
	switch docType {
	case TypeText, TypePDF, TypeSpreadsheet:
		return true
	}
	return false
}

// Load reads the raw text of the file at path using the loader selected by
// docType. An unknown docType fails with apperr.ErrUnsupportedFormat.
func Load(path, docType string) (string, error) {
	switch docType {
	case TypeText:
		return loadText(path)
	case TypePDF:
		return loadPDF(path)
	case TypeSpreadsheet:
		return loadSpreadsheet(path)
	default:
		return "", fmt.Errorf("ingest: document type %q: %w", docType, apperr.ErrUnsupportedFormat)
	}
}

func loadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ingest: read %s: %w", path, err)
	}
	return string(data), nil
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("ingest: open pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("ingest: extract pdf text %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("ingest: read pdf text %s: %w", path, err)
	}
	return buf.String(), nil
}

func loadSpreadsheet(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("ingest: open spreadsheet %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("ingest: read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}
