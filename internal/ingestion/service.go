package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/adresse-nationale/ban/internal/domain"
	"github.com/adresse-nationale/ban/internal/repository"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Service bulk-loads municipalities from tabular files. Rows are keyed by
// their INSEE code: unknown codes create, known codes update through the
// regular versioned write path.
type Service struct {
	repo repository.Repository
}

// NewService creates a municipality import service.
func NewService(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// Request describes an import upload.
type Request struct {
	FileName string
	Data     io.Reader
}

// RowError reports one rejected row with its file position.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Summary returns import level metrics.
type Summary struct {
	TotalRows   int        `json:"totalRows"`
	Created     int        `json:"created"`
	Updated     int        `json:"updated"`
	InvalidRows int        `json:"invalidRows"`
	Errors      []RowError `json:"errors,omitempty"`
}

type tableData struct {
	headers []string
	rows    [][]string
}

// Ingest reads the uploaded file and upserts one municipality per row. The
// header row must name at least the insee and name columns; siren is
// optional.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{Errors: []RowError{}}

	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, err
	}
	if len(table.headers) == 0 {
		return summary, errors.New("no header row detected")
	}

	columns := make(map[string]int, len(table.headers))
	for idx, header := range table.headers {
		columns[header] = idx
	}
	for _, required := range []string{"insee", "name"} {
		if _, ok := columns[required]; !ok {
			return summary, fmt.Errorf("missing required column %q", required)
		}
	}

	summary.TotalRows = len(table.rows)

	for rowIdx, row := range table.rows {
		rowNumber := rowIdx + 2 // include the header row, 1-based

		input := map[string]any{}
		for _, f := range domain.Municipality.Schema.Fields() {
			col, ok := columns[f.Name]
			if !ok || col >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[col])
			if value == "" {
				continue
			}
			input[f.Name] = value
		}

		rec, ve := domain.Municipality.Schema.Clean(input)
		if ve != nil {
			summary.InvalidRows++
			summary.Errors = append(summary.Errors, RowError{RowNumber: rowNumber, Message: ve.Error()})
			continue
		}

		created, err := s.upsert(ctx, rec)
		if err != nil {
			summary.InvalidRows++
			summary.Errors = append(summary.Errors, RowError{RowNumber: rowNumber, Message: err.Error()})
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
	}

	return summary, nil
}

// upsert writes one municipality, creating it when its INSEE code is unknown
// and updating the existing record otherwise.
func (s *Service) upsert(ctx context.Context, rec domain.Record) (bool, error) {
	insee, _ := rec["insee"].(string)
	current, err := s.repo.GetByIdentifier(ctx, domain.Identifier{
		Kind: "insee", Value: insee, Column: "insee",
	})
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			_, createErr := s.repo.Create(ctx, rec)
			return true, createErr
		}
		return false, err
	}

	id, ok := current["id"].(uuid.UUID)
	if !ok {
		return false, fmt.Errorf("unresolvable id for municipality %s", insee)
	}

	// Keep fields the file does not carry.
	merged := current.Clone()
	delete(merged, "id")
	delete(merged, "version")
	for key, value := range rec {
		merged[key] = value
	}

	version := 0
	if v, ok := current["version"].(int); ok {
		version = v
	}
	_, err = s.repo.Update(ctx, id, merged, version)
	return false, err
}

func parseTable(fileName string, payload []byte) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows)
}

func normalizeTable(records [][]string) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := make([]string, len(headerRow))
	for i, value := range headerRow {
		headers[i] = strings.ToLower(strings.TrimSpace(value))
	}

	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return tableData{headers: headers, rows: dataRows}, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
