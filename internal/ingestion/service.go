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
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/entries"
	"github.com/rpattn/logbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006/01/02",
		"01/02/2006",
		"02/01/2006",
	}
)

// Columns with a fixed meaning. Every other column must name an attribute of
// the target logbook.
const (
	columnTitle       = "title"
	columnAuthors     = "authors"
	columnContent     = "content"
	columnContentType = "content_type"
	columnCreatedAt   = "created_at"
	columnFollows     = "follows_id"
)

// EntryCreator stores one imported entry.
type EntryCreator interface {
	Create(ctx context.Context, logbookID int64, input entries.CreateInput) (domain.Entry, error)
}

// Service imports tabular files as entries of a logbook.
type Service struct {
	logbooks repository.LogbookRepository
	entries  EntryCreator
	logger   zerolog.Logger
}

// NewService creates a new ingestion service.
func NewService(logbooks repository.LogbookRepository, creator EntryCreator, logger zerolog.Logger) *Service {
	return &Service{
		logbooks: logbooks,
		entries:  creator,
		logger:   logger.With().Str("component", "ingestion").Logger(),
	}
}

// Request describes the ingestion input.
type Request struct {
	LogbookID int64
	FileName  string
	Data      io.Reader
}

// RowError reports why one row was not imported.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Summary returns ingestion level metrics.
type Summary struct {
	TotalRows      int        `json:"totalRows"`
	ValidRows      int        `json:"validRows"`
	InvalidRows    int        `json:"invalidRows"`
	EntryIDs       []int64    `json:"entryIds"`
	SkippedColumns []string   `json:"skippedColumns"`
	Errors         []RowError `json:"errors"`
}

type tableData struct {
	headers []string
	rows    [][]string
}

// Ingest reads the uploaded file and creates one entry per data row. Rows
// that fail validation are reported and skipped.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{
		EntryIDs:       []int64{},
		SkippedColumns: []string{},
		Errors:         []RowError{},
	}
	if req.Data == nil {
		return summary, domain.NewValidationError("file", "data reader is required")
	}

	logbook, err := s.logbooks.GetByID(ctx, req.LogbookID)
	if err != nil {
		return summary, err
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, domain.NewValidationError("file", "file is empty")
	}

	table, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, domain.NewValidationError("file", err.Error())
	}

	columns := make([]string, len(table.headers))
	for i, header := range table.headers {
		switch header {
		case columnTitle, columnAuthors, columnContent, columnContentType, columnCreatedAt, columnFollows:
			columns[i] = header
		default:
			if _, ok := logbook.Attributes.Lookup(header); ok {
				columns[i] = header
				continue
			}
			summary.SkippedColumns = append(summary.SkippedColumns, header)
		}
	}

	summary.TotalRows = len(table.rows)
	for i, row := range table.rows {
		rowNumber := i + 2
		input, err := rowInput(logbook.Attributes, columns, row)
		if err == nil {
			var created domain.Entry
			created, err = s.entries.Create(ctx, logbook.ID, input)
			if err == nil {
				summary.ValidRows++
				summary.EntryIDs = append(summary.EntryIDs, created.ID)
				continue
			}
		}
		if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrNotFound) {
			return summary, fmt.Errorf("row %d: %w", rowNumber, err)
		}
		summary.InvalidRows++
		summary.Errors = append(summary.Errors, RowError{RowNumber: rowNumber, Message: err.Error()})
	}

	s.logger.Info().
		Int64("logbook_id", logbook.ID).
		Str("file", req.FileName).
		Int("valid", summary.ValidRows).
		Int("invalid", summary.InvalidRows).
		Msg("import finished")
	return summary, nil
}

func rowInput(schema domain.AttributeSchema, columns []string, row []string) (entries.CreateInput, error) {
	input := entries.CreateInput{Attributes: domain.Values{}}
	for i, column := range columns {
		if column == "" {
			continue
		}
		raw := strings.TrimSpace(row[i])
		switch column {
		case columnTitle:
			input.Title = raw
		case columnAuthors:
			for _, name := range splitList(raw) {
				input.Authors = append(input.Authors, domain.Author{Name: name})
			}
		case columnContent:
			input.Content = row[i]
		case columnContentType:
			input.ContentType = raw
		case columnCreatedAt:
			if raw == "" {
				continue
			}
			ts, err := parseTimestamp(raw)
			if err != nil {
				return input, domain.NewValidationError(column, fmt.Sprintf("unable to coerce %q to timestamp", raw))
			}
			input.CreatedAt = ts
		case columnFollows:
			if raw == "" {
				continue
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return input, domain.NewValidationError(column, fmt.Sprintf("invalid entry id %q", raw))
			}
			input.FollowsID = &id
		default:
			def, _ := schema.Lookup(column)
			value, err := cellValue(def, raw)
			if err != nil {
				return input, domain.NewValidationError("attributes."+column, err.Error())
			}
			if value.IsSet() {
				input.Attributes[column] = value
			}
		}
	}
	return input, nil
}

// cellValue reads a spreadsheet cell for def. Booleans are parsed here since
// any non-empty text is truthy once it reaches the attribute conversion.
func cellValue(def domain.AttributeDefinition, raw string) (domain.Value, error) {
	if raw == "" {
		return domain.Value{}, nil
	}
	switch def.Type {
	case domain.AttributeTypeBoolean:
		b, err := domain.ParseBoolean(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.BooleanValue(b), nil
	case domain.AttributeTypeMultiOption:
		return domain.StringListValue(splitList(raw)), nil
	default:
		return domain.TextValue(raw), nil
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

// normalizeTable takes the first non-empty row as header and pads every data
// row to the header width.
func normalizeTable(records [][]string) (tableData, error) {
	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return tableData{}, errors.New("no header row detected")
	}

	headers := sanitizeHeaders(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}
	return tableData{headers: headers, rows: dataRows}, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// sanitizeHeaders maps header labels onto column keys. Fixed columns are
// matched case-insensitively; attribute names keep their spelling.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for idx, value := range raw {
		name := strings.TrimSpace(value)
		key := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(name))
		switch key {
		case columnTitle, columnAuthors, columnContent, columnContentType, columnCreatedAt, columnFollows:
			name = key
		case "author":
			name = columnAuthors
		case "":
			name = fmt.Sprintf("column_%d", idx+1)
		}
		headers[idx] = name
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
