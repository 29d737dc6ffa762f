// Package export writes search results as CSV or XLSX downloads.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/logbook/internal/domain"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const sheetName = "Entries"

// Searcher runs entry searches.
type Searcher interface {
	Search(ctx context.Context, q domain.EntryQuery) (domain.SearchResult, error)
}

// Service exports search results.
type Service struct {
	searcher Searcher
	pageSize int
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets how many threads are fetched per search page.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "export").Logger()
	}
}

// NewService creates an export service.
func NewService(searcher Searcher, opts ...Option) *Service {
	s := &Service{searcher: searcher, pageSize: 500, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Export writes every thread matching q to w. q's limit and offset are
// ignored.
func (s *Service) Export(ctx context.Context, q domain.EntryQuery, format string, w io.Writer) (int, error) {
	if format != FormatCSV && format != FormatXLSX {
		return 0, domain.NewValidationError("format", fmt.Sprintf("unsupported format %q", format))
	}

	threads, err := s.collect(ctx, q)
	if err != nil {
		return 0, err
	}

	headers, rows := table(threads)
	switch format {
	case FormatXLSX:
		err = writeXLSX(w, headers, rows)
	default:
		err = writeCSV(w, headers, rows)
	}
	if err != nil {
		return 0, err
	}

	s.logger.Info().Str("format", format).Int("rows", len(rows)).Msg("export written")
	return len(rows), nil
}

func (s *Service) collect(ctx context.Context, q domain.EntryQuery) ([]domain.ThreadSummary, error) {
	var threads []domain.ThreadSummary
	q.Limit = s.pageSize
	q.Offset = 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.searcher.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		threads = append(threads, page.Threads...)
		if len(page.Threads) == 0 || len(threads) >= page.Total {
			return threads, nil
		}
		q.Offset += len(page.Threads)
	}
}

var fixedHeaders = []string{"id", "logbook", "title", "authors", "created_at", "last_activity", "followups", "archived"}

// table lays the threads out as rows; attribute columns follow the fixed
// ones in name order, and the preview comes last.
func table(threads []domain.ThreadSummary) ([]string, [][]string) {
	names := map[string]struct{}{}
	for _, t := range threads {
		for name := range t.Entry.Attributes {
			names[name] = struct{}{}
		}
	}
	attributes := make([]string, 0, len(names))
	for name := range names {
		attributes = append(attributes, name)
	}
	sort.Strings(attributes)

	headers := append(append(append([]string{}, fixedHeaders...), attributes...), "content")
	rows := make([][]string, 0, len(threads))
	for _, t := range threads {
		e := t.Entry
		authors := make([]string, len(e.Authors))
		for i, a := range e.Authors {
			authors[i] = a.Name
		}
		row := []string{
			strconv.FormatInt(e.ID, 10),
			t.Logbook.Name,
			e.Title,
			strings.Join(authors, "; "),
			formatTime(e.CreatedAt),
			formatTime(t.Timestamp),
			strconv.Itoa(t.NFollowups),
			strconv.FormatBool(e.Archived),
		}
		for _, name := range attributes {
			row = append(row, formatValue(e.Attributes[name]))
		}
		rows = append(rows, append(row, t.Preview))
	}
	return headers, rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatValue(value domain.Value) string {
	if items, ok := value.StringList(); ok {
		return strings.Join(items, "; ")
	}
	if !value.IsSet() {
		return ""
	}
	return value.String()
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, headers []string, rows [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := setRow(f, 1, headers); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, number int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, number)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
		return fmt.Errorf("write row %d: %w", number, err)
	}
	return nil
}

// FileName builds a download name from the logbook name.
func FileName(base, format string) string {
	return sanitizeFileComponent(base) + "." + format
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	dash := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			builder.WriteRune(r)
			dash = false
		case !dash:
			builder.WriteRune('-')
			dash = true
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "entries"
	}
	return result
}
