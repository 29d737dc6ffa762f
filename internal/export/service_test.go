package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/logbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type pagedSearcher struct {
	threads []domain.ThreadSummary
	calls   []domain.EntryQuery
}

func (p *pagedSearcher) Search(ctx context.Context, q domain.EntryQuery) (domain.SearchResult, error) {
	p.calls = append(p.calls, q)
	end := q.Offset + q.Limit
	if end > len(p.threads) {
		end = len(p.threads)
	}
	return domain.SearchResult{Threads: p.threads[q.Offset:end], Total: len(p.threads)}, nil
}

func sampleThreads() []domain.ThreadSummary {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return []domain.ThreadSummary{
		{
			Entry: domain.Entry{
				ID: 2, Title: "Beam dump", CreatedAt: at,
				Authors:    []domain.Author{{Name: "alice"}, {Name: "bob"}},
				Attributes: domain.Values{"priority": domain.NumberValue(3), "systems": domain.StringListValue([]string{"rf", "vac"})},
			},
			Logbook:    domain.LogbookRef{ID: 1, Name: "Ops"},
			NFollowups: 1,
			Timestamp:  at.Add(time.Hour),
			Preview:    "dumped",
		},
		{
			Entry:     domain.Entry{ID: 1, Title: "Restart", CreatedAt: at},
			Logbook:   domain.LogbookRef{ID: 1, Name: "Ops"},
			Timestamp: at,
		},
		{
			Entry:     domain.Entry{ID: 3, Title: "Later", CreatedAt: at},
			Logbook:   domain.LogbookRef{ID: 1, Name: "Ops"},
			Timestamp: at,
		},
	}
}

func TestExportCSVPagesThroughResults(t *testing.T) {
	searcher := &pagedSearcher{threads: sampleThreads()}
	svc := NewService(searcher, WithPageSize(2))

	var buf bytes.Buffer
	n, err := svc.Export(context.Background(), domain.EntryQuery{Limit: 1, Offset: 9}, FormatCSV, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, searcher.calls, 2)
	assert.Equal(t, 0, searcher.calls[0].Offset)
	assert.Equal(t, 2, searcher.calls[1].Offset)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"id", "logbook", "title", "authors", "created_at", "last_activity", "followups", "archived", "priority", "systems", "content"}, records[0])
	assert.Equal(t, "alice; bob", records[1][3])
	assert.Equal(t, "2024-01-02T04:04:05Z", records[1][5])
	assert.Equal(t, "3", records[1][8])
	assert.Equal(t, "rf; vac", records[1][9])
	assert.Equal(t, "dumped", records[1][10])
	assert.Equal(t, "", records[2][8])
}

func TestExportXLSX(t *testing.T) {
	svc := NewService(&pagedSearcher{threads: sampleThreads()})

	var buf bytes.Buffer
	_, err := svc.Export(context.Background(), domain.EntryQuery{}, FormatXLSX, &buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Beam dump", rows[1][2])
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewService(&pagedSearcher{})
	_, err := svc.Export(context.Background(), domain.EntryQuery{}, "pdf", &bytes.Buffer{})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "ops-shift-log.csv", FileName("Ops / Shift log", FormatCSV))
	assert.Equal(t, "entries.xlsx", FileName("  ", FormatXLSX))
}
