package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/entries"
	"github.com/rpattn/logbook/internal/repository/memory"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

type recordingCreator struct {
	inputs []entries.CreateInput
	fail   map[string]error
}

func (c *recordingCreator) Create(ctx context.Context, logbookID int64, input entries.CreateInput) (domain.Entry, error) {
	if err, ok := c.fail[input.Title]; ok {
		return domain.Entry{}, err
	}
	c.inputs = append(c.inputs, input)
	return domain.Entry{ID: int64(len(c.inputs)), LogbookID: logbookID, Title: input.Title}, nil
}

func newTestService(t *testing.T) (*Service, *recordingCreator, domain.Logbook) {
	t.Helper()
	store := memory.NewStore()
	lb := domain.NewLogbook("Ops", "", nil).WithAttributes(domain.AttributeSchema{
		{Name: "priority", Type: domain.AttributeTypeNumber},
		{Name: "beam", Type: domain.AttributeTypeBoolean},
		{Name: "systems", Type: domain.AttributeTypeMultiOption, Options: []string{"rf", "vac"}},
	})
	created, err := store.Repositories().Logbooks.Create(context.Background(), lb)
	if err != nil {
		t.Fatalf("create logbook: %v", err)
	}
	creator := &recordingCreator{fail: map[string]error{}}
	return NewService(store.Repositories().Logbooks, creator, zerolog.Nop()), creator, created
}

func TestServiceIngestCSVCreatesEntries(t *testing.T) {
	service, creator, lb := newTestService(t)

	data := "\xEF\xBB\xBFTitle,Authors,Content,Created At,priority,beam,systems,colour\n" +
		"Beam dump,alice; bob,<p>dumped</p>,2024-02-01 10:00:00,3,no,rf;vac,red\n" +
		"\n" +
		"Restart,carol,ok,,,yes,,\n"

	summary, err := service.Ingest(context.Background(), Request{
		LogbookID: lb.ID,
		FileName:  "shift.csv",
		Data:      strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if summary.TotalRows != 2 || summary.ValidRows != 2 || summary.InvalidRows != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.SkippedColumns) != 1 || summary.SkippedColumns[0] != "colour" {
		t.Fatalf("expected colour to be skipped, got %v", summary.SkippedColumns)
	}
	if len(creator.inputs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(creator.inputs))
	}

	first := creator.inputs[0]
	if first.Title != "Beam dump" || len(first.Authors) != 2 || first.Authors[1].Name != "bob" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if !first.CreatedAt.Equal(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected created_at to be parsed, got %v", first.CreatedAt)
	}
	if beam, ok := first.Attributes["beam"].Boolean(); !ok || beam {
		t.Fatalf("expected beam=false, got %v", first.Attributes["beam"])
	}
	if systems, ok := first.Attributes["systems"].StringList(); !ok || len(systems) != 2 {
		t.Fatalf("expected two systems, got %v", first.Attributes["systems"])
	}
	if text, ok := first.Attributes["priority"].Text(); !ok || text != "3" {
		t.Fatalf("expected raw priority text, got %v", first.Attributes["priority"])
	}

	second := creator.inputs[1]
	if _, ok := second.Attributes["priority"]; ok {
		t.Fatalf("expected empty priority to be omitted")
	}
	if !second.CreatedAt.IsZero() {
		t.Fatalf("expected empty created_at to stay zero")
	}
}

func TestServiceIngestReportsInvalidRows(t *testing.T) {
	service, creator, lb := newTestService(t)
	creator.fail["rejected"] = domain.NewValidationError("attributes.priority", "not a number")

	data := "title,beam\nok,true\nbad,maybe\nrejected,false\n"
	summary, err := service.Ingest(context.Background(), Request{
		LogbookID: lb.ID,
		FileName:  "rows.csv",
		Data:      strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if summary.ValidRows != 1 || summary.InvalidRows != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Errors[0].RowNumber != 3 || summary.Errors[1].RowNumber != 4 {
		t.Fatalf("unexpected row errors: %+v", summary.Errors)
	}
}

func TestServiceIngestStopsOnStorageFailure(t *testing.T) {
	service, creator, lb := newTestService(t)
	creator.fail["boom"] = errors.New("connection reset")

	_, err := service.Ingest(context.Background(), Request{
		LogbookID: lb.ID,
		FileName:  "rows.csv",
		Data:      strings.NewReader("title\nboom\n"),
	})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestServiceIngestExcel(t *testing.T) {
	service, creator, lb := newTestService(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]any{"title", "priority"})
	_ = f.SetSheetRow(sheet, "A2", &[]any{"From excel", 7})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	summary, err := service.Ingest(context.Background(), Request{
		LogbookID: lb.ID,
		FileName:  "rows.xlsx",
		Data:      &buf,
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if summary.ValidRows != 1 || creator.inputs[0].Title != "From excel" {
		t.Fatalf("unexpected result: %+v %+v", summary, creator.inputs)
	}
}

func TestServiceIngestRejectsUnsupportedFormat(t *testing.T) {
	service, _, lb := newTestService(t)

	_, err := service.Ingest(context.Background(), Request{
		LogbookID: lb.ID,
		FileName:  "rows.json",
		Data:      strings.NewReader("[]"),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceIngestUnknownLogbook(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Ingest(context.Background(), Request{
		LogbookID: 404,
		FileName:  "rows.csv",
		Data:      strings.NewReader("title\nx\n"),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
