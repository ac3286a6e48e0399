package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/civiclab/reportd/internal/model"
)

func sampleResult() *model.QueryResult {
	return &model.QueryResult{
		Resource: []model.Row{
			{
				Fields: map[string]any{"first_name": "Ann", "last_name": "Smith", "hours": int64(12)},
				Relations: map[string]map[string]any{
					"cities": {"name": "Riverton"},
				},
			},
			{
				Fields: map[string]any{"first_name": "Cal", "last_name": "Smithers", "hours": nil},
				Relations: map[string]map[string]any{
					"cities": nil,
				},
			},
		},
	}
}

var sampleColumns = []string{"first_name", "last_name", "hours", "cities.name"}

func TestFlatten(t *testing.T) {
	table, err := Flatten(sampleResult(), sampleColumns)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	if !reflect.DeepEqual(table.Header, sampleColumns) {
		t.Errorf("header = %v", table.Header)
	}
	want := [][]string{
		{"Ann", "Smith", "12", "Riverton"},
		{"Cal", "Smithers", "null", "null"},
	}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("rows = %v, want %v", table.Rows, want)
	}
}

func TestFlattenEmpty(t *testing.T) {
	if _, err := Flatten(&model.QueryResult{Resource: []model.Row{}}, sampleColumns); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
	if _, err := Flatten(nil, sampleColumns); !errors.Is(err, ErrEmpty) {
		t.Errorf("nil result err = %v, want ErrEmpty", err)
	}
	if _, err := Flatten(sampleResult(), nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("no columns err = %v, want ErrEmpty", err)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleResult(), sampleColumns); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}
	if !reflect.DeepEqual(records[0], sampleColumns) {
		t.Errorf("header = %v", records[0])
	}
	if records[2][3] != "null" {
		t.Errorf("unresolved relation cell = %q, want null", records[2][3])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, &model.QueryResult{}, sampleColumns)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
	if buf.Len() != 0 {
		t.Error("empty export wrote output")
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if err := WritePDF(&buf, sampleResult(), sampleColumns, "Volunteers", now); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Error("output is not a PDF document")
	}
}

func TestWritePDFEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WritePDF(&buf, &model.QueryResult{}, sampleColumns, "Volunteers", time.Now())
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if got := Filename("volunteers", "csv", now); got != "volunteers_2026-03-14.csv" {
		t.Errorf("Filename = %q", got)
	}
	if got := Filename("", "pdf", now); !strings.HasPrefix(got, "report_") {
		t.Errorf("fallback Filename = %q", got)
	}
}
