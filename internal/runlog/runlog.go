// Package runlog keeps an append-only CSV audit trail of batch runs next to
// the bank files they describe.
package runlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/cobranca/internal/model"
)

// Entry is one row in the run log.
type Entry struct {
	Timestamp time.Time
	RunID     string
	Direction model.Direction
	Status    model.BatchStatus
	FileName  string
	Records   int
	Total     decimal.Decimal
	Detail    string
}

// Header is the CSV header for batch-runs.csv.
const Header = "timestamp,run_id,direction,status,file,records,total,detail"

const (
	numFields    = 8
	logDir       = "logs"
	logFile      = "logs/batch-runs.csv"
	colTimestamp = 0
	colRunID     = 1
	colDirection = 2
	colStatus    = 3
	colFile      = 4
	colRecords   = 5
	colTotal     = 6
	colDetail    = 7
)

// FromRun builds the log entry for run as of at.
func FromRun(run *model.BatchRun, at time.Time) Entry {
	e := Entry{
		Timestamp: at,
		RunID:     run.ID.String(),
		Direction: run.Direction,
		Status:    run.Status,
		FileName:  run.FileName,
		Records:   run.RecordCount,
		Total:     run.TotalAmount,
	}
	if run.ErrorDetail != nil {
		e.Detail = *run.ErrorDetail
	}
	return e
}

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colRunID] = e.RunID
	row[colDirection] = string(e.Direction)
	row[colStatus] = string(e.Status)
	row[colFile] = e.FileName
	row[colRecords] = strconv.Itoa(e.Records)
	row[colTotal] = e.Total.StringFixed(2)
	row[colDetail] = e.Detail
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	records, err := strconv.Atoi(record[colRecords])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing records %q: %w", record[colRecords], err)
	}
	total, err := decimal.NewFromString(record[colTotal])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing total %q: %w", record[colTotal], err)
	}

	return Entry{
		Timestamp: ts,
		RunID:     record[colRunID],
		Direction: model.Direction(record[colDirection]),
		Status:    model.BatchStatus(record[colStatus]),
		FileName:  record[colFile],
		Records:   records,
		Total:     total,
		Detail:    record[colDetail],
	}, nil
}

// Append writes entries to <root>/logs/batch-runs.csv, creating the file and header if needed.
func Append(root string, entries []Entry) error {
	dir := filepath.Join(root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(root, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <root>/logs/batch-runs.csv. A missing file
// has no entries.
func Read(root string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(root, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading run log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
