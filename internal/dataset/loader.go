package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// missingTokens are cell values read as absent rather than as strings.
var missingTokens = map[string]bool{
	"": true, "na": true, "n/a": true, "nan": true, "null": true, "none": true, "-": true,
}

var utf8BOM = []byte("\xef\xbb\xbf")

var datetimeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"2006-01",
	"Jan 2, 2006",
	"02-Jan-2006",
}

// SupportedExtension reports whether a file name has an extension Load understands.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Load parses a CSV or XLSX file into a Table.
func Load(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadCSV parses delimited text with a header row. The delimiter is sniffed
// from the header line (comma, semicolon or tab).
func ReadCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	head, _ := br.Peek(4096)

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(head)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing csv: %v", ErrUnsupportedFormat, err)
	}
	return fromRecords(records)
}

func sniffDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func loadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: opening workbook: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnsupportedFormat)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrUnsupportedFormat, sheets[0], err)
	}
	return fromRecords(rows)
}

// fromRecords builds a typed table from a header row plus string records.
func fromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrUnsupportedFormat)
	}
	header := records[0]
	body := records[1:]

	t := &Table{Columns: make([]Column, len(header))}
	seen := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}

		raw := make([]string, len(body))
		for r, rec := range body {
			if i < len(rec) {
				raw[r] = strings.TrimSpace(rec[i])
			}
		}
		t.Columns[i] = inferColumn(name, raw)
	}
	return t, nil
}

// inferColumn picks the narrowest kind every non-missing cell parses as:
// int, then float, then bool, then datetime, falling back to string.
func inferColumn(name string, raw []string) Column {
	col := Column{Name: name, Values: make([]any, len(raw))}
	for _, kind := range []Kind{KindInt, KindFloat, KindBool, KindDatetime} {
		values, ok := parseAll(raw, kind)
		if ok {
			col.Kind = kind
			col.Values = values
			return col
		}
	}
	col.Kind = KindString
	for i, s := range raw {
		if isMissing(s) {
			continue
		}
		col.Values[i] = s
	}
	return col
}

func parseAll(raw []string, kind Kind) ([]any, bool) {
	out := make([]any, len(raw))
	present := 0
	for i, s := range raw {
		if isMissing(s) {
			continue
		}
		v, ok := parseCell(s, kind)
		if !ok {
			return nil, false
		}
		out[i] = v
		present++
	}
	return out, present > 0
}

func parseCell(s string, kind Kind) (any, bool) {
	switch kind {
	case KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case KindBool:
		switch strings.ToLower(s) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	case KindDatetime:
		ts, ok := ParseTime(s)
		return ts, ok
	}
	return nil, false
}

// ParseTime parses s with the first matching supported layout.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func isMissing(s string) bool {
	return missingTokens[strings.ToLower(s)]
}

// ToFloat converts an int64, float64 or numeric string to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	}
	return math.NaN(), false
}

// Locator resolves a dataset handle to the path of its stored file.
type Locator interface {
	Locate(ctx context.Context, handle string) (string, error)
}

// FileSource loads tables from files resolved through a Locator. Every call
// rereads the file.
type FileSource struct {
	locator Locator
}

// NewFileSource creates a FileSource over the given locator.
func NewFileSource(l Locator) *FileSource {
	return &FileSource{locator: l}
}

// Load resolves handle and parses its file.
func (s *FileSource) Load(ctx context.Context, handle string) (*Table, error) {
	path, err := s.locator.Locate(ctx, handle)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(path)
}
