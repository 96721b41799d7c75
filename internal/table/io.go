package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Format names a file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errors.ValidationErrorf("unknown table format for %s (want .csv, .json or .yaml)", path)
}

// ReadFile loads a table, choosing the decoder by extension.
func ReadFile(path string) (*Table, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "open table %s", path)
	}
	defer f.Close()

	t, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteFile stores a table, choosing the encoder by extension.
func WriteFile(path string, t *Table) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, t, format); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.FileSystemErrorf(err, "write table %s", path)
	}
	return nil
}

// Decode reads a table in format.
func Decode(r io.Reader, format Format) (*Table, error) {
	var t *Table
	var err error
	switch format {
	case FormatCSV:
		t, err = readCSV(r)
	case FormatJSON:
		t, err = readJSON(r)
	case FormatYAML:
		t, err = readYAML(r)
	default:
		return nil, errors.ValidationErrorf("unknown table format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Encode writes a table in format.
func Encode(w io.Writer, t *Table, format Format) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, t)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	}
	return errors.ValidationErrorf("unknown table format %q", format)
}

// readCSV expects the row key in the first column, whatever its header says.
func readCSV(r io.Reader) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.ValidationErrorf("parse csv: %v", err)
	}
	if len(records) == 0 {
		return New(), nil
	}
	header := records[0]
	if len(header) == 0 {
		return nil, errors.ValidationErrorf("csv header is empty")
	}
	t := New(header[1:]...)
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, errors.ValidationErrorf("csv row %d has %d fields, header has %d", i+1, len(rec), len(header))
		}
		values := make(map[string]any, len(rec)-1)
		for j, cell := range rec[1:] {
			if v := parseCell(cell); v != nil {
				values[header[j+1]] = v
			}
		}
		t.Rows = append(t.Rows, Row{Key: rec[0], Values: values})
	}
	return t, nil
}

func writeCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(append([]string{ColumnID}, t.Columns...)); err != nil {
		return err
	}
	for _, row := range t.Rows {
		rec := make([]string, 0, len(t.Columns)+1)
		rec = append(rec, row.Key)
		for _, c := range t.Columns {
			v, _ := row.Get(c)
			rec = append(rec, formatCell(v))
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

var (
	intCell   = regexp.MustCompile(`^[-+]?[0-9]+$`)
	floatCell = regexp.MustCompile(`^[-+]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][-+]?[0-9]+)?$`)
)

// parseCell reads numbers, booleans, JSON lists or maps and quoted JSON
// strings; an empty cell is null. Text such as NaN or Inf stays a string.
func parseCell(s string) any {
	switch {
	case s == "":
		return nil
	case s == "true":
		return true
	case s == "false":
		return false
	case s == "+Inf":
		return math.Inf(1)
	case s == "-Inf":
		return math.Inf(-1)
	case intCell.MatchString(s):
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	}
	if floatCell.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	switch s[0] {
	case '"', '[', '{':
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			if _, err := dec.Token(); err == io.EOF {
				return Normalize(v)
			}
		}
	}
	return s
}

// formatCell is the inverse of parseCell. A string that parseCell would
// read as another value is written as a JSON string literal.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		if p, ok := parseCell(x).(string); ok && p == x {
			return x
		}
		data, _ := json.Marshal(x)
		return string(data)
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case []any, map[string]any, []string:
		data, err := json.Marshal(x)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return ""
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	out := strconv.FormatFloat(f, 'g', -1, bits)
	if intCell.MatchString(out) {
		// keep the value a float on the way back
		out += ".0"
	}
	return out
}

func readJSON(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, errors.ValidationErrorf("parse json table: %v", err)
	}
	for i := range t.Rows {
		for k, v := range t.Rows[i].Values {
			t.Rows[i].Values[k] = Normalize(v)
		}
	}
	return &t, nil
}

func readYAML(r io.Reader) (*Table, error) {
	var t Table
	if err := yaml.NewDecoder(r).Decode(&t); err != nil && err != io.EOF {
		return nil, errors.ValidationErrorf("parse yaml table: %v", err)
	}
	for i := range t.Rows {
		for k, v := range t.Rows[i].Values {
			t.Rows[i].Values[k] = Normalize(v)
		}
	}
	return &t, nil
}

// Normalize converts decoder-specific values (json.Number, int) into the
// int64/float64 forms the stores accept, recursing into lists and maps.
func Normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case int:
		return int64(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	}
	return v
}
