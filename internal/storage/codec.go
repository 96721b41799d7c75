package storage

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

func newInfo(name string, nodes, edges *table.Table) (*Info, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.ValidationErrorf("snapshot name is empty")
	}
	if err := nodes.Validate(); err != nil {
		return nil, err
	}
	if err := edges.Validate(); err != nil {
		return nil, err
	}
	return &Info{
		ID:        uuid.NewString(),
		Name:      name,
		NodeRows:  nodes.Len(),
		EdgeRows:  edges.Len(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// orEmpty lets callers save a snapshot without an edge table.
func orEmpty(t *table.Table) *table.Table {
	if t == nil {
		return table.New()
	}
	return t
}

func encodeValues(values map[string]any) (string, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return "", errors.ValidationErrorf("encode row: %v", err)
	}
	return string(data), nil
}

func decodeValues(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, errors.InternalErrorf("decode stored row: %v", err)
	}
	for k, v := range values {
		values[k] = table.Normalize(v)
	}
	return values, nil
}

func encodeTable(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := table.Encode(&buf, t, table.FormatJSON); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTable(data []byte) (*table.Table, error) {
	return table.Decode(bytes.NewReader(data), table.FormatJSON)
}
