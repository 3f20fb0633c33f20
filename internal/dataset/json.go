package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type jsonLoader struct{}

func (jsonLoader) CanLoad(filename string) bool { return hasExt(filename, ".json") }

// Load accepts either an array of records ([{"a":1},{"a":2}]) or an object of
// column arrays ({"a":[1,2]}). Column order follows first appearance.
func (jsonLoader) Load(name string, content []byte, opt Options) (*Dataset, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return New(name, nil)
	}
	switch trimmed[0] {
	case '[':
		return loadJSONRecords(name, trimmed, opt)
	case '{':
		return loadJSONColumns(name, trimmed, opt)
	default:
		return nil, errors.New("json dataset must be an array of objects or an object of arrays")
	}
}

func loadJSONRecords(name string, content []byte, opt Options) (*Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read array start: %w", err)
	}
	var (
		order []string
		seen  = map[string]int{}
		recs  []map[string]Value
	)
	for dec.More() {
		if opt.MaxRows > 0 && len(recs) >= opt.MaxRows {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("skip record %d: %w", len(recs)+1, err)
			}
			continue
		}
		keys, rec, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(recs)+1, err)
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = len(order)
				order = append(order, k)
			}
		}
		recs = append(recs, rec)
	}
	cols := make([]Column, len(order))
	for i, k := range order {
		vals := make([]Value, len(recs))
		for r, rec := range recs {
			vals[r] = rec[k]
		}
		cols[i] = Column{Name: k, Values: vals}
	}
	return New(name, cols)
}

// decodeObject reads one JSON object keeping key order.
func decodeObject(dec *json.Decoder) ([]string, map[string]Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	out := map[string]Value{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := kt.(string)
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := out[key]; !dup {
			keys = append(keys, key)
		}
		out[key] = FromInterface(raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, out, nil
}

func loadJSONColumns(name string, content []byte, opt Options) (*Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var cols []Column
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := kt.(string)
		var raw []any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("column %q: %w", key, err)
		}
		if opt.MaxRows > 0 && len(raw) > opt.MaxRows {
			raw = raw[:opt.MaxRows]
		}
		vals := make([]Value, len(raw))
		for i, x := range raw {
			vals[i] = FromInterface(x)
		}
		cols = append(cols, Column{Name: key, Values: vals})
	}
	return New(name, cols)
}
