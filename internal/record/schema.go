package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaError reports provider output that does not fit the batch schema or
// the record invariants. A batch with any such item is rejected whole.
type SchemaError struct {
	Cause error
}

func (e *SchemaError) Error() string {
	if e == nil || e.Cause == nil {
		return "record: schema violation"
	}
	return "record: schema violation: " + e.Cause.Error()
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// IsSchemaError reports whether err wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

var (
	schemaOnce     sync.Once
	schemaJSON     []byte
	schemaCompiled *jsonschemav5.Schema
	schemaErr      error
)

func loadSchema() {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(&wireBatch{})
	s.Title = "routergen batch"
	schemaJSON, schemaErr = json.MarshalIndent(s, "", "  ")
	if schemaErr != nil {
		return
	}
	schemaCompiled, schemaErr = jsonschemav5.CompileString("batch.schema.json", string(schemaJSON))
}

// BatchSchema returns the JSON Schema of a provider batch response
// ({"items": [...]}). Providers that support schema-constrained output are
// given this document.
func BatchSchema() ([]byte, error) {
	schemaOnce.Do(loadSchema)
	return schemaJSON, schemaErr
}

// ParseBatch decodes provider output into examples. It accepts an
// {"items": [...]} object, a bare array, a single example object, or
// newline-delimited objects, optionally wrapped in a markdown code fence.
// Nulls are dropped before the document is checked against BatchSchema.
func ParseBatch(raw []byte) ([]TrainingExample, error) {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return nil, fmt.Errorf("record: batch schema: %w", schemaErr)
	}

	doc, err := normalizeBatch(stripFences(raw))
	if err != nil {
		return nil, &SchemaError{Cause: err}
	}
	doc = stripNulls(doc)
	if err := schemaCompiled.Validate(doc); err != nil {
		return nil, &SchemaError{Cause: err}
	}

	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, &SchemaError{Cause: err}
	}
	var batch wireBatch
	if err := json.Unmarshal(canonical, &batch); err != nil {
		return nil, &SchemaError{Cause: err}
	}

	out := make([]TrainingExample, 0, len(batch.Items))
	for i, item := range batch.Items {
		ex, err := item.toExample()
		if err != nil {
			return nil, &SchemaError{Cause: fmt.Errorf("item %d: %w", i, err)}
		}
		out = append(out, ex)
	}
	return out, nil
}

// normalizeBatch reads every JSON value in raw and folds them into a single
// {"items": [...]} document.
func normalizeBatch(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var values []any
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		values = append(values, v)
	}

	switch len(values) {
	case 0:
		return nil, errors.New("empty response")
	case 1:
		switch v := values[0].(type) {
		case map[string]any:
			if _, ok := v["items"]; ok {
				return v, nil
			}
			return map[string]any{"items": []any{v}}, nil
		case []any:
			return map[string]any{"items": v}, nil
		default:
			return nil, fmt.Errorf("unexpected top-level %T", v)
		}
	default:
		return map[string]any{"items": values}, nil
	}
}

func stripNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if child == nil {
				delete(t, k)
				continue
			}
			t[k] = stripNulls(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = stripNulls(child)
		}
		return t
	default:
		return v
	}
}

func stripFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
