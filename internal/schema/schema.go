// Package schema declares the fixed table registry of the hot store and
// validates ingest row maps against it.
package schema

import (
	"fmt"
	"math"
)

// ColumnType identifies the declared type of a column.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInt64
	TypeFloat64
)

func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// Column declares one column of a table schema.
type Column struct {
	Name     string
	Type     ColumnType
	Required bool
	Default  any // applied when an optional column is absent
}

// Table declares the schema of one hot-store table.
type Table struct {
	Name    string
	Columns []Column

	byName map[string]*Column
}

// ViolationError reports a row that does not match its table's schema.
type ViolationError struct {
	Table  string
	Column string
	Reason string
}

func (e *ViolationError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema violation on %s: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("schema violation on %s.%s: %s", e.Table, e.Column, e.Reason)
}

func (t *Table) violation(column, reason string) error {
	return &ViolationError{Table: t.Name, Column: column, Reason: reason}
}

// NormalizeRow validates a row map against the table schema and returns a
// normalized copy: unknown keys are a hard error, required keys must be
// present, missing optional keys receive their declared defaults, and
// numeric values are coerced to the declared column type.
func (t *Table) NormalizeRow(row map[string]any) (map[string]any, error) {
	for key := range row {
		if _, ok := t.byName[key]; !ok {
			return nil, t.violation(key, "unknown column")
		}
	}

	out := make(map[string]any, len(t.Columns))
	for i := range t.Columns {
		col := &t.Columns[i]
		raw, present := row[col.Name]
		if !present {
			if col.Required {
				return nil, t.violation(col.Name, "required column missing")
			}
			out[col.Name] = col.Default
			continue
		}
		v, err := coerce(raw, col.Type)
		if err != nil {
			return nil, t.violation(col.Name, err.Error())
		}
		out[col.Name] = v
	}
	return out, nil
}

// coerce converts a raw value to the declared column type. Integers widen
// to float64; floats narrow to int64 only when they carry no fraction.
func coerce(raw any, typ ColumnType) (any, error) {
	switch typ {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case TypeInt64:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected int64, got fractional %v", v)
			}
			return int64(v), nil
		default:
			return nil, fmt.Errorf("expected int64, got %T", raw)
		}
	case TypeFloat64:
		switch v := raw.(type) {
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		default:
			return nil, fmt.Errorf("expected float64, got %T", raw)
		}
	default:
		return nil, fmt.Errorf("unsupported column type %v", typ)
	}
}
