package schema

import (
	"errors"
	"testing"
)

func TestLookup_KnownTables(t *testing.T) {
	for _, name := range Tables() {
		tbl, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s) failed: %v", name, err)
		}
		if tbl.Name != name {
			t.Errorf("Expected table %s, got %s", name, tbl.Name)
		}
	}
}

func TestLookup_UnknownTable(t *testing.T) {
	_, err := Lookup("swap_events")
	if !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Expected ErrUnknownTable, got %v", err)
	}
}

func TestNormalizeRow_Valid(t *testing.T) {
	row, err := Prices.NormalizeRow(map[string]any{
		"token":        "SOL",
		"timestamp_ms": int64(1000),
		"price":        1.5,
	})
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if row["token"] != "SOL" || row["timestamp_ms"] != int64(1000) || row["price"] != 1.5 {
		t.Errorf("Unexpected normalized row: %v", row)
	}
}

func TestNormalizeRow_UnknownColumn(t *testing.T) {
	_, err := Prices.NormalizeRow(map[string]any{
		"token":        "SOL",
		"timestamp_ms": int64(1000),
		"price":        1.5,
		"volume":       10.0,
	})
	var verr *ViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ViolationError, got %v", err)
	}
	if verr.Column != "volume" {
		t.Errorf("Expected violation on volume, got %s", verr.Column)
	}
}

func TestNormalizeRow_RequiredMissing(t *testing.T) {
	_, err := Prices.NormalizeRow(map[string]any{
		"token": "SOL",
		"price": 1.5,
	})
	var verr *ViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ViolationError, got %v", err)
	}
	if verr.Column != "timestamp_ms" {
		t.Errorf("Expected violation on timestamp_ms, got %s", verr.Column)
	}
}

func TestNormalizeRow_OptionalDefaults(t *testing.T) {
	row, err := Positions.NormalizeRow(map[string]any{
		"id":            "p1",
		"token":         "SOL",
		"entry_time_ms": int64(1000),
		"entry_price":   2.0,
	})
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if row["status"] != "pending" {
		t.Errorf("Expected default status pending, got %v", row["status"])
	}
	if row["exit_time_ms"] != int64(0) {
		t.Errorf("Expected default exit_time_ms 0, got %v", row["exit_time_ms"])
	}
}

func TestNormalizeRow_IntWidensToFloat(t *testing.T) {
	row, err := Prices.NormalizeRow(map[string]any{
		"token":        "SOL",
		"timestamp_ms": 1000,
		"price":        2, // int value for a float column
	})
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if row["price"] != 2.0 {
		t.Errorf("Expected price 2.0, got %v (%T)", row["price"], row["price"])
	}
	if row["timestamp_ms"] != int64(1000) {
		t.Errorf("Expected timestamp_ms int64(1000), got %v (%T)", row["timestamp_ms"], row["timestamp_ms"])
	}
}

func TestNormalizeRow_IntegralFloatNarrows(t *testing.T) {
	row, err := Prices.NormalizeRow(map[string]any{
		"token":        "SOL",
		"timestamp_ms": 1000.0, // JSON decoding yields float64
		"price":        1.5,
	})
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if row["timestamp_ms"] != int64(1000) {
		t.Errorf("Expected int64(1000), got %v (%T)", row["timestamp_ms"], row["timestamp_ms"])
	}
}

func TestNormalizeRow_FractionalIntRejected(t *testing.T) {
	_, err := Prices.NormalizeRow(map[string]any{
		"token":        "SOL",
		"timestamp_ms": 1000.5,
		"price":        1.5,
	})
	if err == nil {
		t.Error("Expected error for fractional int64 value")
	}
}

func TestNormalizeRow_WrongType(t *testing.T) {
	_, err := Prices.NormalizeRow(map[string]any{
		"token":        42,
		"timestamp_ms": int64(1000),
		"price":        1.5,
	})
	if err == nil {
		t.Error("Expected error for non-string token")
	}
}
