package schema

import "fmt"

// Hot-store table names. The registry is fixed: ingest requests naming any
// other table are rejected.
const (
	TablePrices       = "prices"
	TableOrderBook    = "order_book_features"
	TableCycleTracker = "cycle_tracker"
	TablePositions    = "positions"
	TablePriceChecks  = "price_checks"
)

// ErrUnknownTable is wrapped into errors returned for unregistered tables.
var ErrUnknownTable = fmt.Errorf("unknown table")

var registry = map[string]*Table{}

func register(t *Table) *Table {
	t.byName = make(map[string]*Column, len(t.Columns))
	for i := range t.Columns {
		t.byName[t.Columns[i].Name] = &t.Columns[i]
	}
	registry[t.Name] = t
	return t
}

// Lookup returns the schema for a registered table.
func Lookup(name string) (*Table, error) {
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// Tables returns the names of all registered tables.
func Tables() []string {
	return []string{TablePrices, TableOrderBook, TableCycleTracker, TablePositions, TablePriceChecks}
}

// Prices is the schema of the prices table.
var Prices = register(&Table{
	Name: TablePrices,
	Columns: []Column{
		{Name: "token", Type: TypeString, Required: true},
		{Name: "timestamp_ms", Type: TypeInt64, Required: true},
		{Name: "price", Type: TypeFloat64, Required: true},
	},
})

// OrderBookFeatures is the schema of the order_book_features table.
var OrderBookFeatures = register(&Table{
	Name: TableOrderBook,
	Columns: []Column{
		{Name: "timestamp_ms", Type: TypeInt64, Required: true},
		{Name: "mid_price", Type: TypeFloat64, Required: true},
		{Name: "spread", Type: TypeFloat64, Required: true},
		{Name: "bid_depth_1pct", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "ask_depth_1pct", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "bid_depth_5pct", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "ask_depth_5pct", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "imbalance_ratio", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "microprice_deviation", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "source", Type: TypeString, Required: false, Default: ""},
	},
})

// CycleTracker is the schema of the cycle_tracker table.
var CycleTracker = register(&Table{
	Name: TableCycleTracker,
	Columns: []Column{
		{Name: "id", Type: TypeString, Required: true},
		{Name: "coin", Type: TypeString, Required: true},
		{Name: "threshold", Type: TypeFloat64, Required: true},
		{Name: "start_time_ms", Type: TypeInt64, Required: true},
		{Name: "end_time_ms", Type: TypeInt64, Required: false, Default: int64(0)},
		{Name: "sequence_start_price", Type: TypeFloat64, Required: true},
		{Name: "highest_price", Type: TypeFloat64, Required: true},
		{Name: "lowest_price", Type: TypeFloat64, Required: true},
		{Name: "max_percent_increase", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "total_data_points", Type: TypeInt64, Required: false, Default: int64(0)},
	},
})

// Positions is the schema of the positions table.
var Positions = register(&Table{
	Name: TablePositions,
	Columns: []Column{
		{Name: "id", Type: TypeString, Required: true},
		{Name: "token", Type: TypeString, Required: true},
		{Name: "entry_time_ms", Type: TypeInt64, Required: true},
		{Name: "entry_price", Type: TypeFloat64, Required: true},
		{Name: "status", Type: TypeString, Required: false, Default: "pending"},
		{Name: "highest_price", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "exit_price", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "exit_time_ms", Type: TypeInt64, Required: false, Default: int64(0)},
		{Name: "policy", Type: TypeString, Required: false, Default: ""},
	},
})

// PriceChecks is the schema of the price_checks table.
var PriceChecks = register(&Table{
	Name: TablePriceChecks,
	Columns: []Column{
		{Name: "position_id", Type: TypeString, Required: true},
		{Name: "checked_at_ms", Type: TypeInt64, Required: true},
		{Name: "current_price", Type: TypeFloat64, Required: true},
		{Name: "highest_price", Type: TypeFloat64, Required: true},
		{Name: "reference_price", Type: TypeFloat64, Required: true},
		{Name: "drop_from_high", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "drop_from_entry", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "tolerance_applied", Type: TypeFloat64, Required: false, Default: 0.0},
		{Name: "decision", Type: TypeString, Required: true},
	},
})
