package ingest

import (
	"fmt"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/schema"
)

// opFromRow converts a schema-normalized row map into a typed store op.
// NormalizeRow guarantees every declared column is present with its
// declared type, so the assertions below cannot fail on a normalized row.
func opFromRow(table string, row map[string]any) (hotstore.Op, error) {
	switch table {
	case schema.TablePrices:
		return hotstore.InsertPrice{Point: domain.PricePoint{
			Token:       row["token"].(string),
			TimestampMs: row["timestamp_ms"].(int64),
			Price:       row["price"].(float64),
		}}, nil

	case schema.TableOrderBook:
		return hotstore.InsertOrderBook{Row: domain.OrderBookFeatureRow{
			TimestampMs:         row["timestamp_ms"].(int64),
			MidPrice:            row["mid_price"].(float64),
			Spread:              row["spread"].(float64),
			BidDepth1Pct:        row["bid_depth_1pct"].(float64),
			AskDepth1Pct:        row["ask_depth_1pct"].(float64),
			BidDepth5Pct:        row["bid_depth_5pct"].(float64),
			AskDepth5Pct:        row["ask_depth_5pct"].(float64),
			ImbalanceRatio:      row["imbalance_ratio"].(float64),
			MicropriceDeviation: row["microprice_deviation"].(float64),
			Source:              row["source"].(string),
		}}, nil

	case schema.TableCycleTracker:
		return hotstore.UpsertCycle{Cycle: domain.Cycle{
			ID:                 row["id"].(string),
			Coin:               row["coin"].(string),
			Threshold:          row["threshold"].(float64),
			StartTimeMs:        row["start_time_ms"].(int64),
			EndTimeMs:          row["end_time_ms"].(int64),
			SequenceStartPrice: row["sequence_start_price"].(float64),
			HighestPrice:       row["highest_price"].(float64),
			LowestPrice:        row["lowest_price"].(float64),
			MaxPercentIncrease: row["max_percent_increase"].(float64),
			TotalDataPoints:    row["total_data_points"].(int64),
		}}, nil

	case schema.TablePositions:
		status := row["status"].(string)
		if !validStatus(status) {
			return nil, &schema.ViolationError{Table: table, Column: "status", Reason: fmt.Sprintf("invalid status %q", status)}
		}
		return hotstore.InsertPosition{Position: domain.Position{
			ID:           row["id"].(string),
			Token:        row["token"].(string),
			EntryTimeMs:  row["entry_time_ms"].(int64),
			EntryPrice:   row["entry_price"].(float64),
			Status:       status,
			HighestPrice: row["highest_price"].(float64),
			ExitPrice:    row["exit_price"].(float64),
			ExitTimeMs:   row["exit_time_ms"].(int64),
			Policy:       row["policy"].(string),
		}}, nil

	case schema.TablePriceChecks:
		return hotstore.InsertPriceCheck{Check: domain.PriceCheck{
			PositionID:       row["position_id"].(string),
			CheckedAtMs:      row["checked_at_ms"].(int64),
			CurrentPrice:     row["current_price"].(float64),
			HighestPrice:     row["highest_price"].(float64),
			ReferencePrice:   row["reference_price"].(float64),
			DropFromHigh:     row["drop_from_high"].(float64),
			DropFromEntry:    row["drop_from_entry"].(float64),
			ToleranceApplied: row["tolerance_applied"].(float64),
			Decision:         row["decision"].(string),
		}}, nil

	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownTable, table)
	}
}

func validStatus(s string) bool {
	switch s {
	case domain.PositionPending, domain.PositionSold, domain.PositionCancelled, domain.PositionError:
		return true
	}
	return false
}
