package archive

import (
	"fmt"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/schema"
)

// The encoders below turn row slices into columnar partitions and back.
// Column order matches the table's declared schema.

func pricesPartition(bucket int64, rows []domain.PricePoint) Partition {
	n := len(rows)
	tokens := make([]string, n)
	ts := make([]int64, n)
	prices := make([]float64, n)
	for i, r := range rows {
		tokens[i] = r.Token
		ts[i] = r.TimestampMs
		prices[i] = r.Price
	}
	return Partition{
		Table:         schema.TablePrices,
		BucketStartMs: bucket,
		Rows:          n,
		Columns: []Column{
			{Name: "token", Strings: tokens},
			{Name: "timestamp_ms", Ints: ts},
			{Name: "price", Floats: prices},
		},
	}
}

// DecodePrices converts a prices partition back into row form.
func DecodePrices(p Partition) ([]domain.PricePoint, error) {
	cols, err := columnIndex(p, schema.TablePrices)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PricePoint, p.Rows)
	for i := range out {
		out[i] = domain.PricePoint{
			Token:       cols["token"].Strings[i],
			TimestampMs: cols["timestamp_ms"].Ints[i],
			Price:       cols["price"].Floats[i],
		}
	}
	return out, nil
}

func orderBookPartition(bucket int64, rows []domain.OrderBookFeatureRow) Partition {
	n := len(rows)
	ts := make([]int64, n)
	mid := make([]float64, n)
	spread := make([]float64, n)
	bid1 := make([]float64, n)
	ask1 := make([]float64, n)
	bid5 := make([]float64, n)
	ask5 := make([]float64, n)
	imbalance := make([]float64, n)
	micro := make([]float64, n)
	source := make([]string, n)
	for i, r := range rows {
		ts[i] = r.TimestampMs
		mid[i] = r.MidPrice
		spread[i] = r.Spread
		bid1[i] = r.BidDepth1Pct
		ask1[i] = r.AskDepth1Pct
		bid5[i] = r.BidDepth5Pct
		ask5[i] = r.AskDepth5Pct
		imbalance[i] = r.ImbalanceRatio
		micro[i] = r.MicropriceDeviation
		source[i] = r.Source
	}
	return Partition{
		Table:         schema.TableOrderBook,
		BucketStartMs: bucket,
		Rows:          n,
		Columns: []Column{
			{Name: "timestamp_ms", Ints: ts},
			{Name: "mid_price", Floats: mid},
			{Name: "spread", Floats: spread},
			{Name: "bid_depth_1pct", Floats: bid1},
			{Name: "ask_depth_1pct", Floats: ask1},
			{Name: "bid_depth_5pct", Floats: bid5},
			{Name: "ask_depth_5pct", Floats: ask5},
			{Name: "imbalance_ratio", Floats: imbalance},
			{Name: "microprice_deviation", Floats: micro},
			{Name: "source", Strings: source},
		},
	}
}

// DecodeOrderBook converts an order_book_features partition back into row
// form.
func DecodeOrderBook(p Partition) ([]domain.OrderBookFeatureRow, error) {
	cols, err := columnIndex(p, schema.TableOrderBook)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderBookFeatureRow, p.Rows)
	for i := range out {
		out[i] = domain.OrderBookFeatureRow{
			TimestampMs:         cols["timestamp_ms"].Ints[i],
			MidPrice:            cols["mid_price"].Floats[i],
			Spread:              cols["spread"].Floats[i],
			BidDepth1Pct:        cols["bid_depth_1pct"].Floats[i],
			AskDepth1Pct:        cols["ask_depth_1pct"].Floats[i],
			BidDepth5Pct:        cols["bid_depth_5pct"].Floats[i],
			AskDepth5Pct:        cols["ask_depth_5pct"].Floats[i],
			ImbalanceRatio:      cols["imbalance_ratio"].Floats[i],
			MicropriceDeviation: cols["microprice_deviation"].Floats[i],
			Source:              cols["source"].Strings[i],
		}
	}
	return out, nil
}

func cyclesPartition(bucket int64, rows []domain.Cycle) Partition {
	n := len(rows)
	ids := make([]string, n)
	coins := make([]string, n)
	thresholds := make([]float64, n)
	starts := make([]int64, n)
	ends := make([]int64, n)
	seqStarts := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	maxIncs := make([]float64, n)
	points := make([]int64, n)
	for i, r := range rows {
		ids[i] = r.ID
		coins[i] = r.Coin
		thresholds[i] = r.Threshold
		starts[i] = r.StartTimeMs
		ends[i] = r.EndTimeMs
		seqStarts[i] = r.SequenceStartPrice
		highs[i] = r.HighestPrice
		lows[i] = r.LowestPrice
		maxIncs[i] = r.MaxPercentIncrease
		points[i] = r.TotalDataPoints
	}
	return Partition{
		Table:         schema.TableCycleTracker,
		BucketStartMs: bucket,
		Rows:          n,
		Columns: []Column{
			{Name: "id", Strings: ids},
			{Name: "coin", Strings: coins},
			{Name: "threshold", Floats: thresholds},
			{Name: "start_time_ms", Ints: starts},
			{Name: "end_time_ms", Ints: ends},
			{Name: "sequence_start_price", Floats: seqStarts},
			{Name: "highest_price", Floats: highs},
			{Name: "lowest_price", Floats: lows},
			{Name: "max_percent_increase", Floats: maxIncs},
			{Name: "total_data_points", Ints: points},
		},
	}
}

// DecodeCycles converts a cycle_tracker partition back into row form.
func DecodeCycles(p Partition) ([]domain.Cycle, error) {
	cols, err := columnIndex(p, schema.TableCycleTracker)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Cycle, p.Rows)
	for i := range out {
		out[i] = domain.Cycle{
			ID:                 cols["id"].Strings[i],
			Coin:               cols["coin"].Strings[i],
			Threshold:          cols["threshold"].Floats[i],
			StartTimeMs:        cols["start_time_ms"].Ints[i],
			EndTimeMs:          cols["end_time_ms"].Ints[i],
			SequenceStartPrice: cols["sequence_start_price"].Floats[i],
			HighestPrice:       cols["highest_price"].Floats[i],
			LowestPrice:        cols["lowest_price"].Floats[i],
			MaxPercentIncrease: cols["max_percent_increase"].Floats[i],
			TotalDataPoints:    cols["total_data_points"].Ints[i],
		}
	}
	return out, nil
}

func positionsPartition(bucket int64, rows []domain.Position) Partition {
	n := len(rows)
	ids := make([]string, n)
	tokens := make([]string, n)
	entryTimes := make([]int64, n)
	entryPrices := make([]float64, n)
	statuses := make([]string, n)
	highs := make([]float64, n)
	exitPrices := make([]float64, n)
	exitTimes := make([]int64, n)
	policies := make([]string, n)
	for i, r := range rows {
		ids[i] = r.ID
		tokens[i] = r.Token
		entryTimes[i] = r.EntryTimeMs
		entryPrices[i] = r.EntryPrice
		statuses[i] = r.Status
		highs[i] = r.HighestPrice
		exitPrices[i] = r.ExitPrice
		exitTimes[i] = r.ExitTimeMs
		policies[i] = r.Policy
	}
	return Partition{
		Table:         schema.TablePositions,
		BucketStartMs: bucket,
		Rows:          n,
		Columns: []Column{
			{Name: "id", Strings: ids},
			{Name: "token", Strings: tokens},
			{Name: "entry_time_ms", Ints: entryTimes},
			{Name: "entry_price", Floats: entryPrices},
			{Name: "status", Strings: statuses},
			{Name: "highest_price", Floats: highs},
			{Name: "exit_price", Floats: exitPrices},
			{Name: "exit_time_ms", Ints: exitTimes},
			{Name: "policy", Strings: policies},
		},
	}
}

// DecodePositions converts a positions partition back into row form.
func DecodePositions(p Partition) ([]domain.Position, error) {
	cols, err := columnIndex(p, schema.TablePositions)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Position, p.Rows)
	for i := range out {
		out[i] = domain.Position{
			ID:           cols["id"].Strings[i],
			Token:        cols["token"].Strings[i],
			EntryTimeMs:  cols["entry_time_ms"].Ints[i],
			EntryPrice:   cols["entry_price"].Floats[i],
			Status:       cols["status"].Strings[i],
			HighestPrice: cols["highest_price"].Floats[i],
			ExitPrice:    cols["exit_price"].Floats[i],
			ExitTimeMs:   cols["exit_time_ms"].Ints[i],
			Policy:       cols["policy"].Strings[i],
		}
	}
	return out, nil
}

func checksPartition(bucket int64, rows []domain.PriceCheck) Partition {
	n := len(rows)
	positionIDs := make([]string, n)
	checkedAt := make([]int64, n)
	current := make([]float64, n)
	highest := make([]float64, n)
	reference := make([]float64, n)
	dropHigh := make([]float64, n)
	dropEntry := make([]float64, n)
	tolerance := make([]float64, n)
	decisions := make([]string, n)
	for i, r := range rows {
		positionIDs[i] = r.PositionID
		checkedAt[i] = r.CheckedAtMs
		current[i] = r.CurrentPrice
		highest[i] = r.HighestPrice
		reference[i] = r.ReferencePrice
		dropHigh[i] = r.DropFromHigh
		dropEntry[i] = r.DropFromEntry
		tolerance[i] = r.ToleranceApplied
		decisions[i] = r.Decision
	}
	return Partition{
		Table:         schema.TablePriceChecks,
		BucketStartMs: bucket,
		Rows:          n,
		Columns: []Column{
			{Name: "position_id", Strings: positionIDs},
			{Name: "checked_at_ms", Ints: checkedAt},
			{Name: "current_price", Floats: current},
			{Name: "highest_price", Floats: highest},
			{Name: "reference_price", Floats: reference},
			{Name: "drop_from_high", Floats: dropHigh},
			{Name: "drop_from_entry", Floats: dropEntry},
			{Name: "tolerance_applied", Floats: tolerance},
			{Name: "decision", Strings: decisions},
		},
	}
}

// DecodeChecks converts a price_checks partition back into row form.
func DecodeChecks(p Partition) ([]domain.PriceCheck, error) {
	cols, err := columnIndex(p, schema.TablePriceChecks)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PriceCheck, p.Rows)
	for i := range out {
		out[i] = domain.PriceCheck{
			PositionID:       cols["position_id"].Strings[i],
			CheckedAtMs:      cols["checked_at_ms"].Ints[i],
			CurrentPrice:     cols["current_price"].Floats[i],
			HighestPrice:     cols["highest_price"].Floats[i],
			ReferencePrice:   cols["reference_price"].Floats[i],
			DropFromHigh:     cols["drop_from_high"].Floats[i],
			DropFromEntry:    cols["drop_from_entry"].Floats[i],
			ToleranceApplied: cols["tolerance_applied"].Floats[i],
			Decision:         cols["decision"].Strings[i],
		}
	}
	return out, nil
}

// columnIndex maps a partition's columns by name after checking the table.
func columnIndex(p Partition, table string) (map[string]Column, error) {
	if p.Table != table {
		return nil, fmt.Errorf("partition is for table %s, expected %s", p.Table, table)
	}
	out := make(map[string]Column, len(p.Columns))
	for _, c := range p.Columns {
		out[c.Name] = c
	}
	tbl, err := schema.Lookup(table)
	if err != nil {
		return nil, err
	}
	for _, col := range tbl.Columns {
		if _, ok := out[col.Name]; !ok {
			return nil, fmt.Errorf("partition missing column %s.%s", table, col.Name)
		}
	}
	return out, nil
}
