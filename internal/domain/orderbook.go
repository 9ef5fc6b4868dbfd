package domain

// OrderBookFeatureRow represents derived features from one order-book snapshot.
// Corresponds to the order_book_features table. Immutable once written.
type OrderBookFeatureRow struct {
	TimestampMs        int64   // snapshot timestamp in milliseconds
	MidPrice           float64 // (best_bid + best_ask) / 2
	Spread             float64 // best_ask - best_bid
	BidDepth1Pct       float64 // bid depth within 1% of mid
	AskDepth1Pct       float64 // ask depth within 1% of mid
	BidDepth5Pct       float64 // bid depth within 5% of mid
	AskDepth5Pct       float64 // ask depth within 5% of mid
	ImbalanceRatio     float64 // bid depth / (bid depth + ask depth)
	MicropriceDeviation float64 // microprice - mid, normalized by mid
	Source             string  // feed adapter that produced the snapshot
}
