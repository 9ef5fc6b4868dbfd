package domain

// PricePoint represents a single observed price for a token.
// Corresponds to the prices table. Append-only, ordered by timestamp per token.
type PricePoint struct {
	Token       string  // token/coin symbol
	TimestampMs int64   // Unix timestamp in milliseconds
	Price       float64 // observed price
}
