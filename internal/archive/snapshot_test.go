package archive

import (
	"testing"

	"market-state-engine/internal/domain"
	"market-state-engine/internal/schema"
)

func samplePrices() []domain.PricePoint {
	return []domain.PricePoint{
		{Token: "SOL", TimestampMs: 1000, Price: 1.0},
		{Token: "SOL", TimestampMs: 2000, Price: 1.1},
		{Token: "ETH", TimestampMs: 1500, Price: 2.0},
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewSnapshotWriter(dir)
	if err != nil {
		t.Fatalf("NewSnapshotWriter failed: %v", err)
	}

	rows := samplePrices()
	p := pricesPartition(0, rows)
	if err := w.Write(p); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	r, err := NewSnapshotReader(dir)
	if err != nil {
		t.Fatalf("NewSnapshotReader failed: %v", err)
	}
	got, err := r.Read(schema.TablePrices, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	decoded, err := DecodePrices(got)
	if err != nil {
		t.Fatalf("DecodePrices failed: %v", err)
	}
	if len(decoded) != len(rows) {
		t.Fatalf("Expected %d rows, got %d", len(rows), len(decoded))
	}
	for i := range rows {
		if decoded[i] != rows[i] {
			t.Errorf("Row %d: got %+v, want %+v", i, decoded[i], rows[i])
		}
	}
}

func TestSnapshot_RewriteReplacesBucket(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewSnapshotWriter(dir)

	if err := w.Write(pricesPartition(0, samplePrices()[:1])); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := w.Write(pricesPartition(0, samplePrices())); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	r, _ := NewSnapshotReader(dir)
	got, err := r.Read(schema.TablePrices, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Rows != 3 {
		t.Errorf("Expected rewritten partition with 3 rows, got %d", got.Rows)
	}
}

func TestSnapshot_Buckets(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewSnapshotWriter(dir)

	span := bucketSpan.Milliseconds()
	for _, bucket := range []int64{2 * span, 0, span} {
		p := pricesPartition(bucket, []domain.PricePoint{
			{Token: "SOL", TimestampMs: bucket, Price: 1.0},
		})
		if err := w.Write(p); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	r, _ := NewSnapshotReader(dir)
	buckets, err := r.Buckets(schema.TablePrices)
	if err != nil {
		t.Fatalf("Buckets failed: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("Expected 3 buckets, got %d", len(buckets))
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i] < buckets[i-1] {
			t.Error("Buckets not ascending")
		}
	}
}

func TestSnapshot_BucketsMissingTable(t *testing.T) {
	r, err := NewSnapshotReader(t.TempDir())
	if err != nil {
		t.Fatalf("NewSnapshotReader failed: %v", err)
	}
	buckets, err := r.Buckets(schema.TablePrices)
	if err != nil {
		t.Fatalf("Buckets on empty dir failed: %v", err)
	}
	if len(buckets) != 0 {
		t.Errorf("Expected no buckets, got %v", buckets)
	}
}

func TestSnapshot_CycleRoundTrip(t *testing.T) {
	rows := []domain.Cycle{
		{
			ID: "c1", Coin: "SOL", Threshold: 0.05,
			StartTimeMs: 1000, EndTimeMs: 2000,
			SequenceStartPrice: 1.0, HighestPrice: 1.2, LowestPrice: 0.9,
			MaxPercentIncrease: 0.2, TotalDataPoints: 42,
		},
	}
	decoded, err := DecodeCycles(cyclesPartition(0, rows))
	if err != nil {
		t.Fatalf("DecodeCycles failed: %v", err)
	}
	if decoded[0] != rows[0] {
		t.Errorf("Got %+v, want %+v", decoded[0], rows[0])
	}
}

func TestSnapshot_DecodeWrongTable(t *testing.T) {
	p := pricesPartition(0, samplePrices())
	if _, err := DecodeCycles(p); err == nil {
		t.Error("Expected error decoding prices partition as cycles")
	}
}

func TestBucketStart(t *testing.T) {
	span := bucketSpan.Milliseconds()
	if got := bucketStart(0); got != 0 {
		t.Errorf("bucketStart(0) = %d", got)
	}
	if got := bucketStart(span - 1); got != 0 {
		t.Errorf("bucketStart(span-1) = %d", got)
	}
	if got := bucketStart(span); got != span {
		t.Errorf("bucketStart(span) = %d", got)
	}
}
