// Package main runs the offline data-integrity pass: it rebuilds a hot
// store from archived snapshots, scans for corrupted records, and with
// --purge removes the corrupted cycle rows and rewrites their partitions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"market-state-engine/internal/archive"
	"market-state-engine/internal/cycles"
	"market-state-engine/internal/domain"
	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/ingest"
	"market-state-engine/internal/schema"
)

func main() {
	snapshotDir := flag.String("snapshot-dir", "snapshots", "Snapshot directory to check")
	purge := flag.Bool("purge", false, "Delete corrupted cycle rows and rewrite their partitions")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	reader, err := archive.NewSnapshotReader(*snapshotDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("opening snapshot directory failed")
	}

	store := hotstore.New()
	if err := loadStore(store, reader); err != nil {
		logger.Fatal().Err(err).Msg("rebuilding store from snapshots failed")
	}

	violations := cycles.CheckIntegrity(store)
	for _, v := range violations {
		fmt.Println(v)
	}
	if len(violations) == 0 {
		fmt.Println("no integrity violations found")
		return
	}

	if !*purge {
		fmt.Printf("%d violation(s) found; re-run with --purge to repair\n", len(violations))
		os.Exit(1)
	}

	queue := ingest.NewQueue(len(violations)+1, nil)
	drainer := ingest.NewDrainer(queue, store, ingest.DrainerOptions{Logger: logger})

	purged, err := cycles.PurgeCycles(queue, violations)
	if err != nil {
		logger.Fatal().Err(err).Msg("queueing purge ops failed")
	}
	queue.Close()
	if err := drainer.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("applying purge ops failed")
	}

	writer, err := archive.NewSnapshotWriter(*snapshotDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("opening snapshot directory for rewrite failed")
	}
	remaining := store.CyclesClosedBetween(0, int64(1)<<62)
	if err := archive.RewriteCycles(writer, remaining); err != nil {
		logger.Fatal().Err(err).Msg("rewriting cycle partitions failed")
	}

	fmt.Printf("purged %d corrupted cycle row(s)\n", purged)
}

// loadStore applies every archived partition to a fresh store. This
// process is the sole writer, so direct Apply is safe here.
func loadStore(store *hotstore.Store, reader *archive.SnapshotReader) error {
	cyclesRows, err := loadCycles(reader)
	if err != nil {
		return err
	}
	for _, c := range cyclesRows {
		if err := store.Apply(hotstore.UpsertCycle{Cycle: c}); err != nil {
			return fmt.Errorf("apply cycle %s: %w", c.ID, err)
		}
	}

	positionBuckets, err := reader.Buckets(schema.TablePositions)
	if err != nil {
		return err
	}
	for _, b := range positionBuckets {
		p, err := reader.Read(schema.TablePositions, b)
		if err != nil {
			return err
		}
		rows, err := archive.DecodePositions(p)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := store.Apply(hotstore.InsertPosition{Position: r}); err != nil {
				return fmt.Errorf("apply position %s: %w", r.ID, err)
			}
		}
	}

	checkBuckets, err := reader.Buckets(schema.TablePriceChecks)
	if err != nil {
		return err
	}
	for _, b := range checkBuckets {
		p, err := reader.Read(schema.TablePriceChecks, b)
		if err != nil {
			return err
		}
		rows, err := archive.DecodeChecks(p)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := store.Apply(hotstore.InsertPriceCheck{Check: r}); err != nil {
				return fmt.Errorf("apply price check for %s: %w", r.PositionID, err)
			}
		}
	}

	return nil
}

func loadCycles(reader *archive.SnapshotReader) ([]domain.Cycle, error) {
	buckets, err := reader.Buckets(schema.TableCycleTracker)
	if err != nil {
		return nil, err
	}
	var out []domain.Cycle
	for _, b := range buckets {
		p, err := reader.Read(schema.TableCycleTracker, b)
		if err != nil {
			return nil, err
		}
		rows, err := archive.DecodeCycles(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}
