// Package main inspects archived snapshot partitions: lists the buckets
// available per table and dumps a partition's rows as JSON lines.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"market-state-engine/internal/archive"
	"market-state-engine/internal/schema"
)

func main() {
	snapshotDir := flag.String("snapshot-dir", "snapshots", "Snapshot directory to inspect")
	table := flag.String("table", "", "Table to inspect (empty lists all tables)")
	bucket := flag.Int64("bucket", 0, "Bucket start timestamp in ms to dump (0 lists buckets)")
	flag.Parse()

	reader, err := archive.NewSnapshotReader(*snapshotDir)
	if err != nil {
		fatal("open snapshot directory: %v", err)
	}

	if *table == "" {
		for _, t := range schema.Tables() {
			listBuckets(reader, t)
		}
		return
	}
	if _, err := schema.Lookup(*table); err != nil {
		fatal("%v", err)
	}
	if *bucket == 0 {
		listBuckets(reader, *table)
		return
	}
	dump(reader, *table, *bucket)
}

func listBuckets(reader *archive.SnapshotReader, table string) {
	buckets, err := reader.Buckets(table)
	if err != nil {
		fatal("list %s buckets: %v", table, err)
	}
	for _, b := range buckets {
		p, err := reader.Read(table, b)
		if err != nil {
			fatal("read %s/%d: %v", table, b, err)
		}
		fmt.Printf("%s\t%d\t%s\t%d rows\n",
			table, b, time.UnixMilli(b).UTC().Format(time.RFC3339), p.Rows)
	}
}

// dump prints every row of one partition as a JSON object per line,
// reassembled from the columnar layout.
func dump(reader *archive.SnapshotReader, table string, bucket int64) {
	p, err := reader.Read(table, bucket)
	if err != nil {
		fatal("read %s/%d: %v", table, bucket, err)
	}

	enc := json.NewEncoder(os.Stdout)
	for i := 0; i < p.Rows; i++ {
		row := make(map[string]any, len(p.Columns))
		for _, c := range p.Columns {
			switch {
			case c.Strings != nil:
				row[c.Name] = c.Strings[i]
			case c.Ints != nil:
				row[c.Name] = c.Ints[i]
			case c.Floats != nil:
				row[c.Name] = c.Floats[i]
			}
		}
		if err := enc.Encode(row); err != nil {
			fatal("encode row: %v", err)
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
