// Command diskkv is a thin CLI over the blobstore/kvstore engine: open the
// two files named by --index and --blobs (creating them if absent) and run
// one subcommand against them.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/flashkv/diskkv/blobstore"
	"github.com/flashkv/diskkv/kvstore"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: diskkv [flags] <get|set|delete|list|vacuum|fsck> [args...]")
	flag.PrintDefaults()
}

func main() {
	indexPath := flag.String("index", "diskkv.idx", "path to the index file")
	blobPath := flag.String("blobs", "diskkv.blob", "path to the blob file")
	bloomN := flag.Uint("bloom-keys", 0, "expected key count; 0 disables the bloom filter")
	bloomFP := flag.Float64("bloom-fp", 0.01, "bloom filter target false-positive rate")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	if err := run(*indexPath, *blobPath, *bloomN, *bloomFP, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "diskkv:", err)
		os.Exit(1)
	}
}

func run(indexPath, blobPath string, bloomN uint, bloomFP float64, cmd string, rest []string) error {
	// vacuum is handled before the index is opened: it rewrites blob
	// offsets, which would desynchronize an already-open index's slot
	// table. A caller who vacuums a live store's blob file out from under
	// its index accepts that the index must be rebuilt or discarded.
	if cmd == "vacuum" {
		blob, err := os.OpenFile(blobPath, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("open blob file: %w", err)
		}
		defer blob.Close()
		bs, err := blobstore.New(blob)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		return bs.Vacuum()
	}

	idx, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer idx.Close()

	blob, err := os.OpenFile(blobPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open blob file: %w", err)
	}
	defer blob.Close()

	var opts []kvstore.Option
	if bloomN > 0 {
		opts = append(opts, kvstore.WithBloomFilter(bloomN, bloomFP))
	}

	store, err := kvstore.Open(idx, blob, opts...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	switch cmd {
	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("get requires exactly one key argument")
		}
		value, err := store.Get([]byte(rest[0]))
		if err != nil {
			return err
		}
		fmt.Println(string(value))
		return nil

	case "set":
		if len(rest) != 2 {
			return fmt.Errorf("set requires a key and a value argument")
		}
		return store.Set([]byte(rest[0]), []byte(rest[1]))

	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("delete requires exactly one key argument")
		}
		return store.Delete([]byte(rest[0]))

	case "list":
		for pair, err := range store.Items() {
			if err != nil {
				return err
			}
			fmt.Printf("%s=%s\n", pair.Key, pair.Value)
		}
		return nil

	case "fsck":
		report, err := store.Fsck()
		if err != nil {
			return err
		}
		fmt.Printf("slots=%d live=%d tombstones=%d empty=%d issues=%d\n",
			report.Slots, report.Live, report.Tombstones, report.Empty, len(report.Issues))
		for _, issue := range report.Issues {
			fmt.Println(" -", issue)
		}
		return nil

	default:
		usage()
		return fmt.Errorf("unknown subcommand %q", cmd)
	}
}
