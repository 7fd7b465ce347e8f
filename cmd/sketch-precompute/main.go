// Command sketch-precompute materializes top-K collocate files for every
// relation in the catalog against a built engine directory.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/cognicore/sketch/pkg/sketch/build"
	"github.com/cognicore/sketch/pkg/sketch/index/sqlindex"
	"github.com/cognicore/sketch/pkg/sketch/lexicon"
	"github.com/cognicore/sketch/pkg/sketch/precompute"
	"github.com/cognicore/sketch/pkg/sketch/relations"
)

func main() {
	var (
		dir         = flag.String("dir", "", "engine directory (required)")
		catalogPath = flag.String("relations", "", "relation catalog YAML (default: built-in catalog)")
		k           = flag.Int("k", 50, "collocates kept per headword")
		minHeadFreq = flag.Uint64("min-head-freq", 1, "skip heads rarer than this")
		shards      = flag.Int("shards", 16, "reduce shard fan-out (rounded to a power of two)")
	)
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	catalog := relations.Default()
	if *catalogPath != "" {
		var err error
		catalog, err = relations.Load(*catalogPath)
		if err != nil {
			log.Fatalf("load relations: %v", err)
		}
	}

	ix, err := sqlindex.Open(ctx, filepath.Join(*dir, build.IndexFile))
	if err != nil {
		log.Fatalf("open index: %v", err)
	}
	defer ix.Close()

	lex, err := lexicon.Open(filepath.Join(*dir, build.LexiconFile))
	if err != nil {
		log.Fatalf("open lexicon: %v", err)
	}
	defer lex.Close()

	engine := precompute.New(ix, lex, precompute.Options{
		K:                *k,
		MinHeadFrequency: *minHeadFreq,
		NumShards:        *shards,
	})
	if err := engine.Run(ctx, catalog.Relations, *dir); err != nil {
		log.Fatalf("precompute failed: %v", err)
	}
}
