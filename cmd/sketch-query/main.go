// Command sketch-query runs a word-sketch query against an engine
// directory and prints the ranked collocates with one example each.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cognicore/sketch/pkg/sketch"
	"github.com/cognicore/sketch/pkg/sketch/relations"
)

func main() {
	var (
		dir         = flag.String("dir", "", "engine directory (required)")
		head        = flag.String("head", "", "headword lemma (required)")
		relation    = flag.String("relation", "adj_mod", "relation id or inline pattern")
		catalogPath = flag.String("relations", "", "relation catalog YAML (default: built-in catalog)")
		minScore    = flag.Float64("min-score", 0, "minimum association score")
		k           = flag.Int("k", 20, "collocates to return")
	)
	flag.Parse()

	if *dir == "" || *head == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := sketch.Options{}
	if *catalogPath != "" {
		catalog, err := relations.Load(*catalogPath)
		if err != nil {
			log.Fatalf("load relations: %v", err)
		}
		opts.Catalog = catalog
	}

	ctx := context.Background()
	engine, err := sketch.Open(ctx, *dir, opts)
	if err != nil {
		log.Fatalf("open engine: %v", err)
	}
	defer engine.Close()

	results, err := engine.FindCollocations(ctx, *head, *relation, *minScore, *k)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	if len(results) == 0 {
		fmt.Println("no collocates")
		return
	}

	fmt.Printf("%-20s %-8s %10s %10s %8s\n", "collocate", "tag", "f_ab", "f_b", "score")
	for _, c := range results {
		fmt.Printf("%-20s %-8s %10d %10d %8.2f\n", c.Lemma, c.Tag, c.Cooccurrence, c.CollocateFreq, c.Score)
		if len(c.Examples) > 0 {
			fmt.Printf("    e.g. %s\n", c.Examples[0].Highlighted)
		}
	}
}
