// Command sketch-build ingests a CoNLL-U corpus into a new engine
// directory: sentence index, lexicon, and statistics sidecar.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/cognicore/sketch/pkg/sketch/build"
	"github.com/cognicore/sketch/pkg/sketch/index/sqlindex"
)

func main() {
	var (
		inPath = flag.String("in", "-", "CoNLL-U input file, or - for stdin")
		outDir = flag.String("out", "", "engine directory to create (required)")
	)
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *inPath, *outDir); err != nil {
		log.Fatalf("build failed: %v", err)
	}
}

func run(ctx context.Context, inPath, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if inPath != "-" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ix, err := sqlindex.Open(ctx, filepath.Join(outDir, build.IndexFile))
	if err != nil {
		return err
	}
	defer ix.Close()

	b := build.New(ix, nil)
	summary, err := b.Ingest(ctx, in)
	if err != nil {
		return err
	}
	if err := b.Finish(ctx, outDir); err != nil {
		return err
	}

	fmt.Printf("indexed %d sentences, %d tokens (%d malformed lines skipped)\n",
		summary.Sentences, summary.Tokens, summary.SkippedLines)
	return nil
}
