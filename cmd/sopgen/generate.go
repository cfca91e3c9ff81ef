package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/procdocs/sopgen/internal/expressions"
	"github.com/procdocs/sopgen/internal/sop"
	"github.com/procdocs/sopgen/pkg/schema"
)

func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	inPath := fs.String("f", "", "BPMN XML file (default: stdin)")
	metaPath := fs.String("meta", "", "metadata overrides JSON file")
	query := fs.String("query", "", "jq projection applied to the generated context")
	outPath := fs.String("o", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	xmlData, err := readInput(*inPath)
	if err != nil {
		fatal("read input: %v", err)
	}

	var meta schema.Metadata
	if *metaPath != "" {
		metaData, err := os.ReadFile(*metaPath)
		if err != nil {
			fatal("read metadata: %v", err)
		}
		if err := json.Unmarshal(metaData, &meta); err != nil {
			fatal("parse metadata: %v", err)
		}
	}

	sopCtx, err := sop.Generate(xmlData, meta)
	if err != nil {
		fatal("generate: %v", err)
	}

	var out any = sopCtx
	if *query != "" {
		raw, err := json.Marshal(sopCtx)
		if err != nil {
			fatal("serialize context: %v", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			fatal("serialize context: %v", err)
		}
		out, err = expressions.NewGoJQEngine().Evaluate(context.Background(), *query, doc)
		if err != nil {
			fatal("projection: %v", err)
		}
	}

	writeOutput(*outPath, out)
}

func runMetadata(args []string) {
	fs := flag.NewFlagSet("metadata", flag.ExitOnError)
	inPath := fs.String("f", "", "BPMN XML file (default: stdin)")
	outPath := fs.String("o", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	xmlData, err := readInput(*inPath)
	if err != nil {
		fatal("read input: %v", err)
	}

	meta, err := sop.ExtractMetadata(xmlData)
	if err != nil {
		fatal("extract metadata: %v", err)
	}

	writeOutput(*outPath, meta)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("marshal output: %v", err)
	}
	data = append(data, '\n')

	if path == "" || path == "-" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fatal("write output: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
