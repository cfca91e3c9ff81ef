package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/procdocs/sopgen/internal/logging"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "mcp":
		runMCP(os.Args[2:])
	case "generate":
		runGenerate(os.Args[2:])
	case "metadata":
		runMetadata(os.Args[2:])
	case "version":
		fmt.Printf("sopgen %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: sopgen <command> [flags]

Commands:
  serve      Start the HTTP generation and archive API
  mcp        Start the MCP stdio tool server
  generate   Transform a BPMN diagram into an SOP step table (JSON)
  metadata   Extract the document metadata a BPMN diagram carries
  version    Print version
`)
}

// newLogger builds the process logger with correlation id injection.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
