// Command pdsns is the simulator's command-line front end: an
// interactive REPL over a loaded topology/scenario pair (SPEC_FULL.md
// §6's CLI addition), modeled on the teacher's cmd/otns-replay flag
// parsing and logger setup.
package main

import (
	"errors"
	"flag"
	"io"
	"os"

	"github.com/pdsns/sim/cli"
	"github.com/pdsns/sim/logger"
)

var args struct {
	LogLevel string
}

func parseArgs() {
	flag.StringVar(&args.LogLevel, "log", "info", "log level: trace, debug, info, warn, error")
	flag.Parse()
}

func parseLevel(s string) logger.Level {
	switch s {
	case "trace":
		return logger.TraceLevel
	case "debug":
		return logger.DebugLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

func main() {
	parseArgs()
	logger.SetLevel(parseLevel(args.LogLevel))

	handler := cli.NewHandler(routineBundles(), examplePropagation, exampleNeighbors)
	handler.SetOnLoad(onLoad)

	err := cli.Cli.Run(handler, cli.DefaultCliOptions())
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Errorf("pdsns: %v", err)
		os.Exit(1)
	}
}
