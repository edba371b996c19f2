package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/zurustar/stcr/pkg/lsp"
)

const version = "0.1.0"

func main() {
	verbosity := flag.Int("v", 0, "log verbosity (0 = errors only)")
	logFile := flag.String("log", "", "log file (default: stderr)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("stcr-lsp", version)
		return
	}

	var path *string
	if *logFile != "" {
		path = logFile
	}
	commonlog.Configure(*verbosity, path)

	if err := lsp.New(version).RunStdio(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
