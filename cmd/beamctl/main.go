// beamctl is the interactive inspector for beamstore data directories.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/beamstore/internal/logging"
	"github.com/xtxerr/beamstore/internal/storage"
	"github.com/xtxerr/beamstore/internal/storage/config"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "", "config file path")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	jsonLogs := flag.Bool("json", false, "JSON log output")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logging.Init(parseLevel(cfg.Logging.Level), *jsonLogs || cfg.Logging.JSON)

	engine, err := storage.New(cfg)
	if err != nil {
		log.Fatalf("open engine: %v", err)
	}
	defer engine.Close()

	sh := &shell{engine: engine}

	// One-shot invocation: beamctl [flags] <command> [args...]
	if args := flag.Args(); len(args) > 0 {
		if err := sh.run(args); err != nil {
			log.Fatal(err)
		}
		return
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		// Non-interactive input: one command per line.
		sh.runScript(os.Stdin)
		return
	}

	fmt.Printf("beamctl %s, data dir %s (type 'help' for commands)\n", Version, cfg.DataDir)
	p := prompt.New(
		sh.execute,
		sh.complete,
		prompt.OptionPrefix("beamstore> "),
		prompt.OptionTitle("beamctl"),
	)
	p.Run()
}

func (s *shell) execute(line string) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}
	if args[0] == "exit" || args[0] == "quit" {
		os.Exit(0)
	}
	if err := s.run(args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
}

func (s *shell) complete(d prompt.Document) []prompt.Suggest {
	suggestions := []prompt.Suggest{
		{Text: "list", Description: "list batches and partitions"},
		{Text: "info", Description: "show a container's metadata and datasets"},
		{Text: "read", Description: "read a sample window of an object's most recent batch"},
		{Text: "summary", Description: "show streaming power summaries"},
		{Text: "export", Description: "export a batch to Parquet"},
		{Text: "sql", Description: "run SQL over exported Parquet"},
		{Text: "help", Description: "show command help"},
		{Text: "exit", Description: "leave the shell"},
	}
	if strings.Contains(strings.TrimSpace(d.TextBeforeCursor()), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}
