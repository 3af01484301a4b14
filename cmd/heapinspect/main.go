// Command heapinspect is a read only console for the files of a heap or a bucket heap.
//
// Usage:
//
//	heapinspect [-config file] [-name name] [-layout plain|bucket] [-log-level level] [command args...]
//
// Without a command an interactive prompt is started.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/gostonefire/bucketheap/internal/logging"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML configuration file")
	name := flag.String("name", "", "heap name, overrides the configuration file")
	layout := flag.String("layout", "", "plain or bucket, overrides the configuration file")
	logLevel := flag.String("log-level", "", "log level, overrides the configuration file")
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	applyFlags(&config, *name, *layout, *logLevel)
	if err = config.validate(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, err := logging.New(config.Log, "heapinspect")
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	insp, err := newInspector(config, os.Stdout, logger)
	if err != nil {
		logger.Error("unable to open heap files", zap.String("name", config.Name), zap.Error(err))
		return 1
	}
	defer func() { _ = insp.close() }()

	if flag.NArg() > 0 {
		if _, err = insp.processCommand(flag.Args()); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	if err = interactive(insp); err != nil {
		logger.Error("prompt failed", zap.Error(err))
		return 1
	}

	return 0
}

// applyFlags - Overrides configuration with flags that were given
func applyFlags(config *Config, name, layout, logLevel string) {
	if name != "" {
		config.Name = name
	}
	if layout != "" {
		config.Layout = layout
	}
	if logLevel != "" {
		config.Log.Level = logLevel
	}
}

// interactive - Reads commands from a prompt until quit or end of input
func interactive(insp *inspector) (err error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "heapinspect> ",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("meta"),
			readline.PcItem("block"),
			readline.PcItem("bucket"),
			readline.PcItem("stat"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(rl.Stdout(), "Type help for commands, quit to leave.")

	for {
		line, rErr := rl.Readline()
		if errors.Is(rErr, readline.ErrInterrupt) {
			if len(line) == 0 {
				return
			}
			continue
		}
		if errors.Is(rErr, io.EOF) {
			return
		}
		if rErr != nil {
			return rErr
		}

		quit, cErr := insp.processCommand(strings.Fields(line))
		if cErr != nil {
			_, _ = fmt.Fprintf(rl.Stderr(), "error: %s\n", cErr)
		}
		if quit {
			return
		}
	}
}
