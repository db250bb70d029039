// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

// Command nayatool inspects and rebuilds NayaPack archives and the terrain
// block, model and text tables stored in them.
//
//	nayatool [-v] agt info|list|extract|unpack|pack [flags] ...
//	nayatool [-v] lf  info|unpack|pack [flags] ...
//	nayatool [-v] lof info|unpack|pack [flags] ...
//	nayatool [-v] xlt dump [flags] table.xlt
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/slidetown/agt"
)

var errUsage = errors.New("usage")

// app carries the output streams and logger shared by all subcommands.
type app struct {
	out    io.Writer
	errOut io.Writer
	log    zerolog.Logger
}

type command func(a *app, args []string) error

var commands = map[string]map[string]command{
	"agt": {
		"info":    (*app).agtInfo,
		"list":    (*app).agtList,
		"extract": (*app).agtExtract,
		"unpack":  (*app).agtUnpack,
		"pack":    (*app).agtPack,
	},
	"lf": {
		"info":   (*app).lfInfo,
		"unpack": (*app).lfUnpack,
		"pack":   (*app).lfPack,
	},
	"lof": {
		"info":   (*app).lofInfo,
		"unpack": (*app).lofUnpack,
		"pack":   (*app).lofPack,
	},
	"xlt": {
		"dump": (*app).xltDump,
	},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("nayatool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	verbose := fs.Bool("v", false, "log every entry")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	a := &app{out: stdout, errOut: stderr, log: logger}

	rest := fs.Args()
	if len(rest) < 2 {
		usage(stderr)
		return 2
	}

	group, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "nayatool: unknown format %q\n", rest[0])
		usage(stderr)
		return 2
	}

	cmd, ok := group[rest[1]]
	if !ok {
		fmt.Fprintf(stderr, "nayatool: unknown %s command %q\n", rest[0], rest[1])
		usage(stderr)
		return 2
	}

	start := time.Now()
	if err := cmd(a, rest[2:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}

		logger.Error().Err(err).Str("command", rest[0]+" "+rest[1]).Msg("failed")
		return 1
	}

	logger.Debug().Dur("elapsed", time.Since(start)).Msg("done")
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: nayatool [-v] <format> <command> [flags] args...")
	formats := make([]string, 0, len(commands))
	for name := range commands {
		formats = append(formats, name)
	}
	sort.Strings(formats)

	for _, name := range formats {
		cmds := make([]string, 0, len(commands[name]))
		for c := range commands[name] {
			cmds = append(cmds, c)
		}
		sort.Strings(cmds)
		fmt.Fprintf(w, "  %-4s %s\n", name, strings.Join(cmds, "|"))
	}
}

// flagSet returns a subcommand flag set that reports parse errors to stderr.
func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// parseArgs parses fs and requires exactly n positional arguments.
func (a *app) parseArgs(fs *flag.FlagSet, args []string, n int, names string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != n {
		fmt.Fprintf(a.errOut, "usage: nayatool %s [flags] %s\n", fs.Name(), names)
		fs.PrintDefaults()
		return errUsage
	}

	return nil
}

// keyFlag registers -key and returns a resolver for the selected keystream.
func keyFlag(fs *flag.FlagSet) func() ([]byte, error) {
	path := fs.String("key", "", "raw keystream file (default: built-in retail key)")
	return func() ([]byte, error) {
		if *path == "" {
			return agt.ReferenceKey(), nil
		}

		return agt.LoadKey(*path)
	}
}

// dump writes a structural dump of values to the app output.
func (a *app) dump(values ...any) {
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}
	cfg.Fdump(a.out, values...)
}

// createOutput creates path, runs write, and removes the file if write fails.
func createOutput(path string, write func(f *os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	return write(f)
}
