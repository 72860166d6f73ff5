// Package cli provides the command-line interface for decoding and encoding
// PDF streams and for extracting pages out of PDF files.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/georgepadayatti/pdfstream/config"
	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/filters"
)

// Set from main at startup.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is replaced in tests.
var osExit = os.Exit

// stdout receives binary output written to "-".
var stdout io.Writer = os.Stdout

// stdoutIsTerminal reports whether standard output is an interactive
// terminal.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ErrTerminalOutput is returned when binary output would go to a terminal.
var ErrTerminalOutput = errors.New("refusing to write binary data to a terminal, use -force to override")

type command struct {
	name    string
	summary string
	run     func(args []string)
}

var commands []command

func init() {
	commands = []command{
		{"decode", "Decode data through a chain of PDF stream filters", DecodeCommand},
		{"encode", "Encode data with a chain of PDF stream filters", EncodeCommand},
		{"extract", "Copy pages of one or more PDF files into a new file", ExtractCommand},
		{"info", "Show document information of a PDF file", InfoCommand},
		{"version", "Show version information", func([]string) { VersionCommand() }},
		{"help", "Show this help message", func([]string) { Usage() }},
	}
}

// Run dispatches args[1] to its command. args is os.Args in production.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		return
	}

	name := args[1]
	if name == "-h" || name == "--help" {
		name = "help"
	}
	for _, c := range commands {
		if c.name == name {
			c.run(args)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[1])
	Usage()
	osExit(2)
}

// Usage prints the command list and a few examples.
func Usage() {
	prog := os.Args[0]
	fmt.Print("pdfstream - PDF stream filters and page extraction\n\n")
	fmt.Printf("Usage: %s <command> [options] <args>\n\nCommands:\n", prog)
	for _, c := range commands {
		fmt.Printf("  %-8s %s\n", c.name, c.summary)
	}
	fmt.Printf("\nUse '%s <command> -h' for command-specific help\n\nExamples:\n", prog)
	for _, ex := range []string{
		"decode -filter FlateDecode stream.bin out.bin",
		"encode -filter ASCII85Decode,FlateDecode in.bin -",
		"extract -pages 0,2-4 input.pdf output.pdf",
		"info -json document.pdf",
	} {
		fmt.Printf("  %s %s\n", prog, ex)
	}
}

func VersionCommand() {
	fmt.Printf("pdfstream version %s\nBuild time: %s\n", Version, BuildTime)
}

// setup loads the configuration at path, or the defaults when path is
// empty, and installs the configured logger. The returned function
// releases the log output.
func setup(path string) (*config.Config, func(), error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, nil, err
		}
	}

	logger, closer, err := logging.New(*cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	logging.SetLogger(logger)
	return cfg, func() { closer.Close() }, nil
}

func chainOptions(cfg *config.Config) filters.ChainOptions {
	return filters.ChainOptions{
		MinBufferLength: cfg.Filters.MinBufferLength,
		MaxDecodedSize:  cfg.Filters.MaxDecodedSize,
	}
}

// readInput reads the file at path, or standard input for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to the file at path, or to standard output for
// "-". Binary data is not written to a terminal unless force is set.
func writeOutput(path string, data []byte, force bool) error {
	if path != "-" {
		return os.WriteFile(path, data, 0o644)
	}
	if !force && stdoutIsTerminal() {
		return ErrTerminalOutput
	}
	_, err := stdout.Write(data)
	return err
}

// fail reports err and exits.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	osExit(1)
}
