package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/georgepadayatti/pdfstream/config"
	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/editor"
	"github.com/georgepadayatti/pdfstream/pdf/reader"
	"github.com/georgepadayatti/pdfstream/pdf/writer"
)

// ExtractOptions contains options for the extract command.
type ExtractOptions struct {
	ConfigFile      string
	Pages           string
	Exclude         string
	XrefStream      bool
	NoObjectStreams bool
	Title           string
	Author          string
	Force           bool
}

// ExtractCommand implements the 'extract' command.
func ExtractCommand(args []string) {
	extractFlags := flag.NewFlagSet("extract", flag.ExitOnError)

	var opts ExtractOptions

	extractFlags.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	extractFlags.StringVar(&opts.Pages, "pages", "", "Zero-based pages to copy from every input, e.g. 0,2-4 (default: all)")
	extractFlags.StringVar(&opts.Exclude, "exclude", "", "Zero-based pages to leave out of every input")
	extractFlags.BoolVar(&opts.XrefStream, "xref-stream", false, "Write a cross-reference stream")
	extractFlags.BoolVar(&opts.NoObjectStreams, "no-object-streams", false, "Do not pack objects into object streams")
	extractFlags.StringVar(&opts.Title, "title", "", "Document title")
	extractFlags.StringVar(&opts.Author, "author", "", "Document author")
	extractFlags.BoolVar(&opts.Force, "force", false, "Write binary output to a terminal")

	extractFlags.Usage = func() {
		fmt.Printf("Usage: %s extract [options] <input.pdf>... <output.pdf>\n\n", os.Args[0])
		fmt.Println("Copy the selected pages of one or more PDF files, in order, into a new file.")
		fmt.Println("")
		fmt.Println("Arguments:")
		fmt.Println("  input.pdf   Source PDF files")
		fmt.Println("  output.pdf  Output file, or - for standard output")
		fmt.Println("")
		fmt.Println("Options:")
		extractFlags.PrintDefaults()
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Printf("  %s extract -pages 0-2 input.pdf first-three.pdf\n", os.Args[0])
		fmt.Printf("  %s extract -exclude 0 a.pdf b.pdf merged.pdf\n", os.Args[0])
		fmt.Printf("  %s extract -no-object-streams -title Report input.pdf out.pdf\n", os.Args[0])
	}

	if err := extractFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}

	if extractFlags.NArg() < 2 {
		extractFlags.Usage()
		osExit(1)
		return
	}

	cfg, done, err := setup(opts.ConfigFile)
	if err != nil {
		fail(err)
		return
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := extractFlags.Args()
	output := paths[len(paths)-1]
	data, err := extractPages(ctx, cfg, paths[:len(paths)-1], &opts)
	if err != nil {
		fail(err)
		return
	}
	if err := writeOutput(output, data, opts.Force); err != nil {
		fail(err)
	}
}

// extractPages reads every input and returns the assembled document.
func extractPages(ctx context.Context, cfg *config.Config, inputs []string, opts *ExtractOptions) ([]byte, error) {
	include, err := editor.ParsePageRanges(opts.Pages)
	if err != nil {
		return nil, err
	}
	exclude, err := editor.ParsePageRanges(opts.Exclude)
	if err != nil {
		return nil, err
	}

	infos := make([]editor.PageInfo, 0, len(inputs))
	for _, path := range inputs {
		doc, err := openPDF(path, cfg)
		if err != nil {
			return nil, err
		}
		infos = append(infos, editor.PageInfo{Document: doc, Include: include, Exclude: exclude})
	}

	edCfg := *cfg.Editor
	if opts.NoObjectStreams {
		off := false
		edCfg.UseObjectStreams = &off
	}
	if opts.Title != "" {
		edCfg.Title = opts.Title
	}
	if opts.Author != "" {
		edCfg.Author = opts.Author
	}

	ed := editor.NewPDFEditor(&edCfg)
	ed.UseXrefStream = opts.XrefStream || cfg.Writer.UseXrefStream
	ed.Serializer = writer.NewSerializerFromConfig(cfg.Writer)

	data, err := ed.ExtractPages(ctx, infos)
	if err != nil {
		return nil, err
	}
	logging.Logger().Info("pages extracted",
		slog.Int("inputs", len(inputs)),
		slog.Int("bytes", len(data)))
	return data, nil
}

// openPDF reads the file at path.
func openPDF(path string, cfg *config.Config) (*reader.PdfFileReader, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	doc, err := reader.NewPdfFileReaderFromBytes(data, reader.Options{Filters: chainOptions(cfg)})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
