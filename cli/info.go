package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/metadata"
	"github.com/georgepadayatti/pdfstream/pdf/reader"
)

// InfoOptions contains options for the info command.
type InfoOptions struct {
	ConfigFile string
	JSON       bool
}

// DocumentInfo is a JSON-serializable summary of a PDF file.
type DocumentInfo struct {
	File         string   `json:"file"`
	Version      string   `json:"version"`
	Pages        int      `json:"pages"`
	Objects      int      `json:"objects"`
	Revisions    int      `json:"revisions"`
	XRefStream   bool     `json:"xref_stream"`
	Encrypted    bool     `json:"encrypted"`
	Title        string   `json:"title,omitempty"`
	Author       string   `json:"author,omitempty"`
	Subject      string   `json:"subject,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Creator      string   `json:"creator,omitempty"`
	Producer     string   `json:"producer,omitempty"`
	CreationDate string   `json:"creation_date,omitempty"`
	ModDate      string   `json:"mod_date,omitempty"`
}

// InfoCommand implements the 'info' command.
func InfoCommand(args []string) {
	infoFlags := flag.NewFlagSet("info", flag.ExitOnError)

	var opts InfoOptions

	infoFlags.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	infoFlags.BoolVar(&opts.JSON, "json", false, "Output results in JSON format")

	infoFlags.Usage = func() {
		fmt.Printf("Usage: %s info [options] <input.pdf>\n\n", os.Args[0])
		fmt.Println("Show document information of a PDF file.")
		fmt.Println("")
		fmt.Println("Options:")
		infoFlags.PrintDefaults()
	}

	if err := infoFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}

	if infoFlags.NArg() < 1 {
		infoFlags.Usage()
		osExit(1)
		return
	}

	cfg, done, err := setup(opts.ConfigFile)
	if err != nil {
		fail(err)
		return
	}
	defer done()

	path := infoFlags.Arg(0)
	doc, err := openPDF(path, cfg)
	if err != nil {
		fail(err)
		return
	}
	info, err := documentInfo(path, doc)
	if err != nil {
		fail(err)
		return
	}

	if opts.JSON {
		err = outputJSON(os.Stdout, info)
	} else {
		outputText(os.Stdout, info)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		osExit(1)
	}
}

// documentInfo summarizes doc.
func documentInfo(path string, doc *reader.PdfFileReader) (*DocumentInfo, error) {
	info := &DocumentInfo{
		File:       path,
		Version:    doc.Version,
		Objects:    doc.Size(),
		Revisions:  len(doc.XRefOffsets),
		XRefStream: doc.HasXRefStream,
		Encrypted:  doc.IsEncrypted(),
	}

	locked := doc.IsEncrypted() && doc.Cipher() == nil
	n, err := doc.NumPages()
	switch {
	case err == nil:
		info.Pages = n
	case locked:
		// Page trees held in object streams cannot be read without the key.
		logging.Logger().Warn("cannot count pages of encrypted file", slog.Any("error", err))
	default:
		return nil, err
	}

	if locked {
		return info, nil
	}
	if dict := doc.Info(); dict != nil {
		md := metadata.FromInfoDict(dict)
		info.Title = md.Title
		info.Author = md.Author
		info.Subject = md.Subject
		info.Keywords = md.Keywords
		info.Creator = md.Creator
		info.Producer = md.Producer
		info.CreationDate = formatTime(md.Created)
		info.ModDate = formatTime(md.LastModified)
	}
	return info, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// outputJSON writes info as indented JSON.
func outputJSON(w io.Writer, info *DocumentInfo) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// outputText writes info in human-readable form.
func outputText(w io.Writer, info *DocumentInfo) {
	fmt.Fprintf(w, "Document Information\n")
	fmt.Fprintf(w, "====================\n\n")
	fmt.Fprintf(w, "  File: %s\n", info.File)
	fmt.Fprintf(w, "  PDF version: %s\n", info.Version)
	fmt.Fprintf(w, "  Pages: %d\n", info.Pages)
	fmt.Fprintf(w, "  Objects: %d\n", info.Objects)
	fmt.Fprintf(w, "  Revisions: %d\n", info.Revisions)
	fmt.Fprintf(w, "  Cross-reference stream: %s\n", yesNo(info.XRefStream))
	fmt.Fprintf(w, "  Encrypted: %s\n", yesNo(info.Encrypted))

	fields := []struct{ label, value string }{
		{"Title", info.Title},
		{"Author", info.Author},
		{"Subject", info.Subject},
		{"Keywords", strings.Join(info.Keywords, ", ")},
		{"Creator", info.Creator},
		{"Producer", info.Producer},
		{"Created", info.CreationDate},
		{"Modified", info.ModDate},
	}
	header := false
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if !header {
			fmt.Fprintf(w, "\nMetadata\n")
			fmt.Fprintf(w, "--------\n")
			header = true
		}
		fmt.Fprintf(w, "  %s: %s\n", f.label, f.value)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
