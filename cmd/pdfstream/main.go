// Command pdfstream decodes and encodes PDF stream data and copies pages
// between PDF files.
//
// Usage:
//
//	pdfstream <command> [options] <args>
//
// Commands:
//
//	decode   Decode data through a chain of PDF stream filters
//	encode   Encode data with a chain of PDF stream filters
//	extract  Copy pages of one or more PDF files into a new file
//	info     Show document information of a PDF file
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Inflate a raw stream
//	pdfstream decode -filter FlateDecode stream.bin plain.bin
//
//	# Keep pages 1 to 3 of a document
//	pdfstream extract -pages 0-2 input.pdf output.pdf
//
//	# Show document information as JSON
//	pdfstream info -json document.pdf
package main

import (
	"os"

	"github.com/georgepadayatti/pdfstream/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pdfstream
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
