package cli

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/filters"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// CodecOptions contains options for the decode and encode commands.
type CodecOptions struct {
	ConfigFile string
	Filters    string
	Parms      string
	Force      bool
}

func codecFlags(name string, opts *CodecOptions) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&opts.Filters, "filter", "", "Comma separated filter names, outermost first (required)")
	fs.StringVar(&opts.Parms, "parms", "", "Decode parameters as YAML: a mapping, or a list with one entry per filter")
	fs.BoolVar(&opts.Force, "force", false, "Write binary output to a terminal")

	verb := strings.ToUpper(name[:1]) + name[1:]
	fs.Usage = func() {
		fmt.Printf("Usage: %s %s [options] <input> <output>\n\n", os.Args[0], name)
		fmt.Printf("%s data with a chain of PDF stream filters.\n", verb)
		fmt.Println("")
		fmt.Println("Arguments:")
		fmt.Println("  input   Input file, or - for standard input")
		fmt.Println("  output  Output file, or - for standard output")
		fmt.Println("")
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Printf("  %s %s -filter FlateDecode in.bin out.bin\n", os.Args[0], name)
		fmt.Printf("  %s %s -filter LZW -parms '{Predictor: 2, Columns: 4}' in.bin -\n", os.Args[0], name)
	}
	return fs
}

// DecodeCommand implements the 'decode' command.
func DecodeCommand(args []string) {
	var opts CodecOptions
	fs := codecFlags("decode", &opts)
	runCodec(fs, args, &opts, decodeData)
}

// EncodeCommand implements the 'encode' command.
func EncodeCommand(args []string) {
	var opts CodecOptions
	fs := codecFlags("encode", &opts)
	runCodec(fs, args, &opts, encodeData)
}

type codecFunc func(data []byte, opts *CodecOptions, chain filters.ChainOptions) ([]byte, error)

func runCodec(fs *flag.FlagSet, args []string, opts *CodecOptions, fn codecFunc) {
	if err := fs.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if fs.NArg() < 2 || opts.Filters == "" {
		fs.Usage()
		osExit(1)
		return
	}

	cfg, done, err := setup(opts.ConfigFile)
	if err != nil {
		fail(err)
		return
	}
	defer done()

	input, err := readInput(fs.Arg(0))
	if err != nil {
		fail(err)
		return
	}
	output, err := fn(input, opts, chainOptions(cfg))
	if err != nil {
		fail(err)
		return
	}
	logging.Logger().Debug("filter chain applied",
		slog.String("filters", opts.Filters),
		slog.Int("in", len(input)),
		slog.Int("out", len(output)))
	if err := writeOutput(fs.Arg(1), output, opts.Force); err != nil {
		fail(err)
	}
}

func decodeData(data []byte, opts *CodecOptions, chain filters.ChainOptions) ([]byte, error) {
	dict, err := streamDict(opts.Filters, opts.Parms)
	if err != nil {
		return nil, err
	}
	return filters.DecodeWithOptions(data, dict, chain)
}

func encodeData(data []byte, opts *CodecOptions, _ filters.ChainOptions) ([]byte, error) {
	dict, err := streamDict(opts.Filters, opts.Parms)
	if err != nil {
		return nil, err
	}
	names, parms, err := filters.FilterList(dict)
	if err != nil {
		return nil, err
	}
	return filters.Encode(data, names, parms)
}

// streamDict builds the stream dictionary a filter chain is read from. A
// single filter is stored as a name so that a lone parameter dictionary
// applies to it.
func streamDict(filterList, parms string) (*generic.DictionaryObject, error) {
	var names generic.ArrayObject
	for _, name := range strings.Split(filterList, ",") {
		name = strings.TrimPrefix(strings.TrimSpace(name), "/")
		if name == "" {
			continue
		}
		names = append(names, generic.NameObject(filters.CanonicalName(name)))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no filter given")
	}

	dict := generic.NewDictionary()
	if len(names) == 1 {
		dict.Set("Filter", names[0])
	} else {
		dict.Set("Filter", names)
	}
	if parms == "" {
		return dict, nil
	}
	p, err := parseParms(parms)
	if err != nil {
		return nil, err
	}
	dict.Set("DecodeParms", p)
	return dict, nil
}

// parseParms reads decode parameters written as YAML. Mapping keys keep
// the order they are written in.
func parseParms(s string) (generic.PdfObject, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("invalid -parms: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("invalid -parms: empty document")
	}
	obj, err := yamlToObject(doc.Content[0])
	if err != nil {
		return nil, fmt.Errorf("invalid -parms: %w", err)
	}
	switch obj.(type) {
	case *generic.DictionaryObject, generic.ArrayObject:
		return obj, nil
	default:
		return nil, fmt.Errorf("invalid -parms: want a mapping or a list, got %s", doc.Content[0].Tag)
	}
}

// yamlToObject converts a YAML node. Strings become names, with or without
// their leading slash.
func yamlToObject(n *yaml.Node) (generic.PdfObject, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlToObject(n.Alias)
	case yaml.SequenceNode:
		arr := make(generic.ArrayObject, 0, len(n.Content))
		for _, item := range n.Content {
			obj, err := yamlToObject(item)
			if err != nil {
				return nil, err
			}
			arr = append(arr, obj)
		}
		return arr, nil
	case yaml.MappingNode:
		dict := generic.NewDictionary()
		for i := 0; i+1 < len(n.Content); i += 2 {
			obj, err := yamlToObject(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			dict.Set(strings.TrimPrefix(n.Content[i].Value, "/"), obj)
		}
		return dict, nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

func yamlScalar(n *yaml.Node) (generic.PdfObject, error) {
	switch n.ShortTag() {
	case "!!null":
		return generic.NullObject{}, nil
	case "!!bool":
		var b bool
		err := n.Decode(&b)
		return generic.BooleanObject(b), err
	case "!!int":
		var i int64
		err := n.Decode(&i)
		return generic.IntegerObject(i), err
	case "!!float":
		var f float64
		err := n.Decode(&f)
		return generic.RealObject(f), err
	case "!!str":
		return generic.NameObject(strings.TrimPrefix(n.Value, "/")), nil
	}
	return nil, fmt.Errorf("line %d: unsupported value %q of type %s", n.Line, n.Value, n.ShortTag())
}
