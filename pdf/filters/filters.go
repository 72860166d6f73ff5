package filters

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/georgepadayatti/pdfstream/logging"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// Common errors
var (
	ErrUnsupportedFilter   = errors.New("unsupported filter")
	ErrDecodeFailed        = errors.New("decode failed")
	ErrDecodedSizeExceeded = errors.New("decoded stream exceeds size limit")
)

// Standard filter names.
const (
	ASCIIHexDecode  = "ASCIIHexDecode"
	ASCII85Decode   = "ASCII85Decode"
	LZWDecode       = "LZWDecode"
	FlateDecode     = "FlateDecode"
	RunLengthDecode = "RunLengthDecode"
	CCITTFaxDecode  = "CCITTFaxDecode"
	DCTDecode       = "DCTDecode"
	JPXDecode       = "JPXDecode"
	JBIG2Decode     = "JBIG2Decode"
	Crypt           = "Crypt"
)

var abbreviations = map[string]string{
	"AHx": ASCIIHexDecode,
	"A85": ASCII85Decode,
	"LZW": LZWDecode,
	"Fl":  FlateDecode,
	"RL":  RunLengthDecode,
	"CCF": CCITTFaxDecode,
	"DCT": DCTDecode,
}

// CanonicalName expands inline image abbreviations such as "Fl".
func CanonicalName(name string) string {
	if full, ok := abbreviations[name]; ok {
		return full
	}
	return name
}

// Decoder builds a decoding Source on top of str.
type Decoder func(str Source, maybeLength int, params *generic.DictionaryObject) (Source, error)

// Registry holds the decoders by canonical filter name.
var Registry = map[string]Decoder{
	ASCIIHexDecode: func(str Source, n int, _ *generic.DictionaryObject) (Source, error) {
		return NewAsciiHexStream(str, n), nil
	},
	ASCII85Decode: func(str Source, n int, _ *generic.DictionaryObject) (Source, error) {
		return NewAscii85Stream(str, n), nil
	},
	LZWDecode: func(str Source, n int, params *generic.DictionaryObject) (Source, error) {
		earlyChange := 1
		if params != nil {
			earlyChange = params.GetIntDefault("EarlyChange", 1)
		}
		return withPredictor(NewLZWStream(str, n, earlyChange), n, params)
	},
	FlateDecode: func(str Source, n int, params *generic.DictionaryObject) (Source, error) {
		fl, err := NewFlateStream(str, n)
		if err != nil {
			return nil, err
		}
		return withPredictor(fl, n, params)
	},
	RunLengthDecode: func(str Source, n int, _ *generic.DictionaryObject) (Source, error) {
		return NewRunLengthStream(str, n), nil
	},
	CCITTFaxDecode: func(str Source, n int, params *generic.DictionaryObject) (Source, error) {
		return NewCCITTFaxStream(str, n, CCITTOptionsFromDict(params)), nil
	},
}

// opaque filters are left encoded for a specialised image decoder.
var opaque = map[string]bool{
	DCTDecode:   true,
	JPXDecode:   true,
	JBIG2Decode: true,
	Crypt:       true,
}

// withPredictor applies the Predictor entry of params. An unsupported
// predictor is logged and the unpredicted data is returned.
func withPredictor(str Source, maybeLength int, params *generic.DictionaryObject) (Source, error) {
	out, err := NewPredictorStream(str, maybeLength, params)
	if err != nil {
		logging.Logger().Warn("ignoring predictor", slog.Any("error", err))
		return str, nil
	}
	return out, nil
}

// GetDecoder returns the decoder for a filter name or abbreviation.
func GetDecoder(name string) (Decoder, error) {
	if d, ok := Registry[CanonicalName(name)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
}

// ChainOptions tune decoding.
type ChainOptions struct {
	// MinBufferLength raises the initial decode buffer of every decoder.
	MinBufferLength int

	// MaxDecodedSize caps the number of bytes Decode returns. Zero means
	// no limit.
	MaxDecodedSize int64
}

// FilterList reads the Filter and DecodeParms entries of a stream
// dictionary. Filter may be a name or an array of names. DecodeParms is a
// dictionary for a single name or an array with one entry per filter; any
// other combination leaves every filter without parameters. The
// abbreviated keys F and DP of inline images are accepted.
func FilterList(dict *generic.DictionaryObject) ([]string, []*generic.DictionaryObject, error) {
	if dict == nil {
		return nil, nil, nil
	}
	filterObj := dict.Get("Filter")
	if filterObj == nil {
		// F is a file specification outside inline images.
		switch f := dict.Get("F").(type) {
		case generic.NameObject, generic.ArrayObject:
			filterObj = f
		}
	}
	parmsObj := dict.Get("DecodeParms")
	if parmsObj == nil {
		parmsObj = dict.Get("DP")
	}

	var names []string
	switch f := filterObj.(type) {
	case nil, generic.NullObject:
		return nil, nil, nil
	case generic.NameObject:
		names = []string{string(f)}
	case generic.ArrayObject:
		for _, item := range f {
			n, ok := item.(generic.NameObject)
			if !ok {
				return nil, nil, generic.NewPdfStreamError(fmt.Sprintf("filter array entry is %T, not a name", item))
			}
			names = append(names, string(n))
		}
	default:
		return nil, nil, generic.NewPdfStreamError(fmt.Sprintf("Filter is %T, not a name or array", filterObj))
	}

	parms := make([]*generic.DictionaryObject, len(names))
	switch p := parmsObj.(type) {
	case *generic.DictionaryObject:
		// A lone dictionary only applies to a lone filter name.
		if _, single := filterObj.(generic.NameObject); single {
			parms[0] = p
		}
	case generic.ArrayObject:
		for i := range parms {
			if d, ok := p.Get(i).(*generic.DictionaryObject); ok {
				parms[i] = d
			}
		}
	}
	return names, parms, nil
}

// NewDecodeChain wraps src with one decoder per entry of the Filter entry
// of dict, first filter innermost. Decoding stops before the first image
// codec filter, leaving that data encoded.
func NewDecodeChain(src Source, dict *generic.DictionaryObject, opts ChainOptions) (Source, error) {
	names, parms, err := FilterList(dict)
	if err != nil {
		return nil, err
	}

	str := src
	maybeLength := src.LengthHint()
	for i, name := range names {
		name = CanonicalName(name)
		if opaque[name] {
			logging.Logger().Info("leaving stream encoded", slog.String("filter", name))
			break
		}
		decoder, err := GetDecoder(name)
		if err != nil {
			return nil, err
		}
		next, err := decoder(str, maybeLength, parms[i])
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		if b, ok := next.(interface{ base() *DecodeStream }); ok {
			b.base().setMinBufferLength(opts.MinBufferLength)
		}
		str = next
		maybeLength = 0
	}
	return str, nil
}

// Decode fully decodes data according to the filters named in dict.
func Decode(data []byte, dict *generic.DictionaryObject) ([]byte, error) {
	return DecodeWithOptions(data, dict, ChainOptions{})
}

// DecodeWithOptions is Decode with explicit chain options.
func DecodeWithOptions(data []byte, dict *generic.DictionaryObject, opts ChainOptions) ([]byte, error) {
	str, err := NewDecodeChain(NewStream(data, dict), dict, opts)
	if err != nil {
		return nil, err
	}
	return ReadAll(str, opts.MaxDecodedSize)
}

// ReadAll drains str. A positive limit caps the decoded size.
func ReadAll(str Source, limit int64) ([]byte, error) {
	var r io.Reader = str
	if limit > 0 {
		r = io.LimitReader(str, limit+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if err := str.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrDecodedSizeExceeded, limit)
	}
	return out, nil
}

// Encode applies the encoders for names in reverse order, so that decoding
// the result with the same Filter array yields data.
func Encode(data []byte, names []string, parms []*generic.DictionaryObject) ([]byte, error) {
	result := data
	for i := len(names) - 1; i >= 0; i-- {
		var p *generic.DictionaryObject
		if i < len(parms) {
			p = parms[i]
		}
		var err error
		if result, err = encodeOne(result, CanonicalName(names[i]), p); err != nil {
			return nil, fmt.Errorf("filter %s encode failed: %w", names[i], err)
		}
	}
	return result, nil
}

func encodeOne(data []byte, name string, params *generic.DictionaryObject) ([]byte, error) {
	if params != nil && params.GetIntDefault("Predictor", 1) > 1 {
		return nil, fmt.Errorf("%w: predictor encoding", ErrUnsupportedFilter)
	}
	switch name {
	case FlateDecode:
		return CompressFlate(data, -1)
	case LZWDecode:
		earlyChange := 1
		if params != nil {
			earlyChange = params.GetIntDefault("EarlyChange", 1)
		}
		return encodeLZW(data, earlyChange != 0)
	case ASCII85Decode:
		return encodeAscii85(data)
	case ASCIIHexDecode:
		return encodeAsciiHex(data), nil
	case RunLengthDecode:
		return encodeRunLength(data), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
}
