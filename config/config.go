// Package config loads the YAML configuration shared by the pdfstream
// commands. Every section has SetDefaults and Validate; ParseConfig runs
// both after decoding.
package config

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigurationError = errors.New("configuration error")
	ErrUnexpectedField    = errors.New("unexpected field in configuration")
	ErrInvalidConfigType  = errors.New("configuration must be a dictionary")
)

// ConfigError is a validation failure for one dotted field path such as
// "writer.compression-level".
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return "config error in '" + e.Field + "': " + e.Message
}

// Unwrap returns Err, or ErrConfigurationError when there is no more
// specific cause.
func (e *ConfigError) Unwrap() error {
	if e.Err == nil {
		return ErrConfigurationError
	}
	return e.Err
}

func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// LoggingConfig selects the slog handler built by the logging package.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level" json:"level,omitempty"`
	// Format is text or json.
	Format string `yaml:"format" json:"format,omitempty"`
	// Output is stdout, stderr or a file path.
	Output string `yaml:"output" json:"output,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	c.Level = cmp.Or(c.Level, "info")
	c.Format = cmp.Or(c.Format, "text")
	c.Output = cmp.Or(c.Output, "stderr")
}

func (c *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(c.Level)) {
		return NewConfigError("logging.level", fmt.Sprintf("unknown log level %q", c.Level))
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Format)) {
		return NewConfigError("logging.format", fmt.Sprintf("unknown log format %q", c.Format))
	}
	return nil
}

// FiltersConfig bounds the memory used while decoding streams.
type FiltersConfig struct {
	// MinBufferLength is the initial capacity of a decode buffer.
	MinBufferLength int `yaml:"min-buffer-length" json:"min_buffer_length,omitempty"`
	// MaxDecodedSize rejects streams that decode to more bytes. Zero
	// disables the check.
	MaxDecodedSize int64 `yaml:"max-decoded-size" json:"max_decoded_size,omitempty"`
}

func (c *FiltersConfig) SetDefaults() {
	if c.MinBufferLength == 0 {
		c.MinBufferLength = 512
	}
}

func (c *FiltersConfig) Validate() error {
	switch {
	case c.MinBufferLength <= 0:
		return NewConfigError("filters.min-buffer-length", "must be positive")
	case c.MaxDecodedSize < 0:
		return NewConfigError("filters.max-decoded-size", "must not be negative")
	}
	return nil
}

// WriterConfig tunes the serializer and the incremental writer.
type WriterConfig struct {
	// UseXrefStream emits a cross-reference stream in place of a table.
	UseXrefStream bool `yaml:"use-xref-stream" json:"use_xref_stream"`
	// CompressThreshold is the minimum length at which unfiltered streams
	// get deflated. A negative value turns compression off.
	CompressThreshold *int `yaml:"compress-threshold" json:"compress_threshold,omitempty"`
	// CompressionLevel is passed to the zlib writer; -1 picks its default.
	CompressionLevel *int `yaml:"compression-level" json:"compression_level,omitempty"`
}

func (c *WriterConfig) SetDefaults() {
	c.CompressThreshold = ptrOr(c.CompressThreshold, 256)
	c.CompressionLevel = ptrOr(c.CompressionLevel, -1)
}

func (c *WriterConfig) Validate() error {
	if lvl := c.CompressionLevel; lvl != nil && (*lvl < -2 || *lvl > 9) {
		return NewConfigError("writer.compression-level", "must be between -2 and 9")
	}
	return nil
}

// EditorConfig shapes documents produced by page extraction.
type EditorConfig struct {
	// UseObjectStreams packs eligible objects into object streams.
	UseObjectStreams *bool `yaml:"use-object-streams" json:"use_object_streams,omitempty"`
	// MaxLeavesPerPagesNode caps the kids of one page tree node.
	MaxLeavesPerPagesNode int `yaml:"max-leaves-per-pages-node" json:"max_leaves_per_pages_node,omitempty"`
	// PDFVersion goes into the header and the catalog /Version.
	PDFVersion string `yaml:"pdf-version" json:"pdf_version,omitempty"`

	Title    string `yaml:"title" json:"title,omitempty"`
	Author   string `yaml:"author" json:"author,omitempty"`
	Producer string `yaml:"producer" json:"producer,omitempty"`
	Creator  string `yaml:"creator" json:"creator,omitempty"`
}

func (c *EditorConfig) SetDefaults() {
	c.UseObjectStreams = ptrOr(c.UseObjectStreams, true)
	if c.MaxLeavesPerPagesNode == 0 {
		c.MaxLeavesPerPagesNode = 16
	}
	c.PDFVersion = cmp.Or(c.PDFVersion, "1.7")
	c.Producer = cmp.Or(c.Producer, "pdfstream")
	c.Creator = cmp.Or(c.Creator, "pdfstream")
}

var pdfVersions = []string{"1.0", "1.1", "1.2", "1.3", "1.4", "1.5", "1.6", "1.7"}

func (c *EditorConfig) Validate() error {
	if c.MaxLeavesPerPagesNode < 2 {
		return NewConfigError("editor.max-leaves-per-pages-node", "must be at least 2")
	}
	if !slices.Contains(pdfVersions, c.PDFVersion) {
		return NewConfigError("editor.pdf-version", fmt.Sprintf("unsupported version %q", c.PDFVersion))
	}
	if *c.UseObjectStreams && c.PDFVersion < "1.5" {
		return NewConfigError("editor.use-object-streams", "object streams need PDF 1.5 or later")
	}
	return nil
}

// Config is the whole configuration file. Missing sections are filled in
// by SetDefaults.
type Config struct {
	Logging *LoggingConfig `yaml:"logging" json:"logging,omitempty"`
	Filters *FiltersConfig `yaml:"filters" json:"filters,omitempty"`
	Writer  *WriterConfig  `yaml:"writer" json:"writer,omitempty"`
	Editor  *EditorConfig  `yaml:"editor" json:"editor,omitempty"`
}

type section interface {
	SetDefaults()
	Validate() error
}

func (c *Config) sections() []section {
	return []section{c.Logging, c.Filters, c.Writer, c.Editor}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := new(Config)
	c.SetDefaults()
	return c
}

func (c *Config) SetDefaults() {
	c.Logging = ptrOr(c.Logging, LoggingConfig{})
	c.Filters = ptrOr(c.Filters, FiltersConfig{})
	c.Writer = ptrOr(c.Writer, WriterConfig{})
	c.Editor = ptrOr(c.Editor, EditorConfig{})
	for _, s := range c.sections() {
		s.SetDefaults()
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	for _, s := range c.sections() {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies defaults and validates. Keys may use
// underscores in place of dashes; unknown keys are rejected in every
// section.
func ParseConfig(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var config Config
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, ErrInvalidConfigType
		}
		if err := checkNode("pdfstream", root, reflect.TypeFor[Config]()); err != nil {
			return nil, err
		}
		if err := root.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfigFromMap parses configuration given as decoded YAML or JSON.
func LoadConfigFromMap(data map[string]any) (*Config, error) {
	if data == nil {
		return nil, ErrInvalidConfigType
	}
	encoded, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config map: %w", err)
	}
	return ParseConfig(encoded)
}

// checkNode normalizes the keys of a mapping node in place and rejects any
// that have no yaml field in t. Nested sections are checked recursively.
func checkNode(name string, node *yaml.Node, t reflect.Type) error {
	fields := yamlFields(t)
	var keys []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		key.Value = normalizeKey(key.Value)
		keys = append(keys, key.Value)

		ft, ok := fields[key.Value]
		if ok && ft.Kind() == reflect.Struct && node.Content[i+1].Kind == yaml.MappingNode {
			if err := checkNode(key.Value, node.Content[i+1], ft); err != nil {
				return err
			}
		}
	}
	return CheckConfigKeys(name, slices.Collect(maps.Keys(fields)), keys)
}

// yamlFields maps the yaml names of a struct's fields to their types, with
// pointers dereferenced.
func yamlFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		fields[name] = ft
	}
	return fields
}

// CheckConfigKeys fails with ErrUnexpectedField when supplied holds a key
// outside expected. Keys are compared after normalizeKey.
func CheckConfigKeys(configName string, expected, supplied []string) error {
	known := make(map[string]struct{}, len(expected))
	for _, k := range expected {
		known[normalizeKey(k)] = struct{}{}
	}

	var unknown []string
	for _, k := range supplied {
		if _, ok := known[normalizeKey(k)]; !ok {
			unknown = append(unknown, k)
		}
	}
	switch len(unknown) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%w: unexpected key in configuration for %s: %s",
			ErrUnexpectedField, configName, unknown[0])
	}
	return fmt.Errorf("%w: unexpected keys in configuration for %s: %s",
		ErrUnexpectedField, configName, strings.Join(unknown, ", "))
}

// normalizeKey maps use_xref_stream to use-xref-stream.
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func ptrOr[T any](p *T, def T) *T {
	if p == nil {
		return &def
	}
	return p
}
