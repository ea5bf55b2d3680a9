// Package config loads conversion defaults from a YAML file.
package config

import (
	"fmt"
	"os"
	"unicode/utf8"

	flatgeobuf "github.com/tingold/geostream/fgb"
	"github.com/tingold/geostream/formats"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	CSV        CSV        `yaml:"csv"`
	FlatGeobuf FlatGeobuf `yaml:"flatgeobuf"`
	GeoJSON    GeoJSON    `yaml:"geojson"`
}

// CSV holds delimiter settings shared by the CSV reader and writer. An empty
// line delimiter is sniffed on input and "\n" on output.
type CSV struct {
	LineDelimiter  string `yaml:"line_delimiter,omitempty"`
	ValueDelimiter string `yaml:"value_delimiter,omitempty"`
	Quote          string `yaml:"quote,omitempty"`
	SkipHeader     bool   `yaml:"skip_header,omitempty"`
}

// FlatGeobuf holds writer settings.
type FlatGeobuf struct {
	Name         string `yaml:"name,omitempty"`
	Description  string `yaml:"description,omitempty"`
	IncludeIndex *bool  `yaml:"include_index,omitempty"`
	CRS          *CRS   `yaml:"crs,omitempty"`
}

// CRS identifies a coordinate reference system by EPSG code.
type CRS struct {
	Code int    `yaml:"code"`
	Name string `yaml:"name,omitempty"`
}

// GeoJSON holds writer settings.
type GeoJSON struct {
	Indent bool `yaml:"indent,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CSV: CSV{ValueDelimiter: ",", Quote: `"`},
	}
}

// Load reads and parses the YAML configuration file from the specified path.
// Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that delimiters are single characters.
func (c *Config) Validate() error {
	if n := utf8.RuneCountInString(c.CSV.ValueDelimiter); n > 1 {
		return fmt.Errorf("csv.value_delimiter %q must be one character", c.CSV.ValueDelimiter)
	}
	if n := utf8.RuneCountInString(c.CSV.Quote); n > 1 {
		return fmt.Errorf("csv.quote %q must be one character", c.CSV.Quote)
	}
	return nil
}

// Formats turns the configuration into codec options for formats.NewRegistry.
func (c *Config) Formats(logger *zerolog.Logger) *formats.Options {
	opts := formats.DefaultOptions()
	opts.Logger = logger

	if r, _ := utf8.DecodeRuneInString(c.CSV.ValueDelimiter); r != utf8.RuneError {
		opts.CSVReader.ValueDelimiter = r
		opts.CSVWriter.ValueDelimiter = r
	}
	if r, _ := utf8.DecodeRuneInString(c.CSV.Quote); r != utf8.RuneError {
		opts.CSVReader.Quote = r
		opts.CSVWriter.Quote = r
	}
	if c.CSV.LineDelimiter != "" {
		opts.CSVReader.LineDelimiter = c.CSV.LineDelimiter
		opts.CSVWriter.LineDelimiter = c.CSV.LineDelimiter
	}
	opts.CSVWriter.SkipHeader = c.CSV.SkipHeader

	opts.FlatGeobuf.Name = c.FlatGeobuf.Name
	opts.FlatGeobuf.Description = c.FlatGeobuf.Description
	if c.FlatGeobuf.IncludeIndex != nil {
		opts.FlatGeobuf.IncludeIndex = *c.FlatGeobuf.IncludeIndex
	}
	if c.FlatGeobuf.CRS != nil {
		opts.FlatGeobuf.CRS = &flatgeobuf.CRS{Code: c.FlatGeobuf.CRS.Code, Name: c.FlatGeobuf.CRS.Name}
	}

	opts.GeoJSON.Indent = c.GeoJSON.Indent
	return opts
}
