package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tingold/geostream"
	"github.com/tingold/geostream/formats"
	"github.com/tingold/geostream/internal/config"
	"github.com/tingold/geostream/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"GEOCONV_CONFIG" description:"Path to configuration file"`
	From       string `short:"f" long:"from"   description:"Input format, guessed from the input extension when empty"`
	To         string `short:"t" long:"to"     description:"Output format, guessed from the output extension when empty"`
	Input      string `short:"i" long:"in"     description:"Input file path. Reads from stdin if empty"`
	Output     string `short:"o" long:"out"    description:"Output file path. Writes to stdout if empty"`
	List       bool   `short:"l" long:"list"   description:"List registered formats and exit"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	if err := run(opts, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Conversion failed")
	}
}

func run(opts Options, stdin io.Reader, stdout io.Writer) error {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigFile); err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
	}

	reg, err := formats.NewRegistry(cfg.Formats(&log.Logger))
	if err != nil {
		return err
	}

	if opts.List {
		return listFormats(reg, stdout)
	}

	from, err := resolveType(reg, opts.From, opts.Input)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	to, err := resolveType(reg, opts.To, opts.Output)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}

	var src geostream.Reader
	if opts.Input != "" {
		src, err = reg.Open(from, opts.Input)
	} else {
		src, err = reg.Open(from, struct{ io.Reader }{stdin})
	}
	if err != nil {
		return fmt.Errorf("opening %s input: %w", from, err)
	}
	defer geostream.CloseQuietly(&log.Logger, src, "input")

	var dst geostream.Writer
	if opts.Output != "" {
		dst, err = reg.Create(to, opts.Output)
	} else {
		dst, err = reg.Create(to, struct{ io.Writer }{stdout})
	}
	if err != nil {
		return fmt.Errorf("creating %s output: %w", to, err)
	}

	n, err := geostream.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Int("objects", n).
		Msg("Conversion finished")
	return nil
}

// resolveType picks the named format, or guesses one from the extension of
// path: "roads.fgb" is FlatGeobuf and "roads.csv.zip" is zipped CSV.
func resolveType(reg *geostream.Registry, name, path string) (geostream.DocType, error) {
	if name == "" {
		if path == "" {
			return geostream.DocType{}, errors.New("format is required when streaming")
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if ext == "zip" {
			inner := filepath.Ext(strings.TrimSuffix(path, filepath.Ext(path)))
			ext = strings.ToLower(strings.TrimPrefix(inner, ".")) + "+zip"
		}
		name = ext
	}
	r, ok := reg.Find(name)
	if !ok {
		return geostream.DocType{}, fmt.Errorf("%w: %q", geostream.ErrUnsupportedFormat, name)
	}
	return r.Type, nil
}

func listFormats(reg *geostream.Registry, w io.Writer) error {
	for _, t := range reg.Types() {
		r, _ := reg.Lookup(t)
		var modes []string
		if r.NewReader != nil || r.NewFileReader != nil || r.NewArchiveReader != nil {
			modes = append(modes, "read")
		}
		if r.NewWriter != nil || r.NewArchiveWriter != nil {
			modes = append(modes, "write")
		}
		if _, err := fmt.Fprintf(w, "%-12s %s\n", t, strings.Join(modes, ",")); err != nil {
			return err
		}
	}
	return nil
}
