// craminspect walks a CRAM-style stream and dumps its container, slice and
// block structure.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/karvela/crampack/internal/structure"
)

var version = "dev"

const (
	exitSuccess = 0
	exitError   = 1
)

type config struct {
	inputFile  string
	showBlocks bool
	showHeader bool
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, done := parseFlags()
	if done {
		return exitSuccess
	}

	input, cleanup, err := openInput(cfg.inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	defer cleanup()

	if err := inspect(cfg, input, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	return exitSuccess
}

func parseFlags() (config, bool) {
	var cfg config
	var showVersion, showHelp bool

	flag.StringVar(&cfg.inputFile, "i", "", "input file (default: stdin)")
	flag.BoolVar(&cfg.showBlocks, "blocks", false, "list every block inside each slice")
	flag.BoolVar(&cfg.showHeader, "header", false, "print the text file header and exit")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.BoolVar(&showHelp, "h", false, "show help")

	flag.Usage = usage
	flag.Parse()

	if showHelp {
		flag.Usage()
		return cfg, true
	}

	if showVersion {
		fmt.Printf("craminspect version %s\n", version)
		return cfg, true
	}

	args := flag.Args()
	if len(args) > 0 && cfg.inputFile == "" {
		cfg.inputFile = args[0]
	}

	return cfg, false
}

func usage() {
	fmt.Fprintf(os.Stderr, `craminspect - CRAM stream structure dumper

Usage:
  craminspect [options] [file.cram]

Options:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  craminspect sample.cram            Dump container and slice structure
  craminspect -blocks sample.cram    Include per-block detail
  craminspect -header sample.cram    Print the text file header
  cat sample.cram | craminspect      Read from stdin
`)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return bufio.NewReaderSize(os.Stdin, 1<<20), func() {}, nil
	}

	f, err := os.Open(path) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open input: %w", err)
	}
	return bufio.NewReaderSize(f, 1<<20), func() { _ = f.Close() }, nil
}

func inspect(cfg config, input io.Reader, out io.Writer) error {
	fd, err := structure.ReadFileDefinition(input)
	if err != nil {
		return err
	}
	major := int(fd.Major)
	text, err := structure.ReadFileHeaderContainer(major, input)
	if err != nil {
		return fmt.Errorf("reading file header container: %w", err)
	}
	if cfg.showHeader {
		_, err := out.Write(text)
		return err
	}
	fmt.Fprintf(out, "version %d.%d id %q\n", fd.Major, fd.Minor, trimFileID(fd.ID))
	fmt.Fprintf(out, "file header: %d bytes of text\n", len(text))

	for n := 0; ; n++ {
		c, err := structure.ReadContainer(major, input)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "warning: stream ended without an EOF container")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading container %d: %w", n, err)
		}
		if c.IsEOF() {
			fmt.Fprintln(out, "EOF container")
			return nil
		}
		printContainer(cfg, out, n, c)
	}
}

func printContainer(cfg config, out io.Writer, n int, c *structure.Container) {
	h := c.Header
	fmt.Fprintf(out, "container %d: %s records=%d bases=%d blocks=%d size=%d\n",
		n, h.Alignment.ReferenceContext, h.RecordCount, h.BaseCount, h.BlockCount, h.ByteSize)
	for i, s := range c.Slices {
		fmt.Fprintf(out, "  slice %d: %s start=%d span=%d records=%d landmark=%d\n",
			i, s.Alignment.ReferenceContext, s.Alignment.Start, s.Alignment.Span,
			s.RecordCount, s.Landmark())
		if !cfg.showBlocks {
			continue
		}
		printBlock(out, "core", s.CoreBlock())
		for _, id := range s.ExternalContentIDs() {
			b, _ := s.ExternalBlock(id)
			printBlock(out, fmt.Sprintf("external %d", id), b)
		}
	}
}

func printBlock(out io.Writer, label string, b *structure.Block) {
	compressedSize := -1
	if data, err := b.CompressedContent(); err == nil {
		compressedSize = len(data)
	}
	fmt.Fprintf(out, "    %s: method=%s raw=%d compressed=%d\n",
		label, b.Method(), b.RawSize(), compressedSize)
}

func trimFileID(id [structure.FileIDLength]byte) string {
	end := len(id)
	for end > 0 && id[end-1] == 0 {
		end--
	}
	return string(id[:end])
}
