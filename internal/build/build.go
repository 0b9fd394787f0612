// Package build assembles positional records into framed slices and
// containers: encoding-map policy, substitution-frequency collection,
// per-stream compressor probing, and parallel container construction.
package build

import (
	"fmt"
	"runtime"

	"github.com/klauspost/compress/gzip"
)

// DefaultRecordsPerSlice is the default slice batch size.
const DefaultRecordsPerSlice = 10000

// EncodingStrategy configures how records are framed.
type EncodingStrategy struct {
	Version            int // major format version (default: 3)
	RecordsPerSlice    int // records per slice (default: DefaultRecordsPerSlice)
	SlicesPerContainer int // slices per container (default: 1)
	GzipLevel          int // gzip level probed per stream (default: gzip.DefaultCompression)
	Workers            int // parallel container build workers (default: NumCPU)
}

func (s EncodingStrategy) withDefaults() EncodingStrategy {
	if s.Version == 0 {
		s.Version = 3
	}
	if s.RecordsPerSlice == 0 {
		s.RecordsPerSlice = DefaultRecordsPerSlice
	}
	if s.SlicesPerContainer == 0 {
		s.SlicesPerContainer = 1
	}
	if s.GzipLevel == 0 {
		s.GzipLevel = gzip.DefaultCompression
	}
	if s.Workers == 0 {
		s.Workers = runtime.NumCPU()
	}
	return s
}

func (s EncodingStrategy) validate() error {
	if s.Version != 2 && s.Version != 3 {
		return fmt.Errorf("unsupported format version %d", s.Version)
	}
	if s.RecordsPerSlice < 1 {
		return fmt.Errorf("records per slice must be positive, got %d", s.RecordsPerSlice)
	}
	if s.SlicesPerContainer < 1 {
		return fmt.Errorf("slices per container must be positive, got %d", s.SlicesPerContainer)
	}
	if s.GzipLevel < gzip.HuffmanOnly || s.GzipLevel > gzip.BestCompression {
		return fmt.Errorf("invalid gzip level %d", s.GzipLevel)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	return nil
}
