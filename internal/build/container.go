package build

import (
	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/record"
	"github.com/karvela/crampack/internal/structure"
)

// ContainerFactory frames record batches into containers.
type ContainerFactory struct {
	Strategy EncodingStrategy
}

// Build frames one container from the given records: the compression header
// is derived from the whole batch, records split into slices of at most
// RecordsPerSlice, and every external stream compressed with the probe's
// winning method. globalCounter is the stream-wide index of the first
// record.
func (f ContainerFactory) Build(records []*record.Record, globalCounter int64) (*structure.Container, error) {
	strategy := f.Strategy.withDefaults()
	if err := strategy.validate(); err != nil {
		return nil, err
	}

	header := CompressionHeaderFactory{}.Build(records)
	sliceFactory := SliceFactory{Matrix: header.SubstitutionMatrix}
	cache := codec.NewCache()

	var slices []*structure.Slice
	counter := globalCounter
	for offset := 0; offset < len(records); offset += strategy.RecordsPerSlice {
		end := offset + strategy.RecordsPerSlice
		if end > len(records) {
			end = len(records)
		}
		s, err := sliceFactory.Build(records[offset:end], counter)
		if err != nil {
			return nil, err
		}
		if err := compressSliceBlocks(cache, s, strategy.GzipLevel); err != nil {
			return nil, err
		}
		slices = append(slices, s)
		counter += int64(end - offset)
	}

	return structure.NewContainer(header, slices, globalCounter)
}
