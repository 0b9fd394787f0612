package build

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/karvela/crampack/internal/record"
	"github.com/karvela/crampack/internal/structure"
)

// Writer frames a full stream: file definition, file-header container, data
// containers, end-of-stream sentinel.
type Writer struct {
	w        io.Writer
	strategy EncodingStrategy
	counter  int64
	closed   bool
}

// NewWriter writes the stream preamble and returns a writer for the data
// containers. headerText is the text file header carried by the leading
// container.
func NewWriter(w io.Writer, headerText []byte, fileID string, strategy EncodingStrategy) (*Writer, error) {
	strategy = strategy.withDefaults()
	if err := strategy.validate(); err != nil {
		return nil, err
	}
	fd := structure.NewFileDefinition(byte(strategy.Version), 0, fileID)
	if err := fd.Write(w); err != nil {
		return nil, fmt.Errorf("writing file definition: %w", err)
	}
	if err := structure.WriteFileHeaderContainer(strategy.Version, headerText, w); err != nil {
		return nil, fmt.Errorf("writing file header container: %w", err)
	}
	return &Writer{w: w, strategy: strategy}, nil
}

// WriteRecords frames the records into containers, one per reference run,
// and writes them in order.
func (w *Writer) WriteRecords(records []*record.Record) error {
	if w.closed {
		return fmt.Errorf("write after close")
	}
	factory := ContainerFactory{Strategy: w.strategy}
	for _, run := range PartitionByReference(records) {
		c, err := factory.Build(run, w.counter)
		if err != nil {
			return err
		}
		if err := c.Write(w.strategy.Version, w.w); err != nil {
			return fmt.Errorf("writing container: %w", err)
		}
		w.counter += int64(len(run))
	}
	return nil
}

// Close writes the end-of-stream sentinel. The underlying writer is not
// closed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return structure.WriteEOF(w.strategy.Version, w.w)
}

// PartitionByReference splits records into consecutive runs that frame
// cleanly into one container each: a run breaks when the mapped reference
// changes or the mapping state flips. Record order is preserved.
func PartitionByReference(records []*record.Record) [][]*record.Record {
	var runs [][]*record.Record
	start := 0
	for i := 1; i < len(records); i++ {
		if recordRefKey(records[i]) != recordRefKey(records[i-1]) {
			runs = append(runs, records[start:i])
			start = i
		}
	}
	if start < len(records) {
		runs = append(runs, records[start:])
	}
	return runs
}

func recordRefKey(r *record.Record) int32 {
	if r.IsSegmentUnmapped() || r.ReferenceID < 0 {
		return structure.UnmappedRefID
	}
	return r.ReferenceID
}

type containerJob struct {
	seqNum  int
	records []*record.Record
	counter int64
}

type containerResult struct {
	seqNum int
	data   []byte
	err    error
}

// BuildContainers frames one container per batch across parallel workers and
// writes the serialized containers to w in input order. Batches must each
// hold records of a single reference run.
func BuildContainers(ctx context.Context, w io.Writer, batches [][]*record.Record, strategy EncodingStrategy) error {
	strategy = strategy.withDefaults()
	if err := strategy.validate(); err != nil {
		return err
	}

	jobs := make(chan containerJob, strategy.Workers*2)
	results := make(chan containerResult, strategy.Workers*2)

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < strategy.Workers; i++ {
		g.Go(func() error {
			return runContainerWorker(ctx, jobs, results, strategy)
		})
	}

	g.Go(func() error {
		defer close(jobs)
		counter := int64(0)
		seqNum := 0
		for _, batch := range batches {
			if len(batch) == 0 {
				continue
			}
			select {
			case jobs <- containerJob{seqNum: seqNum, records: batch, counter: counter}:
				seqNum++
				counter += int64(len(batch))
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	// Collector: write results in order
	var collectorErr error
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		collectorErr = collectContainers(results, w)
	}()

	workerErr := g.Wait()
	close(results)
	<-collectorDone

	if workerErr != nil {
		return workerErr
	}
	return collectorErr
}

func runContainerWorker(ctx context.Context, jobs <-chan containerJob, results chan<- containerResult, strategy EncodingStrategy) error {
	factory := ContainerFactory{Strategy: strategy}
	for job := range jobs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := buildContainerBytes(factory, job, strategy.Version)
		results <- containerResult{seqNum: job.seqNum, data: data, err: err}
	}
	return nil
}

func buildContainerBytes(factory ContainerFactory, job containerJob, version int) ([]byte, error) {
	c, err := factory.Build(job.records, job.counter)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.Write(version, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func collectContainers(results <-chan containerResult, w io.Writer) error {
	pending := make(map[int][]byte)
	next := 0

	// after a failure the channel must still be drained to completion, or
	// workers block on their sends and g.Wait never returns
	var firstErr error
	for result := range results {
		if firstErr != nil {
			continue
		}
		if result.err != nil {
			firstErr = fmt.Errorf("building container %d: %w", result.seqNum, result.err)
			continue
		}
		pending[result.seqNum] = result.data

		for {
			data, ok := pending[next]
			if !ok {
				break
			}
			if _, err := w.Write(data); err != nil {
				firstErr = fmt.Errorf("writing container %d: %w", next, err)
				break
			}
			delete(pending, next)
			next++
		}
	}
	return firstErr
}
