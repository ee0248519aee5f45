package geovocab

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FileVersion is the compiled-in sidecar format version. Opening a sidecar
// whose header doesn't match this is a fatal, refuse-to-open error naming
// the version that would need a rebuild (spec.md §3, §6, §7).
const FileVersion uint32 = 1

const headerSize = 4

// VocabularyWriter is the minimal append-only writer contract the
// GeoVocabulary writer drives; internal/globalvocab.Vocabulary implements
// it over its persistent id2str table, tests use an in-memory fake.
type VocabularyWriter interface {
	// Append assigns and returns the next dense index for word.
	Append(word string, isExternal bool) (uint64, error)
}

// workItem is one unit of work handed from the ingest thread to the
// worker pool.
type workItem struct {
	index uint64
	word  string
}

// Writer implements the three-stage bounded-queue pipeline from spec.md
// §4.1: ingest (caller thread) → N workers (parse + compute) → one writer
// thread (sequences writes to the sidecar by index order).
type Writer struct {
	vocab VocabularyWriter
	file  *os.File
	log   *logrus.Entry

	workQueue chan workItem

	mu      sync.Mutex
	cond    *sync.Cond
	results map[uint64]*GeometryInfo
	next    uint64
	done    bool // set once the writer has drained everything after Finish

	group   *errgroup.Group
	groupC  context.Context
	workers sync.WaitGroup // worker goroutines still draining workQueue

	finishOnce sync.Once
	finishErr  error

	invalidWKT   *metrics.Counter
	invalidArea  *metrics.Counter
	recordsCount uint64
}

// Open creates (or truncates) the sidecar file at path, writes the version
// header, and starts the worker pool. workerCount<=0 means "use hardware
// concurrency" (resolved by the caller via config.Config.EffectiveWorkerCount).
func Open(path string, vocab VocabularyWriter, workerCount, queueCapacity int, log *logrus.Entry) (*Writer, error) {
	f, err := os.Create(path) // #nosec G304 - path is operator-supplied index build target
	if err != nil {
		return nil, fmt.Errorf("geovocab: creating sidecar: %w", err)
	}

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, FileVersion)
	if _, err := f.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("geovocab: writing header: %w", err)
	}

	if queueCapacity <= 0 {
		queueCapacity = 1
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	w := &Writer{
		vocab:     vocab,
		file:      f,
		log:       log,
		workQueue: make(chan workItem, queueCapacity),
		results:   make(map[uint64]*GeometryInfo),
		invalidWKT: metrics.GetOrCreateCounter(
			fmt.Sprintf(`geovocab_invalid_wkt_total{sidecar=%q}`, path)),
		invalidArea: metrics.GetOrCreateCounter(
			fmt.Sprintf(`geovocab_invalid_polygon_area_total{sidecar=%q}`, path)),
	}
	w.cond = sync.NewCond(&w.mu)

	group, ctx := errgroup.WithContext(context.Background())
	w.group = group
	w.groupC = ctx

	w.workers.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		group.Go(func() error {
			defer w.workers.Done()
			return w.runWorker()
		})
	}
	group.Go(func() error {
		return w.runWriter()
	})

	attachFinalizer(w)

	return w, nil
}

// Ingest assigns the next monotone index, pushes the literal onto the
// bounded work queue (blocking when full), and returns the index
// synchronously — the caller thread's half of the contract in spec.md §4.1.
func (w *Writer) Ingest(word string, isExternal bool) (uint64, error) {
	index, err := w.vocab.Append(word, isExternal)
	if err != nil {
		return 0, fmt.Errorf("geovocab: vocabulary append: %w", err)
	}

	select {
	case w.workQueue <- workItem{index: index, word: word}:
		return index, nil
	case <-w.groupC.Done():
		return 0, fmt.Errorf("geovocab: writer pipeline stopped: %w", w.groupC.Err())
	}
}

// runWorker pops work items, parses WKT, computes GeometryInfo (nil on
// parse failure), and publishes the result under the results-map lock,
// notifying the writer goroutine.
func (w *Writer) runWorker() error {
	for item := range w.workQueue {
		info, err := parseGeometry(item.word)
		var published *GeometryInfo
		if err != nil {
			if errors.Is(err, ErrInvalidPolygonArea) {
				w.invalidArea.Inc()
			} else {
				w.invalidWKT.Inc()
			}
			if w.log != nil {
				w.log.WithField("index", item.index).WithError(err).Debug("invalid WKT literal")
			}
			published = nil
		} else {
			copyInfo := info
			published = &copyInfo
		}

		w.mu.Lock()
		w.results[item.index] = published
		w.cond.Broadcast()
		w.mu.Unlock()
	}
	return nil
}

// runWriter awaits the next-in-sequence index and writes its record (or
// the all-zero sentinel) at the computed offset, advancing next. It exits
// once done is set and every published result up to next has drained.
func (w *Writer) runWriter() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		info, ready := w.results[w.next]
		if !ready {
			if w.done {
				return nil
			}
			w.cond.Wait()
			continue
		}

		index := w.next
		delete(w.results, index)
		w.next++

		var payload []byte
		if info == nil {
			payload = make([]byte, Stride) // all-zero sentinel
		} else {
			payload = info.MarshalBinary()
		}

		offset := int64(headerSize) + int64(index)*int64(Stride)

		w.mu.Unlock()
		_, writeErr := w.file.WriteAt(payload, offset)
		w.mu.Lock()

		if writeErr != nil {
			return fmt.Errorf("geovocab: writing record %d: %w", index, writeErr)
		}
		w.recordsCount++
	}
}

// Finish closes the work queue, signals the writer no more results will
// arrive, waits for every goroutine to exit, flushes the sidecar, and
// closes it. Idempotent: a second call is a no-op. This is the Go-idiom
// stand-in for the C++ spec's destructor-calls-finish guarantee — Go has
// no deterministic destructors, so callers are expected to `defer
// w.Finish(ctx)`; a best-effort finalizer additionally covers the case
// where they don't (see finalizer.go).
func (w *Writer) Finish(ctx context.Context) error {
	w.finishOnce.Do(func() {
		close(w.workQueue)

		waitErr := make(chan error, 1)
		go func() {
			// Only once every worker has published its last result can the
			// writer be told that nothing more will arrive.
			w.workers.Wait()
			w.mu.Lock()
			w.done = true
			w.cond.Broadcast()
			w.mu.Unlock()
			waitErr <- w.group.Wait()
		}()

		select {
		case err := <-waitErr:
			w.finishErr = err
		case <-ctx.Done():
			w.finishErr = fmt.Errorf("geovocab: finish cancelled: %w", ctx.Err())
			return
		}

		if w.finishErr == nil {
			w.finishErr = w.file.Sync()
		}
		if closeErr := w.file.Close(); w.finishErr == nil {
			w.finishErr = closeErr
		}
	})
	return w.finishErr
}

// Stats reports end-of-run diagnostics (spec.md §4.1 "Writer ... counts
// invalid-WKT and invalid-polygon-area events").
type Stats struct {
	RecordsWritten uint64
	InvalidWKT     uint64
	InvalidArea    uint64
}

func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		RecordsWritten: w.recordsCount,
		InvalidWKT:     uint64(w.invalidWKT.Get()),
		InvalidArea:    uint64(w.invalidArea.Get()),
	}
}
