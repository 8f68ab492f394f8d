package pdfa

import (
	"context"
	"path/filepath"
	"sync"

	"zugferd/internal/logger"
)

// Result is the outcome of inspecting one file in a batch.
type Result struct {
	Index int
	Path  string
	Info  Info
	Err   error
}

// Filename returns the base name of the inspected file.
func (r Result) Filename() string {
	return filepath.Base(r.Path)
}

type job struct {
	index int
	path  string
}

// InspectAll inspects paths on a pool of workers. Results keep the order of
// paths. Files not yet picked up when ctx is done report ctx's error.
// progress, when not nil, is called once per finished file; calls are
// serialized.
func InspectAll(ctx context.Context, paths []string, workers int, progress func(done, total int, r Result)) []Result {
	log := logger.WithComponent("pdfa")
	if workers < 1 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan job, len(paths))
	results := make([]Result, len(paths))

	var (
		mu        sync.Mutex
		processed int
		wg        sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := range jobs {
				log.Debug().
					Int("worker", workerID).
					Str("file", j.path).
					Int("index", j.index+1).
					Msg("Worker inspecting PDF")

				r := Result{Index: j.index, Path: j.path}
				if err := ctx.Err(); err != nil {
					r.Err = err
				} else {
					r.Info, r.Err = InspectFile(j.path)
				}
				results[j.index] = r

				mu.Lock()
				processed++
				if progress != nil {
					progress(processed, len(paths), r)
				}
				mu.Unlock()
			}
		}(w)
	}

	for i, p := range paths {
		jobs <- job{index: i, path: p}
	}
	close(jobs)

	wg.Wait()
	return results
}
