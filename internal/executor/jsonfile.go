package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/maypok86/otter"

	"github.com/quarrydb/quarry/internal/query"
)

// JSONOptions configures a JSONExecutor.
type JSONOptions struct {
	// FilePath is the JSON document to query. Required. The top-level
	// value must be an array.
	FilePath string
	// Encoding of the file. Only utf-8 is supported; empty means utf-8.
	Encoding string
	// CacheData keeps the parsed array in process until the file's
	// modification time changes.
	CacheData bool
}

// DefaultJSONOptions returns options with caching enabled.
func DefaultJSONOptions(path string) JSONOptions {
	return JSONOptions{FilePath: path, Encoding: "utf-8", CacheData: true}
}

type cachedPayload struct {
	rows    []query.Row
	modTime time.Time
}

// JSONExecutor runs queries over a JSON file holding a top-level array.
// The parsed payload is cached (otter) and invalidated by an mtime
// compare-and-swap on every execute, so external writers are picked up
// without a watcher. WatchFile adds proactive fsnotify invalidation.
//
// Metadata.TotalCount is the pre-pagination row count; FromCache reports
// whether the parsed payload was served from the in-process cache.
type JSONExecutor struct {
	opts  JSONOptions
	cache otter.Cache[string, *cachedPayload]
}

// NewJSONExecutor validates the options and builds the executor. The file
// itself is read lazily on the first Execute.
func NewJSONExecutor(opts JSONOptions) (*JSONExecutor, error) {
	if opts.FilePath == "" {
		return nil, fmt.Errorf("json executor: file path is required")
	}
	switch strings.ToLower(opts.Encoding) {
	case "", "utf-8", "utf8":
	default:
		return nil, fmt.Errorf("json executor: unsupported encoding %q", opts.Encoding)
	}
	cache, err := otter.MustBuilder[string, *cachedPayload](16).Build()
	if err != nil {
		return nil, fmt.Errorf("json executor: build cache: %w", err)
	}
	return &JSONExecutor{opts: opts, cache: cache}, nil
}

// Execute loads (or reuses) the parsed array and runs the shared pipeline.
func (e *JSONExecutor) Execute(ctx context.Context, q query.Query) query.Result {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		res := query.FailureResult(query.ErrTimeout, err.Error())
		res.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return res
	}

	rows, fromCache, qerr := e.load()
	if qerr != nil {
		res := query.FailureResult(qerr.Code, qerr.Message)
		res.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return res
	}

	data, total, qerr := runPipeline(rows, q)
	if qerr != nil {
		res := query.FailureResult(qerr.Code, qerr.Message)
		res.Metadata.ExecutionTimeMs = int(time.Since(start).Milliseconds())
		return res
	}
	return query.Result{
		Data: data,
		Metadata: query.Metadata{
			ExecutionTimeMs: int(time.Since(start).Milliseconds()),
			FromCache:       fromCache,
			TotalCount:      total,
		},
	}
}

// load returns the parsed rows, reusing the cache while the file's mtime
// is unchanged.
func (e *JSONExecutor) load() ([]query.Row, bool, *query.Error) {
	info, err := os.Stat(e.opts.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, &query.Error{Code: query.ErrAdapter, Message: "JSON file not found: " + e.opts.FilePath}
		}
		return nil, false, &query.Error{Code: query.ErrAdapter, Message: err.Error()}
	}

	if e.opts.CacheData {
		if entry, ok := e.cache.Get(e.opts.FilePath); ok && entry.modTime.Equal(info.ModTime()) {
			return entry.rows, true, nil
		}
	}

	raw, err := os.ReadFile(e.opts.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, &query.Error{Code: query.ErrAdapter, Message: "JSON file not found: " + e.opts.FilePath}
		}
		return nil, false, &query.Error{Code: query.ErrAdapter, Message: err.Error()}
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false, &query.Error{Code: query.ErrAdapter, Message: "Failed to parse JSON: " + err.Error()}
	}
	arr, ok := payload.([]any)
	if !ok {
		return nil, false, &query.Error{Code: query.ErrAdapter, Message: "JSON data must be an array"}
	}

	rows := make([]query.Row, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			rows = append(rows, query.Row(m))
			continue
		}
		rows = append(rows, query.Row{"value": el})
	}

	if e.opts.CacheData {
		e.cache.Set(e.opts.FilePath, &cachedPayload{rows: rows, modTime: info.ModTime()})
	}
	return rows, false, nil
}

// Invalidate drops the cached payload; the next Execute re-reads the file.
func (e *JSONExecutor) Invalidate() {
	e.cache.Delete(e.opts.FilePath)
}

// WatchFile invalidates the cache as soon as the file is written, renamed
// or removed, instead of waiting for the next mtime check. The returned
// stop function releases the watcher.
func (e *JSONExecutor) WatchFile() (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("json executor: watcher: %w", err)
	}
	if err := watcher.Add(e.opts.FilePath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("json executor: watch %s: %w", e.opts.FilePath, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
					e.Invalidate()
				}
			case <-watcher.Errors:
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		watcher.Close()
	}, nil
}

// Capabilities mirrors the in-memory pipeline.
func (e *JSONExecutor) Capabilities() Capabilities {
	return Capabilities{SupportsAggregation: true, SupportsGrouping: true}
}

// Close releases the cache.
func (e *JSONExecutor) Close() {
	e.cache.Close()
}
