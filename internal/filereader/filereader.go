// Package filereader ingests OTLP telemetry from the JSONL files written by
// the OpenTelemetry Collector's file exporter. Lines are handed to the same
// receiver the gRPC endpoint feeds, so file and network ingest are
// indistinguishable to the views.
package filereader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

const (
	// OTLP JSON lines can be large for batched spans with many attributes.
	jsonlBufferInitial = 1 * 1024 * 1024
	jsonlBufferMax     = 10 * 1024 * 1024
)

// Receiver accepts decoded telemetry. storage.EventStore implements it.
type Receiver interface {
	ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error
	ReceiveLogs(ctx context.Context, resourceLogs []*logspb.ResourceLogs) error
}

// Signal directories below the base directory.
const (
	SignalTraces = "traces"
	SignalLogs   = "logs"
)

// FileSource tails the traces/ and logs/ subdirectories of a collector
// output directory.
type FileSource struct {
	directory  string
	receiver   Receiver
	verbose    bool
	activeOnly bool

	watcher *fsnotify.Watcher

	mu          sync.Mutex
	fileOffsets map[string]int64
	lines       map[string]int // signal -> lines ingested

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration for a FileSource.
type Config struct {
	Directory string
	Verbose   bool

	// ActiveOnly loads only traces.jsonl and logs.jsonl, skipping rotated
	// archives such as traces-2025-12-09T13-10-56.jsonl.
	ActiveOnly bool
}

// New creates a FileSource reading from cfg.Directory.
func New(cfg Config, receiver Receiver) (*FileSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if receiver == nil {
		return nil, fmt.Errorf("receiver cannot be nil")
	}

	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Directory)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileSource{
		directory:   cfg.Directory,
		receiver:    receiver,
		verbose:     cfg.Verbose,
		activeOnly:  cfg.ActiveOnly,
		watcher:     watcher,
		fileOffsets: make(map[string]int64),
		lines:       make(map[string]int),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start loads existing files and then keeps watching in the background.
// It returns once the initial load is done.
func (fs *FileSource) Start(ctx context.Context) error {
	if fs.verbose {
		log.Printf("📁 FileSource: starting with directory %s\n", fs.directory)
	}

	for _, signal := range []string{SignalTraces, SignalLogs} {
		dir := filepath.Join(fs.directory, signal)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := fs.watcher.Add(dir); err != nil {
			log.Printf("⚠️  FileSource: could not watch %s: %v\n", dir, err)
		} else if fs.verbose {
			log.Printf("📁 FileSource: watching %s\n", dir)
		}
	}

	if err := fs.loadInitialData(ctx); err != nil {
		return fmt.Errorf("initial data load failed: %w", err)
	}

	fs.wg.Add(1)
	go fs.watchLoop()
	return nil
}

// Stop stops the watcher and waits for the watch loop to exit.
func (fs *FileSource) Stop() {
	fs.cancel()
	fs.watcher.Close()
	fs.wg.Wait()
}

// Directory returns the base directory being watched.
func (fs *FileSource) Directory() string {
	return fs.directory
}

func (fs *FileSource) loadInitialData(ctx context.Context) error {
	for _, signal := range []string{SignalTraces, SignalLogs} {
		files, err := fs.findJSONLFiles(filepath.Join(fs.directory, signal))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, file := range files {
			fs.ingest(ctx, signal, file)
		}
	}
	return nil
}

// ingest reads new lines of a file and logs the outcome.
func (fs *FileSource) ingest(ctx context.Context, signal, path string) {
	var handler func(context.Context, []byte) error
	switch signal {
	case SignalTraces:
		handler = fs.handleTraceLine
	case SignalLogs:
		handler = fs.handleLogLine
	default:
		return
	}

	count, err := fs.processFile(ctx, path, handler)
	if count > 0 {
		fs.mu.Lock()
		fs.lines[signal] += count
		fs.mu.Unlock()
	}
	if err != nil {
		log.Printf("⚠️  FileSource: error reading %s: %v\n", path, err)
	} else if fs.verbose && count > 0 {
		log.Printf("📁 FileSource: loaded %d %s lines from %s\n", count, signal, filepath.Base(path))
	}
}

// findJSONLFiles returns the .jsonl files of a directory, oldest first.
func (fs *FileSource) findJSONLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	activeFileName := filepath.Base(dir) + ".jsonl"

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, entry := range entries {
		if entry.IsDir() || !isJSONL(entry.Name()) {
			continue
		}
		if fs.activeOnly && entry.Name() != activeFileName {
			if fs.verbose {
				log.Printf("📁 FileSource: skipping archived file %s (activeOnly mode)\n", entry.Name())
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	result := make([]string, len(files))
	for i, f := range files {
		result[i] = f.path
	}
	return result, nil
}

func isJSONL(name string) bool {
	return strings.HasSuffix(name, ".jsonl") || strings.Contains(name, ".jsonl.")
}

func (fs *FileSource) handleTraceLine(ctx context.Context, line []byte) error {
	var data tracepb.TracesData
	if err := protojson.Unmarshal(line, &data); err != nil {
		return fmt.Errorf("parse trace JSON: %w", err)
	}
	if len(data.ResourceSpans) == 0 {
		return nil
	}
	return fs.receiver.ReceiveSpans(ctx, data.ResourceSpans)
}

func (fs *FileSource) handleLogLine(ctx context.Context, line []byte) error {
	var data logspb.LogsData
	if err := protojson.Unmarshal(line, &data); err != nil {
		return fmt.Errorf("parse log JSON: %w", err)
	}
	if len(data.ResourceLogs) == 0 {
		return nil
	}
	return fs.receiver.ReceiveLogs(ctx, data.ResourceLogs)
}

// processFile reads a file from its last offset, calling handler for each
// complete line. A file shorter than the recorded offset was truncated or
// replaced and is read from the start. Returns the number of lines handled.
func (fs *FileSource) processFile(ctx context.Context, path string, handler func(context.Context, []byte) error) (int, error) {
	fs.mu.Lock()
	offset := fs.fileOffsets[path]
	fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if info, err := file.Stat(); err == nil && info.Size() < offset {
		offset = 0
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			offset = 0
		}
	}

	reader := bufio.NewReaderSize(file, jsonlBufferInitial)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		line, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			line, err = readLongLine(reader, line)
		}
		if err != nil {
			// A trailing line without newline is still being written.
			if err == io.EOF {
				break
			}
			return count, fmt.Errorf("reading %s: %w", path, err)
		}
		offset += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := handler(ctx, line); err != nil {
			if fs.verbose {
				log.Printf("⚠️  FileSource: error processing line in %s: %v\n", filepath.Base(path), err)
			}
			continue
		}
		count++
	}

	fs.mu.Lock()
	fs.fileOffsets[path] = offset
	fs.mu.Unlock()
	return count, nil
}

// readLongLine completes a line that overflowed the reader buffer.
func readLongLine(r *bufio.Reader, first []byte) ([]byte, error) {
	line := append([]byte(nil), first...)
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > jsonlBufferMax {
			return nil, fmt.Errorf("line exceeds %d bytes", jsonlBufferMax)
		}
		if err != bufio.ErrBufferFull {
			return line, err
		}
	}
}

func (fs *FileSource) watchLoop() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ctx.Done():
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isJSONL(event.Name) {
				continue
			}
			signal := filepath.Base(filepath.Dir(event.Name))
			if fs.activeOnly && filepath.Base(event.Name) != signal+".jsonl" {
				continue
			}
			fs.ingest(fs.ctx, signal, event.Name)

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  FileSource: watcher error: %v\n", err)
		}
	}
}

// Stats describes the file source.
type Stats struct {
	Directory    string         `json:"directory"`
	WatchedDirs  []string       `json:"watched_dirs"`
	FilesTracked int            `json:"files_tracked"`
	Lines        map[string]int `json:"lines"`
}

// Stats returns current statistics.
func (fs *FileSource) Stats() Stats {
	fs.mu.Lock()
	st := Stats{
		Directory:    fs.directory,
		FilesTracked: len(fs.fileOffsets),
		Lines:        make(map[string]int, len(fs.lines)),
	}
	for k, v := range fs.lines {
		st.Lines[k] = v
	}
	fs.mu.Unlock()

	st.WatchedDirs = fs.watcher.WatchList()
	sort.Strings(st.WatchedDirs)
	return st
}
