package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/exp/mmap"

	"github.com/dd0wney/cluso-cd/pkg/logging"
)

const headerFile = "header.json"

func stepFile(index int) string { return fmt.Sprintf("step-%06d.ck", index) }

func parseStepFile(name string) (int, bool) {
	var index int
	if n, err := fmt.Sscanf(name, "step-%d.ck", &index); err != nil || n != 1 || stepFile(index) != name {
		return 0, false
	}
	return index, true
}

// FileStore keeps a checkpoint in a directory: header.json plus one encoded
// file per step, read back through a memory map.
type FileStore struct {
	dir   string
	obs   observer
	cache stepCache
}

func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir, obs: newObserver("file", opts)}, nil
}

func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) Header(_ context.Context) (h Header, err error) {
	start := time.Now()
	defer func() { f.obs.done("read_header", start, err) }()

	data, err := os.ReadFile(filepath.Join(f.dir, headerFile))
	if errors.Is(err, fs.ErrNotExist) {
		return Header{}, ErrNoHeader
	}
	if err != nil {
		return Header{}, err
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return Header{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	return h, nil
}

func (f *FileStore) WriteHeader(_ context.Context, h Header) (err error) {
	start := time.Now()
	defer func() { f.obs.done("write_header", start, err) }()

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(f.dir, headerFile), data)
}

func (f *FileStore) LastStep(_ context.Context) (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, err
	}
	last := -1
	for _, e := range entries {
		if index, ok := parseStepFile(e.Name()); ok && !e.IsDir() {
			last = max(last, index)
		}
	}
	if last < 0 {
		return 0, ErrStepNotFound
	}
	return last, nil
}

func (f *FileStore) Step(ctx context.Context, index int) (s *Step, err error) {
	start := time.Now()
	defer func() { f.obs.done("read", start, err) }()
	return f.cache.get(ctx, index, f.load)
}

func (f *FileStore) load(_ context.Context, index int) (*Step, error) {
	path := filepath.Join(f.dir, stepFile(index))
	reader, err := mmap.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %d", ErrStepNotFound, index)
	}
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	buf := make([]byte, reader.Len())
	if _, err := reader.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f.obs.bytes("in", len(buf))
	s, err := DecodeStep(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (f *FileStore) Surface(ctx context.Context, step int) (int, error) {
	s, err := f.Step(ctx, step)
	if err != nil {
		return 0, err
	}
	return s.Surface, nil
}

func (f *FileStore) GridPoint(ctx context.Context, step, xi int) ([]Entry, error) {
	s, err := f.Step(ctx, step)
	if err != nil {
		return nil, err
	}
	return gridPoint(s, xi)
}

func (f *FileStore) WriteStep(_ context.Context, s *Step) (err error) {
	start := time.Now()
	defer func() { f.obs.done("write", start, err) }()

	buf, err := EncodeStep(s)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(f.dir, stepFile(s.Index)), buf); err != nil {
		return err
	}
	f.cache.forget(s.Index)
	f.obs.bytes("out", len(buf))
	f.obs.logger.Debug("checkpoint step written", logging.Step(s.Index), logging.Count(len(buf)))
	return nil
}

// writeFileAtomic writes to a temporary file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".new"
	file, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}
