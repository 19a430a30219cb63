package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/dcheck/errors"
)

// Follow streams records from the ledger at path to fn: first every record
// already present, then each record as it is appended. It returns nil when
// ctx is done, or the first error from fn or from decoding.
//
// The file does not need to exist yet; its directory does.
func Follow(ctx context.Context, path string, fn func(Record) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	defer watcher.Close()

	// Watch the directory so creation and atomic replacement are seen too
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(path))
	}

	t := &tailer{path: path, fn: fn}
	if err := t.drain(); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := t.drain(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "ledger watcher error")
		}
	}
}

// tailer reads complete lines past the last seen offset
type tailer struct {
	path    string
	fn      func(Record) error
	offset  int64
	lineNo  int
	pending []byte
}

func (t *tailer) drain() error {
	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to open ledger %s", t.path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat ledger")
	}
	if info.Size() < t.offset {
		// Torn tail was truncated by a resuming writer
		t.offset = info.Size()
		t.pending = nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek ledger")
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "failed to read ledger")
	}
	t.offset += int64(len(data))
	t.pending = append(t.pending, data...)

	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			return nil
		}
		raw := t.pending[:i]
		t.pending = t.pending[i+1:]
		t.lineNo++
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return errors.NewIntegrityViolation("ledger line %d: %v", t.lineNo, err)
		}
		if err := t.fn(rec); err != nil {
			return err
		}
	}
}
