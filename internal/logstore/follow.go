package logstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Follow calls fn for every entry appended to the current day file after
// Follow starts, until ctx is done. When a later day file appears it
// switches to that file.
func (s *Store) Follow(ctx context.Context, fn func(Entry)) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory, not the file, so creation and day rollover are seen.
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	path := s.Path(s.now())
	offset, err := fileSize(path)
	if err != nil {
		return err
	}
	return s.followLoop(ctx, w.Events, w.Errors, path, offset, fn)
}

// followLoop consumes watcher events until ctx is done or the watcher
// closes. Watcher errors are logged and do not end the follow.
func (s *Store) followLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, path string, offset int64, fn func(Entry)) error {
	var err error
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".log") {
				continue
			}

			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				// A newer day file replaces the one being followed.
				if ev.Op&fsnotify.Create != 0 && filepath.Base(ev.Name) > filepath.Base(path) {
					offset, err = s.readFrom(path, offset, fn)
					if err != nil {
						return err
					}
					path, offset = ev.Name, 0
				} else {
					continue
				}
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				offset, err = s.readFrom(path, offset, fn)
				if err != nil {
					return err
				}
			}

		case werr, ok := <-errs:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "log dir watcher error",
				slog.String("dir", s.dir),
				slog.String("error", werr.Error()),
			)
		}
	}
}

// readFrom emits every complete line after offset and returns the offset
// just past the last newline consumed.
func (s *Store) readFrom(path string, offset int64, fn func(Entry)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return offset, fmt.Errorf("read log file: %w", err)
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return offset, nil
	}
	for _, line := range strings.Split(string(data[:end]), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			fn(ParseEntry(line))
		}
	}
	return offset + int64(end) + 1, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat log file: %w", err)
	}
	return info.Size(), nil
}
