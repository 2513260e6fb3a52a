package logstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestFollowEmitsOnlyNewEntries(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(t.TempDir(), WithClock(func() time.Time { return fixed }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Append(ctx, TagServerStart, "old"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []Entry
	done := make(chan error, 1)
	go func() {
		done <- s.Follow(ctx, func(e Entry) {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
		})
	}()

	// The watcher starts asynchronously; keep writing until something arrives.
	deadline := time.After(5 * time.Second)
	for i := 0; ; i++ {
		if err := s.Append(ctx, TagRequest, fmt.Sprintf("new-%d", i)); err != nil {
			t.Fatal(err)
		}
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no entries followed")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, e := range got {
		if e.Payload == "old" {
			t.Error("Follow emitted an entry written before it started")
		}
		if e.Tag != TagRequest || !strings.HasPrefix(e.Payload, "new-") {
			t.Errorf("unexpected entry %q", e.Raw)
		}
	}
}

func TestReadFromKeepsPartialLine(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(t.TempDir(), WithClock(func() time.Time { return fixed }))
	if err := s.Append(context.Background(), TagRequest, "whole"); err != nil {
		t.Fatal(err)
	}

	path := s.Path(fixed)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("2025-06-01T12:00:00.000Z RES par"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var got []Entry
	offset, err := s.readFrom(path, 0, func(e Entry) { got = append(got, e) })
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Payload != "whole" {
		t.Fatalf("got %+v", got)
	}

	info, _ := os.Stat(path)
	if offset >= info.Size() {
		t.Errorf("offset %d consumed the partial line (size %d)", offset, info.Size())
	}

	// Missing files are not an error.
	if off, err := s.readFrom(path+".missing", 7, func(Entry) {}); err != nil || off != 7 {
		t.Errorf("readFrom(missing) = %d, %v", off, err)
	}
}

func TestFollowSurvivesWatcherErrors(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(t.TempDir(), WithClock(func() time.Time { return fixed }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	got := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.followLoop(ctx, events, errs, s.Path(fixed), 0, func(e Entry) { got <- e })
	}()

	errs <- errors.New("event queue overflow")

	if err := s.Append(ctx, TagRequest, "after-error"); err != nil {
		t.Fatal(err)
	}
	events <- fsnotify.Event{Name: s.Path(fixed), Op: fsnotify.Write}

	select {
	case e := <-got:
		if e.Payload != "after-error" {
			t.Errorf("entry = %q", e.Raw)
		}
	case err := <-done:
		t.Fatalf("follow stopped after a watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no entry followed after a watcher error")
	}

	close(errs)
	if err := <-done; err != nil {
		t.Fatalf("followLoop() error = %v", err)
	}
}
