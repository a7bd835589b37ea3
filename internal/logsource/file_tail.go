package logsource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// FileTailSource follows a file like tail -F. On each idle poll it checks
// whether the path now names a different file (rotation) or a shorter one
// (truncation) and reopens or rewinds accordingly. Filesystem notifications
// wake it early; the poll interval is the fallback.
type FileTailSource struct {
	path      string
	name      string
	fromStart bool
	poll      time.Duration
	logger    *slog.Logger
}

// NewFileTailSource creates a tailer for path.
func NewFileTailSource(path, name string, fromStart bool, poll time.Duration, logger *slog.Logger) *FileTailSource {
	return &FileTailSource{
		path:      filepath.Clean(path),
		name:      name,
		fromStart: fromStart,
		poll:      poll,
		logger:    logger.With("component", "logsource", "source", name, "path", path),
	}
}

func (t *FileTailSource) Name() string { return t.name }

type tailState struct {
	f       *os.File
	r       *bufio.Reader
	offset  int64
	partial []byte
}

func (st *tailState) reset(f *os.File, offset int64) {
	st.f = f
	st.offset = offset
	st.partial = st.partial[:0]
	if st.r == nil {
		st.r = bufio.NewReader(f)
	} else {
		st.r.Reset(f)
	}
}

func (t *FileTailSource) Run(q *queue.Queue, sig shutdown.Signal) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	var offset int64
	if !t.fromStart {
		if offset, err = f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return fmt.Errorf("seek %s: %w", t.path, err)
		}
	}
	st := &tailState{}
	st.reset(f, offset)
	defer func() { st.f.Close() }()

	events, errs, closeWatcher := t.watch()
	defer closeWatcher()

	for {
		chunk, err := st.r.ReadBytes('\n')
		st.offset += int64(len(chunk))
		st.partial = append(st.partial, chunk...)

		if err == nil {
			line := string(st.partial)
			st.partial = st.partial[:0]
			if !t.emit(q, sig, line) {
				return nil
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("read %s: %w", t.path, err)
		}

		reopened, err := t.checkRotation(q, sig, st)
		if err != nil {
			return err
		}
		if reopened {
			continue
		}
		if !t.idle(q, sig, events, errs) {
			return nil
		}
	}
}

func (t *FileTailSource) emit(q *queue.Queue, sig shutdown.Signal, raw string) bool {
	line, ok := cleanLine(raw)
	if !ok {
		return true
	}
	return q.Send(sig.Done(), model.NewEvent(t.name, line)) == nil
}

// checkRotation compares the open handle with what the path names now.
// It reports whether reading should resume immediately.
func (t *FileTailSource) checkRotation(q *queue.Queue, sig shutdown.Signal, st *tailState) (bool, error) {
	onDisk, err := os.Stat(t.path)
	if err != nil {
		// Rotated away and not recreated yet; keep the old handle.
		return false, nil
	}
	open, err := st.f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", t.path, err)
	}

	if !os.SameFile(onDisk, open) {
		if len(st.partial) > 0 && !t.emit(q, sig, string(st.partial)) {
			return false, nil
		}
		nf, err := os.Open(t.path)
		if err != nil {
			t.logger.Warn("reopen after rotation failed", "error", err)
			return false, nil
		}
		st.f.Close()
		st.reset(nf, 0)
		t.logger.Info("file rotated, reopened")
		return true, nil
	}

	if onDisk.Size() < st.offset {
		if _, err := st.f.Seek(0, io.SeekStart); err != nil {
			return false, fmt.Errorf("seek %s: %w", t.path, err)
		}
		st.reset(st.f, 0)
		t.logger.Info("file truncated, reading from start")
		return true, nil
	}
	return false, nil
}

// watch subscribes to changes in the file's directory. Watching the
// directory rather than the file keeps working across rename and recreate.
// On failure the tailer relies on polling alone.
func (t *FileTailSource) watch() (<-chan fsnotify.Event, <-chan error, func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Debug("file notifications unavailable, polling only", "error", err)
		return nil, nil, func() {}
	}
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		w.Close()
		t.logger.Debug("file notifications unavailable, polling only", "error", err)
		return nil, nil, func() {}
	}
	return w.Events, w.Errors, func() { w.Close() }
}

// idle waits for the poll interval or a relevant notification. It returns
// false when the source should stop.
func (t *FileTailSource) idle(q *queue.Queue, sig shutdown.Signal, events <-chan fsnotify.Event, errs <-chan error) bool {
	timer := time.NewTimer(t.poll)
	defer timer.Stop()
	for {
		select {
		case <-sig.Done():
			return false
		case <-q.Gone():
			return false
		case <-timer.C:
			return true
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == t.path {
				return true
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.logger.Debug("file notification error", "error", err)
		}
	}
}
