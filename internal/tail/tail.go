// Package tail follows a battle log file that is still being written, such
// as a log saved by a client while the battle is in progress.
package tail

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ZehenForever/psreplay-stats/internal/logging"
)

type Options struct {
	// FromEnd skips whatever the file already holds.
	FromEnd      bool
	PollInterval time.Duration
	// UntilBattleEnd returns once a |win| or |tie| record has been delivered.
	UntilBattleEnd bool
	Logger         log.FieldLogger
}

type Follower struct {
	path string
	opts Options

	offset  int64
	pending []byte
}

func NewFollower(path string, opts Options) (*Follower, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("tail: empty path")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Follower{path: path, opts: opts}, nil
}

// Follow calls onLine for every complete, non-empty line until ctx is done,
// the battle ends (with UntilBattleEnd) or onLine returns false. A trailing
// partial line is held back until its newline arrives. If the file shrinks it
// is read again from the start.
func (f *Follower) Follow(ctx context.Context, onLine func(line string) bool) error {
	if onLine == nil {
		return errors.New("tail: onLine is nil")
	}

	file, err := os.Open(f.path)
	if err != nil {
		return errors.Wrap(err, "tail: open")
	}
	defer file.Close()

	whence := io.SeekStart
	if f.opts.FromEnd {
		whence = io.SeekEnd
	}
	if f.offset, err = file.Seek(0, whence); err != nil {
		return errors.Wrap(err, "tail: seek")
	}
	f.pending = f.pending[:0]

	chunk := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}

		fi, err := file.Stat()
		if err != nil {
			return errors.Wrap(err, "tail: stat")
		}
		if fi.Size() < f.offset {
			f.opts.Logger.WithField("path", f.path).Debug("log truncated, rereading")
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return errors.Wrap(err, "tail: seek")
			}
			f.offset = 0
			f.pending = f.pending[:0]
		}

		n, rerr := file.Read(chunk)
		if n > 0 {
			f.offset += int64(n)
			f.pending = append(f.pending, chunk[:n]...)
			if done := f.drain(onLine); done {
				return nil
			}
		}
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return errors.Wrap(rerr, "tail: read")
		}
		if n == 0 || rerr != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(f.opts.PollInterval):
			}
		}
	}
}

// drain delivers every complete line in pending and reports whether following
// should stop.
func (f *Follower) drain(onLine func(string) bool) bool {
	for {
		idx := bytes.IndexByte(f.pending, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimSuffix(f.pending[:idx], []byte{'\r'}))
		f.pending = f.pending[idx+1:]
		if line == "" {
			continue
		}
		if !onLine(line) {
			return true
		}
		if f.opts.UntilBattleEnd && isBattleEnd(line) {
			return true
		}
	}
	// don't pin the read buffer behind a short remainder
	f.pending = append([]byte(nil), f.pending...)
	return false
}

func isBattleEnd(line string) bool {
	return strings.HasPrefix(line, "|win|") || line == "|tie" || strings.HasPrefix(line, "|tie|")
}
