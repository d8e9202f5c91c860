package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/ZehenForever/psreplay-stats/internal/engine"
	"github.com/ZehenForever/psreplay-stats/internal/model"
	"github.com/ZehenForever/psreplay-stats/internal/parse"
	"github.com/ZehenForever/psreplay-stats/internal/source"
	"github.com/ZehenForever/psreplay-stats/internal/store"
	"github.com/ZehenForever/psreplay-stats/internal/tail"
)

type loaded struct {
	replay *source.Replay
	id     string
	label  string
}

func (a *app) load(ctx context.Context, in inputFlags) (loaded, error) {
	if in.file != "" {
		rep, err := source.LoadFile(in.file)
		if err != nil {
			return loaded{}, err
		}
		return loaded{replay: rep, id: replayIDFor(in, rep), label: in.file}, nil
	}

	client := source.NewClient(source.Options{
		UserAgent: a.cfg.Source.UserAgent,
		Timeout:   a.cfg.Source.Timeout,
		Logger:    a.log,
	})
	rep, err := client.Fetch(ctx, in.url)
	if err != nil {
		return loaded{}, err
	}
	return loaded{replay: rep, id: replayIDFor(in, rep), label: in.url}, nil
}

func replayIDFor(in inputFlags, rep *source.Replay) string {
	if rep != nil && rep.ID != "" {
		return rep.ID
	}
	p := in.file
	if in.url != "" {
		p = in.url
	}
	if id, _, ok := parse.ReplayIDFromPath(p); ok {
		return id
	}
	return ""
}

func titleFor(in inputFlags) string {
	if id := replayIDFor(in, nil); id != "" {
		return id
	}
	if in.file != "" {
		return filepath.Base(in.file)
	}
	return in.url
}

// follow folds a growing log file, calling onUpdate with a snapshot at most
// once a second while new lines arrive, and once more at the end.
func (a *app) follow(ctx context.Context, in inputFlags, fromEnd bool, onUpdate func(*model.MatchResult)) (*model.MatchResult, error) {
	fl, err := tail.NewFollower(in.file, tail.Options{
		FromEnd:        fromEnd,
		UntilBattleEnd: true,
		Logger:         a.log,
	})
	if err != nil {
		return nil, err
	}

	e := engine.New(in.options(nil))
	lineCh := make(chan string, 1024)
	errCh := make(chan error, 1)
	go func() {
		defer close(lineCh)
		errCh <- fl.Follow(ctx, func(line string) bool {
			select {
			case lineCh <- line:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	dirty := false
	for {
		select {
		case line, ok := <-lineCh:
			if !ok {
				res := e.Snapshot()
				onUpdate(res)
				return res, <-errCh
			}
			e.ProcessLine(line)
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			onUpdate(e.Snapshot())
			dirty = false
		}
	}
}

func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create history dir")
		}
	}
	return store.Open(path)
}
