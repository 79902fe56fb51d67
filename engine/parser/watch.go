// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parser

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/diamondcore/engine"
)

// DirWatcher reparses every *.filter file under a directory whenever it
// changes, handing each successfully parsed Table to OnUpdate. Parse
// errors are logged as invalid_spec and do not stop the watch: spec
// §4.1's re-entrancy guarantee is what makes it safe to keep watching
// and retry on the next edit rather than crashing the process.
type DirWatcher struct {
	dir      string
	ctx      Context
	OnUpdate func(path string, table *engine.Table)
	logger   *slog.Logger
}

// NewDirWatcher constructs a DirWatcher over dir. Call Run to start
// watching; Run blocks until ctx is cancelled.
func NewDirWatcher(dir string, pctx Context, onUpdate func(string, *engine.Table)) *DirWatcher {
	logger := pctx.logger()
	return &DirWatcher{dir: dir, ctx: pctx, OnUpdate: onUpdate, logger: logger}
}

// Run watches w.dir for filter-spec writes until ctx is cancelled.
func (w *DirWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return engine.Wrap(engine.KindCollaboratorUnavailable, "creating fsnotify watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return engine.Wrap(engine.KindCollaboratorUnavailable, "watching "+w.dir, err)
	}

	w.reloadAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".filter") {
				continue
			}
			w.reload(ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filter spec watcher error", slog.Any("error", err))
		}
	}
}

func (w *DirWatcher) reloadAll() {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.filter"))
	if err != nil {
		w.logger.Warn("listing filter spec directory", slog.String("dir", w.dir), slog.Any("error", err))
		return
	}
	for _, m := range matches {
		w.reload(m)
	}
}

func (w *DirWatcher) reload(path string) {
	table, err := ParseFile(path, w.ctx)
	if err != nil {
		w.logger.Error("invalid_spec on reload, keeping previous table",
			slog.String("path", path), slog.Any("error", err))
		return
	}
	w.logger.Info("filter spec reloaded", slog.String("path", path), slog.Int("filters", table.Len()))
	if w.OnUpdate != nil {
		w.OnUpdate(path, table)
	}
}
