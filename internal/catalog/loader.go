// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/flomentum/vitalscore/pkg/logging"
)

// LoadFile reads and parses a catalog YAML file without installing a
// watcher. Used for one-shot loads (tests, CLI tools).
func LoadFile(path string) (CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CatalogFile{}, fmt.Errorf("read catalog file: %w", err)
	}
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return CatalogFile{}, fmt.Errorf("parse catalog file: %w", err)
	}
	return file, nil
}

// Watcher keeps a Catalog's contents in sync with an on-disk YAML file,
// reloading atomically whenever the file changes: load once, then make it
// atomically swappable so every subsequent read sees a consistent view.
type Watcher struct {
	path   string
	cat    *Catalog
	logger *logging.Logger
	fsw    *fsnotify.Watcher
	done   chan struct{}
}

// NewWatcher loads path into cat once, then starts watching it for writes.
// Call Close to stop watching.
func NewWatcher(path string, cat *Catalog, logger *logging.Logger) (*Watcher, error) {
	file, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cat.Reload(file)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch catalog file: %w", err)
	}

	w := &Watcher{path: path, cat: cat, logger: logger, fsw: fsw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			file, err := LoadFile(w.path)
			if err != nil {
				w.logger.Error("catalog reload failed, keeping previous snapshot", "path", w.path, "error", err.Error())
				continue
			}
			w.cat.Reload(file)
			w.logger.Info("catalog reloaded", "path", w.path, "biomarkers", len(file.Biomarkers))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("catalog watcher error", "error", err.Error())
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
