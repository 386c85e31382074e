// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileChangeDebounce coalesces the burst of write events most editors and
// config-management tools generate for a single logical save.
const fileChangeDebounce = 100 * time.Millisecond

// fileRewatchInterval/fileRewatchAttempts bound how long FileProvider keeps
// trying to re-establish a watch after the config file's directory entry
// disappears (e.g. an editor that replaces the file via rename).
const (
	fileRewatchInterval = 500 * time.Millisecond
	fileRewatchAttempts = 10
)

// FileProvider reads configuration from a local file and, when Watch is
// called, pushes a notification whenever that file is rewritten.
type FileProvider struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewFileProvider returns a FileProvider for the file at path.
func NewFileProvider(path string) (*FileProvider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path %s: %w", path, err)
	}
	return &FileProvider{path: absPath}, nil
}

// Type returns TypeFile.
func (p *FileProvider) Type() Type {
	return TypeFile
}

// Load reads the file in full.
func (p *FileProvider) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", p.path, err)
	}
	return data, nil
}

// Watch starts an fsnotify watch on the file's directory (fsnotify cannot
// watch a single file reliably across editors that save via rename) and
// returns a channel that receives a value, debounced, each time the file is
// written or recreated. The channel closes when ctx is done or the
// provider is closed.
func (p *FileProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("config: provider is closed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	p.watcher = watcher

	dir := filepath.Dir(p.path)
	base := filepath.Base(p.path)

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch directory %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	go p.watchLoop(ctx, watcher, base, ch)

	slog.Info("config: watching file for changes", "path", p.path)
	return ch, nil
}

func (p *FileProvider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, base string, ch chan<- struct{}) {
	defer close(ch)
	defer watcher.Close()

	var debounce *time.Timer
	notify := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(fileChangeDebounce, func() {
			select {
			case ch <- struct{}{}:
				slog.Debug("config: file changed", "path", p.path)
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				notify()
			case event.Op&fsnotify.Remove != 0:
				slog.Warn("config: watched file was removed", "path", p.path)
				go p.rewatch(ctx, watcher, base, ch)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config: file watcher error", "error", err)
		}
	}
}

// rewatch retries adding the watch for up to fileRewatchAttempts *
// fileRewatchInterval, covering editors that delete-then-recreate a file on
// save rather than writing it in place.
func (p *FileProvider) rewatch(ctx context.Context, watcher *fsnotify.Watcher, base string, ch chan<- struct{}) {
	ticker := time.NewTicker(fileRewatchInterval)
	defer ticker.Stop()

	dir := filepath.Dir(p.path)
	for i := 0; i < fileRewatchAttempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(p.path); err != nil {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				continue
			}
			slog.Info("config: re-established watch on file", "path", p.path)
			select {
			case ch <- struct{}{}:
			default:
			}
			return
		}
	}
	slog.Warn("config: gave up re-establishing watch on file", "path", p.path)
}

// Close stops the watch, if any, and releases its resources.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	p.watcher = nil
	return err
}

var _ Provider = (*FileProvider)(nil)
