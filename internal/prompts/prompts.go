// Package prompts serves the system prompt from a file and reloads it
// when the file changes. A reload takes effect on the next turn; in-flight
// turns keep the prompt they started with.
package prompts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSystemPrompt is used when no prompt file is configured.
const DefaultSystemPrompt = `You are a travel concierge. You help with flights, weather, local
time, and scheduled reminders. Use the available tools when they apply;
some tools require user approval before they run. Be concise.`

const defaultDebounce = 250 * time.Millisecond

// Prompt is a file-backed system prompt with hot reload.
type Prompt struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.RWMutex
	text string

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New loads the prompt file. An empty path serves DefaultSystemPrompt and
// never watches anything.
func New(path string, logger *slog.Logger) (*Prompt, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Prompt{
		path:     path,
		logger:   logger.With("component", "prompts"),
		debounce: defaultDebounce,
		text:     DefaultSystemPrompt,
	}
	if path != "" {
		if err := p.reload(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Text returns the current prompt.
func (p *Prompt) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

func (p *Prompt) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		text = DefaultSystemPrompt
	}

	p.mu.Lock()
	changed := text != p.text
	p.text = text
	p.mu.Unlock()

	if changed {
		p.logger.Info("system prompt reloaded", "path", p.path, "bytes", len(text))
	}
	return nil
}

// Watch starts watching the prompt file for changes. Calling Watch twice,
// or on a prompt with no file, is a no-op.
func (p *Prompt) Watch(ctx context.Context) error {
	if p.path == "" {
		return nil
	}

	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	if p.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors typically replace the file, which
	// drops a watch installed on the file itself.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.watcher = watcher
	p.cancel = cancel

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Close stops the watcher, if any.
func (p *Prompt) Close() error {
	p.watchMu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	watcher := p.watcher
	p.watcher = nil
	p.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	p.wg.Wait()
	return nil
}

func (p *Prompt) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()

	target, err := filepath.Abs(p.path)
	if err != nil {
		target = p.path
	}

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(p.debounce, func() {
			if err := p.reload(); err != nil {
				p.logger.Warn("prompt reload failed", "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				name = event.Name
			}
			if name != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("prompt watch error", "error", err)
		}
	}
}
