package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(gf *globalFlags, cf *convertFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch dir [outdir]",
		Short: "Convert workbooks in dir now and again whenever they change",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, gf)
			if err != nil {
				return err
			}
			defer env.logger.Sync()
			opts, err := cf.options(cmd, env.cfg)
			if err != nil {
				return err
			}
			dir := args[0]
			outDir := dir
			if len(args) > 1 {
				outDir = args[1]
			}
			if err := ensureDir(outDir); err != nil {
				return err
			}
			w := &dirWatcher{
				dir:        dir,
				extensions: env.cfg.Watch.Extensions,
				debounce:   time.Duration(env.cfg.Watch.DebounceMS) * time.Millisecond,
				logger:     env.logger,
				convert: func(path string) error {
					out := filepath.Join(outDir, changeExt(filepath.Base(path), ".csv"))
					return convertFile(env, path, nil, out, opts, cmd.OutOrStdout())
				},
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return w.run(ctx)
		},
	}
}

// dirWatcher converts workbooks in one directory when they are created or
// written. Bursts of events for a file collapse into one conversion.
type dirWatcher struct {
	dir        string
	extensions []string
	debounce   time.Duration
	convert    func(path string) error
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// run converts existing workbooks, then watches until ctx is done.
func (w *dirWatcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.pending = make(map[string]*time.Timer)
	w.syncExisting()
	w.logger.Info("watching", zap.String("dir", w.dir), zap.Strings("extensions", w.extensions))

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				w.stop()
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				w.stop()
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *dirWatcher) syncExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("listing watched directory", zap.String("dir", w.dir), zap.Error(err))
		return
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if !e.IsDir() && w.matches(path) {
			w.convertOne(path)
		}
	}
}

func (w *dirWatcher) handle(ev fsnotify.Event) {
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	if !w.matches(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
	}
}

func (w *dirWatcher) matches(path string) bool {
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *dirWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.convertOne(path)
	})
	w.pending[path] = t
}

func (w *dirWatcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

// stop cancels pending conversions and waits for running ones.
func (w *dirWatcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *dirWatcher) convertOne(path string) {
	if !isWorkbook(path) {
		w.logger.Debug("skipping non-workbook", zap.String("path", path))
		return
	}
	if err := w.convert(path); err != nil {
		w.logger.Warn("conversion failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("converted", zap.String("path", path))
}
