// Package pipeline instruments a whole project tree into an output directory.
package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/fntrace/internal/discover"
	"github.com/DeusData/fntrace/internal/instrument"
	"github.com/DeusData/fntrace/internal/store"
)

// ErrOutDirIsRoot is returned when the output directory would overwrite the
// sources.
var ErrOutDirIsRoot = errors.New("output directory must differ from the project root")

// Options configure a build.
type Options struct {
	Root   string
	OutDir string
	// Store records instrumented functions and file hashes. Optional; without
	// it every build is a full build.
	Store *store.Store
	// Instrument configures the injector shared by all workers.
	Instrument instrument.Options
	// Wrapped marks every file as enclosed by a host loader function.
	Wrapped bool
	Include []string
	Exclude []string
	Workers int
	Force   bool
}

// FileResult is the outcome for one instrumented file.
type FileResult struct {
	RelPath     string
	OutPath     string
	Functions   int
	Skipped     int
	Diagnostics []instrument.Diagnostic
}

// Summary reports a build.
type Summary struct {
	Discovered   int
	Instrumented []FileResult
	Unchanged    int
	Failed       int
	Elapsed      time.Duration
}

// Functions returns the total number of instrumented functions.
func (s *Summary) Functions() int {
	n := 0
	for _, f := range s.Instrumented {
		n += f.Functions
	}
	return n
}

type pendingFile struct {
	info discover.FileInfo
	hash string
}

// Build discovers the project's sources, instruments the changed ones in
// parallel and writes them under OutDir mirroring their relative paths.
// Per-file failures do not stop the build; they are joined into the
// returned error alongside a complete Summary.
func Build(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	root, outDir, err := resolveDirs(opts.Root, opts.OutDir)
	if err != nil {
		return nil, err
	}
	slog.Info("pipeline.start", "root", root, "out", outDir)

	files, err := discover.Discover(ctx, root, &discover.Options{
		Include:  opts.Include,
		Exclude:  opts.Exclude,
		SkipDirs: []string{outDir},
	})
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	slog.Info("pipeline.discovered", "files", len(files))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	summary := &Summary{Discovered: len(files)}
	injector := instrument.New(opts.Instrument)
	key := settingsKey(injector.Binding(), opts.Wrapped)
	changed, unchanged := classifyFiles(root, outDir, files, key, opts, workers)
	summary.Unchanged = unchanged
	if len(changed) == 0 {
		slog.Info("pipeline.noop", "reason", "no_changes")
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	results := make([]*FileResult, len(changed))
	errs := make([]error, len(changed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, pf := range changed {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, fileErr := instrumentFile(injector, root, outDir, pf, opts)
			if fileErr != nil {
				slog.Warn("pipeline.file", "path", pf.info.RelPath, "err", fileErr)
				errs[i] = fmt.Errorf("%s: %w", pf.info.RelPath, fileErr)
				if staleErr := removeStale(opts.Store, root, outDir, pf.info.RelPath); staleErr != nil {
					slog.Warn("pipeline.stale", "path", pf.info.RelPath, "err", staleErr)
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if r != nil {
			summary.Instrumented = append(summary.Instrumented, *r)
		} else {
			summary.Failed++
		}
	}
	summary.Elapsed = time.Since(start)
	slog.Info("pipeline.done",
		"instrumented", len(summary.Instrumented),
		"functions", summary.Functions(),
		"unchanged", summary.Unchanged,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed)
	return summary, errors.Join(errs...)
}

func resolveDirs(root, outDir string) (string, string, error) {
	if root == "" {
		return "", "", errors.New("root is required")
	}
	if outDir == "" {
		return "", "", errors.New("output directory is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", err
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return "", "", err
	}
	if absRoot == absOut {
		return "", "", ErrOutDirIsRoot
	}
	return absRoot, absOut, nil
}

// storeMu serializes store writes from build workers.
var storeMu sync.Mutex

func instrumentFile(in *instrument.Injector, root, outDir string, pf pendingFile, opts Options) (*FileResult, error) {
	src, err := os.ReadFile(pf.info.Path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	res, err := in.Inject(instrument.File{
		Path:     pf.info.Path,
		RelPath:  pf.info.RelPath,
		Source:   src,
		Wrapped:  opts.Wrapped,
		Language: pf.info.Language,
	})
	if err != nil {
		return nil, err
	}

	outPath := filepath.Join(outDir, filepath.FromSlash(pf.info.RelPath))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(outPath, res.Source, 0o600); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	if opts.Store != nil {
		if err := recordFile(opts.Store, root, pf, res); err != nil {
			return nil, err
		}
	}

	return &FileResult{
		RelPath:     pf.info.RelPath,
		OutPath:     outPath,
		Functions:   len(res.Functions),
		Skipped:     res.Skipped,
		Diagnostics: res.Diagnostics,
	}, nil
}

func recordFile(s *store.Store, root string, pf pendingFile, res *instrument.Result) error {
	fns := make([]*store.Function, 0, len(res.Functions))
	for _, d := range res.Functions {
		fns = append(fns, &store.Function{
			FnID:        d.ID,
			Name:        d.Name,
			File:        d.File,
			StartLine:   d.StartLine,
			StartColumn: d.StartColumn,
			IsAsync:     d.IsAsync,
		})
	}

	storeMu.Lock()
	defer storeMu.Unlock()
	return s.WithTransaction(func(tx *store.Store) error {
		if err := tx.DeleteFunctionsByFile(pf.info.RelPath); err != nil {
			return fmt.Errorf("delete functions: %w", err)
		}
		if err := tx.UpsertFunctions(fns); err != nil {
			return err
		}
		if pf.hash != "" {
			if err := tx.UpsertFileHash(root, pf.info.RelPath, pf.hash); err != nil {
				return fmt.Errorf("upsert hash: %w", err)
			}
		}
		return nil
	})
}

// classifyFiles hashes every file's inputs in parallel and drops those whose
// hash matches the stored one and whose output still exists.
func classifyFiles(root, outDir string, files []discover.FileInfo, key string, opts Options, workers int) (changed []pendingFile, unchanged int) {
	hashes := make([]string, len(files))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			h, err := inputHash(f.Path, key, opts.Instrument.ReadFile)
			if err != nil {
				slog.Debug("pipeline.hash", "path", f.RelPath, "err", err)
			}
			hashes[i] = h
			return nil
		})
	}
	_ = g.Wait()

	var stored map[string]string
	if opts.Store != nil && !opts.Force {
		var err error
		stored, err = opts.Store.GetFileHashes(root)
		if err != nil {
			slog.Warn("pipeline.hashes", "err", err)
		}
	}

	for i, f := range files {
		h := hashes[i]
		if h != "" && stored[f.RelPath] == h && outputExists(outDir, f.RelPath) {
			unchanged++
			continue
		}
		changed = append(changed, pendingFile{info: f, hash: h})
	}
	slog.Info("pipeline.classify", "changed", len(changed), "unchanged", unchanged)
	return changed, unchanged
}

// removeStale drops the output and recorded functions of a file that no
// longer instruments, so earlier results are not served for it.
func removeStale(s *store.Store, root, outDir, relPath string) error {
	err := os.Remove(filepath.Join(outDir, filepath.FromSlash(relPath)))
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	if s == nil {
		return err
	}

	storeMu.Lock()
	defer storeMu.Unlock()
	return errors.Join(err, s.WithTransaction(func(tx *store.Store) error {
		if delErr := tx.DeleteFunctionsByFile(relPath); delErr != nil {
			return delErr
		}
		return tx.DeleteFileHash(root, relPath)
	}))
}

// settingsKey covers the build options that change rewritten output.
func settingsKey(binding string, wrapped bool) string {
	return fmt.Sprintf("binding=%s\x00wrapped=%t\x00", binding, wrapped)
}

func outputExists(outDir, relPath string) bool {
	_, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(relPath)))
	return err == nil
}

// inputHash hashes a source file together with the build settings and the
// source map it references, if any.
func inputHash(path, key string, readFile func(string) ([]byte, error)) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := xxh3.New()
	_, _ = h.Write(src)
	_, _ = io.WriteString(h, key)
	smap, err := instrument.ReadSourceMap(path, src, readFile)
	if err != nil {
		return "", err
	}
	_, _ = h.Write(smap)
	return hex.EncodeToString(h.Sum(nil)), nil
}
