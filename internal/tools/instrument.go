package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/fntrace/internal/config"
	"github.com/DeusData/fntrace/internal/instrument"
	"github.com/DeusData/fntrace/internal/pipeline"
)

func (s *Server) handleInstrumentFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	path := getStringArg(args, "path")
	if path == "" {
		return errResult("path is required"), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return errResult(fmt.Sprintf("read file: %v", err)), nil
	}

	in := instrument.New(instrument.Options{Binding: getStringArg(args, "binding")})
	res, err := in.Inject(instrument.File{
		Path:    path,
		RelPath: getStringArg(args, "rel_path"),
		Source:  src,
		Wrapped: getBoolArg(args, "wrapped"),
	})
	if err != nil {
		return errResult(fmt.Sprintf("instrument failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"source":      string(res.Source),
		"functions":   res.Functions,
		"diagnostics": res.Diagnostics,
		"skipped":     res.Skipped,
	}), nil
}

func (s *Server) handleBuildProject(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	root := getStringArg(args, "root")
	if root == "" {
		return errResult("root is required"), nil
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errResult(fmt.Sprintf("invalid path: %v", err)), nil
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return errResult(err.Error()), nil
	}
	outDir := getStringArg(args, "out_dir")
	if outDir == "" {
		outDir = cfg.EffectiveOutDir(absRoot)
	}

	// One build at a time per server.
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	summary, err := pipeline.Build(ctx, pipeline.Options{
		Root:       absRoot,
		OutDir:     outDir,
		Store:      s.store,
		Instrument: cfg.InstrumentOptions(),
		Wrapped:    cfg.EffectiveWrapped(),
		Include:    cfg.Include,
		Exclude:    cfg.Exclude,
		Workers:    cfg.EffectiveWorkers(),
		Force:      getBoolArg(args, "force"),
	})
	if summary == nil {
		return errResult(fmt.Sprintf("build failed: %v", err)), nil
	}

	files := make([]string, 0, len(summary.Instrumented))
	for _, f := range summary.Instrumented {
		files = append(files, f.RelPath)
	}
	result := map[string]any{
		"root":         absRoot,
		"out_dir":      outDir,
		"discovered":   summary.Discovered,
		"instrumented": files,
		"functions":    summary.Functions(),
		"unchanged":    summary.Unchanged,
		"failed":       summary.Failed,
		"elapsed_ms":   summary.Elapsed.Milliseconds(),
	}
	if err != nil {
		result["errors"] = err.Error()
	}
	return jsonResult(result), nil
}

func (s *Server) handleListFunctions(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	fns, err := s.store.ListFunctions(getStringArg(args, "file"))
	if err != nil {
		return errResult(err.Error()), nil
	}

	out := make([]map[string]any, 0, len(fns))
	for _, f := range fns {
		out = append(out, map[string]any{
			"id":           f.FnID,
			"name":         f.Name,
			"file":         f.File,
			"start_line":   f.StartLine,
			"start_column": f.StartColumn,
			"is_async":     f.IsAsync,
		})
	}
	return jsonResult(map[string]any{
		"total":     len(out),
		"functions": out,
	}), nil
}
