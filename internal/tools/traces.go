package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/fntrace/internal/store"
	"github.com/DeusData/fntrace/internal/traces"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

func (s *Server) handleQueryTraces(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	runID, err := s.resolveRun(getStringArg(args, "run_id"))
	if err != nil {
		return errResult(err.Error()), nil
	}

	limit := getIntArg(args, "limit", defaultQueryLimit)
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	if getBoolArg(args, "stats") {
		stats, statErr := s.store.FunctionStats(runID, limit)
		if statErr != nil {
			return errResult(statErr.Error()), nil
		}
		out := make([]map[string]any, 0, len(stats))
		for _, st := range stats {
			out = append(out, map[string]any{
				"id":         st.FnID,
				"name":       st.Name,
				"file":       st.File,
				"calls":      st.Calls,
				"exceptions": st.Exceptions,
				"total_ms":   st.TotalMs,
				"avg_ms":     st.AvgMs,
				"max_ms":     st.MaxMs,
			})
		}
		return jsonResult(map[string]any{"run_id": runID, "functions": out}), nil
	}

	events, err := s.store.Events(runID, store.EventFilter{
		FnID:           getStringArg(args, "fn_id"),
		File:           getStringArg(args, "file"),
		ExceptionsOnly: getBoolArg(args, "exceptions_only"),
		Limit:          limit,
	})
	if err != nil {
		return errResult(err.Error()), nil
	}

	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		m := map[string]any{
			"id":          e.FnID,
			"name":        e.Name,
			"file":        e.File,
			"line":        e.StartLine,
			"column":      e.StartColumn,
			"is_async":    e.IsAsync,
			"exception":   e.Exception,
			"span_ms":     e.SpanMs,
			"recorded_at": e.RecordedAt,
		}
		if len(e.Extra) > 0 {
			m["extra"] = e.Extra
		}
		out = append(out, m)
	}
	return jsonResult(map[string]any{
		"run_id": runID,
		"total":  len(out),
		"events": out,
	}), nil
}

func (s *Server) handleExportTraces(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	runID, err := s.resolveRun(getStringArg(args, "run_id"))
	if err != nil {
		return errResult(err.Error()), nil
	}
	service := getStringArg(args, "service_name")
	if service == "" {
		service = "fntrace"
	}

	var buf bytes.Buffer
	result, err := traces.Export(s.store, runID, service, &buf)
	if err != nil {
		return errResult(fmt.Sprintf("export failed: %v", err)), nil
	}

	filePath := getStringArg(args, "file_path")
	if filePath == "" {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: buf.String()}},
		}, nil
	}
	if err := os.WriteFile(filePath, buf.Bytes(), 0o600); err != nil {
		return errResult(fmt.Sprintf("write export: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"run_id":    runID,
		"file_path": filePath,
		"spans":     result.Spans,
	}), nil
}
