// Package tools exposes fntrace over the Model Context Protocol.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/fntrace/internal/store"
)

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp     *mcp.Server
	store   *store.Store
	buildMu sync.Mutex
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(s *store.Store, version string) *Server {
	srv := &Server{
		store: s,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "fntrace",
				Version: version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// addTool registers a handler and logs each call's outcome.
func (s *Server) addTool(tool *mcp.Tool, h mcp.ToolHandler) {
	name := tool.Name
	s.mcp.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := h(ctx, req)
		isErr := err != nil || (res != nil && res.IsError)
		slog.Info("tool.call", "tool", name, "error", isErr, "elapsed", time.Since(start))
		return res, err
	})
}

func (s *Server) registerTools() {
	s.addTool(&mcp.Tool{
		Name:        "instrument_file",
		Description: "Instrument one JavaScript or TypeScript file. Every named, non-generator function with a block body is rewritten so its body runs through the execution wrapper. Returns the rewritten source, the instrumented function descriptors and any diagnostics. Does not write to disk.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Path of the file to instrument"
				},
				"rel_path": {
					"type": "string",
					"description": "Project-relative path used in function ids (default: path)"
				},
				"wrapped": {
					"type": "boolean",
					"description": "The file is enclosed by a host loader function starting on line 1"
				},
				"binding": {
					"type": "string",
					"description": "Identifier the rewritten code calls (default __fntrace__wrap)"
				}
			},
			"required": ["path"]
		}`),
	}, s.handleInstrumentFile)

	s.addTool(&mcp.Tool{
		Name:        "build_project",
		Description: "Instrument every source file of a project into an output directory, mirroring relative paths. Settings come from .fntrace.yaml or .fntrace.toml in the root. Unchanged files are skipped via content hashing unless force is set. Records instrumented functions in the store.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"root": {
					"type": "string",
					"description": "Absolute path of the project root"
				},
				"out_dir": {
					"type": "string",
					"description": "Output directory (default from config, or <root>/.fntrace/out)"
				},
				"force": {
					"type": "boolean",
					"description": "Re-instrument files even when unchanged"
				}
			},
			"required": ["root"]
		}`),
	}, s.handleBuildProject)

	s.addTool(&mcp.Tool{
		Name:        "list_functions",
		Description: "List instrumented function sites recorded by builds, with id, name, file and position.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file": {
					"type": "string",
					"description": "Only list functions of this project-relative file"
				}
			}
		}`),
	}, s.handleListFunctions)

	s.addTool(&mcp.Tool{
		Name:        "query_traces",
		Description: "Query recorded trace events of a run. With stats=true returns per-function aggregates (calls, exceptions, average and max span in milliseconds) ordered by total time.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"run_id": {
					"type": "string",
					"description": "Run to query (default: latest run)"
				},
				"fn_id": {
					"type": "string",
					"description": "Only events of this function id"
				},
				"file": {
					"type": "string",
					"description": "Only events of functions in this file"
				},
				"exceptions_only": {
					"type": "boolean",
					"description": "Only calls that threw or rejected"
				},
				"stats": {
					"type": "boolean",
					"description": "Return per-function aggregates instead of events"
				},
				"limit": {
					"type": "integer",
					"description": "Max results (default 100, max 1000)"
				}
			}
		}`),
	}, s.handleQueryTraces)

	s.addTool(&mcp.Tool{
		Name:        "export_traces",
		Description: "Export the events of a run as OTLP JSON (resourceSpans/scopeSpans/spans) with one span per call. Writes to file_path when given, otherwise returns the document.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"run_id": {
					"type": "string",
					"description": "Run to export (default: latest run)"
				},
				"service_name": {
					"type": "string",
					"description": "service.name resource attribute (default fntrace)"
				},
				"file_path": {
					"type": "string",
					"description": "Write the export to this path"
				}
			}
		}`),
	}, s.handleExportTraces)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	f, ok := args[key].(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

// getBoolArg extracts a boolean argument from parsed args.
func getBoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// resolveRun returns the requested run id, or the latest run's id.
func (s *Server) resolveRun(runID string) (string, error) {
	if runID != "" {
		run, err := s.store.GetRun(runID)
		if err != nil {
			return "", err
		}
		if run == nil {
			return "", fmt.Errorf("run not found: %s", runID)
		}
		return run.ID, nil
	}
	run, err := s.store.LatestRun()
	if err != nil {
		return "", err
	}
	if run == nil {
		return "", fmt.Errorf("no runs recorded")
	}
	return run.ID, nil
}
