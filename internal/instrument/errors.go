package instrument

import "errors"

var (
	// ErrSyntax means the input did not parse cleanly. No output is produced.
	ErrSyntax = errors.New("instrument: syntax error")
	// ErrSourceMap means a referenced source map could not be read or decoded.
	// Positions cannot be trusted, so the whole file is rejected.
	ErrSourceMap = errors.New("instrument: source map")
)

// DiagnosticKind classifies non-fatal findings.
type DiagnosticKind string

// MissingIdentifier marks a declaration form that carries no name.
const MissingIdentifier DiagnosticKind = "missing_identifier"

// Diagnostic is a structural anomaly that left one node uninstrumented.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
	Line    int            `json:"line"`
	Column  int            `json:"column"`
}
