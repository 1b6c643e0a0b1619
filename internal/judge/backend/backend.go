// Package backend runs source code against test cases on an external judge.
//
// Two real implementations exist: RemoteBackend talks to a Judge0-compatible
// API one test case at a time, LocalBackend sends every case to the local
// execution service in one batch. Select picks one at startup.
package backend

import "context"

// Kind names a backend implementation. It is stored with every verdict.
type Kind string

const (
	KindRemote      Kind = "remote"
	KindLocal       Kind = "local"
	KindPassthrough Kind = "passthrough"
)

// Category classifies one executed test case.
type Category string

const (
	CategoryAccepted            Category = "accepted"
	CategoryWrongAnswer         Category = "wrong_answer"
	CategoryTimeLimitExceeded   Category = "time_limit_exceeded"
	CategoryCompilationError    Category = "compilation_error"
	CategoryRuntimeError        Category = "runtime_error"
	CategoryMemoryLimitExceeded Category = "memory_limit_exceeded"
	CategoryUnknown             Category = "unknown"
)

// DiffType tells what kind of failure a DiffInfo describes.
type DiffType string

const (
	DiffContentMismatch DiffType = "content_mismatch"
	DiffRuntime         DiffType = "runtime"
	DiffCompile         DiffType = "compile"
)

// DiffInfo is a structured failure description for one case.
type DiffInfo struct {
	Type            DiffType `json:"type"`
	Message         string   `json:"message,omitempty"`
	ExpectedContext string   `json:"expectedContext,omitempty"`
	ActualContext   string   `json:"actualContext,omitempty"`
}

type TestCase struct {
	Input          string
	ExpectedOutput string
	Hidden         bool
}

type Limits struct {
	TimeLimitMs   int
	MemoryLimitKB int
}

type Request struct {
	SourceCode string
	Language   string
	TestCases  []TestCase
	Limits     Limits
}

// CaseResult is the outcome of one test case. Cases a backend never ran are
// absent from Outcome.Cases.
type CaseResult struct {
	Index           int
	Hidden          bool
	Passed          bool
	Category        Category
	ExecutionTimeMs int
	MemoryKB        int
	Stderr          string
	Message         string
	Diff            *DiffInfo
}

type Outcome struct {
	Kind        Kind
	Cases       []CaseResult
	PassedCount int
	TotalCount  int
}

// Backend executes a submission. Execute reports infrastructure failures as
// runtime_error cases, so a returned error means the request itself was unusable.
type Backend interface {
	Kind() Kind
	Execute(ctx context.Context, req Request) (Outcome, error)
}

// Prober is implemented by backends that can check their own reachability.
type Prober interface {
	Probe(ctx context.Context) error
}

// UnjudgedMessage marks verdicts produced without running any code.
const UnjudgedMessage = "UNJUDGED: passthrough backend accepted the submission without running it"
