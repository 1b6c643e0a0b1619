package backend

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"campusjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// LocalConfig configures the local execution service.
type LocalConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	Timeout   time.Duration `yaml:"timeout"`
	ProbePath string        `yaml:"probePath"`
}

// LocalBackend sends every case to the local execution service in one call.
type LocalBackend struct {
	client    *jsonClient
	probePath string
}

type localTestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type localRequest struct {
	Code      string          `json:"code"`
	Language  string          `json:"language"`
	TestCases []localTestCase `json:"testCases"`
}

type localResult struct {
	Passed        bool      `json:"passed"`
	Error         string    `json:"error,omitempty"`
	DiffInfo      *DiffInfo `json:"diffInfo,omitempty"`
	ExecutionTime float64   `json:"executionTime"`
}

type localResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    *struct {
		PassedCount int           `json:"passedCount"`
		TotalCount  int           `json:"totalCount"`
		Results     []localResult `json:"results"`
	} `json:"data"`
}

func NewLocalBackend(cfg LocalConfig) (*LocalBackend, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("local execution service base url is required")
	}
	probe := cfg.ProbePath
	if probe == "" {
		probe = "/health"
	}
	return &LocalBackend{
		client:    newJSONClient(cfg.BaseURL, cfg.Timeout, nil),
		probePath: probe,
	}, nil
}

func (b *LocalBackend) Kind() Kind { return KindLocal }

func (b *LocalBackend) Probe(ctx context.Context) error {
	return b.client.do(ctx, http.MethodGet, b.probePath, nil, nil, nil)
}

// Execute never returns a partial outcome: a failed call marks every case as a runtime error.
func (b *LocalBackend) Execute(ctx context.Context, req Request) (Outcome, error) {
	lang, ok := LookupLanguage(req.Language)
	if !ok {
		return Outcome{}, fmt.Errorf("language %q is not supported", req.Language)
	}

	body := localRequest{
		Code:      req.SourceCode,
		Language:  lang.LocalName,
		TestCases: make([]localTestCase, 0, len(req.TestCases)),
	}
	for _, tc := range req.TestCases {
		body.TestCases = append(body.TestCases, localTestCase{Input: tc.Input, Output: tc.ExpectedOutput})
	}

	var resp localResponse
	if err := b.client.do(ctx, http.MethodPost, "/execute-tests", nil, body, &resp); err != nil {
		logger.Warn(ctx, "local execution service call failed", zap.Error(err))
		return failAll(req.TestCases, "local execution service error: "+err.Error()), nil
	}
	if !resp.Success || resp.Data == nil {
		reason := firstNonEmpty(resp.Error, resp.Message, "request was not successful")
		return failAll(req.TestCases, "local execution service error: "+reason), nil
	}
	if len(resp.Data.Results) != len(req.TestCases) {
		return failAll(req.TestCases, fmt.Sprintf(
			"local execution service error: expected %d results, got %d",
			len(req.TestCases), len(resp.Data.Results))), nil
	}

	out := Outcome{Kind: KindLocal, TotalCount: len(req.TestCases)}
	for i, r := range resp.Data.Results {
		result := CaseResult{
			Index:           i,
			Hidden:          req.TestCases[i].Hidden,
			Passed:          r.Passed,
			ExecutionTimeMs: int(math.Round(r.ExecutionTime)),
			Message:         r.Error,
			Diff:            r.DiffInfo,
		}
		result.Category = localCategory(r)
		if result.Passed {
			out.PassedCount++
		}
		out.Cases = append(out.Cases, result)
	}
	return out, nil
}

func localCategory(r localResult) Category {
	if r.Passed {
		return CategoryAccepted
	}
	if r.DiffInfo != nil {
		switch r.DiffInfo.Type {
		case DiffCompile:
			return CategoryCompilationError
		case DiffRuntime:
			return CategoryRuntimeError
		case DiffContentMismatch:
			return CategoryWrongAnswer
		}
	}
	if strings.TrimSpace(r.Error) != "" {
		return CategoryRuntimeError
	}
	return CategoryWrongAnswer
}

func failAll(cases []TestCase, msg string) Outcome {
	out := Outcome{Kind: KindLocal, TotalCount: len(cases)}
	for i, tc := range cases {
		out.Cases = append(out.Cases, CaseResult{
			Index:    i,
			Hidden:   tc.Hidden,
			Category: CategoryRuntimeError,
			Message:  msg,
			Diff:     &DiffInfo{Type: DiffRuntime, Message: msg},
		})
	}
	return out
}
