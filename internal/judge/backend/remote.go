package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campusjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// RemoteConfig configures a Judge0-compatible API.
type RemoteConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	APIKey    string        `yaml:"apiKey"`
	APIHost   string        `yaml:"apiHost"`
	Timeout   time.Duration `yaml:"timeout"`
	ProbePath string        `yaml:"probePath"`
}

// Judge0 status ids.
const (
	judge0Accepted          = 3
	judge0WrongAnswer       = 4
	judge0TimeLimitExceeded = 5
	judge0CompilationError  = 6
	judge0RuntimeFirst      = 7
	judge0RuntimeLast       = 12
	judge0MemoryLimit       = 13
)

// RemoteBackend submits each test case to the remote judge and waits for the result.
type RemoteBackend struct {
	client    *jsonClient
	probePath string
}

type judge0Request struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expected_output"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit    int     `json:"memory_limit,omitempty"`
}

type judge0Response struct {
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Time          flexSeconds `json:"time"`
	Memory        int         `json:"memory"`
	Stdout        string      `json:"stdout"`
	Stderr        string      `json:"stderr"`
	CompileOutput string      `json:"compile_output"`
	Message       string      `json:"message"`
}

// flexSeconds accepts "0.012", 0.012 or null.
type flexSeconds float64

func (f *flexSeconds) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*f = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid time %q: %w", raw, err)
	}
	*f = flexSeconds(v)
	return nil
}

func (f flexSeconds) Millis() int {
	return int(math.Round(float64(f) * 1000))
}

func NewRemoteBackend(cfg RemoteConfig) (*RemoteBackend, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("remote judge base url is required")
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-Auth-Token"] = cfg.APIKey
		if cfg.APIHost != "" {
			headers["X-RapidAPI-Key"] = cfg.APIKey
			headers["X-RapidAPI-Host"] = cfg.APIHost
		}
	}
	probe := cfg.ProbePath
	if probe == "" {
		probe = "/about"
	}
	return &RemoteBackend{
		client:    newJSONClient(cfg.BaseURL, cfg.Timeout, headers),
		probePath: probe,
	}, nil
}

func (b *RemoteBackend) Kind() Kind { return KindRemote }

// Probe checks that the remote judge answers.
func (b *RemoteBackend) Probe(ctx context.Context) error {
	return b.client.do(ctx, http.MethodGet, b.probePath, nil, nil, nil)
}

// Execute runs cases in order and stops after the first compilation error.
func (b *RemoteBackend) Execute(ctx context.Context, req Request) (Outcome, error) {
	lang, ok := LookupLanguage(req.Language)
	if !ok {
		return Outcome{}, fmt.Errorf("language %q is not supported", req.Language)
	}

	out := Outcome{Kind: KindRemote, TotalCount: len(req.TestCases)}
	query := url.Values{"base64_encoded": {"false"}, "wait": {"true"}}
	for i, tc := range req.TestCases {
		body := judge0Request{
			SourceCode:     req.SourceCode,
			LanguageID:     lang.Judge0ID,
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			CPUTimeLimit:   float64(req.Limits.TimeLimitMs) / 1000,
			MemoryLimit:    req.Limits.MemoryLimitKB,
		}
		var resp judge0Response
		if err := b.client.do(ctx, http.MethodPost, "/submissions", query, body, &resp); err != nil {
			logger.Warn(ctx, "remote judge call failed", zap.Int("case", i), zap.Error(err))
			out.Cases = append(out.Cases, CaseResult{
				Index:    i,
				Hidden:   tc.Hidden,
				Category: CategoryRuntimeError,
				Message:  "remote judge error: " + err.Error(),
			})
			continue
		}

		result := mapJudge0Result(i, tc, resp)
		if result.Passed {
			out.PassedCount++
		}
		out.Cases = append(out.Cases, result)
		if result.Category == CategoryCompilationError {
			break
		}
	}
	return out, nil
}

func mapJudge0Result(index int, tc TestCase, resp judge0Response) CaseResult {
	result := CaseResult{
		Index:           index,
		Hidden:          tc.Hidden,
		Category:        judge0Category(resp.Status.ID),
		ExecutionTimeMs: resp.Time.Millis(),
		MemoryKB:        resp.Memory,
		Stderr:          resp.Stderr,
	}
	result.Passed = result.Category == CategoryAccepted

	switch result.Category {
	case CategoryAccepted:
	case CategoryCompilationError:
		result.Message = firstNonEmpty(resp.CompileOutput, resp.Status.Description, "compilation error")
		result.Diff = &DiffInfo{Type: DiffCompile, Message: truncate(result.Message, 1024)}
	case CategoryWrongAnswer:
		result.Message = firstNonEmpty(resp.Status.Description, "wrong answer")
		if !tc.Hidden {
			result.Diff = describeMismatch(tc.ExpectedOutput, resp.Stdout)
		}
	case CategoryRuntimeError:
		result.Message = firstNonEmpty(resp.Stderr, resp.Message, resp.Status.Description, "runtime error")
		result.Diff = &DiffInfo{Type: DiffRuntime, Message: truncate(result.Message, 1024)}
	case CategoryUnknown:
		result.Message = fmt.Sprintf("unexpected judge status %d: %s", resp.Status.ID, resp.Status.Description)
	default:
		result.Message = firstNonEmpty(resp.Status.Description, string(result.Category))
	}
	return result
}

func judge0Category(id int) Category {
	switch {
	case id == judge0Accepted:
		return CategoryAccepted
	case id == judge0WrongAnswer:
		return CategoryWrongAnswer
	case id == judge0TimeLimitExceeded:
		return CategoryTimeLimitExceeded
	case id == judge0CompilationError:
		return CategoryCompilationError
	case id >= judge0RuntimeFirst && id <= judge0RuntimeLast:
		return CategoryRuntimeError
	case id == judge0MemoryLimit:
		return CategoryMemoryLimitExceeded
	default:
		return CategoryUnknown
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

var _ json.Unmarshaler = (*flexSeconds)(nil)
