//go:build devjudge

package backend

import (
	"context"

	"campusjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// PassthroughBackend accepts every case without running anything.
// It only exists in builds tagged devjudge.
type PassthroughBackend struct{}

func newPassthrough() (Backend, error) {
	return &PassthroughBackend{}, nil
}

func (b *PassthroughBackend) Kind() Kind { return KindPassthrough }

func (b *PassthroughBackend) Execute(ctx context.Context, req Request) (Outcome, error) {
	logger.Warn(ctx, "passthrough backend accepting submission unjudged",
		zap.String("language", req.Language),
		zap.Int("cases", len(req.TestCases)),
	)
	out := Outcome{Kind: KindPassthrough, TotalCount: len(req.TestCases), PassedCount: len(req.TestCases)}
	for i, tc := range req.TestCases {
		out.Cases = append(out.Cases, CaseResult{
			Index:    i,
			Hidden:   tc.Hidden,
			Passed:   true,
			Category: CategoryAccepted,
			Message:  UnjudgedMessage,
		})
	}
	return out, nil
}
