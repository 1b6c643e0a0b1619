// Package verdict turns a backend outcome into a submission verdict.
//
// Each backend kind has its own strategy. The remote strategy credits
// floor(points/total) per passed case, the batch strategy grants full points
// when every case passes and floor(passed*points/total) otherwise. The two
// round differently and are kept separate on purpose.
package verdict

import (
	"fmt"

	"campusjudge/internal/competition/model"
	"campusjudge/internal/judge/backend"
)

// Reducer computes the aggregate verdict for a problem worth points.
type Reducer interface {
	Reduce(points int, outcome backend.Outcome) model.Verdict
}

// ForKind returns the strategy matching the backend that produced an outcome.
func ForKind(kind backend.Kind) Reducer {
	switch kind {
	case backend.KindRemote:
		return PerCase{}
	case backend.KindPassthrough:
		return Passthrough{}
	default:
		return Batch{}
	}
}

// Reduce picks the strategy from outcome.Kind.
func Reduce(points int, outcome backend.Outcome) model.Verdict {
	return ForKind(outcome.Kind).Reduce(points, outcome)
}

// PerCase is the remote judge strategy.
type PerCase struct{}

func (PerCase) Reduce(points int, outcome backend.Outcome) model.Verdict {
	v := model.Verdict{JudgedBy: string(outcome.Kind)}
	if outcome.TotalCount <= 0 {
		v.Status = model.StatusRuntimeError
		v.ErrorMessage = "no test cases were executed"
		return v
	}

	perCase := points / outcome.TotalCount
	var failed *backend.CaseResult
	for i := range outcome.Cases {
		c := &outcome.Cases[i]
		trackMax(&v, c)
		if c.Category == backend.CategoryCompilationError {
			v.Status = model.StatusCompilationError
			v.Score = 0
			v.ErrorMessage = compileMessage(c)
			return v
		}
		if c.Passed {
			v.Score += perCase
			continue
		}
		if failed == nil {
			failed = c
		}
	}

	switch {
	case failed != nil:
		v.Status = statusFor(failed.Category)
		v.ErrorMessage = caseMessage(failed)
	case len(outcome.Cases) < outcome.TotalCount:
		v.Status = model.StatusRuntimeError
		v.ErrorMessage = fmt.Sprintf("judging incomplete: %d of %d test cases ran", len(outcome.Cases), outcome.TotalCount)
	default:
		v.Status = model.StatusAccepted
	}
	v.Score = clamp(v.Score, points)
	return v
}

// Batch is the local execution service strategy.
type Batch struct{}

func (Batch) Reduce(points int, outcome backend.Outcome) model.Verdict {
	v := model.Verdict{JudgedBy: string(outcome.Kind)}
	total := outcome.TotalCount
	if total <= 0 {
		v.Status = model.StatusRuntimeError
		v.ErrorMessage = "no test cases were executed"
		return v
	}

	var failed *backend.CaseResult
	for i := range outcome.Cases {
		c := &outcome.Cases[i]
		trackMax(&v, c)
		if !c.Passed && failed == nil {
			failed = c
		}
	}

	passed := outcome.PassedCount
	if passed > total {
		passed = total
	}
	if passed == total && failed == nil {
		v.Status = model.StatusAccepted
		v.Score = clamp(points, points)
		return v
	}

	v.Score = clamp(passed*points/total, points)
	if failed == nil {
		v.Status = model.StatusWrongAnswer
		v.ErrorMessage = fmt.Sprintf("%d of %d test cases passed", passed, total)
		return v
	}
	switch failed.Category {
	case backend.CategoryCompilationError:
		v.Status = model.StatusCompilationError
		v.ErrorMessage = compileMessage(failed)
	default:
		v.Status = statusFor(failed.Category)
		v.ErrorMessage = caseMessage(failed)
	}
	return v
}

// Passthrough scores like Batch but always carries the unjudged marker.
type Passthrough struct{}

func (Passthrough) Reduce(points int, outcome backend.Outcome) model.Verdict {
	v := Batch{}.Reduce(points, outcome)
	v.ErrorMessage = backend.UnjudgedMessage
	return v
}

func statusFor(c backend.Category) model.SubmissionStatus {
	switch c {
	case backend.CategoryAccepted:
		return model.StatusAccepted
	case backend.CategoryWrongAnswer:
		return model.StatusWrongAnswer
	case backend.CategoryTimeLimitExceeded:
		return model.StatusTimeLimitExceeded
	case backend.CategoryMemoryLimitExceeded:
		return model.StatusMemoryLimitExceeded
	case backend.CategoryCompilationError:
		return model.StatusCompilationError
	default:
		return model.StatusRuntimeError
	}
}

func trackMax(v *model.Verdict, c *backend.CaseResult) {
	if c.ExecutionTimeMs > v.MaxExecutionTimeMs {
		v.MaxExecutionTimeMs = c.ExecutionTimeMs
	}
	if c.MemoryKB > v.MaxMemoryKB {
		v.MaxMemoryKB = c.MemoryKB
	}
}

func clamp(score, points int) int {
	if score < 0 {
		return 0
	}
	if points >= 0 && score > points {
		return points
	}
	return score
}
