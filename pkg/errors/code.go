package errors

import "net/http"

// ErrorCode identifies a failure class across the service and its HTTP API.
type ErrorCode int

// Ranges:
// 10000-10999 system and infrastructure
// 12000-12999 problems and test cases
// 13000-13999 submissions and judging
// 14000-14999 competitions and participation
const (
	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	CacheError ErrorCode = 10200

	StorageError ErrorCode = 10250
	MQError      ErrorCode = 10260

	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	ProblemNotFound  ErrorCode = 12000
	TestCaseNotFound ErrorCode = 12100
	TestCaseInvalid  ErrorCode = 12102

	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004
	ProblemNotSubmittable  ErrorCode = 13005
	SubmissionAlreadyFinal ErrorCode = 13006

	JudgeQueueFull       ErrorCode = 13100
	JudgeSystemError     ErrorCode = 13101
	JudgeBackendRejected ErrorCode = 13107
	NoJudgeBackend       ErrorCode = 13108

	ContestNotFound    ErrorCode = 14000
	ContestNotStarted  ErrorCode = 14001
	ContestEnded       ErrorCode = 14002
	ParticipantMissing ErrorCode = 14103
	RankingUnavailable ErrorCode = 14200
)

var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	CacheError:   "Cache operation failed",
	StorageError: "Object storage operation failed",
	MQError:      "Message queue operation failed",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	ProblemNotFound:  "Problem not found",
	TestCaseNotFound: "Test case not found",
	TestCaseInvalid:  "Invalid test case format",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	ProblemNotSubmittable:  "This problem cannot be submitted to this competition",
	SubmissionAlreadyFinal: "Submission has already been judged",

	JudgeQueueFull:       "Judge queue is full, please try again later",
	SubmitTooFrequently:  "Submitting too frequently, please slow down",
	JudgeSystemError:     "Judge system error",
	JudgeBackendRejected: "Judge backend rejected the request",
	NoJudgeBackend:       "No judge backend is available",

	ContestNotFound:    "Competition not found",
	ContestNotStarted:  "Competition has not started yet",
	ContestEnded:       "Competition has ended",
	ParticipantMissing: "Participant not found for this competition",
	RankingUnavailable: "Leaderboard is not available",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound, c == ContestNotFound,
		c == SubmissionNotFound, c == TestCaseNotFound, c == ParticipantMissing:
		return http.StatusNotFound
	case c == JudgeQueueFull, c == SubmitTooFrequently:
		return http.StatusTooManyRequests
	case c == ServiceUnavailable, c == NoJudgeBackend, c == RankingUnavailable:
		return http.StatusServiceUnavailable
	case c == Timeout:
		return http.StatusGatewayTimeout
	case c == CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case c == LanguageNotSupported, c == ProblemNotSubmittable, c == InvalidParams:
		return http.StatusBadRequest
	case c == ContestNotStarted, c == ContestEnded, c == SubmissionAlreadyFinal:
		return http.StatusConflict
	case c >= 10300 && c < 10400:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
