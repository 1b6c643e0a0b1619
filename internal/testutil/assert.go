// Package testutil holds assertion helpers shared by package tests.
package testutil

import (
	"encoding/json"
	"testing"

	"campusjudge/pkg/errors"
)

// AssertEqual checks if two comparable values are equal
func AssertEqual[T comparable](t testing.TB, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNoError fails the test immediately on a non-nil error.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertTrue checks if a condition is true
func AssertTrue(t testing.TB, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertErrorCode checks that err carries code anywhere in its chain.
func AssertErrorCode(t testing.TB, err error, code errors.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", code)
	}
	if !errors.Is(err, code) {
		t.Fatalf("expected error code %d, got %d (%v)", code, errors.GetCode(err), err)
	}
}

// MustUnmarshalJSON unmarshals JSON data or fails the test
func MustUnmarshalJSON(t testing.TB, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
