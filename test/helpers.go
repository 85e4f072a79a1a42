// Package test holds assertions shared by the tests of the DFI client
// packages.
package test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// MustBe asserts that got and want are equal according to cmp.Diff, and
// fails otherwise.
func MustBe(t testing.TB, want, got interface{}, context ...string) {
	t.Helper()
	var ctx string
	if len(context) > 0 {
		ctx = context[0] + ": "
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("%vmismatch (-want +got):\n%s", ctx, diff)
	}
}

// ErrNil asserts that the err is nil and fails otherwise.
func ErrNil(t testing.TB, err error, ctx string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// ErrCause asserts that the cause of err is want. A nil want asserts that err
// is nil.
func ErrCause(t testing.TB, want, err error, ctx string) {
	t.Helper()
	if errors.Cause(err) != want {
		t.Fatalf("%v: expected error cause '%v', got '%v'", ctx, want, err)
	}
}

// JSONEq marshals got and compares it to the JSON text want after
// normalising both through encoding/json.
func JSONEq(t testing.TB, want string, got interface{}, ctx string) {
	t.Helper()
	gotBytes, err := json.Marshal(got)
	ErrNil(t, err, ctx+": marshalling")
	var w, g interface{}
	ErrNil(t, json.Unmarshal([]byte(want), &w), ctx+": unmarshalling want")
	ErrNil(t, json.Unmarshal(gotBytes, &g), ctx+": unmarshalling got")
	MustBe(t, w, g, ctx)
}
