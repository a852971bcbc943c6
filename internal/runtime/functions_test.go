package runtime

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func callFn(t *testing.T, name string, args ...any) any {
	t.Helper()
	fn, ok := BuiltinFunctions()[name]
	if !ok {
		t.Fatalf("no builtin function %q", name)
	}
	got, err := fn(nil, args)
	if err != nil {
		t.Fatalf("%s(%v): %v", name, args, err)
	}
	return got
}

func TestFnRange(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want []any
	}{
		{"stop only", []any{int64(3)}, []any{int64(0), int64(1), int64(2)}},
		{"start stop", []any{int64(1), int64(4)}, []any{int64(1), int64(2), int64(3)}},
		{"with step", []any{int64(0), int64(10), int64(4)}, []any{int64(0), int64(4), int64(8)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := callFn(t, "range", tt.args...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("range mismatch (-want +got):\n%s", diff)
			}
		})
	}

	fn := BuiltinFunctions()["range"]
	if _, err := fn(nil, []any{"x"}); err == nil {
		t.Error("expected error for non-integer argument")
	}
	if _, err := fn(nil, nil); err == nil {
		t.Error("expected error for no arguments")
	}
}

func TestFnLen(t *testing.T) {
	if got := callFn(t, "len", []any{1, 2, 3}); got != int64(3) {
		t.Errorf("len = %#v", got)
	}
	fn := BuiltinFunctions()["len"]
	if _, err := fn(nil, []any{int64(1)}); err == nil {
		t.Error("expected error for int")
	}
}

func TestFnMinMax(t *testing.T) {
	if got := callFn(t, "min", int64(3), int64(1), int64(2)); got != int64(1) {
		t.Errorf("min = %#v", got)
	}
	if got := callFn(t, "max", int64(3), 3.5); got != 3.5 {
		t.Errorf("max = %#v", got)
	}
	// A single argument is treated as an iterable.
	if got := callFn(t, "min", []any{int64(9), int64(4), int64(7)}); got != int64(4) {
		t.Errorf("min of list = %#v", got)
	}
	if got := callFn(t, "max", "banana", "apple"); got != "banana" {
		t.Errorf("max strings = %#v", got)
	}

	fn := BuiltinFunctions()["min"]
	if _, err := fn(nil, []any{[]any{}}); err == nil {
		t.Error("expected error for empty iterable")
	}
}

func TestFnNow(t *testing.T) {
	got := callFn(t, "now", "2006")
	if got != time.Now().Format("2006") {
		t.Errorf("now(2006) = %#v", got)
	}
	if _, err := time.Parse(time.RFC3339, callFn(t, "now").(string)); err != nil {
		t.Errorf("default layout is not RFC 3339: %v", err)
	}
}

func TestFnCycle(t *testing.T) {
	tests := []struct {
		idx  any
		want any
	}{
		{int64(0), "odd"},
		{int64(1), "even"},
		{int64(2), "odd"},
		{int64(-1), "even"}, // negative indexes wrap
	}
	for _, tt := range tests {
		if got := callFn(t, "cycle", tt.idx, "odd", "even"); got != tt.want {
			t.Errorf("cycle(%v) = %#v, want %#v", tt.idx, got, tt.want)
		}
	}

	fn := BuiltinFunctions()["cycle"]
	if _, err := fn(nil, []any{int64(0)}); err == nil {
		t.Error("expected error without values")
	}
}
