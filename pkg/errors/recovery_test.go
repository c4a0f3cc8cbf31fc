package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		name      string
		fn        func() (err error)
		wantErr   bool
		wantPanic bool
		wantMsg   string
	}{
		{
			name: "no panic",
			fn: func() (err error) {
				defer Recover(&err, "Pipeline.PredictProba")
				return nil
			},
		},
		{
			name: "string panic",
			fn: func() (err error) {
				defer Recover(&err, "Pipeline.PredictProba")
				panic("index out of range")
			},
			wantErr:   true,
			wantPanic: true,
			wantMsg:   "panic in Pipeline.PredictProba: index out of range",
		},
		{
			name: "panic after error assigned",
			fn: func() (err error) {
				defer Recover(&err, "Pipeline.PredictProba")
				err = fmt.Errorf("transform failed")
				panic("late panic")
			},
			wantErr: true,
			wantMsg: "panic in Pipeline.PredictProba: late panic (original error: transform failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
			var panicErr *PanicError
			if got := errors.As(err, &panicErr); got != tt.wantPanic {
				t.Errorf("errors.As(*PanicError) = %v, want %v", got, tt.wantPanic)
			}
		})
	}
}

func TestSafeExecute(t *testing.T) {
	if err := SafeExecute("noop", func() error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	want := fmt.Errorf("plain failure")
	if err := SafeExecute("fail", func() error { return want }); err != want {
		t.Errorf("SafeExecute should pass errors through, got %v", err)
	}

	err := SafeExecute("Classifier.PredictProba", func() error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %T", err)
	}
	if panicErr.Operation != "Classifier.PredictProba" {
		t.Errorf("Operation = %q", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("expected a stack trace")
	}
}

func TestPanicErrorString(t *testing.T) {
	panicErr := NewPanicError("TestOp", "test value")

	if panicErr.Error() != "panic in TestOp: test value" {
		t.Errorf("Error() = %q", panicErr.Error())
	}
	str := panicErr.String()
	if !strings.Contains(str, "Stack trace:") {
		t.Error("String() should include stack trace information")
	}
	if panicErr.Unwrap() != nil {
		t.Error("non-error panic values should not unwrap")
	}

	cause := fmt.Errorf("boom")
	if !errors.Is(NewPanicError("TestOp", cause), cause) {
		t.Error("error panic values should unwrap")
	}
}

func BenchmarkRecover_NoPanic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		func() (err error) {
			defer Recover(&err, "BenchmarkOp")
			return nil
		}()
	}
}
