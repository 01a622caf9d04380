package log

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type testStatus string

func (s testStatus) String() string { return string(s) }

func TestToFields(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		input []any
		want  []string
	}{
		{"empty", nil, nil},
		{"pairs", []any{"a", "x", "b", 123, "c", true}, []string{"a", "b", "c"}},
		{"bare error", []any{boom, "k", 1}, []string{"error", "k"}},
		{"zap field", []any{zap.String("x", "y"), "num", 42}, []string{"x", "num"}},
		{"dangling value", []any{"key1", "val1", "key2"}, []string{"key1", badKey}},
		{"non-string key", []any{123, "value"}, []string{badKey + "(123)"}},
		{"nil values", []any{"a", nil, "b", (*int)(nil)}, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input)
			if len(fields) != len(tt.want) {
				t.Fatalf("got %d fields, want %d: %+v", len(fields), len(tt.want), fields)
			}
			for i, f := range fields {
				if f.Key != tt.want[i] {
					t.Errorf("field %d key = %q, want %q", i, f.Key, tt.want[i])
				}
			}
		})
	}
}

func TestToFieldsTyping(t *testing.T) {
	fields := toFields([]any{
		"imei", "887744556677882",
		"lat", 12.9716,
		"live", true,
		"status", testStatus("connected"),
		"tick", 2 * time.Second,
		"cause", errors.New("x"),
	})

	want := []zapcore.FieldType{
		zapcore.StringType,
		zapcore.Float64Type,
		zapcore.BoolType,
		zapcore.StringerType,
		zapcore.DurationType,
		zapcore.ErrorType,
	}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i, w := range want {
		if fields[i].Type != w {
			t.Errorf("field %s type = %v, want %v", fields[i].Key, fields[i].Type, w)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	if errs := opts.Validate(); len(errs) != 0 {
		t.Fatalf("defaults invalid: %v", errs)
	}

	opts.Level = "loud"
	opts.Format = "xml"
	opts.CallerSkip = -1
	if errs := opts.Validate(); len(errs) != 3 {
		t.Errorf("Validate() = %v, want 3 errors", errs)
	}
}

func TestNewLoggerWithNameAndValues(t *testing.T) {
	opts := NewOptions()
	opts.OutputPaths = []string{"stderr"}
	opts.Level = "debug"
	opts.Format = FormatJSON

	l := NewLogger(opts).WithName("reconciler").WithValues("imei", "887744556677882")
	l.Debug("frame accepted", "revision", "B")
	l.Error(errors.New("boom"), "publish failed")

	if !l.Logr().V(1).Enabled() {
		t.Error("logr view of a debug logger drops V(1)")
	}
}

func TestGlobalLevel(t *testing.T) {
	opts := NewOptions()
	opts.OutputPaths = []string{"stderr"}
	Init(opts)
	t.Cleanup(func() { _ = SetLevel("info") })

	if Logr().V(1).Enabled() {
		t.Fatal("debug enabled at info level")
	}
	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	if !Logr().V(1).Enabled() {
		t.Error("SetLevel(debug) not applied to the global logger")
	}
	if err := SetLevel("chatty"); err == nil {
		t.Error("SetLevel accepted an unknown level")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"level":"warn"}`))
	LevelHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT level = %d: %s", rec.Code, rec.Body)
	}
	if Logr().Enabled() {
		t.Error("info still enabled after PUT warn")
	}
}
