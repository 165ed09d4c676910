package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/example/studymates/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, nil))
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&scoped, nil)))

	serviceLogger(ctx, baseLogger, "MembershipService", "Join", "session_id", "s1").Info("hello")

	if base.Len() != 0 {
		t.Fatalf("expected base logger to stay silent, got %q", base.String())
	}
	out := scoped.String()
	for _, want := range []string{"service=MembershipService", "operation=Join", "session_id=s1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want string
	}{
		"nil":              {nil, ""},
		"unauthenticated":  {ErrUnauthenticated, "unauthenticated"},
		"not authorized":   {ErrNotAuthorized, "not_authorized"},
		"not found":        {ErrNotFound, "not_found"},
		"already exists":   {ErrAlreadyExists, "already_exists"},
		"session full":     {ErrSessionFull, "session_full"},
		"wrapped conflict": {conflictf("join request %s is accepted", "r1"), "conflict"},
		"validation":       {&ValidationError{FieldErrors: map[string]string{"f": "bad"}}, "validation"},
		"store":            {&StoreError{Op: "get", Err: errors.New("down")}, "store"},
		"unexpected":       {errors.New("boom"), "unexpected"},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
