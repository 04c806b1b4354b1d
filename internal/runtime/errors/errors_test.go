package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrConfigRequired", ErrConfigRequired, "flowcore: configuration is required"},
		{"ErrMessageRequired", ErrMessageRequired, "flowcore: message is required"},
		{"ErrNoOutboundRoute", ErrNoOutboundRoute, "flowcore: no outbound route for message"},
		{"ErrEndpointNotSendable", ErrEndpointNotSendable, "flowcore: endpoint cannot send"},
		{"ErrRemoteSyncInTransaction", ErrRemoteSyncInTransaction, "flowcore: remote sync is not allowed inside a transaction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	want := "flowcore: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if unwrapped := err.Unwrap(); unwrapped != inner {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, inner)
	}
}

func TestNewConfigValidationError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if err := NewConfigValidationError(nil); err != nil {
			t.Errorf("NewConfigValidationError(nil) = %v, want nil", err)
		}
	})

	t.Run("errors.Is works with wrapped error", func(t *testing.T) {
		inner := errors.New("specific error")
		err := NewConfigValidationError(inner)

		var cfgErr ConfigValidationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigValidationError, got %T", err)
		}
		if !errors.Is(err, inner) {
			t.Error("errors.Is should match wrapped error")
		}
	})
}

func TestTypedErrorsUnwrap(t *testing.T) {
	root := errors.New("root")
	tests := []struct {
		name string
		err  error
	}{
		{"configuration", &ConfigurationError{Reason: "bad", Err: root}},
		{"lifecycle", &LifecycleError{Component: "c", Phase: "start", Err: root}},
		{"dispatch", &DispatchError{Endpoint: "vm://x", Op: "send", Err: root}},
		{"state", &StateError{Op: "dispatch", Err: root}},
		{"conversion", &ConversionError{From: "int", To: "bytes", Err: root}},
		{"fatal", &FatalError{Cause: errors.New("first"), Err: root}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, root) {
				t.Fatalf("expected %T to unwrap to root", tt.err)
			}
			if tt.err.Error() == "" {
				t.Fatal("expected non-empty message")
			}
		})
	}
}

type outerError struct{ err error }

func (e *outerError) Error() string { return "outer: " + e.err.Error() }
func (e *outerError) Unwrap() error { return e.err }

type innerError struct{}

func (e *innerError) Error() string { return "inner" }

func TestFirstCausePrefersPredicateOrderOverDepth(t *testing.T) {
	chain := &outerError{err: fmt.Errorf("wrapped: %w", &innerError{})}

	found, idx := FirstCause(chain, TypeOf[*innerError](), TypeOf[*outerError]())
	if idx != 0 {
		t.Fatalf("expected first predicate to win, got index %d", idx)
	}
	if _, ok := found.(*innerError); !ok {
		t.Fatalf("expected inner error, got %T", found)
	}

	found, idx = FirstCause(chain, TypeOf[*outerError](), TypeOf[*innerError]())
	if idx != 0 {
		t.Fatalf("expected outer predicate to win, got index %d", idx)
	}
	if found != chain {
		t.Fatalf("expected outer error to be returned")
	}
}

func TestFirstCauseFollowsJoinedErrors(t *testing.T) {
	joined := errors.Join(errors.New("a"), &outerError{err: &innerError{}})

	found, idx := FirstCause(joined, TypeOf[*innerError]())
	if idx != 0 || found == nil {
		t.Fatalf("expected inner error inside join, got %v (%d)", found, idx)
	}
}

func TestFirstCauseNoMatch(t *testing.T) {
	found, idx := FirstCause(errors.New("plain"), TypeOf[*innerError]())
	if found != nil || idx != -1 {
		t.Fatalf("expected no match, got %v (%d)", found, idx)
	}
	if found, idx := FirstCause(nil, TypeOf[*innerError]()); found != nil || idx != -1 {
		t.Fatalf("expected no match on nil, got %v (%d)", found, idx)
	}
}
