package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "job not found",
			},
			want: "job not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to enqueue",
				Cause:   errors.New("underlying error"),
			},
			want: "failed to enqueue: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &AppError{
		Code:    ErrCodeInternal,
		Message: "wrapped error",
		Cause:   cause,
	}

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantCode ErrorCode
	}{
		{"NotFound", NotFound("missing"), ErrCodeNotFound},
		{"NotFoundf", NotFoundf("job %s not found", "j-1"), ErrCodeNotFound},
		{"Conflict", Conflict("exists"), ErrCodeConflict},
		{"Validation", Validation("bad input"), ErrCodeValidation},
		{"Validationf", Validationf("bad %s", "type"), ErrCodeValidation},
		{"Internal", Internal("boom"), ErrCodeInternal},
		{"Unavailable", Unavailable("provider down"), ErrCodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("payload", "payload must be valid JSON")
	if err.Field != "payload" {
		t.Errorf("Field = %q, want %q", err.Field, "payload")
	}
	if GetField(err) != "payload" {
		t.Errorf("GetField() = %q, want %q", GetField(err), "payload")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "ignored") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	cause := errors.New("db down")
	err := Wrap(cause, ErrCodeInternal, "create job")
	if !errors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if !IsInternal(err) {
		t.Errorf("IsInternal = false, code = %v", GetCode(err))
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, ErrCodeInternal, "ignored %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	cause := errors.New("timeout")
	err := Wrapf(cause, ErrCodeTimeout, "mark running job %s", "j-1")
	if err.Message != "mark running job j-1" {
		t.Errorf("Message = %q", err.Message)
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout = false, code = %v", GetCode(err))
	}
}

func TestIsHelpers_WrappedChain(t *testing.T) {
	inner := NotFound("job not found")
	outer := fmt.Errorf("get status: %w", inner)

	if !IsNotFound(outer) {
		t.Error("IsNotFound should see through fmt.Errorf wrapping")
	}
	if IsConflict(outer) {
		t.Error("IsConflict should be false for a NotFound error")
	}
}

func TestGetCode_NonAppError(t *testing.T) {
	if code := GetCode(errors.New("plain")); code != "" {
		t.Errorf("GetCode(plain error) = %q, want empty", code)
	}
}
