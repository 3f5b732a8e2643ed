package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
		ownMsg    bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true, ownMsg: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required", ownMsg: true},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied", ownMsg: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", ownMsg: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true, ownMsg: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true, ownMsg: true},
		{code: CodeEmptyCart, status: http.StatusBadRequest, publicMsg: "cart is empty", ownMsg: true},
		{code: CodeContention, status: http.StatusServiceUnavailable, publicMsg: "resource busy, retry later", retryable: true, detailsOK: true, ownMsg: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.CallerMessage != tt.ownMsg {
			t.Fatalf("code %s expected caller message %v got %v", tt.code, tt.ownMsg, meta.CallerMessage)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeContention, cause, "lock wait exceeded")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeContention {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if wrapped.Error() != "CONTENTION: lock wait exceeded: boom" {
		t.Fatalf("message = %q", wrapped.Error())
	}
}

func TestCodeHelpersSeeThroughFmtWrapping(t *testing.T) {
	base := New(CodeInsufficientStock, "not enough").WithDetails(map[string]any{"requested": 3})
	err := fmt.Errorf("reserve line: %w", base)

	if CodeOf(err) != CodeInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %q", CodeOf(err))
	}
	if !Is(err, CodeInsufficientStock) {
		t.Fatalf("Is should match wrapped code")
	}
	if IsRetryable(err) {
		t.Fatalf("insufficient stock must not be retryable")
	}
	if !IsRetryable(fmt.Errorf("ctx: %w", New(CodeContention, "busy"))) {
		t.Fatalf("contention must be retryable")
	}
	if CodeOf(stdErrors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
