package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
		visible   bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true, visible: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, visible: true},
		{code: CodeForbidden, status: http.StatusForbidden, visible: true},
		{code: CodeNotFound, status: http.StatusNotFound, visible: true},
		{code: CodeConflict, status: http.StatusConflict, visible: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true, visible: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, retryable: true, visible: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true, visible: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s has no public message", tt.code)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.ClientVisible != tt.visible {
			t.Fatalf("code %s expected client visible %v got %v", tt.code, tt.visible, meta.ClientVisible)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestCodeHelpers(t *testing.T) {
	wrapped := fmtWrap(New(CodeNotFound, "bid not found"))
	if CodeOf(wrapped) != CodeNotFound {
		t.Fatalf("expected not found through wrapping, got %s", CodeOf(wrapped))
	}
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatal("IsCode should see through wrapping")
	}
	if IsCode(nil, CodeNotFound) {
		t.Fatal("nil error carries no code")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatal("untyped errors should map to internal")
	}

	unavailable := Unavailable(stdErrors.New("dial tcp"), "load auction")
	if MetadataFor(unavailable.Code()).HTTPStatus != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unavailable store, got %d", MetadataFor(unavailable.Code()).HTTPStatus)
	}
}

func fmtWrap(err error) error {
	return stdErrors.Join(stdErrors.New("outer"), err)
}
