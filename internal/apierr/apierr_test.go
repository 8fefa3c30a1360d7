package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := map[Tag]int{
		NoRoute:          http.StatusNotFound,
		NoCandidate:      http.StatusServiceUnavailable,
		DispatchTimeout:  http.StatusGatewayTimeout,
		HandlerFailure:   http.StatusInternalServerError,
		HandlerPanic:     http.StatusInternalServerError,
		StoreUnavailable: http.StatusBadGateway,
		BadRequest:       http.StatusBadRequest,
		Tag("unknown"):   http.StatusInternalServerError,
	}
	for tag, want := range cases {
		if got := Status(tag); got != want {
			t.Fatalf("Status(%s) = %d, want %d", tag, got, want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("store timeout")
	err := New(StoreUnavailable, inner)

	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to find the wrapped error")
	}
	if err.Error() != inner.Error() {
		t.Fatalf("Error() = %q, want %q", err.Error(), inner.Error())
	}
}

func TestErrorWithoutInnerFallsBackToTag(t *testing.T) {
	err := New(NoRoute, nil)
	if err.Error() != string(NoRoute) {
		t.Fatalf("Error() = %q, want %q", err.Error(), NoRoute)
	}
}
