package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindsSurviveWrapping(t *testing.T) {
	err := NotFoundf("dataset %s", "abc")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found kind, got %v", err)
	}
	wrapped := fmt.Errorf("loading report: %w", err)
	if !IsNotFound(wrapped) {
		t.Fatalf("kind lost through wrapping: %v", wrapped)
	}
	if IsValidation(wrapped) || IsConflict(wrapped) {
		t.Fatalf("wrong kind matched for %v", wrapped)
	}
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFoundf("dataset"), http.StatusNotFound},
		{Validationf("column map is empty"), http.StatusBadRequest},
		{Conflictf("dataset is busy"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Errorf("StatusCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
