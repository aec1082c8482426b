package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/metacat/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewNotFound("missing"), http.StatusNotFound},
		{domain.NewValidation("bad"), http.StatusBadRequest},
		{domain.NewConflict("stale"), http.StatusConflict},
		{domain.NewExternalDependency(errors.New("down"), "index"), http.StatusBadGateway},
		{domain.NewDataIntegrity("two parents"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestIncludeOf(t *testing.T) {
	cases := []struct {
		query string
		want  domain.Include
	}{
		{"", domain.IncludeNonDeleted},
		{"include=all", domain.IncludeAll},
		{"include=deleted", domain.IncludeDeletedOnly},
		{"include=junk", domain.IncludeNonDeleted},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/v1/entities/chart/name/x?"+tc.query, nil)
		if got := includeOf(r); got != tc.want {
			t.Errorf("includeOf(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestUserOfDefaultsToAnonymous(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := userOf(r); got != "anonymous" {
		t.Errorf("userOf = %q, want anonymous", got)
	}
	r.Header.Set(userHeader, "alice")
	if got := userOf(r); got != "alice" {
		t.Errorf("userOf = %q, want alice", got)
	}
}
