package httpjson

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

func TestGetSendsQueryAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items" || r.URL.Query().Get("q") != "a b" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	client := New("svc", srv.URL+"/", "secret")
	var out struct {
		Name string `json:"name"`
	}
	if err := client.Get(context.Background(), "/items", url.Values{"q": {"a b"}}, &out, "list"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out.Name != "ok" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestStatusErrorsMapToDomainKinds(t *testing.T) {
	tests := []struct {
		status    int
		kind      error
		temporary bool
	}{
		{status: http.StatusUnauthorized, kind: domain.ErrAuthentication},
		{status: http.StatusForbidden, kind: domain.ErrAuthentication},
		{status: http.StatusNotFound, kind: domain.ErrNotFound},
		{status: http.StatusConflict, kind: domain.ErrConflict},
		{status: http.StatusUnprocessableEntity, kind: domain.ErrValidation},
		{status: http.StatusTooManyRequests, kind: domain.ErrRateLimited, temporary: true},
		{status: http.StatusBadGateway, kind: domain.ErrServiceUnavailable, temporary: true},
		{status: http.StatusServiceUnavailable, kind: domain.ErrServiceUnavailable, temporary: true},
		{status: http.StatusInternalServerError, kind: domain.ErrServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tc.status)
			}))
			defer srv.Close()

			err := New("billing", srv.URL, "").PostJSON(context.Background(), "/x", map[string]string{"a": "b"}, nil, "create")
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			var statusErr *HTTPStatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected HTTPStatusError, got %T", err)
			}
			if statusErr.StatusCode != tc.status || statusErr.Temporary() != tc.temporary {
				t.Fatalf("unexpected status error %+v", statusErr)
			}
		})
	}
}

func TestRateLimitWaitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New("billing", srv.URL, "", WithRateLimit(0.001, 1))
	if err := client.Get(context.Background(), "/a", nil, nil, "first"); err != nil {
		t.Fatalf("first call must pass the limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Get(ctx, "/a", nil, nil, "second")
	if !domain.IsKind(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}
