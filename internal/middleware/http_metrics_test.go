package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/v1/me/newsfeed", "/api/v1/me/newsfeed"},
		{"/api/v1/users/u-1/newsfeed", "/api/v1/users/{id}/newsfeed"},
		{"/api/v1/users/6f1c2b/newsfeed", "/api/v1/users/{id}/newsfeed"},
		{"/api/v1/users//newsfeed", "other"},
		{"/api/v1/users/u-1", "other"},
		{"/api/v1/users/u-1/newsfeed/extra", "other"},
		{"/wp-admin", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestHTTPMetrics(t *testing.T) {
	m := NewMetrics()
	handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/users/missing/newsfeed" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))

	for _, path := range []string{
		"/api/v1/users/a/newsfeed",
		"/api/v1/users/b/newsfeed",
		"/api/v1/users/missing/newsfeed",
		"/health",
		"/ready",
		"/metrics",
	} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	if got := counterValue(t, m.httpRequestsTotal); got != 3 {
		t.Errorf("requests counted = %v, want 3 (health and metrics excluded)", got)
	}
	ok, err := m.httpRequestsTotal.GetMetricWithLabelValues("POST", "/api/v1/users/{id}/newsfeed", "200")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	if got := counterValue(t, ok); got != 2 {
		t.Errorf("200s = %v, want 2", got)
	}
	if got := histogramCount(t, m.httpResponseSize); got != 3 {
		t.Errorf("response size samples = %d, want 3", got)
	}
	if got := histogramCount(t, m.httpRequestDuration); got != 3 {
		t.Errorf("duration samples = %d, want 3", got)
	}
}

func TestMetricsResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	mrw := &metricsResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = mrw.Write([]byte("ab"))
	_, _ = mrw.Write([]byte("cd"))
	mrw.WriteHeader(http.StatusTeapot)

	if mrw.size != 4 {
		t.Errorf("size = %d, want 4", mrw.size)
	}
	if mrw.statusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 once the body started", mrw.statusCode)
	}
}
