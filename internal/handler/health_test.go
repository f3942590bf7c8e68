package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := New(trace.NewNoopTracerProvider().Tracer("test"), &stubPipeline{}).WithHealthInfo(HealthInfo{Storage: "postgres", Cache: true})
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Storage string `json:"storage"`
		Cache   bool   `json:"cache"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Storage != "postgres" || !body.Cache {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestAPIKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/open", APIKeyAuth(""), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/closed", APIKeyAuth("secret"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		path   string
		header string
		value  string
		want   int
	}{
		{"/open", "", "", http.StatusNoContent},
		{"/closed", "", "", http.StatusUnauthorized},
		{"/closed", "X-API-Key", "wrong", http.StatusForbidden},
		{"/closed", "X-API-Key", "secret", http.StatusNoContent},
		{"/closed", "Authorization", "Bearer secret", http.StatusNoContent},
		{"/closed", "Authorization", "Basic secret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set(tc.header, tc.value)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s with %s %q: expected %d, got %d", tc.path, tc.header, tc.value, tc.want, w.Code)
		}
	}
}
