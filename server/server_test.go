package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/heartrisk/artifact"
	"github.com/YuminosukeSato/heartrisk/config"
	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/inference"
	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

const exampleBody = `{"age":55,"sex":"Male","cp":"typical","trestbps":140,"chol":350,"fbs":"False",
"restecg":"normal","thalch":260,"exang":"No","oldpeak":1.2,"slope":"upsloping","ca":0,"thal":"normal"}`

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:        "127.0.0.1",
		Port:        8000,
		Mode:        gin.TestMode,
		CORSOrigins: []string{"http://localhost:3000"},
	}
}

func readyService(t *testing.T) *inference.Service {
	t.Helper()
	X, y := heart.SyntheticCohort(100, 8)
	p, err := pipeline.New(pipeline.LogisticRegression)
	require.NoError(t, err)
	require.NoError(t, p.Fit(X, y))
	a, err := artifact.New(p, nil)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, a.Save(path))
	return inference.NewService(path, nil)
}

func newTestServer(t *testing.T, svc *inference.Service) (*Server, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelInfo)
	s, err := New(testConfig(), svc, logger)
	require.NoError(t, err)
	return s, logger
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body %q", w.Body.String())
	return out
}

func TestRoutes_Ready(t *testing.T) {
	svc := readyService(t)
	s, logger := newTestServer(t, svc)
	want, err := svc.Predict(context.Background(), heart.ExampleRecord())
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		check  func(t *testing.T, body map[string]interface{})
	}{
		{"root", http.MethodGet, "/", "", http.StatusOK, func(t *testing.T, b map[string]interface{}) {
			if b["message"] != "Heart Disease Prediction API" || b["status"] != "active" {
				t.Errorf("body = %v", b)
			}
		}},
		{"health", http.MethodGet, "/health", "", http.StatusOK, func(t *testing.T, b map[string]interface{}) {
			if b["status"] != "healthy" || b["model"] != "loaded" {
				t.Errorf("body = %v", b)
			}
		}},
		{"model info", http.MethodGet, "/model-info", "", http.StatusOK, func(t *testing.T, b map[string]interface{}) {
			if b["model_type"] != "LogisticRegression" || len(b["features"].([]interface{})) != 13 {
				t.Errorf("body = %v", b)
			}
		}},
		{"predict", http.MethodPost, "/predict", exampleBody, http.StatusOK, func(t *testing.T, b map[string]interface{}) {
			// the tier comes from the unrounded probability, so compare with the service
			assert.Equal(t, want.Probability, b["probability"])
			assert.Equal(t, float64(want.Prediction), b["prediction"])
			assert.Equal(t, want.RiskLevel, b["risk_level"])
			if !strings.HasPrefix(b["message"].(string), "Heart disease prediction: ") {
				t.Errorf("message = %v", b["message"])
			}
		}},
		{"missing field", http.MethodPost, "/predict", strings.Replace(exampleBody, `"ca":0,`, "", 1), http.StatusBadRequest,
			func(t *testing.T, b map[string]interface{}) {
				if !strings.Contains(b["detail"].(string), "'ca'") {
					t.Errorf("detail = %v", b["detail"])
				}
			}},
		{"out of range", http.MethodPost, "/predict", strings.Replace(exampleBody, `"age":55`, `"age":300`, 1), http.StatusBadRequest, nil},
		{"age with zero fraction", http.MethodPost, "/predict", strings.Replace(exampleBody, `"age":55`, `"age":55.0`, 1), http.StatusOK,
			func(t *testing.T, b map[string]interface{}) {
				assert.Equal(t, want.Probability, b["probability"])
			}},
		{"fractional age", http.MethodPost, "/predict", strings.Replace(exampleBody, `"age":55`, `"age":55.5`, 1), http.StatusBadRequest,
			func(t *testing.T, b map[string]interface{}) {
				assert.Contains(t, b["detail"], "'age': must be an integer")
			}},
		{"wrong type", http.MethodPost, "/predict", strings.Replace(exampleBody, `"age":55`, `"age":"old"`, 1), http.StatusBadRequest, nil},
		{"malformed", http.MethodPost, "/predict", "{", http.StatusBadRequest, nil},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			body := decode(t, w)
			if tt.status >= 400 {
				assert.Contains(t, body, "detail")
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
	assert.True(t, logger.ContainsMessage("request"), "access log missing")
}

func TestRoutes_Unready(t *testing.T) {
	svc := inference.NewService(filepath.Join(t.TempDir(), "missing.gob"), nil)
	s, _ := newTestServer(t, svc)

	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not loaded", decode(t, w)["model"])
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/model-info", ""},
		{http.MethodPost, "/predict", exampleBody},
	} {
		w := do(s, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusInternalServerError, w.Code, tc.path)
		assert.Equal(t, "Model not loaded", decode(t, w)["detail"], tc.path)
	}
}

func TestPredict_Consistent(t *testing.T) {
	s, _ := newTestServer(t, readyService(t))
	first := do(s, http.MethodPost, "/predict", exampleBody).Body.String()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, do(s, http.MethodPost, "/predict", exampleBody).Body.String(), "call %d", i)
	}
}

func TestMiddleware(t *testing.T) {
	s, _ := newTestServer(t, readyService(t))

	w := do(s, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader), "request id not assigned")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code, "foreign origin")
}

func TestRecovery(t *testing.T) {
	s, logger := newTestServer(t, readyService(t))
	s.engine.GET("/boom", func(c *gin.Context) { panic("boom") })
	w := do(s, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["detail"])
	assert.True(t, logger.ContainsMessage("panic recovered"), "panic not logged")
}

func TestNew_BadOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"localhost:3000"}
	_, err := New(cfg, readyService(t), nil)
	var ce *errors.ConfigurationError
	assert.True(t, errors.As(err, &ce), "got %v", err)
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 0
	logger, _ := log.NewTestLogger(log.LevelInfo)
	s, err := New(cfg, readyService(t), logger)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, logger.ContainsMessage("server stopped gracefully"))
}
