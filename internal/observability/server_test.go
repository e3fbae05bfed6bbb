package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voice-order-service/internal/observability/metrics"
)

func TestServerEndpoints(t *testing.T) {
	notReady := errors.New("store unreachable")

	tests := []struct {
		name  string
		path  string
		ready ReadinessFunc
		want  int
	}{
		{"healthz", "/healthz", nil, http.StatusOK},
		{"readyz without check", "/readyz", nil, http.StatusOK},
		{"readyz ready", "/readyz", func(context.Context) error { return nil }, http.StatusOK},
		{"readyz not ready", "/readyz", func(context.Context) error { return notReady }, http.StatusServiceUnavailable},
		{"metrics", "/metrics", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", tt.ready)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	m := metrics.DefaultMetrics
	interceptor := UnaryServerInterceptor(m)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	before := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("grpc", info.FullMethod, codes.NotFound.String()))

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("err = %v", err)
	}

	after := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("grpc", info.FullMethod, codes.NotFound.String()))
	if after != before+1 {
		t.Errorf("requests = %v, want %v", after, before+1)
	}
}
