package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RequestMetrics holds the latency, traffic, error and saturation signals
// for both the HTTP API and the gRPC health server.
type RequestMetrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	errorsTotal     metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

func NewRequestMetrics(meter metric.Meter) (*RequestMetrics, error) {
	rm := &RequestMetrics{}

	var err error

	// Buckets: 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
	rm.requestDuration, err = meter.Float64Histogram(
		"server.request_duration",
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, err
	}

	rm.requestsTotal, err = meter.Int64Counter(
		"server.requests_total",
		metric.WithDescription("Total number of requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rm.errorsTotal, err = meter.Int64Counter(
		"server.errors_total",
		metric.WithDescription("Total number of failed requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	rm.activeRequests, err = meter.Int64UpDownCounter(
		"server.active_requests",
		metric.WithDescription("Number of requests currently being processed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return rm, nil
}

// RecordRequest records one finished request. failed marks it as an error.
func (rm *RequestMetrics) RecordRequest(ctx context.Context, transport, route, code string, duration time.Duration, failed bool) {
	if rm == nil || rm.requestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("route", route),
		attribute.String("code", code),
	)

	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)
	rm.requestsTotal.Add(ctx, 1, attrs)
	if failed {
		rm.errorsTotal.Add(ctx, 1, attrs)
	}
}

func (rm *RequestMetrics) startRequest(ctx context.Context, transport string) {
	if rm != nil && rm.activeRequests != nil {
		rm.activeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
	}
}

func (rm *RequestMetrics) endRequest(ctx context.Context, transport string) {
	if rm != nil && rm.activeRequests != nil {
		rm.activeRequests.Add(ctx, -1, metric.WithAttributes(attribute.String("transport", transport)))
	}
}

// Middleware records HTTP requests by chi route pattern, so /courses/{id}
// is a single series. Only 5xx responses count as errors.
func (rm *RequestMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rm.startRequest(r.Context(), "http")
		defer rm.endRequest(r.Context(), "http")

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = r.Method + " " + pattern
			}
		}

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		rm.RecordRequest(r.Context(), "http", route, strconv.Itoa(code), time.Since(start), code >= http.StatusInternalServerError)
	})
}

func (rm *RequestMetrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		rm.startRequest(ctx, "grpc")
		defer rm.endRequest(ctx, "grpc")

		resp, err := handler(ctx, req)

		code := status.Code(err)
		rm.RecordRequest(ctx, "grpc", strings.TrimPrefix(info.FullMethod, "/"), code.String(), time.Since(start), code != codes.OK)

		return resp, err
	}
}
