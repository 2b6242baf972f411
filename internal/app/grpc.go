package app

import (
	"course-service/internal/metrics"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const grpcServiceName = "course.v1.CourseService"

// NewGRPCServer builds the gRPC server with OTel instrumentation and the
// standard health service, reporting SERVING for the whole server and for
// the course service.
func NewGRPCServer(requests *metrics.RequestMetrics, opts ...otelgrpc.Option) (*grpc.Server, *grpchealth.Server) {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler(opts...)),
		grpc.UnaryInterceptor(requests.UnaryServerInterceptor()),
	)

	healthServer := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return server, healthServer
}
