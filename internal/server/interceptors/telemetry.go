package interceptors

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pawsit/agent/internal/telemetry"
	"pawsit/agent/internal/telemetry/domain"
)

// TelemetryUnary returns a unary server interceptor that logs each RPC and emits a
// shell.rpc telemetry event after it. Emission is async and best-effort.
// skipMethods is the set of full method names to not emit (e.g. the health check).
// log and emitter may be nil.
func TelemetryUnary(log *slog.Logger, emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		observe(ctx, log, emitter, info.FullMethod, status.Code(err), time.Since(start))
		return resp, err
	}
}

// TelemetryStream is the streaming counterpart of TelemetryUnary; it observes the stream when it ends.
func TelemetryStream(log *slog.Logger, emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		if skipMethods[info.FullMethod] {
			return err
		}
		observe(ss.Context(), log, emitter, info.FullMethod, status.Code(err), time.Since(start))
		return err
	}
}

func observe(ctx context.Context, log *slog.Logger, emitter telemetry.EventEmitter, fullMethod string, code codes.Code, elapsed time.Duration) {
	if log != nil {
		level := slog.LevelDebug
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		log.Log(ctx, level, "grpc request", "method", fullMethod, "code", code.String(), "duration_ms", elapsed.Milliseconds())
	}
	if emitter == nil {
		return
	}
	event := telemetry.NewEvent(domain.EventShellRPC, "grpc_interceptor")
	event.Attributes = map[string]string{
		"full_method": fullMethod,
		"status_code": code.String(),
		"duration_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
		"client_ip":   ClientIP(ctx),
	}
	telemetry.EmitAsync(emitter, ctx, event)
}
