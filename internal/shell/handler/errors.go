package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pawsit/agent/internal/admin"
	"pawsit/agent/internal/identity/client"
	"pawsit/agent/internal/identity/service"
	"pawsit/agent/internal/platform/rbac"
	profileservice "pawsit/agent/internal/profile/service"
)

// toStatus maps domain errors to gRPC status errors. Unknown errors are logged
// and reported as Internal without detail.
func (s *Server) toStatus(ctx context.Context, op string, err error) error {
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	switch {
	case service.IsValidationError(err), errIs(err, profileservice.ErrInvalidRole, admin.ErrInvalidRole):
		return status.Error(codes.InvalidArgument, err.Error())
	case errIs(err, service.ErrInvalidActionCode):
		return status.Error(codes.InvalidArgument, "invalid or expired reset code")
	case errIs(err, service.ErrEmailAlreadyRegistered):
		return status.Error(codes.AlreadyExists, "email already registered")
	case errIs(err, service.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid email or password")
	case errIs(err, client.ErrNotSignedIn, rbac.ErrUnauthenticated, rbac.ErrTokenRefresh,
		service.ErrInvalidIDToken, service.ErrInvalidRefreshToken, service.ErrRefreshTokenReuse):
		return status.Error(codes.Unauthenticated, "sign in required")
	case errIs(err, admin.ErrAccessDenied, rbac.ErrNotAdmin):
		return status.Error(codes.PermissionDenied, "admin access required")
	case errIs(err, service.ErrAccountNotFound):
		return status.Error(codes.NotFound, "account not found")
	case errIs(err, admin.ErrNoProfile):
		return status.Error(codes.NotFound, "account has no profile")
	case errIs(err, service.ErrResetRateLimited):
		return status.Error(codes.ResourceExhausted, "too many password reset requests")
	case errIs(err, service.ErrPasswordResetDisabled):
		return status.Error(codes.Unimplemented, "password reset not configured")
	case errIs(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errIs(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	s.log.ErrorContext(ctx, "shell: request failed", "op", op, "error", err)
	return status.Error(codes.Internal, "internal error")
}

// errIs is errors.Is over several targets.
func errIs(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
