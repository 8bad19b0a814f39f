package errors

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")
	case errors.Is(err, ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrBanned):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrDuplicateSwipe), errors.Is(err, ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrQuotaExceeded):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")
	default:
		// storage detail stays server-side
		return status.Error(codes.Internal, "internal error")
	}
}

// HTTPStatus picks the response status and the client-safe message for err.
func HTTPStatus(err error) (int, string) {
	var verr *ValidationError
	var denied *DeniedError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, ErrDuplicateSwipe):
		return http.StatusBadRequest, ErrDuplicateSwipe.Error()
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "authentication required"
	case errors.As(err, &denied):
		return http.StatusForbidden, denied.Reason
	case errors.Is(err, ErrBanned):
		return http.StatusForbidden, ErrBanned.Error()
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "insufficient permissions"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests, ErrQuotaExceeded.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}
