package grpcsvc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// toStatus переводит доменную ошибку в gRPC-статус. Уже готовый статус возвращается как есть.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, domain.ErrUnauthenticated):
		return codes.Unauthenticated
	case errors.Is(err, domain.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrProductInactive):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrDuplicateSKU):
		return codes.AlreadyExists
	case domain.IsVersionConflict(err):
		return codes.Aborted
	case domain.IsNotFound(err):
		return codes.NotFound
	case domain.IsValidation(err):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}
