package qdrant

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cognidex/cognidex/internal/store"
)

// normalize translates gRPC-level failures into the shared taxonomy.
func normalize(backend, op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.NewError(store.ErrTimeout, backend, op, err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable:
			return store.NewError(store.ErrUnavailable, backend, op, err)
		case codes.DeadlineExceeded, codes.Canceled:
			return store.NewError(store.ErrTimeout, backend, op, err)
		case codes.AlreadyExists:
			return store.NewError(store.ErrConflict, backend, op, err)
		case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
			return store.NewError(store.ErrSchemaViolation, backend, op, err)
		}
	}

	return store.NewError(store.ErrTransient, backend, op, err)
}
