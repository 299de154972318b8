package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func TestStatusFromError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
		wantMsg  string
	}{
		{"not found", domain.ErrProductNotFound, codes.NotFound, "product not found"},
		{"not authorized", domain.ErrNotProductOwner, codes.PermissionDenied, "caller does not own the product"},
		{"invalid argument", domain.ErrQuantityInvalid, codes.InvalidArgument, "quantity must be greater than zero"},
		{"conflict", fmt.Errorf("commit: %w", domain.NewError(domain.KindConflict, "duplicate key")), codes.Aborted, "duplicate key"},
		{"storage unavailable", domain.ErrStorageUnavailable, codes.Unavailable, "storage_unavailable"},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded, "deadline exceeded"},
		{"operation timeout", domain.WrapError(domain.KindStorageUnavailable, "operation timed out", context.DeadlineExceeded), codes.Unavailable, "operation timed out"},
		{"canceled", fmt.Errorf("load cart: %w", context.Canceled), codes.Canceled, "request canceled"},
		{"plain error", errors.New("boom"), codes.Internal, "internal error"},
		{"already status", status.Error(codes.ResourceExhausted, "slow down"), codes.ResourceExhausted, "slow down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(StatusFromError(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, st.Code())
			assert.Equal(t, tt.wantMsg, st.Message())
		})
	}
	assert.NoError(t, StatusFromError(nil))
}

func TestUnaryErrorInterceptor(t *testing.T) {
	t.Parallel()

	interceptor := UnaryErrorInterceptor(loggerForTests())
	info := &grpc.UnaryServerInfo{FullMethod: "/marketplace.v1.Cart/AddToCart"}

	resp, err := interceptor(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	resp, err = interceptor(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return nil, domain.ErrNotBuyer
	})
	assert.Nil(t, resp)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestCallerID(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(CallerMetadataKey, " user-1 "))
	caller, err := CallerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", caller)

	for _, ctx := range []context.Context{
		context.Background(),
		metadata.NewIncomingContext(context.Background(), metadata.Pairs(CallerMetadataKey, "  ")),
	} {
		_, err := CallerID(ctx)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	}
}
