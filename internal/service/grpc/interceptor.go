package grpcsvc

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryErrorInterceptor переводит ошибки обработчиков в gRPC status и логирует внутренние сбои.
func UnaryErrorInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.WithField("component", "grpc")
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		converted := StatusFromError(err)
		entry := logger.WithError(err).WithFields(log.Fields{
			"method": info.FullMethod,
			"code":   status.Code(converted).String(),
		})
		switch status.Code(converted) {
		case codes.Internal, codes.Unavailable:
			entry.Error("request failed")
		default:
			entry.Debug("request rejected")
		}
		return nil, converted
	}
}
