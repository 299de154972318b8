// Package grpcsvc содержит общую инфраструктуру gRPC-транспорта маркетплейса:
// преобразование доменных ошибок в статусы и извлечение идентичности вызывающего.
package grpcsvc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// CodeFor возвращает gRPC-код для категории доменной ошибки.
func CodeFor(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindNotAuthorized:
		return codes.PermissionDenied
	case domain.KindInvalidArgument:
		return codes.InvalidArgument
	case domain.KindConflict:
		return codes.Aborted
	case domain.KindStorageUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// StatusFromError переводит ошибку сервиса в gRPC status. Уже готовые статусы
// возвращаются как есть, неклассифицированные ошибки скрываются за Internal.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	// Классифицированная ошибка важнее контекста, который она оборачивает.
	var derr *domain.Error
	if errors.As(err, &derr) {
		msg := derr.Message
		if msg == "" {
			msg = string(derr.Kind)
		}
		return status.Error(CodeFor(derr.Kind), msg)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	}
	return status.Error(codes.Internal, "internal error")
}
