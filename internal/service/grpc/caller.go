package grpcsvc

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CallerMetadataKey: ключ metadata, в который слой аутентификации кладёт проверенный идентификатор пользователя.
const CallerMetadataKey = "x-caller-id"

// CallerID достаёт идентификатор вызывающего из входящих metadata.
func CallerID(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(CallerMetadataKey); len(values) > 0 {
			if caller := strings.TrimSpace(values[0]); caller != "" {
				return caller, nil
			}
		}
	}
	return "", status.Error(codes.Unauthenticated, CallerMetadataKey+" metadata is required")
}
