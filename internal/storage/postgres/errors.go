package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
)

// classify переводит ошибку драйвера в доменную категорию:
// нарушения ограничений и конфликты транзакций, Conflict, всё остальное, StorageUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"),
			pgErr.Code == pgSerializationFailure,
			pgErr.Code == pgDeadlockDetected:
			return domain.WrapError(domain.KindConflict, op, err)
		case pgErr.Code == pgQueryCanceled:
			return domain.WrapError(domain.KindStorageUnavailable, op, err)
		}
		return domain.WrapError(domain.KindStorageUnavailable, op, fmt.Errorf("postgres error %s: %w", pgErr.Code, err))
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return domain.WrapError(domain.KindStorageUnavailable, op+": timeout", err)
	}
	return domain.WrapError(domain.KindStorageUnavailable, op, err)
}
