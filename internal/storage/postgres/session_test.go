package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
)

var buyerColumns = []string{"id", "user_id", "first_name", "last_name", "email", "phone_number", "created_at"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func expectBegin(mock pgxmock.PgxPoolIface) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
}

func TestStore_SelectWithFilter(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expectBegin(mock)
	mock.ExpectQuery(`SELECT id, user_id, (.+) FROM buyers WHERE user_id = \$1 ORDER BY id COLLATE "C" LIMIT 1`).
		WithArgs("user-1").
		WillReturnRows(mock.NewRows(buyerColumns).
			AddRow("b-1", "user-1", "Ann", "Lee", "ann@example.com", "", now))
	mock.ExpectRollback()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	buyer, ok, err := storage.GetRepository(uow, tables.Buyers).GetSingleBy(ctx, storage.Eq("user_id", "user-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b-1", buyer.ID)
	assert.Equal(t, "Ann", buyer.FirstName)
	require.NoError(t, uow.Rollback(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SelectEmptyInList(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	expectBegin(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM buyers WHERE (1=0) ORDER BY id COLLATE "C"`)).
		WillReturnRows(mock.NewRows(buyerColumns))
	mock.ExpectRollback()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	got, err := storage.GetRepository(uow, tables.Buyers).GetAllBy(ctx, storage.In("id", []string{}))
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, uow.Rollback(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindOrdersAndLimitsInSQL(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expectBegin(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM buyers WHERE first_name = $1 ORDER BY created_at, id COLLATE "C" LIMIT 2`)).
		WithArgs("Ann").
		WillReturnRows(mock.NewRows(buyerColumns).
			AddRow("b-2", "user-2", "Ann", "Kim", "kim@example.com", "", now).
			AddRow("b-1", "user-1", "Ann", "Lee", "lee@example.com", "", now.Add(time.Minute)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM buyers WHERE first_name = $1`)).
		WithArgs("Ann").
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(int64(7)))
	mock.ExpectRollback()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	repo := storage.GetRepository(uow, tables.Buyers)

	got, err := repo.Find(ctx, storage.Query{
		Filter:  storage.Eq("first_name", "Ann"),
		OrderBy: []string{"created_at"},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b-2", got[0].ID)

	n, err := repo.Count(ctx, storage.Eq("first_name", "Ann"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, uow.Rollback(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitAppliesChangesInOrder(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	expectBegin(mock)
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtextextended($1, 0))")).
		WithArgs("cart:b-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products (id,name,description,price,seller_id,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)")).
		WithArgs("p-1", "Lamp", "", pgxmock.AnyArg(), "s-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET name = $1, description = $2, price = $3, seller_id = $4, created_at = $5, updated_at = $6 WHERE id = $7")).
		WithArgs("Desk Lamp", "", pgxmock.AnyArg(), "s-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "p-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM product_reviews WHERE id = $1")).
		WithArgs("r-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Lock(ctx, "cart:b-1"))

	products := storage.GetRepository(uow, tables.Products)
	p := domain.Product{ID: "p-1", Name: "Lamp", Price: decimal.NewFromInt(5), SellerID: "s-1"}
	require.NoError(t, products.Add(&p))
	p.Name = "Desk Lamp"
	require.NoError(t, products.Update(p))
	require.NoError(t, storage.GetRepository(uow, tables.Reviews).Delete(domain.ProductReview{ID: "r-1"}))

	require.NoError(t, uow.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitMissingRowIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	expectBegin(mock)
	mock.ExpectExec("DELETE FROM buyers").
		WithArgs("b-9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, storage.GetRepository(uow, tables.Buyers).Delete(domain.Buyer{ID: "b-9"}))

	err = uow.Commit(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitUniqueViolationIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	expectBegin(mock)
	mock.ExpectExec("INSERT INTO carts").
		WithArgs(anyArgs(4)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "carts_buyer_id_key"})
	mock.ExpectRollback()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, storage.GetRepository(uow, tables.Carts).Add(&domain.Cart{BuyerID: "b-1"}))

	err = uow.Commit(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitFailureIsClassified(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	expectBegin(mock)
	mock.ExpectExec("INSERT INTO buyers").
		WithArgs(anyArgs(len(buyerColumns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: pgSerializationFailure})
	mock.ExpectRollback()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, storage.GetRepository(uow, tables.Buyers).Add(&domain.Buyer{UserID: "u"}))

	err = uow.Commit(ctx)
	assert.True(t, domain.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BeginFailureIsStorageUnavailable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted}).
		WillReturnError(errors.New("connection refused"))

	_, err := store.Begin(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsStorageUnavailable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NilGuards(t *testing.T) {
	var store *Store

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected ping error for nil store")
	}
	if _, err := store.Begin(ctx); err == nil {
		t.Fatal("expected begin error for nil store")
	}
	store.Close()
}
