package cart

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/servicetest"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
)

type fixture struct {
	env     *servicetest.Env
	svc     *Service
	buyer   domain.Buyer
	product domain.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	env := servicetest.New(t)
	seller := env.Seller(t, "alice")
	return fixture{
		env:     env,
		svc:     NewService(env.Runner, servicetest.Logger()),
		buyer:   env.Buyer(t, "bob"),
		product: env.Product(t, seller, "Lamp", "10"),
	}
}

func TestAddToCart_MergesRepeatedAdds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddToCart(ctx, "bob", f.product.ID, 2))
	require.NoError(t, f.svc.AddToCart(ctx, "bob", f.product.ID, 2))

	items := servicetest.All(t, f.env, tables.CartItems)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, f.product.ID, items[0].ProductID)

	carts := servicetest.All(t, f.env, tables.Carts)
	require.Len(t, carts, 1)
	assert.Equal(t, f.buyer.ID, carts[0].BuyerID)

	assert.Len(t, servicetest.All(t, f.env, tables.Outbox), 2)
}

func TestAddToCart_DifferentProductsGetOwnItems(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seller := servicetest.All(t, f.env, tables.Sellers)[0]
	chair := f.env.Product(t, seller, "Chair", "40")
	ctx := context.Background()

	require.NoError(t, f.svc.AddToCart(ctx, "bob", f.product.ID, 1))
	require.NoError(t, f.svc.AddToCart(ctx, "bob", chair.ID, 3))

	cart, err := f.svc.GetCart(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 4, cart.TotalQuantity())
	item, ok := cart.ItemFor(chair.ID)
	require.True(t, ok)
	assert.Equal(t, 3, item.Quantity)

	var chairEvent map[string]any
	for _, msg := range servicetest.All(t, f.env, tables.Outbox) {
		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		if payload["product_id"] == chair.ID {
			chairEvent = payload
		}
	}
	require.NotNil(t, chairEvent)
	assert.EqualValues(t, 3, chairEvent["added"])
	assert.EqualValues(t, 4, chairEvent["cart_quantity"])
}

func TestAddToCart_InvalidQuantityLeavesCartUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddToCart(ctx, "bob", f.product.ID, 1))

	for _, quantity := range []int{0, -1} {
		err := f.svc.AddToCart(ctx, "bob", f.product.ID, quantity)
		assert.ErrorIs(t, err, domain.ErrQuantityInvalid)
		assert.True(t, domain.IsInvalidArgument(err))
	}

	items := servicetest.All(t, f.env, tables.CartItems)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestAddToCart_Rejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.AddToCart(ctx, "alice", f.product.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotBuyer)

	err = f.svc.AddToCart(ctx, "nobody", f.product.ID, 0)
	assert.True(t, domain.IsNotAuthorized(err), "caller is resolved before quantity is validated")

	err = f.svc.AddToCart(ctx, "bob", "missing", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	err = f.svc.AddToCart(ctx, "bob", "missing", 0)
	assert.True(t, domain.IsInvalidArgument(err), "quantity is validated before product lookup")

	assert.Empty(t, servicetest.All(t, f.env, tables.Carts))
	assert.Empty(t, servicetest.All(t, f.env, tables.Outbox))
}

func TestAddToCart_ConcurrentAddsAreNotLost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	const n = 25

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.AddToCart(context.Background(), "bob", f.product.ID, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	carts := servicetest.All(t, f.env, tables.Carts, tables.RelItems)
	require.Len(t, carts, 1)
	require.Len(t, carts[0].Items, 1)
	assert.Equal(t, n, carts[0].Items[0].Quantity)
}

func TestAddToCart_FailedCommitLeavesNoTrace(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	// Держим блокировку корзины, пока товар удаляется: операция пройдёт проверку
	// товара, дождётся блокировки и упрётся во внешний ключ на коммите.
	holder, err := f.env.Store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, holder.Lock(ctx, LockKey(f.buyer.ID)))

	done := make(chan error, 1)
	go func() {
		done <- f.svc.AddToCart(ctx, "bob", f.product.ID, 1)
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, storage.GetRepository(holder, tables.Products).Delete(f.product))
	require.NoError(t, holder.Commit(ctx))

	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("add to cart did not finish")
	}
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err), "unexpected error %v", err)

	assert.Empty(t, servicetest.All(t, f.env, tables.Carts))
	assert.Empty(t, servicetest.All(t, f.env, tables.CartItems))
	assert.Empty(t, servicetest.All(t, f.env, tables.Outbox))
}

func TestGetCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.GetCart(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, empty.ID)
	assert.Equal(t, f.buyer.ID, empty.BuyerID)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)

	require.NoError(t, f.svc.AddToCart(ctx, "bob", f.product.ID, 2))
	cart, err := f.svc.GetCart(ctx, "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, cart.ID)
	assert.Equal(t, 2, cart.TotalQuantity())

	_, err = f.svc.GetCart(ctx, "alice")
	assert.True(t, domain.IsNotAuthorized(err))
}
