package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"rentalshop/internal/domain/model"
	"rentalshop/internal/infra/db/dbtest"
	infraRepo "rentalshop/internal/infra/repository"
	repo "rentalshop/internal/repository"
	"rentalshop/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckout_Success(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p1 := dbtest.SeedProduct(t, env.db, "Tent", "10", 5)

	addToCart(t, env, 1, p1.ID, 2)

	out, err := env.checkout.Checkout(ctx, 1, checkoutInput(""))
	require.NoError(t, err)

	assert.Equal(t, int64(3), dbtest.Stock(t, env.db, p1.ID))
	assert.True(t, out.TotalAmount.Equal(decimal.NewFromInt(20)), "total=%s", out.TotalAmount)
	assert.Equal(t, "pending", out.Status)
	assert.Equal(t, "cash_on_delivery", out.PaymentMethod)
	assert.Equal(t, "Shibuya", out.ShippingAddress.City)

	require.Len(t, out.Items, 1)
	assert.Equal(t, p1.ID, out.Items[0].ProductID)
	assert.Equal(t, int64(2), out.Items[0].Quantity)
	assert.True(t, out.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "Tent", out.Items[0].Name)
	// 詳細は商品もロード済み
	require.NotNil(t, out.Items[0].Product)
	assert.Equal(t, "Tent", out.Items[0].Product.Name)

	// カートは残って空になる
	cart, err := env.cart.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, int64(0), cart.TotalItems)
	assert.True(t, cart.TotalPrice.IsZero())

	var carts int64
	require.NoError(t, env.db.Model(&model.Cart{}).Where("user_id = ?", 1).Count(&carts).Error)
	assert.Equal(t, int64(1), carts)
}

func TestCheckout_RollsBackEverythingOnInsufficientStock(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p1 := dbtest.SeedProduct(t, env.db, "Canoe", "30", 2)
	p2 := dbtest.SeedProduct(t, env.db, "Paddle", "5", 5)

	// P2が先に減算されてからP1で失敗する順番
	addToCart(t, env, 1, p2.ID, 1)
	before := addToCart(t, env, 1, p1.ID, 2)
	setStock(t, env, p1.ID, 1)

	_, err := env.checkout.Checkout(ctx, 1, checkoutInput(""))
	assert.ErrorIs(t, err, usecase.ErrConflict)
	assertErrContains(t, err, "insufficient stock")

	assert.Equal(t, int64(1), dbtest.Stock(t, env.db, p1.ID))
	assert.Equal(t, int64(5), dbtest.Stock(t, env.db, p2.ID))

	after, err := env.cart.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before.TotalItems, after.TotalItems)
	assert.True(t, before.TotalPrice.Equal(after.TotalPrice))
	assert.Len(t, after.Items, 2)

	var orders int64
	require.NoError(t, env.db.Model(&model.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(0), orders)
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Drone", "300", 1)

	addToCart(t, env, 1, p.ID, 1)
	addToCart(t, env, 2, p.ID, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.checkout.Checkout(ctx, int64(i+1), checkoutInput(""))
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, usecase.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, int64(0), dbtest.Stock(t, env.db, p.ID))
}

// 読んだ後・減算の前に在庫を0にする（別Txに先を越された状態）
type drainingTx struct {
	inner     repo.TransactionManager
	productID int64
}

func (m drainingTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return m.inner.WithinTx(ctx, func(r repo.TxRepos) error {
		return fn(drainingRepos{
			TxRepos: r,
			inv:     drainingInventory{InventoryRepository: r.Inventory(), productID: m.productID},
		})
	})
}

type drainingRepos struct {
	repo.TxRepos
	inv repo.InventoryRepository
}

func (r drainingRepos) Inventory() repo.InventoryRepository { return r.inv }

type drainingInventory struct {
	repo.InventoryRepository
	productID int64
}

func (i drainingInventory) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	if productID == i.productID {
		if err := i.InventoryRepository.SetStock(ctx, productID, 0); err != nil {
			return false, err
		}
	}
	return i.InventoryRepository.DecreaseStockIfEnough(ctx, productID, qty)
}

func TestCheckout_LostRaceOnDecrementRollsBack(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p1 := dbtest.SeedProduct(t, env.db, "Tarp", "8", 5)
	p2 := dbtest.SeedProduct(t, env.db, "Cooler", "40", 2)

	addToCart(t, env, 1, p1.ID, 2)
	before := addToCart(t, env, 1, p2.ID, 1)

	tx := drainingTx{inner: infraRepo.NewTxManagerGorm(env.db), productID: p2.ID}
	checkout := usecase.NewCheckoutUsecase(tx, env.locker, nil, quietLogger(), usecase.CheckoutOptions{})

	_, err := checkout.Checkout(ctx, 1, checkoutInput("lost-race"))
	assert.ErrorIs(t, err, usecase.ErrConflict)
	assertErrContains(t, err, "insufficient stock")

	// P1の減算もP2の0書き込みも戻る
	assert.Equal(t, int64(5), dbtest.Stock(t, env.db, p1.ID))
	assert.Equal(t, int64(2), dbtest.Stock(t, env.db, p2.ID))

	var orders int64
	require.NoError(t, env.db.Model(&model.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(0), orders)

	after, err := env.cart.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, after.Items, 2)
	assert.Equal(t, before.TotalItems, after.TotalItems)
}

func TestCheckout_IdempotencyKeyIsPerUser(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Compass", "9", 5)

	addToCart(t, env, 1, p.ID, 1)
	addToCart(t, env, 2, p.ID, 1)

	first, err := env.checkout.Checkout(ctx, 1, checkoutInput("order-1"))
	require.NoError(t, err)

	// 別ユーザーが同じキーを使っても別の注文になる
	second, err := env.checkout.Checkout(ctx, 2, checkoutInput("order-1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.UserID)
	assert.Equal(t, int64(3), dbtest.Stock(t, env.db, p.ID))

	again, err := env.checkout.Checkout(ctx, 2, checkoutInput("order-1"))
	require.NoError(t, err)
	assert.Equal(t, second.ID, again.ID)
}

func TestCheckout_SameIdempotencyKeyReturnsSameOrder(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Lantern", "12.50", 4)
	addToCart(t, env, 1, p.ID, 2)

	first, err := env.checkout.Checkout(ctx, 1, checkoutInput("key-1"))
	require.NoError(t, err)

	// カートは空だが同じキーなら同じ注文が返る
	second, err := env.checkout.Checkout(ctx, 1, checkoutInput("key-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Items, 1)
	assert.Equal(t, int64(2), dbtest.Stock(t, env.db, p.ID))

	// 別のキーならカートが空なので失敗
	_, err = env.checkout.Checkout(ctx, 1, checkoutInput("key-2"))
	assert.ErrorIs(t, err, usecase.ErrValidation)
	assertErrContains(t, err, "cart empty")
}

func TestCheckout_NoCartIsNotFound(t *testing.T) {
	env := newEnv(t)

	_, err := env.checkout.Checkout(context.Background(), 1, checkoutInput(""))
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

func TestCheckout_EmptyCart(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	_, err := env.cart.GetCart(ctx, 1)
	require.NoError(t, err)

	_, err = env.checkout.Checkout(ctx, 1, checkoutInput(""))
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestCheckout_InputValidation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	in := checkoutInput("")
	in.PaymentMethod = "bitcoin"
	_, err := env.checkout.Checkout(ctx, 1, in)
	assertErrContains(t, err, "invalid payment_method")

	in = checkoutInput("")
	in.ShippingAddress.ZipCode = " "
	_, err = env.checkout.Checkout(ctx, 1, in)
	assertErrContains(t, err, "shipping_address.zip_code required")

	_, err = env.checkout.Checkout(ctx, 0, checkoutInput(""))
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
}

func TestCheckout_DeletedProductIsNotFound(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Stove", "40", 3)
	addToCart(t, env, 1, p.ID, 1)

	require.NoError(t, env.products.AdminDeleteProduct(ctx, admin(9), p.ID))

	_, err := env.checkout.Checkout(ctx, 1, checkoutInput(""))
	assert.ErrorIs(t, err, usecase.ErrNotFound)
	assertErrContains(t, err, "product not found")
	assert.Equal(t, int64(3), dbtest.Stock(t, env.db, p.ID))
}

func TestCheckout_InProgressLockIsConflict(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Tent", "10", 5)
	addToCart(t, env, 1, p.ID, 1)

	held, err := env.locker.Acquire(ctx, "checkout:user:1", time.Minute)
	require.NoError(t, err)

	_, err = env.checkout.Checkout(ctx, 1, checkoutInput(""))
	assert.ErrorIs(t, err, usecase.ErrConflict)
	assertErrContains(t, err, "checkout in progress")

	require.NoError(t, held.Release(ctx))
	_, err = env.checkout.Checkout(ctx, 1, checkoutInput(""))
	assert.NoError(t, err)
}

func TestCheckout_DeadlineRollsBack(t *testing.T) {
	ctx := context.Background()
	env := newEnvWith(t, nil, usecase.CheckoutOptions{Timeout: time.Nanosecond})
	p := dbtest.SeedProduct(t, env.db, "Tent", "10", 5)
	addToCart(t, env, 1, p.ID, 2)

	_, err := env.checkout.Checkout(ctx, 1, checkoutInput(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 504, he.Status)

	assert.Equal(t, int64(5), dbtest.Stock(t, env.db, p.ID))
}

func TestGetOrder_OwnerOrAdmin(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Tent", "10", 5)
	addToCart(t, env, 1, p.ID, 1)
	order, err := env.checkout.Checkout(ctx, 1, checkoutInput(""))
	require.NoError(t, err)

	got, err := env.checkout.GetOrder(ctx, user(1), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = env.checkout.GetOrder(ctx, user(2), order.ID)
	assert.ErrorIs(t, err, usecase.ErrForbidden)

	got, err = env.checkout.GetOrder(ctx, admin(99), order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.NotNil(t, got.Items[0].Product)

	_, err = env.checkout.GetOrder(ctx, user(1), 12345)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

func TestListOrders_NewestFirst(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Tent", "10", 10)

	var ids []int64
	for i := 0; i < 3; i++ {
		addToCart(t, env, 1, p.ID, 1)
		o, err := env.checkout.Checkout(ctx, 1, checkoutInput(""))
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	out, err := env.checkout.ListOrders(ctx, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Total)
	require.Len(t, out.Items, 2)
	assert.Equal(t, ids[2], out.Items[0].ID)
	assert.Equal(t, ids[1], out.Items[1].ID)
	assert.Len(t, out.Items[0].Items, 1)

	_, err = env.checkout.ListOrders(ctx, 1, 0, 10)
	assertErrContains(t, err, "invalid page")
	_, err = env.checkout.ListOrders(ctx, 1, 1, 101)
	assertErrContains(t, err, "invalid limit")
}
