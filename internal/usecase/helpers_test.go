package usecase_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"rentalshop/internal/domain/model"
	"rentalshop/internal/infra/db/dbtest"
	"rentalshop/internal/infra/lock"
	infraRepo "rentalshop/internal/infra/repository"
	"rentalshop/internal/usecase"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// sqliteを使ったusecase一式
type testEnv struct {
	db       *gorm.DB
	locker   *lock.LocalLocker
	products *usecase.ProductUsecase
	cart     *usecase.CartUsecase
	checkout *usecase.CheckoutUsecase
	bookings *usecase.BookingUsecase
	admin    *usecase.AdminOrderUsecase
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newEnv(t *testing.T) *testEnv {
	return newEnvWith(t, nil, usecase.CheckoutOptions{})
}

func newEnvWith(t *testing.T, notifier usecase.BookingNotifier, opt usecase.CheckoutOptions) *testEnv {
	t.Helper()

	gdb := dbtest.New(t)
	log := quietLogger()
	tx := infraRepo.NewTxManagerGorm(gdb)
	locker := lock.NewLocalLocker()

	return &testEnv{
		db:       gdb,
		locker:   locker,
		products: usecase.NewProductUsecase(tx, infraRepo.NewProductGormRepository(gdb), log),
		cart:     usecase.NewCartUsecase(tx, log),
		checkout: usecase.NewCheckoutUsecase(tx, locker, nil, log, opt),
		bookings: usecase.NewBookingUsecase(tx, infraRepo.NewBookingGormRepository(gdb), notifier, nil, log),
		admin:    usecase.NewAdminOrderUsecase(tx, infraRepo.NewAuditLogGormRepository(gdb), log),
	}
}

func user(id int64) model.Actor  { return model.Actor{UserID: id, Role: model.RoleUser} }
func admin(id int64) model.Actor { return model.Actor{UserID: id, Role: model.RoleAdmin} }

func address() model.ShippingAddress {
	return model.ShippingAddress{
		Street:  "1-2-3 Jingumae",
		City:    "Shibuya",
		State:   "Tokyo",
		Country: "JP",
		ZipCode: "150-0001",
	}
}

func checkoutInput(key string) usecase.CheckoutInput {
	return usecase.CheckoutInput{
		ShippingAddress: address(),
		PaymentMethod:   "cash_on_delivery",
		IdempotencyKey:  key,
	}
}

func addToCart(t *testing.T, env *testEnv, userID int64, productID int64, qty int64) usecase.CartOutput {
	t.Helper()
	out, err := env.cart.AddItem(context.Background(), userID, usecase.AddCartInput{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
	return out
}

// 在庫を直接書き換える（カート投入後に在庫が減ったケース用）
func setStock(t *testing.T, env *testEnv, productID int64, stock int64) {
	t.Helper()
	require.NoError(t, env.db.Model(&model.Product{}).Where("id = ?", productID).Update("stock", stock).Error)
}

// HTTPErrorの実装詳細に依存しない
func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
