package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentalshop/internal/domain/model"
	"rentalshop/internal/metrics"
	repo "rentalshop/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CheckoutUsecase はカート→注文の確定と注文参照。
type CheckoutUsecase struct {
	tx      repo.TransactionManager
	locker  repo.Locker
	metrics *metrics.AppMetrics
	log     *logrus.Logger

	timeout time.Duration
	lockTTL time.Duration
}

type CheckoutOptions struct {
	Timeout time.Duration
	LockTTL time.Duration
}

func NewCheckoutUsecase(tx repo.TransactionManager, locker repo.Locker, m *metrics.AppMetrics, log *logrus.Logger, opt CheckoutOptions) *CheckoutUsecase {
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	if opt.LockTTL <= 0 {
		opt.LockTTL = 30 * time.Second
	}
	return &CheckoutUsecase{
		tx:      tx,
		locker:  locker,
		metrics: m,
		log:     log,
		timeout: opt.Timeout,
		lockTTL: opt.LockTTL,
	}
}

type CheckoutInput struct {
	ShippingAddress model.ShippingAddress
	PaymentMethod   string
	// 空なら毎回新しい注文になる
	IdempotencyKey string
}

type OrderItemOutput struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Product   *model.Product  `json:"product,omitempty"`
}

type OrderOutput struct {
	ID              int64                 `json:"id"`
	UserID          int64                 `json:"user_id"`
	Status          string                `json:"status"`
	PaymentMethod   string                `json:"payment_method"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	CreatedAt       time.Time             `json:"created_at"`
	Items           []OrderItemOutput     `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

var orderDetail = repo.OrderInclude{Items: true, Products: true}

func validateShippingAddress(a model.ShippingAddress) error {
	fields := []struct {
		name  string
		value string
	}{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"country", a.Country},
		{"zip_code", a.ZipCode},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return validationError("shipping_address." + f.name + " required")
		}
	}
	return nil
}

// Checkout はカートの中身で注文を確定する。
// 在庫減算・注文作成・カートクリアは1つのTx。途中で失敗したら全部戻る。
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (out OrderOutput, err error) {
	started := time.Now()
	defer func() {
		u.metrics.RecordCheckout(ctx, resultOf(err), time.Since(started))
	}()

	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateShippingAddress(in.ShippingAddress); err != nil {
		return OrderOutput{}, err
	}
	method := model.PaymentMethod(strings.TrimSpace(in.PaymentMethod))
	if !method.Valid() {
		return OrderOutput{}, validationError("invalid payment_method")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 255 {
		return OrderOutput{}, validationError("invalid idempotency_key")
	}
	if key == "" {
		key = uuid.NewString()
	}

	// 同じユーザーの二重チェックアウトは早めに弾く
	if u.locker != nil {
		lock, err := u.locker.Acquire(ctx, checkoutLockKey(userID), u.lockTTL)
		if errors.Is(err, repo.ErrLockNotAcquired) {
			return OrderOutput{}, conflictError("checkout in progress")
		}
		if err != nil {
			return OrderOutput{}, internalError(ctx, u.log, "acquire checkout lock", err)
		}
		defer func() {
			if rerr := lock.Release(context.Background()); rerr != nil {
				u.log.WithError(rerr).WithField("user_id", userID).Warn("release checkout lock")
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	var (
		order   model.Order
		units   int64
		created bool
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return internalError(ctx, u.log, "find order by idempotency key", err)
		}
		if found {
			order, err = r.Orders().FindByID(ctx, existing.ID, orderDetail)
			if err != nil {
				return internalError(ctx, u.log, "reload order", err)
			}
			return nil
		}

		//カートをロックして取得
		cart, err := r.Carts().FindByUserIDForUpdate(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("cart not found")
		}
		if err != nil {
			return internalError(ctx, u.log, "find cart", err)
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return internalError(ctx, u.log, "list cart items", err)
		}
		if len(cartItems) == 0 {
			return validationError("cart empty")
		}

		orderItems := make([]model.OrderItem, 0, len(cartItems))
		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("product not found")
			}
			if err != nil {
				return internalError(ctx, u.log, "find product", err)
			}
			if p.Stock < ci.Quantity {
				return conflictError("insufficient stock")
			}

			//スナップショット（価格はカートに入れた時点、名前は今の商品名）
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           ci.ProductID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   ci.Price,
				Quantity:            ci.Quantity,
			})

			//在庫減算（読んだ後に他が減らしていたら false）
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, ci.ProductID, ci.Quantity)
			if err != nil {
				return internalError(ctx, u.log, "decrease stock", err)
			}
			if !ok {
				return conflictError("insufficient stock")
			}
			units += ci.Quantity
		}

		orderID, err := r.Orders().Create(ctx, model.Order{
			UserID:          userID,
			Status:          model.OrderStatusPending,
			PaymentMethod:   method,
			ShippingAddress: in.ShippingAddress,
			TotalAmount:     cart.TotalPrice,
			IdempotencyKey:  key,
		})
		if err != nil {
			return internalError(ctx, u.log, "create order", err)
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return internalError(ctx, u.log, "create order items", err)
		}

		// カートは残して中身だけ消す
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return internalError(ctx, u.log, "clear cart", err)
		}

		order, err = r.Orders().FindByID(ctx, orderID, orderDetail)
		if err != nil {
			return internalError(ctx, u.log, "reload order", err)
		}
		created = true
		return nil
	})
	if err != nil {
		// commit時のタイムアウトなど未分類のものもここで分類する
		return OrderOutput{}, internalError(ctx, u.log, "checkout", err)
	}

	if created {
		u.metrics.RecordOrder(ctx, order.TotalAmount, units, string(method))
		u.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"order_id": order.ID,
			"total":    order.TotalAmount.StringFixed(2),
			"items":    len(order.Items),
		}).Info("order created")
	}
	return toOrderOutput(order), nil
}

func checkoutLockKey(userID int64) string {
	return "checkout:user:" + strconv.FormatInt(userID, 10)
}

// 注文詳細（本人か管理者）
func (u *CheckoutUsecase) GetOrder(ctx context.Context, actor model.Actor, orderID int64) (OrderOutput, error) {
	if actor.UserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID, orderDetail)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("order not found")
		}
		if err != nil {
			return internalError(ctx, u.log, "find order", err)
		}
		if !actor.CanAccess(o.UserID) {
			return forbiddenError()
		}
		out = toOrderOutput(o)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 自分の注文一覧（新しい順）
func (u *CheckoutUsecase) ListOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return OrderListOutput{}, validationError("invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, validationError("invalid limit")
	}

	var out OrderListOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit, repo.OrderInclude{Items: true})
		if err != nil {
			return internalError(ctx, u.log, "list orders", err)
		}
		out = OrderListOutput{
			Items: toOrderOutputs(orders),
			Total: total,
			Page:  page,
			Limit: limit,
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// エラーの種類をメトリクスのラベルにする
func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrValidation):
		return metrics.ResultValidation
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrConflict):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}

func toOrderOutput(o model.Order) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(o.Items))
	for _, it := range o.Items {
		outItems = append(outItems, OrderItemOutput{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Product:   it.Product,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     o.TotalAmount,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}

func toOrderOutputs(orders []model.Order) []OrderOutput {
	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o))
	}
	return outs
}
