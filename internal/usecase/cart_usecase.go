package usecase

import (
	"context"
	"errors"
	"math"
	"net/http"

	"rentalshop/internal/domain/model"
	repo "rentalshop/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CartUsecase は /cart の業務ロジックです。
// 変更は全部Tx内で行い、同じTxで合計を計算し直す。
type CartUsecase struct {
	tx  repo.TransactionManager
	log *logrus.Logger
}

func NewCartUsecase(tx repo.TransactionManager, log *logrus.Logger) *CartUsecase {
	return &CartUsecase{tx: tx, log: log}
}

// price は追加時点の価格
type CartItemOutput struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartOutput struct {
	ID         int64            `json:"id"`
	UserID     int64            `json:"user_id"`
	Items      []CartItemOutput `json:"items"`
	TotalItems int64            `json:"total_items"`
	TotalPrice decimal.Decimal  `json:"total_price"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

// GetCart はカート取得（無ければ空で作る）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return internalError(ctx, u.log, "get cart", err)
		}
		items, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return internalError(ctx, u.log, "list cart items", err)
		}
		out = toCartOutput(cart, items)
		return nil
	})
	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

// AddItem はカートに追加（同一商品は数量加算、価格は最初のまま）。
func (u *CartUsecase) AddItem(ctx context.Context, userID int64, in AddCartInput) (CartOutput, error) {
	return u.AddItems(ctx, userID, []AddCartInput{in})
}

// AddItems はまとめて追加。1つでも失敗したら何も追加しない。
func (u *CartUsecase) AddItems(ctx context.Context, userID int64, in []AddCartInput) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in) == 0 {
		return CartOutput{}, validationError("items required")
	}

	// 同じ商品はまとめる（順序は最初の出現順）
	merged := make([]AddCartInput, 0, len(in))
	index := map[int64]int{}
	for _, it := range in {
		if it.ProductID <= 0 {
			return CartOutput{}, validationError("invalid product_id")
		}
		if it.Quantity < 1 {
			return CartOutput{}, validationError("invalid quantity")
		}
		if i, ok := index[it.ProductID]; ok {
			// 合計がint64を超える数量は受け付けない
			if merged[i].Quantity > math.MaxInt64-it.Quantity {
				return CartOutput{}, validationError("invalid quantity")
			}
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return internalError(ctx, u.log, "get cart", err)
		}

		for _, it := range merged {
			if err := u.addLine(ctx, r, cart.ID, it); err != nil {
				return err
			}
		}

		out, err = u.recalculate(ctx, r, cart)
		return err
	})
	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

func (u *CartUsecase) addLine(ctx context.Context, r repo.TxRepos, cartID int64, in AddCartInput) error {
	p, err := r.Products().FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundError("product not found")
	}
	if err != nil {
		return internalError(ctx, u.log, "find product", err)
	}

	var existingQty int64
	existing, err := r.CartItems().FindByCartAndProduct(ctx, cartID, in.ProductID)
	switch {
	case err == nil:
		existingQty = existing.Quantity
	case errors.Is(err, repo.ErrNotFound):
	default:
		return internalError(ctx, u.log, "find cart item", err)
	}

	// 足し算だと桁あふれするので残りと比べる
	if in.Quantity > p.Stock-existingQty {
		return conflictError("insufficient stock")
	}

	if err := r.CartItems().UpsertByCartAndProduct(ctx, cartID, in.ProductID, in.Quantity, p.Price); err != nil {
		return internalError(ctx, u.log, "upsert cart item", err)
	}
	return nil
}

// 数量変更。0なら明細を消す。価格は更新しない。
func (u *CartUsecase) UpdateItem(ctx context.Context, userID int64, productID int64, quantity int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartOutput{}, validationError("invalid product_id")
	}
	if quantity < 0 {
		return CartOutput{}, validationError("invalid quantity")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, item, err := u.findLine(ctx, r, userID, productID)
		if err != nil {
			return err
		}

		if quantity == 0 {
			if err := r.CartItems().DeleteByID(ctx, item.ID); err != nil {
				return internalError(ctx, u.log, "delete cart item", err)
			}
			out, err = u.recalculate(ctx, r, cart)
			return err
		}

		//商品の在庫チェック
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("product not found")
		}
		if err != nil {
			return internalError(ctx, u.log, "find product", err)
		}
		if quantity > p.Stock {
			return conflictError("insufficient stock")
		}

		if err := r.CartItems().UpdateQuantity(ctx, item.ID, quantity); err != nil {
			return internalError(ctx, u.log, "update cart item", err)
		}
		out, err = u.recalculate(ctx, r, cart)
		return err
	})
	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

// 明細削除
func (u *CartUsecase) RemoveItem(ctx context.Context, userID int64, productID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartOutput{}, validationError("invalid product_id")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, item, err := u.findLine(ctx, r, userID, productID)
		if err != nil {
			return err
		}
		if err := r.CartItems().DeleteByID(ctx, item.ID); err != nil {
			return internalError(ctx, u.log, "delete cart item", err)
		}
		out, err = u.recalculate(ctx, r, cart)
		return err
	})
	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

// 明細を全部消す（カートは残す）
func (u *CartUsecase) Clear(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out CartOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindByUserIDForUpdate(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("cart not found")
		}
		if err != nil {
			return internalError(ctx, u.log, "find cart", err)
		}
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return internalError(ctx, u.log, "clear cart", err)
		}
		cart.Recalculate(nil)
		out = toCartOutput(cart, nil)
		return nil
	})
	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

func (u *CartUsecase) findLine(ctx context.Context, r repo.TxRepos, userID int64, productID int64) (model.Cart, model.CartItem, error) {
	cart, err := r.Carts().FindByUserIDForUpdate(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, model.CartItem{}, notFoundError("cart not found")
	}
	if err != nil {
		return model.Cart{}, model.CartItem{}, internalError(ctx, u.log, "find cart", err)
	}

	item, err := r.CartItems().FindByCartAndProduct(ctx, cart.ID, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, model.CartItem{}, notFoundError("item not found")
	}
	if err != nil {
		return model.Cart{}, model.CartItem{}, internalError(ctx, u.log, "find cart item", err)
	}
	return cart, item, nil
}

// 明細から合計を計算し直して保存
func (u *CartUsecase) recalculate(ctx context.Context, r repo.TxRepos, cart model.Cart) (CartOutput, error) {
	items, err := r.CartItems().ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartOutput{}, internalError(ctx, u.log, "list cart items", err)
	}

	cart.Recalculate(items)
	if err := r.Carts().SaveTotals(ctx, cart); err != nil {
		return CartOutput{}, internalError(ctx, u.log, "save cart totals", err)
	}

	u.log.WithFields(logrus.Fields{
		"user_id":     cart.UserID,
		"total_items": cart.TotalItems,
	}).Debug("cart updated")

	return toCartOutput(cart, items), nil
}

func toCartOutput(cart model.Cart, items []model.CartItem) CartOutput {
	outItems := make([]CartItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, CartItemOutput{
			ID:        it.ID,
			ProductID: it.ProductID,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal(),
		})
	}

	return CartOutput{
		ID:         cart.ID,
		UserID:     cart.UserID,
		Items:      outItems,
		TotalItems: cart.TotalItems,
		TotalPrice: cart.TotalPrice,
	}
}
