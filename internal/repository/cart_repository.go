package repository

import (
	"context"

	"rentalshop/internal/domain/model"

	"github.com/shopspring/decimal"
)

type CartRepository interface {
	// 無ければ作成（1ユーザー1カート）
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// 行ロック付きで取得。無ければErrNotFound
	FindByUserIDForUpdate(ctx context.Context, userID int64) (model.Cart, error)
	SaveTotals(ctx context.Context, cart model.Cart) error
	// 明細を全削除して合計を0にする（カート自体は残す）
	Clear(ctx context.Context, cartID int64) error
}

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByCartAndProduct(ctx context.Context, cartID int64, productID int64) (model.CartItem, error)
	// 同一商品は数量加算、価格は最初の追加時のまま
	UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64, price decimal.Decimal) error
	UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error
	DeleteByID(ctx context.Context, cartItemID int64) error
}
