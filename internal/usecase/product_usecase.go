package usecase

import (
	"context"
	"errors"
	"strings"

	"rentalshop/internal/domain/model"
	repo "rentalshop/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ProductUsecase struct {
	tx          repo.TransactionManager
	productRepo repo.ProductRepository
	log         *logrus.Logger
}

// DI
func NewProductUsecase(tx repo.TransactionManager, productRepo repo.ProductRepository, log *logrus.Logger) *ProductUsecase {
	return &ProductUsecase{tx: tx, productRepo: productRepo, log: log}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) ListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, validationError("invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, validationError("invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, validationError("q too long")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, validationError("min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, validationError("max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, validationError("min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, validationError("invalid sort")
	}

	items, total, err := u.productRepo.List(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, internalError(ctx, u.log, "list products", err)
	}

	return ProductListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

func (u *ProductUsecase) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFoundError("product not found")
	}
	if err != nil {
		return model.Product{}, internalError(ctx, u.log, "get product", err)
	}
	return p, nil
}

type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int64
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return validationError("name required")
	}
	if in.Price.IsNegative() {
		return validationError("price must be >= 0")
	}
	if in.Stock < 0 {
		return validationError("stock must be >= 0")
	}
	return nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, actor model.Actor, in ProductInput) (model.Product, error) {
	if !actor.IsAdmin() {
		return model.Product{}, forbiddenError()
	}
	if err := validateProductInput(in); err != nil {
		return model.Product{}, err
	}

	p, err := u.productRepo.Create(ctx, model.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	})
	if err != nil {
		return model.Product{}, internalError(ctx, u.log, "create product", err)
	}

	u.log.WithFields(logrus.Fields{"product_id": p.ID, "admin_id": actor.UserID}).Info("product created")
	return p, nil
}

// 在庫はAdminUpdateInventoryで変える（履歴を残すため）
func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, actor model.Actor, productID int64, in ProductInput) error {
	if !actor.IsAdmin() {
		return forbiddenError()
	}
	if productID <= 0 {
		return validationError("invalid product id")
	}
	if err := validateProductInput(in); err != nil {
		return err
	}

	err := u.productRepo.Update(ctx, model.Product{
		ID:          productID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
	})
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundError("product not found")
	}
	if err != nil {
		return internalError(ctx, u.log, "update product", err)
	}
	return nil
}

// 論理削除。カートに残っていてもチェックアウト時にNotFoundになる
func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, actor model.Actor, productID int64) error {
	if !actor.IsAdmin() {
		return forbiddenError()
	}
	if productID <= 0 {
		return validationError("invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundError("product not found")
	}
	if err != nil {
		return internalError(ctx, u.log, "delete product", err)
	}
	return nil
}

// 在庫を現在値で上書きし、調整履歴と監査ログを同じTxで残す
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, actor model.Actor, productID int64, newStock int64, reason string) error {
	if !actor.IsAdmin() {
		return forbiddenError()
	}
	if productID <= 0 {
		return validationError("invalid product id")
	}
	if newStock < 0 {
		return validationError("stock must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return validationError("reason required")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（ロックしてチェックアウトと競合させない）
		p, err := r.Products().FindByIDForUpdate(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("product not found")
		}
		if err != nil {
			return internalError(ctx, u.log, "lock product", err)
		}

		if err := r.Inventory().SetStock(ctx, productID, newStock); err != nil {
			return internalError(ctx, u.log, "set stock", err)
		}

		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: actor.UserID,
			StockBefore: p.Stock,
			StockAfter:  newStock,
			Delta:       newStock - p.Stock,
			Reason:      reason,
		}); err != nil {
			return internalError(ctx, u.log, "create adjustment", err)
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   auditJSON(map[string]interface{}{"stock": p.Stock}),
			AfterJSON:    auditJSON(map[string]interface{}{"stock": newStock, "reason": reason}),
		}); err != nil {
			return internalError(ctx, u.log, "audit stock", err)
		}
		return nil
	})
}
