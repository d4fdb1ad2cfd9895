package usecase

import (
	"context"
	"errors"
	"strings"

	"rentalshop/internal/domain/model"
	repo "rentalshop/internal/repository"

	"github.com/sirupsen/logrus"
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	auditRepo repo.AuditLogRepository
	log       *logrus.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, auditRepo repo.AuditLogRepository, log *logrus.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, auditRepo: auditRepo, log: log}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 注文一覧（明細つき）
func (u *AdminOrderUsecase) List(ctx context.Context, actor model.Actor, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	if !actor.IsAdmin() {
		return OrderListOutput{}, forbiddenError()
	}
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, validationError("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, validationError("invalid limit")
	}
	if f.Status != "" && !model.OrderStatus(f.Status).Valid() {
		return OrderListOutput{}, validationError("invalid status")
	}

	var out OrderListOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return internalError(ctx, u.log, "list admin orders", err)
		}

		for i := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, orders[i].ID)
			if err != nil {
				return internalError(ctx, u.log, "list order items", err)
			}
			orders[i].Items = items
		}

		out = OrderListOutput{
			Items: toOrderOutputs(orders),
			Total: total,
			Page:  f.Page,
			Limit: f.Limit,
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// ステータス更新（cancelledなら在庫戻し）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actor model.Actor, orderID int64, in AdminUpdateOrderStatusInput) error {
	if !actor.IsAdmin() {
		return forbiddenError()
	}
	if orderID <= 0 {
		return validationError("invalid id")
	}

	newStatus := model.OrderStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if !newStatus.Valid() {
		return validationError("invalid status")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID, repo.OrderInclude{})
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("order not found")
		}
		if err != nil {
			return internalError(ctx, u.log, "find order", err)
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			return nil
		}
		if !o.Status.CanTransitionTo(newStatus) {
			return conflictError("cannot change " + string(o.Status) + " order to " + string(newStatus))
		}

		if newStatus == model.OrderStatusCancelled {
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return internalError(ctx, u.log, "list order items", err)
			}
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return internalError(ctx, u.log, "restock", err)
				}
			}
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("order not found")
			}
			return internalError(ctx, u.log, "update order status", err)
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   auditJSON(map[string]interface{}{"status": o.Status}),
			AfterJSON:    auditJSON(map[string]interface{}{"status": newStatus}),
		}); err != nil {
			return internalError(ctx, u.log, "audit order status", err)
		}

		u.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"admin_id": actor.UserID,
			"from":     o.Status,
			"to":       newStatus,
		}).Info("order status changed")
		return nil
	})
}

// 監査ログの一覧（新しい順）
func (u *AdminOrderUsecase) ListAuditLogs(ctx context.Context, actor model.Actor, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, forbiddenError()
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.Limit < 1 || f.Limit > 200 {
		return nil, validationError("invalid limit")
	}
	if f.Offset < 0 {
		return nil, validationError("invalid offset")
	}

	logs, err := u.auditRepo.List(ctx, f)
	if err != nil {
		return nil, internalError(ctx, u.log, "list audit logs", err)
	}
	return logs, nil
}
