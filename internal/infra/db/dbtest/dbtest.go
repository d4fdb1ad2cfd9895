// Package dbtest はテスト用のsqliteインメモリDBを用意する。
package dbtest

import (
	"testing"

	"rentalshop/internal/domain/model"
	"rentalshop/internal/infra/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// New はテストごとに独立したDBを返す（接続1本なのでTxは直列になる）。
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := db.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// SeedProduct は価格と在庫を指定して商品を作る。
func SeedProduct(t testing.TB, gdb *gorm.DB, name string, price string, stock int64) model.Product {
	t.Helper()

	p := model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	if err := gdb.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

// Stock は現在の在庫を読む（論理削除済みも含む）。
func Stock(t testing.TB, gdb *gorm.DB, productID int64) int64 {
	t.Helper()

	var p model.Product
	if err := gdb.Unscoped().First(&p, productID).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return p.Stock
}
