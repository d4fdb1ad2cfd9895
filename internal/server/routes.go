package server

import (
	"net/http"

	"rentalshop/internal/config"
	"rentalshop/internal/handler"

	"github.com/labstack/echo/v4"
)

// Handlers はルーティングに載せるハンドラ一式
type Handlers struct {
	Product      *handler.ProductHandler
	AdminProduct *handler.AdminProductHandler
	Cart         *handler.CartHandler
	Order        *handler.OrderHandler
	AdminOrder   *handler.AdminOrderHandler
	Booking      *handler.BookingHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	//nilのハンドラは載せない（テストで一部だけ使う）
	if h.Product != nil {
		h.Product.RegisterRoutes(e)
	}
	if h.AdminProduct != nil {
		h.AdminProduct.RegisterRoutes(e, cfg)
	}
	if h.Cart != nil {
		h.Cart.RegisterRoutes(e, cfg)
	}
	if h.Order != nil {
		h.Order.RegisterRoutes(e, cfg)
	}
	if h.AdminOrder != nil {
		h.AdminOrder.RegisterRoutes(e, cfg)
	}
	if h.Booking != nil {
		h.Booking.RegisterRoutes(e, cfg)
	}
}
