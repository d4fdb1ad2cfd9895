package handler

import (
	"net/http"
	"strconv"

	"rentalshop/internal/config"
	"rentalshop/internal/middleware"
	"rentalshop/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// /bookingsのHTTP
type BookingHandler struct {
	uc *usecase.BookingUsecase
}

func NewBookingHandler(uc *usecase.BookingUsecase) *BookingHandler {
	return &BookingHandler{uc: uc}
}

// 日付は YYYY-MM-DD（RFC3339も可）
type BookingCreateRequest struct {
	ProductID       int64           `json:"product_id"`
	Price           decimal.Decimal `json:"price"`
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	DeliveryAddress string          `json:"delivery_address"`
	DeliveryTime    string          `json:"delivery_time"`
	SpecialRequests *string         `json:"special_requests"`
}

// 送られた項目だけ更新
type BookingUpdateRequest struct {
	Status          *string `json:"status"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
	DeliveryAddress *string `json:"delivery_address"`
	DeliveryTime    *string `json:"delivery_time"`
	SpecialRequests *string `json:"special_requests"`
	Paid            *bool   `json:"paid"`
}

func (h *BookingHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/bookings")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/availability", h.availability)
	g.GET("/:id", h.detail)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *BookingHandler) create(c echo.Context) error {
	actor, ok := getActor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req BookingCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	b, err := h.uc.CreateBooking(c.Request().Context(), actor, usecase.CreateBookingInput{
		ProductID:       req.ProductID,
		Price:           req.Price,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryTime:    req.DeliveryTime,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, b)
}

func (h *BookingHandler) list(c echo.Context) error {
	actor, ok := getActor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	userID, ok := queryInt64Ptr(c, "user_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user_id"})
	}
	productID, ok := queryInt64Ptr(c, "product_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	items, err := h.uc.ListBookings(c.Request().Context(), actor, usecase.ListBookingsInput{
		UserID:    userID,
		ProductID: productID,
		From:      c.QueryParam("from"),
		To:        c.QueryParam("to"),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, items)
}

// 空き状況 ?product_id=&start_date=&end_date=
func (h *BookingHandler) availability(c echo.Context) error {
	productID, err := strconv.ParseInt(c.QueryParam("product_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	res, err := h.uc.CheckAvailability(c.Request().Context(), productID, c.QueryParam("start_date"), c.QueryParam("end_date"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, res)
}

func (h *BookingHandler) detail(c echo.Context) error {
	actor, ok := getActor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	b, err := h.uc.GetBooking(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) update(c echo.Context) error {
	actor, ok := getActor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req BookingUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	b, err := h.uc.UpdateBooking(c.Request().Context(), actor, id, usecase.UpdateBookingInput{
		Status:          req.Status,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryTime:    req.DeliveryTime,
		SpecialRequests: req.SpecialRequests,
		Paid:            req.Paid,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) delete(c echo.Context) error {
	actor, ok := getActor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.DeleteBooking(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}
