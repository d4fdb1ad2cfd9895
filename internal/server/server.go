package server

import (
	"context"
	"errors"
	"net/http"

	"rentalshop/internal/config"
	"rentalshop/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

type Server struct {
	e   *echo.Echo
	log *logrus.Logger
}

// New は共通ミドルウェア付きのechoを組み立てる
func New(cfg config.Config, log *logrus.Logger, h Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	RegisterRoutes(e, cfg, h)

	return &Server{e: e, log: log}
}

// Echo はテスト用にechoを返す
func (s *Server) Echo() *echo.Echo {
	return s.e
}

// Start はShutdownされるまでブロックする
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("http server started")
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
