package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// エラーの種類。errors.Is(err, ErrConflict) のように判定する。
var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

// HTTPError はusecaseが返す唯一のエラー型。Errは原因（ログ用）。
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ステータスから種類を判定
func (e *HTTPError) Is(target error) bool {
	return target == kindOf(e.Status)
}

func kindOf(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrInternal
	}
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func validationError(msg string) error { return NewHTTPError(http.StatusBadRequest, msg) }
func notFoundError(msg string) error   { return NewHTTPError(http.StatusNotFound, msg) }
func conflictError(msg string) error   { return NewHTTPError(http.StatusConflict, msg) }
func forbiddenError() error            { return NewHTTPError(http.StatusForbidden, "forbidden") }

// DBなど想定外の失敗。原因はログに残し、呼び出し側には種類だけ返す。
func internalError(ctx context.Context, log *logrus.Logger, op string, err error) error {
	// 既に分類済みならそのまま
	if he, ok := AsHTTPError(err); ok {
		return he
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.WithContext(ctx).WithError(err).WithField("op", op).Warn("timeout")
		return &HTTPError{Status: http.StatusGatewayTimeout, Message: "timeout", Err: err}
	}
	log.WithContext(ctx).WithError(err).WithField("op", op).Error("db error")
	return &HTTPError{Status: http.StatusInternalServerError, Message: "db error", Err: err}
}
