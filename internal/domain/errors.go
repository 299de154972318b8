package domain

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибки доменных операций.
type Kind string

const (
	// KindNotFound: запрошенная сущность отсутствует.
	KindNotFound Kind = "not_found"
	// KindNotAuthorized: у вызывающего нет нужной роли или он не владелец.
	KindNotAuthorized Kind = "not_authorized"
	// KindInvalidArgument: некорректные входные данные.
	KindInvalidArgument Kind = "invalid_argument"
	// KindConflict: нарушение ограничений хранилища или конкурентное изменение.
	KindConflict Kind = "conflict"
	// KindStorageUnavailable: хранилище недоступно или истёк таймаут.
	KindStorageUnavailable Kind = "storage_unavailable"
)

// Error несёт вид ошибки и сообщение для пользователя.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает по Kind, если цель, ошибка-категория без сообщения (ErrNotFound и т.п.).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Категории ошибок для errors.Is.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrNotAuthorized      = &Error{Kind: KindNotAuthorized}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
)

var (
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = NewError(KindNotFound, "product not found")
	// ErrNoQualifyingPurchase: покупатель не покупал товар, отзыв оставить нельзя.
	ErrNoQualifyingPurchase = NewError(KindNotFound, "no qualifying purchase")
	// ErrNotSeller: вызывающий не зарегистрирован как продавец.
	ErrNotSeller = NewError(KindNotAuthorized, "caller is not a seller")
	// ErrNotBuyer: вызывающий не зарегистрирован как покупатель.
	ErrNotBuyer = NewError(KindNotAuthorized, "caller is not a buyer")
	// ErrNotProductOwner: продавец пытается изменить чужой товар.
	ErrNotProductOwner = NewError(KindNotAuthorized, "caller does not own the product")
	// ErrQuantityInvalid: количество должно быть больше нуля.
	ErrQuantityInvalid = NewError(KindInvalidArgument, "quantity must be greater than zero")
	// ErrRatingInvalid: оценка вне диапазона.
	ErrRatingInvalid = NewError(KindInvalidArgument, fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	// ErrProductNameRequired: у товара должно быть имя.
	ErrProductNameRequired = NewError(KindInvalidArgument, "product name is required")
	// ErrPriceNegative: цена товара не может быть отрицательной.
	ErrPriceNegative = NewError(KindInvalidArgument, "price must be non-negative")
	ErrUserIDRequired = NewError(KindInvalidArgument, "user id is required")
	ErrItemsRequired = NewError(KindInvalidArgument, "order must contain at least one item")
	// ErrAccountExists: пользователь уже зарегистрирован в этой роли.
	ErrAccountExists = NewError(KindConflict, "account already exists")
	// ErrOutboxPublish возвращается, когда outbox worker исчерпал попытки публикации.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// NewError создаёт ошибку заданной категории.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf создаёт ошибку с форматированным сообщением.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError оборачивает причину в ошибку заданной категории.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf возвращает категорию первой доменной ошибки в цепочке.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsNotAuthorized(err error) bool      { return errors.Is(err, ErrNotAuthorized) }
func IsInvalidArgument(err error) bool    { return errors.Is(err, ErrInvalidArgument) }
func IsConflict(err error) bool           { return errors.Is(err, ErrConflict) }
func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }
