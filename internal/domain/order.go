package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает состояние заказа.
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// Order: заказ покупателя. Отзывы разрешены только по завершённым заказам.
type Order struct {
	ID        string      `db:"id"`
	BuyerID   string      `db:"buyer_id"`
	Status    OrderStatus `db:"status"`
	CreatedAt time.Time   `db:"created_at"`

	Items []OrderItem `db:"-"`
}

// OrderItem: позиция заказа с ценой на момент покупки.
type OrderItem struct {
	ID        string          `db:"id"`
	OrderID   string          `db:"order_id"`
	ProductID string          `db:"product_id"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
}

// Total считает сумму заказа по позициям.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Contains сообщает, есть ли в заказе позиция с товаром.
func (o *Order) Contains(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}
