package domain

import "time"

// Cart: корзина покупателя. У покупателя не больше одной корзины.
type Cart struct {
	ID        string    `db:"id"`
	BuyerID   string    `db:"buyer_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Items []CartItem `db:"-"`
}

// CartItem: позиция корзины. Пара (CartID, ProductID) уникальна.
type CartItem struct {
	ID        string    `db:"id"`
	CartID    string    `db:"cart_id"`
	ProductID string    `db:"product_id"`
	Quantity  int       `db:"quantity"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ItemFor возвращает позицию по товару, если она есть в корзине.
func (c *Cart) ItemFor(productID string) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// TotalQuantity суммирует количество по всем позициям.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}
