package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product: товар каталога. Seller и Reviews заполняются только по запросу (include).
type Product struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	SellerID    string          `db:"seller_id"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`

	Seller  *Seller         `db:"-"`
	Reviews []ProductReview `db:"-"`
}

const (
	MinRating = 1
	MaxRating = 5
)

// ProductReview: отзыв покупателя. CreatedAt выставляется сервером один раз.
type ProductReview struct {
	ID        string    `db:"id"`
	ProductID string    `db:"product_id"`
	BuyerID   string    `db:"buyer_id"`
	Rating    int       `db:"rating"`
	Comment   string    `db:"comment"`
	CreatedAt time.Time `db:"created_at"`
}

// Validate проверяет имя и цену товара.
func (p *Product) Validate() error {
	if p.Name == "" {
		return ErrProductNameRequired
	}
	if p.Price.IsNegative() {
		return ErrPriceNegative
	}
	return nil
}
