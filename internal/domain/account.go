package domain

import "time"

// Seller владеет товарами каталога.
type Seller struct {
	ID string `db:"id"`
	// UserID: идентификатор пользователя из слоя аутентификации.
	UserID       string    `db:"user_id"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	BusinessName string    `db:"business_name"`
	Email        string    `db:"email"`
	PhoneNumber  string    `db:"phone_number"`
	CreatedAt    time.Time `db:"created_at"`
}

// Buyer владеет корзиной, заказами и отзывами.
type Buyer struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	FirstName   string    `db:"first_name"`
	LastName    string    `db:"last_name"`
	Email       string    `db:"email"`
	PhoneNumber string    `db:"phone_number"`
	CreatedAt   time.Time `db:"created_at"`
}
