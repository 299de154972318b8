// Package tables описывает схемы всех сущностей маркетплейса.
package tables

import (
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
)

// Имена связей для include.
const (
	RelSeller  = "Seller"
	RelReviews = "Reviews"
	RelItems   = "Items"
)

var Sellers = storage.NewSchema(storage.SchemaDef[domain.Seller]{
	Table: "sellers",
	Columns: []storage.Column[domain.Seller]{
		{Name: "id", Get: func(s *domain.Seller) any { return s.ID }},
		{Name: "user_id", Get: func(s *domain.Seller) any { return s.UserID }},
		{Name: "first_name", Get: func(s *domain.Seller) any { return s.FirstName }},
		{Name: "last_name", Get: func(s *domain.Seller) any { return s.LastName }},
		{Name: "business_name", Get: func(s *domain.Seller) any { return s.BusinessName }},
		{Name: "email", Get: func(s *domain.Seller) any { return s.Email }},
		{Name: "phone_number", Get: func(s *domain.Seller) any { return s.PhoneNumber }},
		{Name: "created_at", Get: func(s *domain.Seller) any { return s.CreatedAt }},
	},
	ID:     func(s *domain.Seller) string { return s.ID },
	SetID:  func(s *domain.Seller, id string) { s.ID = id },
	Unique: [][]string{{"user_id"}},
})

var Buyers = storage.NewSchema(storage.SchemaDef[domain.Buyer]{
	Table: "buyers",
	Columns: []storage.Column[domain.Buyer]{
		{Name: "id", Get: func(b *domain.Buyer) any { return b.ID }},
		{Name: "user_id", Get: func(b *domain.Buyer) any { return b.UserID }},
		{Name: "first_name", Get: func(b *domain.Buyer) any { return b.FirstName }},
		{Name: "last_name", Get: func(b *domain.Buyer) any { return b.LastName }},
		{Name: "email", Get: func(b *domain.Buyer) any { return b.Email }},
		{Name: "phone_number", Get: func(b *domain.Buyer) any { return b.PhoneNumber }},
		{Name: "created_at", Get: func(b *domain.Buyer) any { return b.CreatedAt }},
	},
	ID:     func(b *domain.Buyer) string { return b.ID },
	SetID:  func(b *domain.Buyer, id string) { b.ID = id },
	Unique: [][]string{{"user_id"}},
})

var Reviews = storage.NewSchema(storage.SchemaDef[domain.ProductReview]{
	Table: "product_reviews",
	Columns: []storage.Column[domain.ProductReview]{
		{Name: "id", Get: func(r *domain.ProductReview) any { return r.ID }},
		{Name: "product_id", Get: func(r *domain.ProductReview) any { return r.ProductID }},
		{Name: "buyer_id", Get: func(r *domain.ProductReview) any { return r.BuyerID }},
		{Name: "rating", Get: func(r *domain.ProductReview) any { return r.Rating }},
		{Name: "comment", Get: func(r *domain.ProductReview) any { return r.Comment }},
		{Name: "created_at", Get: func(r *domain.ProductReview) any { return r.CreatedAt }},
	},
	ID:    func(r *domain.ProductReview) string { return r.ID },
	SetID: func(r *domain.ProductReview, id string) { r.ID = id },
	ForeignKeys: []storage.ForeignKey{
		{Column: "product_id", RefTable: "products", OnDelete: storage.Cascade},
		{Column: "buyer_id", RefTable: "buyers", OnDelete: storage.Restrict},
	},
})

var Products = storage.NewSchema(storage.SchemaDef[domain.Product]{
	Table: "products",
	Columns: []storage.Column[domain.Product]{
		{Name: "id", Get: func(p *domain.Product) any { return p.ID }},
		{Name: "name", Get: func(p *domain.Product) any { return p.Name }},
		{Name: "description", Get: func(p *domain.Product) any { return p.Description }},
		{Name: "price", Get: func(p *domain.Product) any { return p.Price }},
		{Name: "seller_id", Get: func(p *domain.Product) any { return p.SellerID }},
		{Name: "created_at", Get: func(p *domain.Product) any { return p.CreatedAt }},
		{Name: "updated_at", Get: func(p *domain.Product) any { return p.UpdatedAt }},
	},
	ID:    func(p *domain.Product) string { return p.ID },
	SetID: func(p *domain.Product, id string) { p.ID = id },
	ForeignKeys: []storage.ForeignKey{
		{Column: "seller_id", RefTable: "sellers", OnDelete: storage.Restrict},
	},
	Relations: map[string]storage.Relation[domain.Product]{
		RelSeller: storage.BelongsTo(Sellers,
			func(p *domain.Product) string { return p.SellerID },
			func(p *domain.Product, s *domain.Seller) { p.Seller = s },
		),
		RelReviews: storage.HasMany(Reviews, "product_id",
			func(p *domain.Product) string { return p.ID },
			func(r *domain.ProductReview) string { return r.ProductID },
			func(p *domain.Product, rs []domain.ProductReview) { p.Reviews = rs },
		),
	},
})

var CartItems = storage.NewSchema(storage.SchemaDef[domain.CartItem]{
	Table: "cart_items",
	Columns: []storage.Column[domain.CartItem]{
		{Name: "id", Get: func(i *domain.CartItem) any { return i.ID }},
		{Name: "cart_id", Get: func(i *domain.CartItem) any { return i.CartID }},
		{Name: "product_id", Get: func(i *domain.CartItem) any { return i.ProductID }},
		{Name: "quantity", Get: func(i *domain.CartItem) any { return i.Quantity }},
		{Name: "created_at", Get: func(i *domain.CartItem) any { return i.CreatedAt }},
		{Name: "updated_at", Get: func(i *domain.CartItem) any { return i.UpdatedAt }},
	},
	ID:     func(i *domain.CartItem) string { return i.ID },
	SetID:  func(i *domain.CartItem, id string) { i.ID = id },
	Unique: [][]string{{"cart_id", "product_id"}},
	ForeignKeys: []storage.ForeignKey{
		{Column: "cart_id", RefTable: "carts", OnDelete: storage.Cascade},
		{Column: "product_id", RefTable: "products", OnDelete: storage.Cascade},
	},
})

var Carts = storage.NewSchema(storage.SchemaDef[domain.Cart]{
	Table: "carts",
	Columns: []storage.Column[domain.Cart]{
		{Name: "id", Get: func(c *domain.Cart) any { return c.ID }},
		{Name: "buyer_id", Get: func(c *domain.Cart) any { return c.BuyerID }},
		{Name: "created_at", Get: func(c *domain.Cart) any { return c.CreatedAt }},
		{Name: "updated_at", Get: func(c *domain.Cart) any { return c.UpdatedAt }},
	},
	ID:     func(c *domain.Cart) string { return c.ID },
	SetID:  func(c *domain.Cart, id string) { c.ID = id },
	Unique: [][]string{{"buyer_id"}},
	ForeignKeys: []storage.ForeignKey{
		{Column: "buyer_id", RefTable: "buyers", OnDelete: storage.Restrict},
	},
	Relations: map[string]storage.Relation[domain.Cart]{
		RelItems: storage.HasMany(CartItems, "cart_id",
			func(c *domain.Cart) string { return c.ID },
			func(i *domain.CartItem) string { return i.CartID },
			func(c *domain.Cart, items []domain.CartItem) { c.Items = items },
		),
	},
})

// OrderItems хранит снимок цены; ссылки на products нет, чтобы удаление товара не трогало историю заказов.
var OrderItems = storage.NewSchema(storage.SchemaDef[domain.OrderItem]{
	Table: "order_items",
	Columns: []storage.Column[domain.OrderItem]{
		{Name: "id", Get: func(i *domain.OrderItem) any { return i.ID }},
		{Name: "order_id", Get: func(i *domain.OrderItem) any { return i.OrderID }},
		{Name: "product_id", Get: func(i *domain.OrderItem) any { return i.ProductID }},
		{Name: "quantity", Get: func(i *domain.OrderItem) any { return i.Quantity }},
		{Name: "unit_price", Get: func(i *domain.OrderItem) any { return i.UnitPrice }},
	},
	ID:    func(i *domain.OrderItem) string { return i.ID },
	SetID: func(i *domain.OrderItem, id string) { i.ID = id },
	ForeignKeys: []storage.ForeignKey{
		{Column: "order_id", RefTable: "orders", OnDelete: storage.Cascade},
	},
})

var Orders = storage.NewSchema(storage.SchemaDef[domain.Order]{
	Table: "orders",
	Columns: []storage.Column[domain.Order]{
		{Name: "id", Get: func(o *domain.Order) any { return o.ID }},
		{Name: "buyer_id", Get: func(o *domain.Order) any { return o.BuyerID }},
		{Name: "status", Get: func(o *domain.Order) any { return string(o.Status) }},
		{Name: "created_at", Get: func(o *domain.Order) any { return o.CreatedAt }},
	},
	ID:    func(o *domain.Order) string { return o.ID },
	SetID: func(o *domain.Order, id string) { o.ID = id },
	ForeignKeys: []storage.ForeignKey{
		{Column: "buyer_id", RefTable: "buyers", OnDelete: storage.Restrict},
	},
	Relations: map[string]storage.Relation[domain.Order]{
		RelItems: storage.HasMany(OrderItems, "order_id",
			func(o *domain.Order) string { return o.ID },
			func(i *domain.OrderItem) string { return i.OrderID },
			func(o *domain.Order, items []domain.OrderItem) { o.Items = items },
		),
	},
})

var Outbox = storage.NewSchema(storage.SchemaDef[domain.OutboxMessage]{
	Table: "outbox",
	Columns: []storage.Column[domain.OutboxMessage]{
		{Name: "id", Get: func(m *domain.OutboxMessage) any { return m.ID }},
		{Name: "aggregate_type", Get: func(m *domain.OutboxMessage) any { return m.AggregateType }},
		{Name: "aggregate_id", Get: func(m *domain.OutboxMessage) any { return m.AggregateID }},
		{Name: "event_type", Get: func(m *domain.OutboxMessage) any { return m.EventType }},
		{Name: "payload", Get: func(m *domain.OutboxMessage) any { return m.Payload }},
		{Name: "status", Get: func(m *domain.OutboxMessage) any { return string(m.Status) }},
		{Name: "attempts", Get: func(m *domain.OutboxMessage) any { return m.Attempts }},
		{Name: "created_at", Get: func(m *domain.OutboxMessage) any { return m.CreatedAt }},
		{Name: "updated_at", Get: func(m *domain.OutboxMessage) any { return m.UpdatedAt }},
	},
	ID:    func(m *domain.OutboxMessage) string { return m.ID },
	SetID: func(m *domain.OutboxMessage, id string) { m.ID = id },
})

// All возвращает все таблицы в порядке создания (родители раньше детей).
func All() []*storage.Table {
	return []*storage.Table{
		Sellers.Table(),
		Buyers.Table(),
		Products.Table(),
		Reviews.Table(),
		Carts.Table(),
		CartItems.Table(),
		Orders.Table(),
		OrderItems.Table(),
		Outbox.Table(),
	}
}
