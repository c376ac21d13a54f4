package models

import "time"

// Condition classifies the physical state of a listed item.
type Condition string

const (
	ConditionNew         Condition = "New"
	ConditionUsed        Condition = "Used"
	ConditionRefurbished Condition = "Refurbished"
)

// Product is a tracked item definition. Offers are matched against it by the
// ingestion loop using Name and Filters.
type Product struct {
	ID        int64             `json:"id" db:"id"`
	Name      string            `json:"name" db:"name"`
	Category  string            `json:"category" db:"category"`
	Brands    []string          `json:"brands" db:"brands"`
	Filters   map[string]string `json:"filters" db:"filters"`
	PriceMin  float64           `json:"price_min" db:"price_min"`
	PriceMax  float64           `json:"price_max" db:"price_max"`
	Active    bool              `json:"active" db:"active"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// Offer is one observed marketplace listing. URL is globally unique and is
// the sole deduplication key.
type Offer struct {
	ID           int64     `json:"id" db:"id"`
	ProductID    int64     `json:"product_id" db:"product_id"`
	Title        string    `json:"title" db:"title"`
	Price        float64   `json:"price" db:"price"`
	Shipping     float64   `json:"shipping" db:"shipping"`
	URL          string    `json:"url" db:"url"`
	ImageURL     *string   `json:"image_url" db:"image_url"`
	SellerName   *string   `json:"seller_name" db:"seller_name"`
	Location     *string   `json:"location" db:"location"`
	Description  *string   `json:"description" db:"description"`
	Source       string    `json:"source" db:"source"`
	Condition    Condition `json:"condition" db:"condition"`
	SellerRating string    `json:"seller_rating" db:"seller_rating"`
	Status       string    `json:"status" db:"status"`
	MarginPct    *float64  `json:"margin_percent" db:"margin_percent"`
	RefPrice     *float64  `json:"geizhals_price" db:"geizhals_price"`
	FirstSeenAt  time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastChecked  time.Time `json:"last_checked_at" db:"last_checked_at"`
}

// PriceHistory is an append-only price observation for an offer. Rows are
// never updated.
type PriceHistory struct {
	ID         int64     `json:"id" db:"id"`
	OfferID    int64     `json:"offer_id" db:"offer_id"`
	Price      float64   `json:"price" db:"price"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// PriceReference is an operator-maintained comparison price for a product
// (e.g. from geizhals or idealo). The latest row per product feeds the margin
// computation at ingestion time.
type PriceReference struct {
	ID        int64     `json:"id" db:"id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Source    string    `json:"source" db:"source"`
	Price     float64   `json:"price" db:"price"`
	URL       *string   `json:"url" db:"url"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ScrapedOffer is a structured record extracted from raw search markup,
// before persistence.
type ScrapedOffer struct {
	Title        string    `json:"title"`
	Price        float64   `json:"price"`
	Shipping     float64   `json:"shipping"`
	Condition    Condition `json:"condition"`
	SellerRating string    `json:"rating"`
	URL          string    `json:"url"`
	Source       string    `json:"source"`
	ProductName  string    `json:"product_name"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// OfferFilter narrows an offer listing query. Zero values mean "no filter".
type OfferFilter struct {
	Status    string
	ProductID int64
	MinMargin *float64
}

// NotificationEvent is the message published by the ingestion loop and
// consumed by the notifier service.
type NotificationEvent struct {
	Type    string `json:"type"` // "deal" | "run_summary" | "test"
	Message string `json:"message"`
}
