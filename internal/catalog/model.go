package catalog

import "time"

// Category values are fixed; anything else is rejected at create/update time.
const (
	CategoryChocolates = "Chocolates"
	CategoryPastries   = "Pastries"
	CategoryCakes      = "Cakes"
	CategoryCandies    = "Candies"
)

var categories = map[string]bool{
	CategoryChocolates: true,
	CategoryPastries:   true,
	CategoryCakes:      true,
	CategoryCandies:    true,
}

func ValidCategory(c string) bool { return categories[c] }

type Sweet struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Image       string    `json:"image"`
	PriceCents  int64     `json:"price_cents"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
