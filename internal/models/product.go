package models

// Product is a catalog entry. Read-only reference data.
type Product struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	Rating   float64 `json:"rating"`
	Discount float64 `json:"discount,omitempty"`
	Media    Media   `json:"media"`
	FAQ      []FAQ   `json:"faq,omitempty"`
}

// Media holds the multimedia links of a product.
type Media struct {
	Images  []string `json:"images,omitempty"`
	Video   string   `json:"video,omitempty"`
	Model3D string   `json:"model3d,omitempty"`
	AR      string   `json:"ar,omitempty"`
}

// FAQ is a question/answer pair attached to a product.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// DiscountedPrice returns the price after applying the discount percentage.
func (p Product) DiscountedPrice() float64 {
	if p.Discount <= 0 || p.Discount >= 100 {
		return p.Price
	}
	return p.Price * (100 - p.Discount) / 100
}
