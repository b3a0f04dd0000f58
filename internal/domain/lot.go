package domain

// Lot is an unclosed opening trade at a specific entry price.
type Lot struct {
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}
