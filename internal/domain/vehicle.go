package domain

// Vehicle represents a car in the catalog.
type Vehicle struct {
	ID        string
	Model     string
	PhotoURL  string
	RatePerKm float64
}
