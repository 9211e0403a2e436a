package subscriber

// Subscriber is the slice of the external member directory this engine
// reads: display name, contact, and the address-verification fields sent
// with gateway calls. The directory owns the full record.
type Subscriber struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}
