package domain

// Listing is one row of the watched internship table.
type Listing struct {
	Company string `json:"company"`
	Role    string `json:"role"`
	Link    string `json:"link"` // first URL found in the application cell
}

// Key is the identity of a listing. Two listings with the same Key are the
// same posting even if their links differ.
type Key struct {
	Company string
	Role    string
}

func (l Listing) Key() Key {
	return Key{Company: l.Company, Role: l.Role}
}
