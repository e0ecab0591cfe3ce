package domain

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address is a postal address snapshot used for pickup and delivery legs.
type Address struct {
	Name       string
	Company    string
	Phone      string
	Email      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// IsZero reports whether the address carries no routing information.
func (a Address) IsZero() bool {
	return a.Line1 == "" && a.PostalCode == "" && a.City == ""
}
