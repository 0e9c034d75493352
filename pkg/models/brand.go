package models

// Brand is a storefront or property that sessions are attributed to.
type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
