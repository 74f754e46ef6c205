package models

// UserProfile is the public view of a marketplace user.
type UserProfile struct {
	ID    string  `db:"id" json:"id"`
	Name  *string `db:"name" json:"name"`
	Email *string `db:"email" json:"email"`
	Image *string `db:"image" json:"image"`
}
