package models

// User is the projection of an account owned by the credential service.
// The chat core never stores or exposes credentials.
type User struct {
	ID               int    `db:"id" json:"id"`
	Email            string `db:"email" json:"-"`
	Name             string `db:"name" json:"name"`
	Username         string `db:"username" json:"username,omitempty"`
	ProfileCompleted bool   `db:"profile_completed" json:"-"`
}
