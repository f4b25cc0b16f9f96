package models

// UserRef identifies a user by id and display name.
type UserRef struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
}
