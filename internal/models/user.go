package models

import "time"

// User is a directory entry synced from the identity service.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserProfile is the public projection embedded in messages and summaries.
type UserProfile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Profile returns the public projection of u.
func (u *User) Profile() *UserProfile {
	if u == nil {
		return nil
	}
	return &UserProfile{ID: u.ID, Username: u.Username}
}
