package models

import "time"

// Response is the envelope every API endpoint answers with.
type Response struct {
	Success bool     `json:"success"`
	Data    any      `json:"data"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// AuthToken is the result of a successful login. It is never persisted.
type AuthToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}
