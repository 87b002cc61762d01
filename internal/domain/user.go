package domain

import "time"

type User struct {
	UserID            string    `json:"id" dynamodbav:"user_id"`
	Username          string    `json:"username" dynamodbav:"username"`
	Email             string    `json:"email" dynamodbav:"email"`
	FirstName         string    `json:"first_name" dynamodbav:"first_name"`
	LastName          string    `json:"last_name" dynamodbav:"last_name"`
	PasswordHash      string    `json:"-" dynamodbav:"password_hash"`
	Verified          bool      `json:"verified" dynamodbav:"verified"`
	ResetToken        string    `json:"-" dynamodbav:"reset_token"`
	VerificationToken string    `json:"-" dynamodbav:"verification_token"`
	CreatedAt         time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt         time.Time `json:"updated" dynamodbav:"updated_at"`
}

type SignupRequest struct {
	FirstName            string `json:"first_name" validate:"required"`
	LastName             string `json:"last_name" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Username             string `json:"username" validate:"required"`
	Password             string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ConfirmRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

type ResendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ChangePasswordRequest carries exactly one credential: a reset token in the
// body, or a bearer session token (filled in by the handler, never by the
// client payload).
type ChangePasswordRequest struct {
	ResetToken   string `json:"reset_token"`
	SessionToken string `json:"-"`
	NewPassword  string `json:"new_password" validate:"required,min=8,max=72"`
}
