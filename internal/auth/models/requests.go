package models

import (
	"strings"

	"github.com/asaskevich/govalidator"
)

const (
	MaxNameLen        = 255
	MaxEmailLen       = 255
	MinPasswordLength = 6
)

type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Normalize trims the name and lower-cases the email.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
}

// Check returns every field problem at once. Uniqueness of the email is
// checked by the service.
func (r *RegisterRequest) Check() ValidationErrors {
	errs := ValidationErrors{}

	switch {
	case r.Name == "":
		errs.Add("name", "The name field is required.")
	case len(r.Name) > MaxNameLen:
		errs.Add("name", "The name may not be greater than 255 characters.")
	}

	switch {
	case r.Email == "":
		errs.Add("email", "The email field is required.")
	case !govalidator.StringLength(r.Email, "1", "255"):
		errs.Add("email", "The email may not be greater than 255 characters.")
	case !govalidator.IsEmail(r.Email):
		errs.Add("email", "The email must be a valid email address.")
	}

	switch {
	case r.Password == "":
		errs.Add("password", "The password field is required.")
	case len(r.Password) < MinPasswordLength:
		errs.Add("password", "The password must be at least 6 characters.")
	case r.Password != r.PasswordConfirmation:
		errs.Add("password", "The password confirmation does not match.")
	}

	return errs
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

// Check reports missing credentials. Whether they match is the service's call.
func (r *LoginRequest) Check() ValidationErrors {
	errs := ValidationErrors{}
	if r.Email == "" {
		errs.Add("email", "The email field is required.")
	}
	if r.Password == "" {
		errs.Add("password", "The password field is required.")
	}
	return errs
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func ToUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
		UpdatedAt: u.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}

type RegisterResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

type ValidationErrorResponse struct {
	Errors ValidationErrors `json:"errors"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
