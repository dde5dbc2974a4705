package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var (
	errPasswordWeak    = errors.New("must contain upper and lower case letters, a digit and a special character")
	errPasswordTooLong = errors.New("must be at most 72 bytes")
)

type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Locale   string `json:"-"`
}

func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Email, validation.Required, is.Email, validation.Length(3, 254)),
		validation.Field(&in.Password, validation.Required, validation.Length(minPasswordLength, 0), validation.By(passwordStrength)),
	)
}

type resetInput struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (in resetInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required),
		validation.Field(&in.Password, validation.Required, validation.Length(minPasswordLength, 0), validation.By(passwordStrength)),
	)
}

type emailInput struct {
	Email string `json:"email"`
}

func (in emailInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
	)
}
