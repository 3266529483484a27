package auth

import (
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

const (
	emailRules    = "required,email"
	passwordRules = "required,min=8,max=72,letter_digit"

	// bcrypt rejects passwords longer than this many bytes.
	bcryptMaxBytes = 72
)

func InitValidator() {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("letter_digit", func(fl validator.FieldLevel) bool {
			var letter, digit bool
			for _, char := range fl.Field().String() {
				switch {
				case unicode.IsLetter(char):
					letter = true
				case unicode.IsDigit(char):
					digit = true
				}
			}
			return letter && digit
		})
	})
}

func validateEmail(email string) bool {
	return validate.Var(email, emailRules) == nil
}

func validatePassword(password string) bool {
	return len(password) <= bcryptMaxBytes && validate.Var(password, passwordRules) == nil
}
