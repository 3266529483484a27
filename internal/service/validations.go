package service

import (
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/limbo/hydrosync/pkg/entity"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func InitValidator() {
	once.Do(func() {
		validate = validator.New()
		// HH:MM, 24h
		validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(entity.ClockFormat, fl.Field().String())
			return err == nil && len(fl.Field().String()) == len(entity.ClockFormat)
		})
	})
}

// validationError flattens validator output the way callers print it.
func validationError(err error, kind error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		joined := kind
		for _, fieldErr := range validationErrors {
			joined = errors.Join(joined, fieldErr)
		}
		return joined
	}
	return errors.Join(kind, errors.New("validation unexpected error: "+err.Error()))
}
