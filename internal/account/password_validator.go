package account

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

const (
	PasswordMinimumLength = 8
	UsernameMinimumLength = 3
	UsernameMaximumLength = 50
)

var (
	ErrPasswordTooShort         = fmt.Errorf("password should be at least %d characters", PasswordMinimumLength)
	ErrPasswordMissingUppercase = errors.New("password does not contain an uppercase letter")
	ErrPasswordMissingLowercase = errors.New("password does not contain a lowercase letter")
	ErrPasswordMissingDigit     = errors.New("password does not contain a digit")
	ErrInvalidUsername          = fmt.Errorf("username should be %d-%d characters", UsernameMinimumLength, UsernameMaximumLength)
)

// CheckPassword enforces the account password policy.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < PasswordMinimumLength {
		return ErrPasswordTooShort
	}
	var upper, lower, digit bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		}
	}
	if !upper {
		return ErrPasswordMissingUppercase
	}
	if !lower {
		return ErrPasswordMissingLowercase
	}
	if !digit {
		return ErrPasswordMissingDigit
	}
	return nil
}

func CheckUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < UsernameMinimumLength || n > UsernameMaximumLength {
		return ErrInvalidUsername
	}
	for _, c := range username {
		if unicode.IsSpace(c) || unicode.IsControl(c) {
			return ErrInvalidUsername
		}
	}
	return nil
}

// IsPolicyViolation reports whether err came from CheckPassword.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrPasswordMissingUppercase) ||
		errors.Is(err, ErrPasswordMissingLowercase) ||
		errors.Is(err, ErrPasswordMissingDigit)
}
