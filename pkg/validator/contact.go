package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	playground "github.com/go-playground/validator/v10"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("contact phone cannot be empty")

	// ErrInvalidPhoneLength indicates phone number is not 10-15 characters
	ErrInvalidPhoneLength = errors.New("contact phone must be 10-15 characters")

	// ErrInvalidPhoneFormat indicates phone number contains invalid characters
	ErrInvalidPhoneFormat = errors.New("contact phone can only contain digits, spaces, +, -, ( and )")

	// ErrEmptyEmail indicates email is empty
	ErrEmptyEmail = errors.New("contact email cannot be empty")

	// ErrInvalidEmail indicates email is malformed or longer than 100 characters
	ErrInvalidEmail = errors.New("contact email must be a valid address of at most 100 characters")

	// ErrInvalidPassengerName indicates a name outside 2-50 characters
	ErrInvalidPassengerName = errors.New("passenger name must be 2-50 characters")

	// ErrTextTooLong indicates free text beyond its limit
	ErrTextTooLong = errors.New("text exceeds maximum length")
)

var phoneCharsRegex = regexp.MustCompile(`^[\d+\-()\s]+$`)

// ContactValidator validates the traveler-supplied fields of a reservation
type ContactValidator struct {
	validate *playground.Validate
}

// NewContactValidator creates a new contact validator instance
func NewContactValidator() *ContactValidator {
	return &ContactValidator{validate: playground.New()}
}

// ValidatePhone validates a contact phone and returns it trimmed
func (v *ContactValidator) ValidatePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrEmptyPhone
	}
	if n := utf8.RuneCountInString(phone); n < 10 || n > 15 {
		return "", ErrInvalidPhoneLength
	}
	if !phoneCharsRegex.MatchString(phone) {
		return "", ErrInvalidPhoneFormat
	}
	return phone, nil
}

// ValidateEmail validates a contact email and returns it trimmed and lower-cased
func (v *ContactValidator) ValidateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmptyEmail
	}
	if err := v.validate.Var(email, "email,max=100"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// ValidatePassengerName validates a passenger name and returns it trimmed
func (v *ContactValidator) ValidatePassengerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
		return "", ErrInvalidPassengerName
	}
	return name, nil
}

// ValidateOptionalText trims value and checks it against max characters.
// Blank text becomes nil.
func (v *ContactValidator) ValidateOptionalText(value *string, max int) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > max {
		return nil, ErrTextTooLong
	}
	return &trimmed, nil
}
