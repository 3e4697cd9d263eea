package auth

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	PasswordMinLength = 10
	PasswordMaxLength = 100
	UsernameMinLength = 3
	UsernameMaxLength = 32
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ReservedUsernames cannot be registered.
var ReservedUsernames = []string{"admin", "root", "system"}

// RegisterRequest is the input of Service.Register.
type RegisterRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	InvitationCode string `json:"invitation_code"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username,
			validation.Required,
			validation.Length(UsernameMinLength, UsernameMaxLength),
			validation.Match(usernamePattern).Error("may only contain letters, digits, '.', '_' and '-'"),
			validation.By(notReserved),
		),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.Role, validation.Length(0, 64)),
	)
}

// LoginRequest is the input of Service.Login. Identifier is an email or
// a username. Role optionally selects one of the held roles.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, PasswordMaxLength)),
	)
}

// ChangePasswordRequest is the input of Service.ChangePassword.
type ChangePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will run validation rules
func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, append(passwordRules, validation.By(ValidateStringDiffers(r.OldPassword)))...),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(ValidateStringEquals(r.NewPassword))),
	)
}

var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(PasswordMinLength, PasswordMaxLength),
	validation.By(noForbiddenChars),
}

func notReserved(value any) error {
	s, _ := value.(string)
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range ReservedUsernames {
		if s == r {
			return errors.New("is reserved")
		}
	}
	return nil
}

func noForbiddenChars(value any) error {
	s, _ := value.(string)
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return errors.New("must not contain whitespace or control characters")
		}
	}
	return nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidateStringDiffers will check that both values differ
func ValidateStringDiffers(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == str {
			return errors.New("must differ from the current value")
		}
		return nil
	}
}
