package auth

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeSessionRevoked     = "SESSION_REVOKED"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeTenantAccessDenied = "TENANT_ACCESS_DENIED"
	TextCodeTenantRequired     = "TENANT_REQUIRED"
	TextCodeTenantNotFound     = "TENANT_NOT_FOUND"
	TextCodePrincipalRequired  = "PRINCIPAL_REQUIRED"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeIdentityConflict   = "IDENTITY_CONFLICT"
	TextCodeRoleNotHeld        = "ROLE_NOT_HELD"
	TextCodeInvitationInvalid  = "INVITATION_INVALID"
	TextCodeOperatorOnly       = "OPERATOR_ONLY"
	TextCodeDuplicateRecord    = "DUPLICATE_RECORD"
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeTokenSigning       = "TOKEN_SIGNING_FAILED"
	TextCodePasswordHashing    = "PASSWORD_HASHING_FAILED"
	TextCodeDatabase           = "DATABASE_ERROR"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
)

// ErrInvalidCredentials is returned for unknown identities and wrong
// passwords alike.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a token is past its exp claim.
var ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid covers every other token failure.
var ErrTokenInvalid = goerrors.New("token invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionRevoked is returned when a refresh token has no live session.
var ErrSessionRevoked = goerrors.New("session is no longer valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionRevoked).
	WithCode(goerrors.CodeUnauthorized)

var ErrTenantAccessDenied = goerrors.New("no membership in tenant", goerrors.CategoryAuth).
	WithTextCode(TextCodeTenantAccessDenied).
	WithCode(goerrors.CodeUnauthorized)

var ErrTenantRequired = goerrors.New("tenant context required", goerrors.CategoryAuth).
	WithTextCode(TextCodeTenantRequired).
	WithCode(goerrors.CodeUnauthorized)

var ErrPrincipalRequired = goerrors.New("authenticated principal required", goerrors.CategoryAuth).
	WithTextCode(TextCodePrincipalRequired).
	WithCode(goerrors.CodeUnauthorized)

var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrTenantNotFound = goerrors.New("tenant not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTenantNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRoleNotHeld is returned by login when the requested role is not held
// in the tenant. It deliberately reads as "account not found".
var ErrRoleNotHeld = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotHeld).
	WithCode(goerrors.CodeNotFound)

// ErrIdentityConflict is returned when a registration cannot be linked to
// an existing identity.
var ErrIdentityConflict = goerrors.New("identity already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeIdentityConflict).
	WithCode(goerrors.CodeConflict)

var ErrInvitationInvalid = goerrors.New("a valid invitation code is required", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInvitationInvalid).
	WithCode(goerrors.CodeForbidden)

var ErrOperatorOnly = goerrors.New("operator credentials required", goerrors.CategoryAuthz).
	WithTextCode(TextCodeOperatorOnly).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// NewDuplicateRecordError wraps a storage uniqueness violation.
func NewDuplicateRecordError(err error, constraint string) error {
	return goerrors.Wrap(err, goerrors.CategoryConflict, "record already exists").
		WithTextCode(TextCodeDuplicateRecord).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"constraint": constraint})
}

// WrapDatabaseError wraps a storage failure. The source error stays
// available for server logs only.
func WrapDatabaseError(err error, operation string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "storage operation failed").
		WithTextCode(TextCodeDatabase).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"operation": operation})
}

func wrapSigningError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token").
		WithTextCode(TextCodeTokenSigning).
		WithCode(goerrors.CodeInternal)
}

func wrapHashingError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password").
		WithTextCode(TextCodePasswordHashing).
		WithCode(goerrors.CodeInternal)
}

// FieldError is a single field level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the field list of a failed validation.
type ValidationError struct {
	Fields []FieldError
	rich   *goerrors.Error
}

// NewValidationError converts ozzo validation errors. Non field errors
// are reported under the empty field name.
func NewValidationError(err error) *ValidationError {
	var fields []FieldError

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		keys := make([]string, 0, len(verrs))
		for k := range verrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if verrs[k] == nil {
				continue
			}
			fields = append(fields, FieldError{Field: k, Message: verrs[k].Error()})
		}
	} else if err != nil {
		fields = append(fields, FieldError{Message: err.Error()})
	}

	return &ValidationError{
		Fields: fields,
		rich: goerrors.Wrap(err, goerrors.CategoryValidation, "validation failed").
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest),
	}
}

func fieldError(field, message string) *ValidationError {
	return NewValidationError(validation.Errors{field: errors.New(message)})
}

func (v *ValidationError) Error() string {
	return v.rich.Error()
}

func (v *ValidationError) Unwrap() error {
	return v.rich
}

func categoryOf(err error) (goerrors.Category, bool) {
	var rich *goerrors.Error
	if errors.As(err, &rich) && rich != nil {
		return rich.Category, true
	}
	var zero goerrors.Category
	return zero, false
}

func hasCategory(err error, category goerrors.Category) bool {
	c, ok := categoryOf(err)
	return ok && c == category
}

// IsNotFound reports a NotFound class error.
func IsNotFound(err error) bool { return hasCategory(err, goerrors.CategoryNotFound) }

// IsConflict reports a Conflict class error.
func IsConflict(err error) bool { return hasCategory(err, goerrors.CategoryConflict) }

// IsUnauthorized reports an Unauthorized class error.
func IsUnauthorized(err error) bool { return hasCategory(err, goerrors.CategoryAuth) }

// IsForbidden reports a Forbidden class error.
func IsForbidden(err error) bool { return hasCategory(err, goerrors.CategoryAuthz) }

// IsValidation reports a validation error.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || hasCategory(err, goerrors.CategoryValidation)
}

// IsTokenExpiredError reports whether err is ErrTokenExpired.
func IsTokenExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// textCodeOf returns the text code of the outermost rich error.
func textCodeOf(err error) string {
	var rich *goerrors.Error
	if errors.As(err, &rich) && rich != nil {
		return rich.TextCode
	}
	return ""
}

// IsDuplicateRecord reports a storage uniqueness violation.
func IsDuplicateRecord(err error) bool {
	return textCodeOf(err) == TextCodeDuplicateRecord
}
