package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// ErrorBody is the JSON error payload.
type ErrorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

const genericInternalMessage = "an unexpected error occurred"

// StatusFromError maps err to a stable HTTP status, text code and a
// message safe to show to callers. Wrapped detail never leaves the server.
func StatusFromError(err error) (int, ErrorBody) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, ErrorBody{
			Code:    TextCodeValidation,
			Message: "validation failed",
			Fields:  verr.Fields,
		}
	}

	var rich *goerrors.Error
	if !errors.As(err, &rich) || rich == nil {
		return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL", Message: genericInternalMessage}
	}

	body := ErrorBody{Code: rich.TextCode, Message: rich.Message}

	switch rich.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized, body
	case goerrors.CategoryAuthz:
		return http.StatusForbidden, body
	case goerrors.CategoryNotFound:
		return http.StatusNotFound, body
	case goerrors.CategoryConflict:
		return http.StatusConflict, body
	case goerrors.CategoryValidation:
		return http.StatusBadRequest, body
	default:
		if body.Code == "" {
			body.Code = "INTERNAL"
		}
		body.Message = genericInternalMessage
		return http.StatusInternalServerError, body
	}
}

// writeError logs err with full detail and sends the mapped response.
func writeError(c *fiber.Ctx, logger Logger, err error) error {
	status, body := StatusFromError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.Path(), "error", err)
	} else {
		logger.Debug("request rejected", "path", c.Path(), "status", status, "code", body.Code)
	}
	return c.Status(status).JSON(ErrorResponse{Error: body})
}

// setRefreshCookie applies a RefreshCookie to the response.
func setRefreshCookie(c *fiber.Ctx, rc RefreshCookie) {
	if rc.Name == "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     rc.Name,
		Value:    rc.Value,
		Path:     rc.Path,
		MaxAge:   rc.MaxAge,
		Expires:  rc.Expires,
		Secure:   rc.Secure,
		HTTPOnly: rc.HTTPOnly,
		SameSite: rc.SameSite,
	})
}
