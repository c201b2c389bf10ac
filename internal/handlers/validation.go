package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/handoff/pkg/errors"
	"github.com/charlesng35/handoff/pkg/response"
	appValidator "github.com/charlesng35/handoff/pkg/validator"
)

// queryInt parses an optional integer query parameter and validates it against rules.
// When the value is invalid an error response is written and false is returned.
func queryInt(c *gin.Context, key string, fallback int, rules string) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(fmt.Sprintf("%s must be an integer", prettifyFieldName(key))))
		return 0, false
	}
	if err := appValidator.ValidateVar(key, value, rules); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return 0, false
	}
	return value, true
}

func formatValidationError(err error) string {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := prettifyFieldName(failure.Field)
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, failure.Param))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", field, failure.Param))
		default:
			if failure.Param != "" {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
			}
		}
	}
	return strings.Join(messages, "; ")
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(name)
}
