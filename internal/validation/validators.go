package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxQueryLength is the longest memory query accepted, in characters
	MaxQueryLength = 500
	// MaxCodeLength is the largest source text accepted for a security audit, in characters
	MaxCodeLength = 50000
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	numericStringPattern = regexp.MustCompile(`^\d+$`)
)

func init() {
	Validate = validator.New()

	// Report json names in FieldError.Field() so messages match the wire format
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := Validate.RegisterValidation("nonblank", validateNonBlank); err != nil {
		panic(fmt.Sprintf("failed to register nonblank validator: %v", err))
	}
	if err := Validate.RegisterValidation("numeric_string", validateNumericString); err != nil {
		panic(fmt.Sprintf("failed to register numeric_string validator: %v", err))
	}
	if err := Validate.RegisterValidation("utf16max", validateUTF16Max); err != nil {
		panic(fmt.Sprintf("failed to register utf16max validator: %v", err))
	}
}

// MemoryQueryRequest is the body of POST /api/memory-query
type MemoryQueryRequest struct {
	Query string `json:"query" validate:"nonblank,utf16max=500"`
}

// VerifyAgentRequest holds the query parameters of GET /api/verify-agent
type VerifyAgentRequest struct {
	AgentID string `json:"agentId" validate:"numeric_string"`
}

// SecurityAuditRequest is the body of POST /api/security-audit
type SecurityAuditRequest struct {
	Code string `json:"code" validate:"nonblank,utf16max=50000"`
}

// Error is a client-facing validation failure. Its message is safe to return verbatim.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsValidationError reports whether err is (or wraps) a validation Error
func IsValidationError(err error) bool {
	var vErr *Error
	return errors.As(err, &vErr)
}

// validateNonBlank accepts strings with at least one non-whitespace character
func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateNumericString accepts strings made only of ASCII digits
func validateNumericString(fl validator.FieldLevel) bool {
	return numericStringPattern.MatchString(fl.Field().String())
}

// validateUTF16Max bounds a string by UTF-16 code units, the unit web clients
// measure length in. Characters outside the BMP count twice.
func validateUTF16Max(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return UTF16Len(fl.Field().String()) <= limit
}

// UTF16Len returns the length of s in UTF-16 code units
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// IsNumericString reports whether s is a non-empty run of ASCII digits
func IsNumericString(s string) bool {
	return numericStringPattern.MatchString(s)
}

// Required returns an Error naming every field in names whose value is falsy:
// absent, nil, "", false, numeric zero or NaN. This mirrors the presence check
// the public API has always applied, so a literal 0 or false counts as missing.
func Required(fields map[string]any, names ...string) error {
	var missing []string
	for _, name := range names {
		if !truthy(fields[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &Error{Message: "Missing required fields: " + strings.Join(missing, ", ")}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case float32:
		return val != 0 && !math.IsNaN(float64(val))
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	case uint:
		return val != 0
	case uint64:
		return val != 0
	default:
		return true
	}
}

// StringField extracts a string field from a decoded JSON object. A missing or
// non-string value yields an Error saying the field must be a non-empty string.
func StringField(fields map[string]any, name string) (string, error) {
	s, ok := fields[name].(string)
	if !ok {
		return "", &Error{Message: nonEmptyMessage(name)}
	}
	return s, nil
}

// Struct validates a request struct and converts the first failure into an Error
func Struct(req any) error {
	err := Validate.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		// Deterministic message regardless of struct field order
		sort.SliceStable(validationErrors, func(i, j int) bool {
			return validationErrors[i].Field() < validationErrors[j].Field()
		})
		return &Error{Message: Message(validationErrors[0])}
	}
	return &Error{Message: "Validation failed"}
}

// Message renders a FieldError as a client-facing sentence
func Message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "nonblank", "required":
		return nonEmptyMessage(field)
	case "numeric_string":
		return fmt.Sprintf("%s must be a numeric string", field)
	case "max", "utf16max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func nonEmptyMessage(field string) string {
	return fmt.Sprintf("%s must be a non-empty string", field)
}
