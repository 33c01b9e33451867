package catalog

import (
	"regexp"
	"strings"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	digitPattern = regexp.MustCompile(`\D`)
)

// MinTelephoneDigits is the minimum digit count accepted for phone answers.
const MinTelephoneDigits = 6

// ValidateEmail rejects values that do not look like an email address.
func ValidateEmail(value interface{}) string {
	s, _ := value.(string)
	if s == "" {
		return ""
	}
	if !emailPattern.MatchString(strings.TrimSpace(s)) {
		return "Please enter a valid email address."
	}
	return ""
}

// ValidateTelephone rejects values with fewer than MinTelephoneDigits digits.
// Normalization has already stripped non-digits.
func ValidateTelephone(value interface{}) string {
	s, _ := value.(string)
	if s == "" {
		return ""
	}
	if len(digitPattern.ReplaceAllString(s, "")) < MinTelephoneDigits {
		return "Please enter a valid phone number."
	}
	return ""
}

// ValidatePastDate rejects committed dates in the future, e.g. a date of birth.
func ValidatePastDate(value interface{}) string {
	s, _ := value.(string)
	if s == "" {
		return ""
	}
	t, err := time.Parse(models.DateLayoutDisplay, s)
	if err != nil {
		return "Please enter a valid date."
	}
	if t.After(time.Now()) {
		return "That date is in the future. Please check it and try again."
	}
	return ""
}

// YesNoOptions is the standard option pair for boolean-option-styled questions.
func YesNoOptions() []models.Option {
	return []models.Option{
		{Value: "true", Label: "Yes"},
		{Value: "false", Label: "No"},
	}
}
