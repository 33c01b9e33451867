package flow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// Validation messages surfaced inline next to the input control. Malformed
// answers never travel past the engine boundary as errors; they always resolve
// to one of these strings.
const (
	msgRequired      = "This field is required."
	msgInvalidDate   = "Please enter a valid date."
	msgInvalidScale  = "Please choose a number between 1 and 5."
	msgInvalidOption = "Please choose one of the listed options."
	msgInvalidBool   = "Please answer yes or no."
)

var nonDigitPattern = regexp.MustCompile(`\D`)

// normalizeAnswer converts a raw answer into its committed shape per question
// type. The second return is a user-facing validation message; a non-empty
// message means the value was rejected and nothing should be committed.
func (e *Engine) normalizeAnswer(q catalog.Question, raw interface{}) (interface{}, string) {
	switch q.Type {
	case models.QuestionTypeBoolean:
		return normalizeBool(raw)
	case models.QuestionTypeDate:
		return normalizeDate(raw)
	case models.QuestionTypeScale, models.QuestionTypeRating:
		return normalizeScale(raw)
	case models.QuestionTypeFileSet:
		return e.normalizeFiles(q, raw)
	case models.QuestionTypeSingleSelect:
		return normalizeSelect(q, raw)
	case models.QuestionTypeTelephone:
		s := strings.TrimSpace(stringValue(raw))
		return nonDigitPattern.ReplaceAllString(s, ""), ""
	case models.QuestionTypeEmail:
		return strings.ToLower(strings.TrimSpace(stringValue(raw))), ""
	default:
		// short-text, multi-line-text
		return strings.TrimSpace(stringValue(raw)), ""
	}
}

func normalizeBool(raw interface{}) (interface{}, string) {
	switch v := raw.(type) {
	case bool:
		return v, ""
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y":
			return true, ""
		case "false", "no", "n":
			return false, ""
		}
		return nil, msgInvalidBool
	default:
		return nil, msgInvalidBool
	}
}

// normalizeDate canonicalizes date inputs to the DD/MM/YYYY display form. It
// accepts a time.Time, an ISO YYYY-MM-DD string, an RFC3339 timestamp, or a
// string already in display form.
func normalizeDate(raw interface{}) (interface{}, string) {
	switch v := raw.(type) {
	case time.Time:
		return v.Format(models.DateLayoutDisplay), ""
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", ""
		}
		if t, err := time.Parse(models.DateLayoutISO, s); err == nil {
			return t.Format(models.DateLayoutDisplay), ""
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(models.DateLayoutDisplay), ""
		}
		if t, err := time.Parse(models.DateLayoutDisplay, s); err == nil {
			return t.Format(models.DateLayoutDisplay), ""
		}
		return nil, msgInvalidDate
	default:
		return nil, msgInvalidDate
	}
}

// normalizeScale clamps numeric answers into [ScaleMin, ScaleMax].
func normalizeScale(raw interface{}) (interface{}, string) {
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, msgInvalidScale
		}
		n = parsed
	default:
		return nil, msgInvalidScale
	}
	if n < models.ScaleMin {
		n = models.ScaleMin
	}
	if n > models.ScaleMax {
		n = models.ScaleMax
	}
	return n, ""
}

func normalizeSelect(q catalog.Question, raw interface{}) (interface{}, string) {
	s := strings.TrimSpace(stringValue(raw))
	if s == "" {
		return "", ""
	}
	for _, opt := range q.Options {
		if opt.Value == s {
			return s, ""
		}
	}
	return nil, msgInvalidOption
}

// normalizeFiles converts raw uploads into cached file descriptors. Raw
// binaries never enter the answer set; pre-built descriptors (a re-commit of
// an existing answer) pass through with their indexes renumbered.
func (e *Engine) normalizeFiles(q catalog.Question, raw interface{}) (interface{}, string) {
	switch v := raw.(type) {
	case nil:
		return []models.FileDescriptor{}, ""
	case []models.FileUpload:
		descriptors := make([]models.FileDescriptor, 0, len(v))
		for i, upload := range v {
			descriptors = append(descriptors, e.files.Put(i, upload))
		}
		return descriptors, ""
	case []models.FileDescriptor:
		for i := range v {
			v[i].Index = i
		}
		return v, ""
	default:
		slog.Warn("Engine.normalizeFiles: unsupported raw shape", "question", q.ID, "type", fmt.Sprintf("%T", raw))
		return nil, msgRequired
	}
}

// isEmptyAnswer reports whether a normalized value counts as absent for the
// required-field check.
func isEmptyAnswer(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []models.FileDescriptor:
		return len(v) == 0
	default:
		return false
	}
}

// renderAnswer produces the human-readable transcript rendering of a
// committed answer.
func renderAnswer(q catalog.Question, value interface{}) string {
	switch q.Type {
	case models.QuestionTypeBoolean:
		if b, ok := value.(bool); ok && b {
			return "Yes"
		}
		return "No"
	case models.QuestionTypeSingleSelect:
		s, _ := value.(string)
		return q.OptionLabel(s)
	case models.QuestionTypeScale:
		return strconv.Itoa(value.(int))
	case models.QuestionTypeRating:
		return models.RenderStars(value.(int))
	case models.QuestionTypeFileSet:
		descriptors, _ := value.([]models.FileDescriptor)
		if len(descriptors) == 0 {
			return "no files uploaded"
		}
		names := make([]string, len(descriptors))
		for i, d := range descriptors {
			names[i] = d.Name
		}
		return fmt.Sprintf("uploaded %d file(s): %s", len(descriptors), strings.Join(names, ", "))
	default:
		s, _ := value.(string)
		return s
	}
}

func stringValue(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
