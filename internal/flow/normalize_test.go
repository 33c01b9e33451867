package flow

import (
	"testing"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
)

func TestNormalizeScaleClamps(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
		want int
	}{
		{"above max", 7, 5},
		{"below min", 0, 1},
		{"negative", -3, 1},
		{"in range", 3, 3},
		{"string", "4", 4},
		{"float from JSON", float64(2), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, msg := normalizeScale(tc.raw)
			if msg != "" {
				t.Fatalf("unexpected rejection: %q", msg)
			}
			if got != tc.want {
				t.Errorf("normalizeScale(%v) = %v, want %d", tc.raw, got, tc.want)
			}
		})
	}

	if _, msg := normalizeScale("lots"); msg == "" {
		t.Error("non-numeric scale answer should be rejected")
	}
}

func TestNormalizeDateShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
		want string
	}{
		{"ISO", "2025-09-06", "06/09/2025"},
		{"display", "06/09/2025", "06/09/2025"},
		{"RFC3339", "2025-09-06T10:30:00Z", "06/09/2025"},
		{"time.Time", time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC), "06/09/2025"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, msg := normalizeDate(tc.raw)
			if msg != "" {
				t.Fatalf("unexpected rejection: %q", msg)
			}
			if got != tc.want {
				t.Errorf("normalizeDate(%v) = %v, want %q", tc.raw, got, tc.want)
			}
		})
	}

	if _, msg := normalizeDate("yesterday"); msg == "" {
		t.Error("unparseable date should be rejected")
	}
}

func TestNormalizeBoolAcceptsWords(t *testing.T) {
	for _, raw := range []interface{}{true, "true", "yes", "Y"} {
		got, msg := normalizeBool(raw)
		if msg != "" || got != true {
			t.Errorf("normalizeBool(%v) = %v, %q; want true", raw, got, msg)
		}
	}
	for _, raw := range []interface{}{false, "false", "no", "N"} {
		got, msg := normalizeBool(raw)
		if msg != "" || got != false {
			t.Errorf("normalizeBool(%v) = %v, %q; want false", raw, got, msg)
		}
	}
	if _, msg := normalizeBool("maybe"); msg == "" {
		t.Error("ambiguous bool answer should be rejected")
	}
}

func TestNormalizeSelectRejectsUnknownOption(t *testing.T) {
	q := catalog.Question{
		ID:   "reason",
		Type: models.QuestionTypeSingleSelect,
		Options: []models.Option{
			{Value: "ivf", Label: "IVF treatment"},
		},
	}

	if got, msg := normalizeSelect(q, "ivf"); msg != "" || got != "ivf" {
		t.Errorf("known option rejected: %v, %q", got, msg)
	}
	if _, msg := normalizeSelect(q, "surgery"); msg == "" {
		t.Error("unknown option should be rejected")
	}
}

func TestRenderAnswerShapes(t *testing.T) {
	boolQ := catalog.Question{Type: models.QuestionTypeBoolean}
	if got := renderAnswer(boolQ, true); got != "Yes" {
		t.Errorf("bool true renders %q", got)
	}

	ratingQ := catalog.Question{Type: models.QuestionTypeRating}
	if got := renderAnswer(ratingQ, 3); got != models.RenderStars(3) {
		t.Errorf("rating renders %q", got)
	}

	selectQ := catalog.Question{
		Type:    models.QuestionTypeSingleSelect,
		Options: []models.Option{{Value: "ivf", Label: "IVF treatment"}},
	}
	if got := renderAnswer(selectQ, "ivf"); got != "IVF treatment" {
		t.Errorf("select renders %q, want label", got)
	}

	fileQ := catalog.Question{Type: models.QuestionTypeFileSet}
	descriptors := []models.FileDescriptor{{Name: "a.pdf"}, {Name: "b.pdf"}}
	if got := renderAnswer(fileQ, descriptors); got != "uploaded 2 file(s): a.pdf, b.pdf" {
		t.Errorf("file set renders %q", got)
	}
}
