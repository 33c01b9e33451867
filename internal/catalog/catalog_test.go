package catalog

import (
	"testing"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

func TestVisibleQuestionsFiltersByPredicate(t *testing.T) {
	variant, ok := Get(ClassicVariantName)
	if !ok {
		t.Fatal("classic variant not registered")
	}

	answers := models.AnswerSet{}
	visible := variant.Visible(answers)
	for _, q := range visible {
		if q.ID == "partner_name" || q.ID == "referring_physician" || q.ID == "documents" {
			t.Errorf("question %s should be hidden with no answers", q.ID)
		}
	}

	answers["has_partner"] = true
	visible = variant.Visible(answers)
	found := false
	for _, q := range visible {
		if q.ID == "partner_name" {
			found = true
		}
	}
	if !found {
		t.Error("partner_name should be visible after has_partner=true")
	}
}

func TestVisibilityTreatsAbsentAsFalsy(t *testing.T) {
	variant, ok := Get(ClassicVariantName)
	if !ok {
		t.Fatal("classic variant not registered")
	}
	healthCard, ok := variant.Question("health_card")
	if !ok {
		t.Fatal("health_card question missing")
	}

	// Unanswered was_referred must hide health_card, not show it: the
	// predicate requires an explicit "no".
	if healthCard.VisibleIf(models.AnswerSet{}) {
		t.Error("health_card should be hidden while was_referred is unanswered")
	}
	if !healthCard.VisibleIf(models.AnswerSet{"was_referred": false}) {
		t.Error("health_card should be visible after was_referred=false")
	}
	if healthCard.VisibleIf(models.AnswerSet{"was_referred": true}) {
		t.Error("health_card should be hidden after was_referred=true")
	}
}

func TestVisibleQuestionsIsPure(t *testing.T) {
	variant, ok := Get(ReferralVariantName)
	if !ok {
		t.Fatal("referral variant not registered")
	}

	answers := models.AnswerSet{"referral_source": "physician"}
	first := variant.Visible(answers)
	second := variant.Visible(answers)
	if len(first) != len(second) {
		t.Fatalf("repeated visibility computation diverged: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("question order diverged at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestEqualsValueMatchesBooleansAndStrings(t *testing.T) {
	boolMatch := EqualsValue(false)
	if !boolMatch(nil, false) {
		t.Error("EqualsValue(false) should match false")
	}
	if boolMatch(nil, true) {
		t.Error("EqualsValue(false) should not match true")
	}
	if boolMatch(nil, "false") {
		t.Error("EqualsValue(false) should not match the string \"false\"")
	}

	stringMatch := EqualsValue("other")
	if !stringMatch(nil, "other") {
		t.Error("EqualsValue(\"other\") should match \"other\"")
	}
	if stringMatch(nil, "ivf") {
		t.Error("EqualsValue(\"other\") should not match \"ivf\"")
	}
}

func TestQuestionPromptFuncTakesPrecedence(t *testing.T) {
	variant, ok := Get(ClassicVariantName)
	if !ok {
		t.Fatal("classic variant not registered")
	}
	email, ok := variant.Question("email")
	if !ok {
		t.Fatal("email question missing")
	}

	prompt := email.PromptText(models.AnswerSet{"full_name": "Ada"})
	if prompt != "Thanks Ada! What email address should we use to reach you?" {
		t.Errorf("unexpected personalized prompt: %q", prompt)
	}
	fallback := email.PromptText(models.AnswerSet{})
	if fallback != "What email address should we use to reach you?" {
		t.Errorf("unexpected fallback prompt: %q", fallback)
	}
}

func TestDocumentsEmptyAllowedFollowsReferralLetter(t *testing.T) {
	variant, ok := Get(ReferralVariantName)
	if !ok {
		t.Fatal("referral variant not registered")
	}
	documents, ok := variant.Question("documents")
	if !ok {
		t.Fatal("documents question missing")
	}

	if !documents.EmptyAllowed(models.AnswerSet{"has_referral_letter": false}) {
		t.Error("documents should allow empty when there is no referral letter")
	}
	if documents.EmptyAllowed(models.AnswerSet{"has_referral_letter": true}) {
		t.Error("documents should be mandatory when the patient has the letter")
	}
}

func TestValidators(t *testing.T) {
	cases := []struct {
		name     string
		validate func(interface{}) string
		value    interface{}
		wantOK   bool
	}{
		{"valid email", ValidateEmail, "patient@example.com", true},
		{"invalid email", ValidateEmail, "not-an-email", false},
		{"valid phone", ValidateTelephone, "4165551234", true},
		{"short phone", ValidateTelephone, "12345", false},
		{"past date", ValidatePastDate, "01/01/1990", true},
		{"future date", ValidatePastDate, "01/01/2099", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.validate(tc.value)
			if tc.wantOK && msg != "" {
				t.Errorf("expected %v to pass, got %q", tc.value, msg)
			}
			if !tc.wantOK && msg == "" {
				t.Errorf("expected %v to be rejected", tc.value)
			}
		})
	}
}
