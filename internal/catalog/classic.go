package catalog

import (
	"fmt"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// Classic is the linear new-patient questionnaire. It has no summary
// confirmation step: the flow ends with a thank-you message and the intake is
// submitted as-is.
//
// Required/visibility rules here are the source of truth for this variant and
// intentionally differ from the referral variant (health card is required only
// when no referring physician was named).
const ClassicVariantName = "classic"

func classicVariant() *Variant {
	questions := []Question{
		{
			ID:     "consent",
			Type:   models.QuestionTypeBoolean,
			Prompt: "Before we begin: do you consent to sharing your health information with our clinic so we can prepare your file?",
			Options: YesNoOptions(),
			Required: true,
		},
		{
			ID:       "full_name",
			Type:     models.QuestionTypeShortText,
			Prompt:   "Great, let's get started. What is your full name?",
			Required: true,
		},
		{
			ID:   "email",
			Type: models.QuestionTypeEmail,
			PromptFunc: func(a models.AnswerSet) string {
				if name := a.GetString("full_name"); name != "" {
					return fmt.Sprintf("Thanks %s! What email address should we use to reach you?", name)
				}
				return "What email address should we use to reach you?"
			},
			Required: true,
			Validate: ValidateEmail,
		},
		{
			ID:       "phone",
			Type:     models.QuestionTypeTelephone,
			Prompt:   "And your phone number?",
			Required: true,
			Validate: ValidateTelephone,
		},
		{
			ID:       "dob",
			Type:     models.QuestionTypeDate,
			Prompt:   "What is your date of birth?",
			Required: true,
			Validate: ValidatePastDate,
		},
		{
			ID:       "has_partner",
			Type:     models.QuestionTypeBoolean,
			Prompt:   "Will a partner be joining you on this journey?",
			Options:  YesNoOptions(),
			Required: true,
		},
		{
			ID:       "partner_name",
			Type:     models.QuestionTypeShortText,
			Prompt:   "What is your partner's full name?",
			Required: true,
			VisibleIf: func(a models.AnswerSet) bool {
				return a.GetBool("has_partner")
			},
		},
		{
			ID:       "was_referred",
			Type:     models.QuestionTypeBoolean,
			Prompt:   "Were you referred to us by a physician?",
			Options:  YesNoOptions(),
			Required: true,
		},
		{
			ID:       "referring_physician",
			Type:     models.QuestionTypeShortText,
			Prompt:   "What is the referring physician's name?",
			Required: true,
			VisibleIf: func(a models.AnswerSet) bool {
				return a.GetBool("was_referred")
			},
		},
		{
			// Health card is only needed when there is no referral on file.
			ID:       "health_card",
			Type:     models.QuestionTypeShortText,
			Prompt:   "Please enter your health card number.",
			Required: true,
			VisibleIf: func(a models.AnswerSet) bool {
				return a.Has("was_referred") && !a.GetBool("was_referred")
			},
		},
		{
			ID:     "reason",
			Type:   models.QuestionTypeSingleSelect,
			Prompt: "What brings you to the clinic?",
			Options: []models.Option{
				{Value: "fertility_assessment", Label: "Fertility assessment"},
				{Value: "ivf", Label: "IVF treatment"},
				{Value: "iui", Label: "IUI treatment"},
				{Value: "egg_freezing", Label: "Egg freezing"},
				{Value: "second_opinion", Label: "Second opinion"},
			},
			Required: true,
		},
		{
			ID:       "notes",
			Type:     models.QuestionTypeMultiLine,
			Prompt:   "Is there anything else you would like our team to know? You can skip this if not.",
			Required: false,
		},
		{
			ID:       "wants_upload",
			Type:     models.QuestionTypeBoolean,
			Prompt:   "Do you have any medical documents you'd like to share with us now?",
			Options:  YesNoOptions(),
			Required: true,
		},
		{
			ID:       "documents",
			Type:     models.QuestionTypeFileSet,
			Prompt:   "Please attach your documents. You can add several files.",
			Required: true,
			VisibleIf: func(a models.AnswerSet) bool {
				return a.GetBool("wants_upload")
			},
			AllowEmptyIf: func(a models.AnswerSet) bool {
				return !a.GetBool("wants_upload")
			},
		},
		{
			ID:       "satisfaction",
			Type:     models.QuestionTypeRating,
			Prompt:   "Last one! How was your experience with this intake chat?",
			Required: false,
		},
	}

	return &Variant{
		Name:      ClassicVariantName,
		Questions: questions,
		Rules: map[string]EscalationRule{
			"consent": {
				Matches: EqualsValue(false),
				Message: "No problem at all. A member of our care team will reach out to you directly to continue by phone.",
				Reason:  "consent declined",
			},
		},
		Greeting:   "Hi there! 👋 Welcome to NovaFertility. I'll ask a few questions to get your file started — it only takes a couple of minutes.",
		Completion: "Thank you! Your information has been passed to our intake team. We'll be in touch within two business days. 💙",
	}
}

func init() {
	Register(classicVariant())
}
