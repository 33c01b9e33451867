package catalog

import (
	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// Referral is the extended branching referral flow. It distinguishes new from
// returning patients, screens out clinically out-of-scope requests, collects
// payment consent, and finishes with a summary-confirmation step before
// submission.
//
// Unlike the classic variant, demographic email is always required here and
// the document upload is shown unconditionally but made optional when the
// patient has no referral letter. That divergence mirrors the product rules
// per variant; do not unify.
const ReferralVariantName = "referral"

func referralVariant() *Variant {
	questions := []Question{
		{
			ID:     "patient_status",
			Type:   models.QuestionTypeSingleSelect,
			Prompt: "Have you visited our clinic before?",
			Options: []models.Option{
				{Value: "new", Label: "No, I'm a new patient"},
				{Value: "returning", Label: "Yes, I'm a returning patient"},
			},
			Required: true,
		},
		{
			ID:       "seen_within_year",
			Type:     models.QuestionTypeBoolean,
			Prompt:   "Was your last visit within the past year?",
			Options:  YesNoOptions(),
			Required: true,
			VisibleIf: func(a models.AnswerSet) bool {
				return a.GetString("patient_status") == "returning"
			},
		},
		{
			ID:       "consent",
			Type:     models.QuestionTypeBoolean,
			Prompt:   "Do you consent to our clinic collecting and storing the information you provide in this chat?",
			Options:  YesNoOptions(),
			Required: true,
		},
		{
			ID:       "full_name",
			Type:     models.QuestionTypeShortText,
			Prompt:   "What is your full name, as it appears on your health card?",
			Required: true,
		},
		{
			ID:       "email",
			Type:     models.QuestionTypeEmail,
			Prompt:   "What is the best email address to reach you?",
			Required: true,
			Validate: ValidateEmail,
		},
		{
			ID:       "phone",
			Type:     models.QuestionTypeTelephone,
			Prompt:   "And a daytime phone number?",
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
			ID:     "referral_source",
			Type:   models.QuestionTypeSingleSelect,
			Prompt: "How did you come to us?",
			Options: []models.Option{
				{Value: "physician", Label: "Referred by a physician"},
				{Value: "self", Label: "Self-referral"},
				{Value: "other_clinic", Label: "Transfer from another clinic"},
			},
			Required: true,
		},
		{
			ID:   "referring_physician",
			Type: models.QuestionTypeShortText,
			PromptFunc: func(a models.AnswerSet) string {
				if a.GetString("referral_source") == "other_clinic" {
					return "Which clinic is transferring your care, and who was your physician there?"
				}
				return "What is the referring physician's full name?"
			},
			Required: true,
			VisibleIf: func(a models.AnswerSet) bool {
				src := a.GetString("referral_source")
				return src == "physician" || src == "other_clinic"
			},
		},
		{
			ID:       "has_referral_letter",
			Type:     models.QuestionTypeBoolean,
			Prompt:   "Do you have a copy of your referral letter or recent test results?",
			Options:  YesNoOptions(),
			Required: true,
			VisibleIf: func(a models.AnswerSet) bool {
				return a.GetString("referral_source") == "physician" ||
					a.GetString("referral_source") == "other_clinic"
			},
		},
		{
			ID:     "reason",
			Type:   models.QuestionTypeSingleSelect,
			Prompt: "What is the reason for your referral?",
			Options: []models.Option{
				{Value: "fertility_assessment", Label: "Fertility assessment"},
				{Value: "ivf", Label: "IVF treatment"},
				{Value: "iui", Label: "IUI treatment"},
				{Value: "egg_freezing", Label: "Egg freezing"},
				{Value: "recurrent_loss", Label: "Recurrent pregnancy loss"},
				{Value: "general_gyne", Label: "General gynaecology"},
				{Value: "other", Label: "Something else"},
			},
			Required: true,
		},
		{
			ID:       "payment_consent",
			Type:     models.QuestionTypeBoolean,
			Prompt:   "Some services are not covered by provincial insurance. Do you agree to review our fee schedule before your first appointment?",
			Options:  YesNoOptions(),
			Required: true,
		},
		{
			ID:       "documents",
			Type:     models.QuestionTypeFileSet,
			Prompt:   "Please attach your referral letter and any recent results. You can skip this if you don't have them handy.",
			Required: true,
			AllowEmptyIf: func(a models.AnswerSet) bool {
				// Upload is only mandatory when the patient said they have the letter.
				return !a.GetBool("has_referral_letter")
			},
		},
		{
			ID:       "ease_of_use",
			Type:     models.QuestionTypeScale,
			Prompt:   "On a scale of 1 to 5, how easy was this form to complete?",
			Required: false,
		},
	}

	return &Variant{
		Name:      ReferralVariantName,
		Questions: questions,
		Rules: map[string]EscalationRule{
			"consent": {
				Matches: EqualsValue(false),
				Message: "Understood — we won't collect anything further here. One of our coordinators will call you to complete your registration over the phone.",
				Reason:  "consent declined",
			},
			"payment_consent": {
				Matches: EqualsValue(false),
				Message: "That's okay. A coordinator will contact you to walk through coverage and costs before anything is booked.",
				Reason:  "payment consent declined",
			},
			"seen_within_year": {
				Matches: EqualsValue(false),
				Message: "Since it's been more than a year, we'll need to refresh your file with a coordinator. Someone will reach out to you shortly.",
				Reason:  "returning patient outside one year",
			},
			"reason": {
				Matches: func(_ models.AnswerSet, value interface{}) bool {
					s, _ := value.(string)
					return s == "general_gyne" || s == "other"
				},
				Message: "Thanks for letting us know. This sounds like something our nursing team should look at directly — they'll contact you to find the right next step.",
				Reason:  "out-of-scope referral reason",
			},
		},
		Greeting: "Welcome to NovaFertility's referral intake. 🌱 I'll collect the details our team needs, and you'll get a chance to review everything before it's sent.",
		Completion: "All done — thank you! Our referral team will review your file and confirm your first appointment by email.",
		SummaryFields: []SummaryField{
			{Label: "Name", QuestionID: "full_name"},
			{Label: "Email", QuestionID: "email"},
			{Label: "Phone", QuestionID: "phone"},
			{Label: "Date of birth", QuestionID: "dob"},
			{Label: "Referring physician", QuestionID: "referring_physician"},
			{Label: "Reason for referral", QuestionID: "reason", ResolveOption: true},
		},
	}
}

func init() {
	Register(referralVariant())
}
