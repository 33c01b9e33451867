package catalog

import (
	"fmt"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// Sofia is the short persona-led variant used on the marketing site. It
// captures just enough to open a file, skips the summary step, and closes with
// a terminal message.
const SofiaVariantName = "sofia"

func sofiaVariant() *Variant {
	questions := []Question{
		{
			ID:       "consent",
			Type:     models.QuestionTypeBoolean,
			Prompt:   "First things first — is it okay if I save your answers so our team can follow up?",
			Options:  YesNoOptions(),
			Required: true,
		},
		{
			ID:       "full_name",
			Type:     models.QuestionTypeShortText,
			Prompt:   "Lovely. What's your name?",
			Required: true,
		},
		{
			ID:   "reason",
			Type: models.QuestionTypeSingleSelect,
			PromptFunc: func(a models.AnswerSet) string {
				if name := a.GetString("full_name"); name != "" {
					return fmt.Sprintf("Nice to meet you, %s! What would you like to talk to us about?", name)
				}
				return "What would you like to talk to us about?"
			},
			Options: []models.Option{
				{Value: "starting_out", Label: "Just starting to explore"},
				{Value: "treatment", Label: "Fertility treatment"},
				{Value: "egg_freezing", Label: "Egg freezing"},
				{Value: "questions", Label: "I have questions for the team"},
			},
			Required: true,
		},
		{
			ID:     "preferred_contact",
			Type:   models.QuestionTypeSingleSelect,
			Prompt: "How would you prefer we get in touch?",
			Options: []models.Option{
				{Value: "email", Label: "Email"},
				{Value: "phone", Label: "Phone call"},
				{Value: "text", Label: "Text message"},
			},
			Required: true,
		},
		{
			ID:       "email",
			Type:     models.QuestionTypeEmail,
			Prompt:   "What email address should we use?",
			Required: true,
			Validate: ValidateEmail,
			VisibleIf: func(a models.AnswerSet) bool {
				return a.GetString("preferred_contact") == "email"
			},
		},
		{
			ID:       "phone",
			Type:     models.QuestionTypeTelephone,
			Prompt:   "What number should we use?",
			Required: true,
			Validate: ValidateTelephone,
			VisibleIf: func(a models.AnswerSet) bool {
				c := a.GetString("preferred_contact")
				return c == "phone" || c == "text"
			},
		},
		{
			ID:       "wrap_up",
			Type:     models.QuestionTypeMessage,
			Prompt:   "That's everything I need! Someone from the team will reach out soon. Take care 💙",
			Terminal: true,
		},
	}

	return &Variant{
		Name:      SofiaVariantName,
		Questions: questions,
		Rules: map[string]EscalationRule{
			"consent": {
				Matches: EqualsValue(false),
				Message: "Of course — nothing will be saved. If you'd still like to talk to someone, our front desk can help: a coordinator will reach out.",
				Reason:  "consent declined",
			},
		},
		Greeting:   "Hi, I'm Sofia! 🌸 I can take a few details so the right person at NovaFertility gets back to you.",
		Completion: "Thanks for chatting with me — talk soon! 💙",
	}
}

func init() {
	Register(sofiaVariant())
}
