// Package catalog defines the question graphs driving the intake chatbot.
//
// A variant bundles an ordered question list, the special-case escalation
// rules keyed by question id, and the variant's fixed copy. The flow engine is
// generic over variants; all branching data lives here.
package catalog

import (
	"log/slog"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// Question is a single catalog entry. Defined statically at load time, never
// mutated.
type Question struct {
	ID   string
	Type models.QuestionType

	// Prompt is the static prompt text. PromptFunc, when set, derives the
	// prompt from prior answers and takes precedence.
	Prompt     string
	PromptFunc func(models.AnswerSet) string

	// Options apply to single-select and boolean-option-styled questions.
	Options []models.Option

	// Required marks the question as mandatory. RequiredFunc, when set,
	// resolves the flag against the answer set and takes precedence.
	Required     bool
	RequiredFunc func(models.AnswerSet) bool

	// AllowEmptyIf permits an empty answer on an otherwise required question,
	// e.g. a file upload made optional by an earlier "no referral letter".
	AllowEmptyIf func(models.AnswerSet) bool

	// Validate returns a user-facing error message for a rejected value, or ""
	// to accept. Runs after normalization and the required check.
	Validate func(value interface{}) string

	// VisibleIf gates the question on prior answers. Absent means always
	// visible. Predicates must treat unanswered references as falsy.
	VisibleIf func(models.AnswerSet) bool

	// Terminal marks an informational message that ends the flow.
	Terminal bool
}

// PromptText resolves the prompt against the current answers.
func (q Question) PromptText(answers models.AnswerSet) string {
	if q.PromptFunc != nil {
		return q.PromptFunc(answers)
	}
	return q.Prompt
}

// IsRequired resolves the required flag against the current answers.
func (q Question) IsRequired(answers models.AnswerSet) bool {
	if q.RequiredFunc != nil {
		return q.RequiredFunc(answers)
	}
	return q.Required
}

// EmptyAllowed reports whether an empty answer is acceptable despite the
// required flag.
func (q Question) EmptyAllowed(answers models.AnswerSet) bool {
	return q.AllowEmptyIf != nil && q.AllowEmptyIf(answers)
}

// OptionLabel resolves an option value to its display label, falling back to
// the value itself.
func (q Question) OptionLabel(value string) string {
	for _, opt := range q.Options {
		if opt.Value == value {
			return opt.Label
		}
	}
	return value
}

// EscalationRule routes a session to human staff when the committed answer
// matches. Checked before generic advancement.
type EscalationRule struct {
	// Matches decides whether the committed value triggers the handoff.
	Matches func(answers models.AnswerSet, value interface{}) bool
	// Message is the fixed human-handoff transcript entry.
	Message string
	// Reason tags the escalation for the triage board and staff notification.
	Reason string
}

// SummaryField is one line of the pre-submission recap.
type SummaryField struct {
	Label      string
	QuestionID string
	// ResolveOption maps the stored option value to its display label.
	ResolveOption bool
}

// Variant is a complete question graph plus its transition-rule table.
type Variant struct {
	Name      string
	Questions []Question
	// Rules holds the named special-case escalation rules keyed by question id.
	Rules map[string]EscalationRule
	// Greeting opens the transcript before the first question.
	Greeting string
	// Completion is the thank-you terminal message.
	Completion string
	// SummaryFields drives the confirmation recap; nil means the variant skips
	// the summary step and goes straight to the completion message.
	SummaryFields []SummaryField
}

// Question looks up a question by id.
func (v *Variant) Question(id string) (Question, bool) {
	for _, q := range v.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Rule looks up the escalation rule for a question id.
func (v *Variant) Rule(id string) (EscalationRule, bool) {
	r, ok := v.Rules[id]
	return r, ok
}

// VisibleQuestions returns the ordered subsequence of questions whose
// visibility predicate evaluates true against the current answers. Pure; must
// be recomputed after every commit because an earlier answer can toggle
// downstream visibility.
func VisibleQuestions(questions []Question, answers models.AnswerSet) []Question {
	visible := make([]Question, 0, len(questions))
	for _, q := range questions {
		if q.VisibleIf == nil || q.VisibleIf(answers) {
			visible = append(visible, q)
		}
	}
	return visible
}

// Visible returns the variant's currently visible sequence.
func (v *Variant) Visible(answers models.AnswerSet) []Question {
	return VisibleQuestions(v.Questions, answers)
}

var registry = make(map[string]*Variant)

// Register associates a variant name with its definition.
func Register(v *Variant) {
	registry[v.Name] = v
}

// Get retrieves a registered variant by name.
func Get(name string) (*Variant, bool) {
	v, ok := registry[name]
	if !ok {
		slog.Debug("catalog.Get: variant not registered", "name", name)
	}
	return v, ok
}

// Names lists the registered variant names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// EqualsValue builds a rule matcher comparing the committed value to want.
// Boolean answers compare as bools, everything else as strings.
func EqualsValue(want interface{}) func(models.AnswerSet, interface{}) bool {
	return func(_ models.AnswerSet, value interface{}) bool {
		if wb, ok := want.(bool); ok {
			vb, ok := value.(bool)
			return ok && vb == wb
		}
		ws, _ := want.(string)
		vs, _ := value.(string)
		return ws == vs
	}
}
