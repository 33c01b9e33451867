// Package models defines the core data structures for IntakeFlow.
//
// It includes question, answer, transcript, and snapshot types shared across modules.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// QuestionType defines the input control a question expects.
type QuestionType string

const (
	// QuestionTypeShortText expects a single line of free text.
	QuestionTypeShortText QuestionType = "short-text"
	// QuestionTypeEmail expects an email address.
	QuestionTypeEmail QuestionType = "email"
	// QuestionTypeTelephone expects a phone number.
	QuestionTypeTelephone QuestionType = "telephone"
	// QuestionTypeBoolean expects a yes/no answer.
	QuestionTypeBoolean QuestionType = "boolean"
	// QuestionTypeSingleSelect expects one of a fixed set of options.
	QuestionTypeSingleSelect QuestionType = "single-select"
	// QuestionTypeMultiLine expects multi-line free text.
	QuestionTypeMultiLine QuestionType = "multi-line-text"
	// QuestionTypeDate expects a calendar date.
	QuestionTypeDate QuestionType = "date"
	// QuestionTypeScale expects a numeric value on a 1-5 scale.
	QuestionTypeScale QuestionType = "numeric-scale"
	// QuestionTypeRating expects a 1-5 star rating.
	QuestionTypeRating QuestionType = "star-rating"
	// QuestionTypeFileSet expects zero or more uploaded files.
	QuestionTypeFileSet QuestionType = "file-set"
	// QuestionTypeMessage is an informational bot message with no answer.
	QuestionTypeMessage QuestionType = "informational-message"
)

// IsValidQuestionType checks if the given question type is supported.
func IsValidQuestionType(qt QuestionType) bool {
	switch qt {
	case QuestionTypeShortText, QuestionTypeEmail, QuestionTypeTelephone,
		QuestionTypeBoolean, QuestionTypeSingleSelect, QuestionTypeMultiLine,
		QuestionTypeDate, QuestionTypeScale, QuestionTypeRating,
		QuestionTypeFileSet, QuestionTypeMessage:
		return true
	default:
		return false
	}
}

// Option represents a selectable option for select-style questions.
type Option struct {
	Value string `json:"value"` // committed answer value
	Label string `json:"label"` // text shown to the patient
}

// Scale bounds for numeric-scale and star-rating questions.
const (
	ScaleMin = 1
	ScaleMax = 5
)

// Date layout constants. Answers are committed in display form and converted
// back to ISO form at submission time.
const (
	DateLayoutDisplay = "02/01/2006" // DD/MM/YYYY
	DateLayoutISO     = "2006-01-02" // YYYY-MM-DD
)

// Error variables for better error handling and testability
var (
	ErrStreamingActive     = errors.New("a bot message is still being delivered")
	ErrSessionEnded        = errors.New("session has reached a terminal state")
	ErrNoCurrentQuestion   = errors.New("no question is currently awaiting an answer")
	ErrUnknownVariant      = errors.New("unknown flow variant")
	ErrSessionNotFound     = errors.New("session not found")
	ErrFileIndexOutOfRange = errors.New("file index out of range")
)

// AnswerSet maps question id to committed answer value. Value shapes depend on
// the question type: string, bool, int (scale/rating), or []FileDescriptor.
// Values that round-trip through JSON lose their Go types (numbers become
// float64, descriptor slices become []interface{}), so reads go through the
// type-tolerant getters below.
type AnswerSet map[string]interface{}

// Has reports whether a non-nil answer exists for the question id.
func (a AnswerSet) Has(id string) bool {
	v, ok := a[id]
	return ok && v != nil
}

// GetString returns the answer as a string, or "" if absent or not string-like.
func (a AnswerSet) GetString(id string) string {
	switch v := a[id].(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.Itoa(int(v))
	default:
		return ""
	}
}

// GetBool returns the answer as a bool. Absent or non-boolean answers are
// false; visibility predicates rely on absent-is-falsy.
func (a AnswerSet) GetBool(id string) bool {
	switch v := a[id].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	default:
		return false
	}
}

// GetInt returns the answer as an int, or 0 if absent or not numeric.
func (a AnswerSet) GetInt(id string) int {
	switch v := a[id].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// GetFiles returns the answer as file descriptors, tolerating the generic
// shapes produced by a JSON round-trip of a persisted snapshot.
func (a AnswerSet) GetFiles(id string) []FileDescriptor {
	switch v := a[id].(type) {
	case []FileDescriptor:
		return v
	case []interface{}:
		descriptors := make([]FileDescriptor, 0, len(v))
		for _, raw := range v {
			m, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			descriptors = append(descriptors, fileDescriptorFromMap(m))
		}
		return descriptors
	default:
		return nil
	}
}

// Clone returns a shallow copy of the answer set.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func fileDescriptorFromMap(m map[string]interface{}) FileDescriptor {
	d := FileDescriptor{}
	if v, ok := m["index"].(float64); ok {
		d.Index = int(v)
	}
	if v, ok := m["name"].(string); ok {
		d.Name = v
	}
	if v, ok := m["size"].(float64); ok {
		d.Size = int64(v)
	}
	if v, ok := m["type"].(string); ok {
		d.Type = v
	}
	if v, ok := m["last_modified"].(float64); ok {
		d.LastModified = int64(v)
	}
	if v, ok := m["handle"].(string); ok {
		d.Handle = v
	}
	return d
}

// FileDescriptor is the serializable metadata surrogate for an uploaded file.
// The binary lives only in the session file cache, keyed by Handle; after a
// process restart the descriptor survives in the snapshot but the bytes do not.
type FileDescriptor struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	LastModified int64  `json:"last_modified"`
	Handle       string `json:"handle"`
}

// FileUpload carries raw uploaded file content into the flow engine. It is
// never stored in an answer set or snapshot.
type FileUpload struct {
	Name         string
	Size         int64
	Type         string
	LastModified int64
	Data         []byte
}

// Speaker identifies the author of a transcript entry.
type Speaker string

const (
	// SpeakerBot marks a message authored by the chatbot.
	SpeakerBot Speaker = "bot"
	// SpeakerUser marks a message authored by the patient.
	SpeakerUser Speaker = "user"
)

// TranscriptEntry is one ordered element of the conversation transcript.
type TranscriptEntry struct {
	Speaker           Speaker   `json:"speaker"`
	Content           string    `json:"content"`
	Timestamp         time.Time `json:"timestamp"`
	QuestionID        string    `json:"question_id,omitempty"`
	Options           []Option  `json:"options,omitempty"`
	Streaming         bool      `json:"streaming,omitempty"`
	TypingPlaceholder bool      `json:"typing_placeholder,omitempty"`
}

// EngineState represents the flow engine's position in its state machine.
type EngineState string

const (
	// StateAwaitingAnswer means a question prompt is pending a patient answer.
	StateAwaitingAnswer EngineState = "AWAITING_ANSWER"
	// StateAwaitingSummaryConfirmation means the recap summary was posted and
	// the engine waits for confirm or edit.
	StateAwaitingSummaryConfirmation EngineState = "AWAITING_SUMMARY_CONFIRMATION"
	// StateEscalated means the session was handed to human staff.
	StateEscalated EngineState = "ESCALATED"
	// StateCompleted means the flow finished, with or without a successful submission.
	StateCompleted EngineState = "COMPLETED"
)

// IsTerminal reports whether the state admits no further transitions.
func (s EngineState) IsTerminal() bool {
	return s == StateEscalated || s == StateCompleted
}

// Snapshot is the durable serialized form of a session, overwritten after every
// state transition and loaded once at engine construction to resume.
type Snapshot struct {
	SessionID  string            `json:"session_id"`
	Variant    string            `json:"variant"`
	State      EngineState       `json:"state"`
	Position   int               `json:"position"` // index into the visible question sequence
	Answers    AnswerSet         `json:"answers"`
	Transcript []TranscriptEntry `json:"transcript"`
	Completed  bool              `json:"completed"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// QuestionDescriptor tells the presentation layer which input control to show.
type QuestionDescriptor struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Prompt   string       `json:"prompt"`
	Options  []Option     `json:"options,omitempty"`
	Required bool         `json:"required"`
}

// SessionStatus is the engine's full view for the presentation layer.
type SessionStatus struct {
	SessionID       string              `json:"session_id"`
	Variant         string              `json:"variant"`
	State           EngineState         `json:"state"`
	Transcript      []TranscriptEntry   `json:"transcript"`
	CurrentQuestion *QuestionDescriptor `json:"current_question,omitempty"`
	StreamingActive bool                `json:"streaming_active"`
}

// SubmissionFile is a rehydrated file ready for delivery to the registration
// endpoint.
type SubmissionFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// SubmissionPayload is the flattened, backend-agnostic form of a completed
// intake. Empty-string fields are dropped before assembly; Files is nil when
// no binaries could be rehydrated.
type SubmissionPayload struct {
	SessionID string
	Variant   string
	Fields    map[string]string
	Files     []SubmissionFile
}

// RenderStars renders a rating value as transcript text, e.g. "3 star(s)".
func RenderStars(n int) string {
	return fmt.Sprintf("%d star(s)", n)
}
