package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
	"github.com/NovaFertility/IntakeFlow/internal/util"
)

// Synthetic question ids for the summary-confirmation step. They never appear
// in a catalog; the engine owns them.
const (
	SummaryConfirmationID = "summary_confirmation"
	SummaryEditFieldID    = "summary_edit_field"

	SummaryConfirmValue = "confirm"
	SummaryEditValue    = "edit"
)

const summaryEditPrompt = "Of course. Which detail would you like to change?"

// Engine drives one intake session through its question graph. All mutations
// are serialized through the mutex; the presentation layer interacts only via
// HandleAnswer, HandleOptionClick, RemoveFile, and Reset.
type Engine struct {
	mu        sync.Mutex
	sessionID string
	variant   *catalog.Variant
	deps      Dependencies
	timer     *SimpleTimer
	files     *FileCache

	answers    models.AnswerSet
	transcript []models.TranscriptEntry

	// visible is the sequence snapshot taken at prompt time. The current
	// question resolves from it, not from a mid-answer recomputation, so an
	// async UI can never race the position.
	visible []catalog.Question
	pos     int

	state            models.EngineState
	escalationReason string

	// editingField holds the question id being revised from the summary;
	// committing it re-posts the summary instead of advancing.
	editingField      string
	choosingEditField bool

	submitted bool

	// pendingEntries queues bot messages awaiting their typing swap, in post
	// order. Swap callbacks always install the front entry into the front
	// placeholder, so equal timer delays can never reorder the transcript.
	pendingEntries []models.TranscriptEntry
	generation     uint64
}

// NewEngine creates an engine for a session. Call Start to load any persisted
// snapshot and open the transcript.
func NewEngine(sessionID string, variant *catalog.Variant, deps Dependencies) *Engine {
	slog.Debug("flow.NewEngine: creating engine", "sessionID", sessionID, "variant", variant.Name)
	return &Engine{
		sessionID: sessionID,
		variant:   variant,
		deps:      deps,
		timer:     NewSimpleTimer(),
		files:     NewFileCache(),
		answers:   models.AnswerSet{},
		state:     models.StateAwaitingAnswer,
	}
}

// SessionID returns the engine's session id.
func (e *Engine) SessionID() string { return e.sessionID }

// Variant returns the engine's variant name.
func (e *Engine) Variant() string { return e.variant.Name }

// Start opens the session: it loads the persisted snapshot once and resumes
// from it, or posts the greeting and first question for a fresh session.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deps.Snapshots != nil {
		snapshot, err := e.deps.Snapshots.GetSnapshot(e.sessionID)
		if err != nil {
			slog.Error("Engine.Start: failed to load snapshot", "sessionID", e.sessionID, "error", err)
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		if snapshot != nil {
			e.resumeLocked(snapshot)
			return nil
		}
	}

	e.startFreshLocked(ctx)
	e.saveSnapshotLocked()
	return nil
}

// resumeLocked restores engine state from a durable snapshot. Snapshot values
// win field-by-field over any in-memory defaults; file descriptors resurface
// but their binaries do not survive a restart.
func (e *Engine) resumeLocked(snapshot *models.Snapshot) {
	slog.Info("Engine.resumeLocked: resuming session from snapshot",
		"sessionID", e.sessionID, "state", snapshot.State, "answers", len(snapshot.Answers))

	e.answers = MergeSnapshotAnswers(e.answers, snapshot.Answers)
	e.transcript = snapshot.Transcript
	e.state = snapshot.State
	e.submitted = snapshot.Completed

	e.visible = e.variant.Visible(e.answers)
	e.pos = snapshot.Position
	if e.pos >= len(e.visible) {
		e.pos = len(e.visible) - 1
	}
	if e.pos < 0 {
		e.pos = 0
	}
}

func (e *Engine) startFreshLocked(ctx context.Context) {
	e.postBotMessage(e.variant.Greeting, "", nil)
	e.state = models.StateAwaitingAnswer
	e.visible = e.variant.Visible(e.answers)
	e.advanceToLocked(ctx, 0)
}

// HandleAnswer accepts an answer for the current question. The returned string
// is a user-facing validation message; it is empty when the answer was
// committed. Errors are reserved for gate violations (streaming in progress,
// terminal session, nothing awaiting an answer).
func (e *Engine) HandleAnswer(ctx context.Context, raw interface{}) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processAnswerLocked(ctx, raw)
}

// HandleOptionClick relays an inline option button click. Clicks referencing a
// question that is no longer current are silently ignored per the stale-click
// guard; summary confirm/edit clicks drive the confirmation state.
func (e *Engine) HandleOptionClick(ctx context.Context, value, label, questionID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pendingEntries) > 0 {
		return "", models.ErrStreamingActive
	}

	switch e.state {
	case models.StateAwaitingSummaryConfirmation:
		return e.handleSummaryClickLocked(ctx, value, questionID)
	case models.StateAwaitingAnswer:
		current := e.currentQuestionLocked()
		if current == nil || current.ID != questionID {
			slog.Debug("Engine.HandleOptionClick: stale click ignored",
				"sessionID", e.sessionID, "clicked", questionID, "label", label)
			return "", nil
		}
		return e.processAnswerLocked(ctx, value)
	default:
		slog.Debug("Engine.HandleOptionClick: click after terminal state ignored",
			"sessionID", e.sessionID, "clicked", questionID, "state", e.state)
		return "", nil
	}
}

func (e *Engine) handleSummaryClickLocked(ctx context.Context, value, questionID string) (string, error) {
	if e.choosingEditField {
		if questionID != SummaryEditFieldID {
			slog.Debug("Engine.handleSummaryClickLocked: stale click during field choice", "sessionID", e.sessionID, "clicked", questionID)
			return "", nil
		}
		return "", e.enterEditLocked(ctx, value)
	}

	if questionID != SummaryConfirmationID {
		slog.Debug("Engine.handleSummaryClickLocked: stale click ignored", "sessionID", e.sessionID, "clicked", questionID)
		return "", nil
	}

	switch value {
	case SummaryConfirmValue:
		e.finalizeLocked(ctx, true)
		e.saveSnapshotLocked()
		return "", nil
	case SummaryEditValue:
		options := make([]models.Option, 0, len(e.variant.SummaryFields))
		for _, field := range e.variant.SummaryFields {
			options = append(options, models.Option{Value: field.QuestionID, Label: field.Label})
		}
		e.postBotMessage(summaryEditPrompt, SummaryEditFieldID, options)
		e.choosingEditField = true
		e.saveSnapshotLocked()
		return "", nil
	default:
		slog.Debug("Engine.handleSummaryClickLocked: unknown confirmation value ignored", "sessionID", e.sessionID, "value", value)
		return "", nil
	}
}

// enterEditLocked re-enters AwaitingAnswer at the chosen summary field.
func (e *Engine) enterEditLocked(ctx context.Context, questionID string) error {
	e.choosingEditField = false

	e.visible = e.variant.Visible(e.answers)
	for i, q := range e.visible {
		if q.ID == questionID {
			e.pos = i
			e.editingField = questionID
			e.state = models.StateAwaitingAnswer
			e.promptQuestionLocked(q)
			e.saveSnapshotLocked()
			return nil
		}
	}

	// Chosen field is not visible anymore; re-post the summary instead.
	slog.Warn("Engine.enterEditLocked: edit target not visible, re-posting summary",
		"sessionID", e.sessionID, "question", questionID)
	e.presentSummaryLocked()
	e.saveSnapshotLocked()
	return nil
}

// processAnswerLocked runs the full transition: normalize, validate, commit,
// short-circuits, then generic advancement.
func (e *Engine) processAnswerLocked(ctx context.Context, raw interface{}) (string, error) {
	if len(e.pendingEntries) > 0 {
		return "", models.ErrStreamingActive
	}
	if e.state.IsTerminal() {
		return "", models.ErrSessionEnded
	}
	if e.state != models.StateAwaitingAnswer {
		return "", models.ErrNoCurrentQuestion
	}

	q := e.currentQuestionLocked()
	if q == nil {
		return "", models.ErrNoCurrentQuestion
	}

	normalized, validationMsg := e.normalizeAnswer(*q, raw)
	if validationMsg != "" {
		slog.Debug("Engine.processAnswerLocked: normalization rejected answer",
			"sessionID", e.sessionID, "question", q.ID, "message", validationMsg)
		return validationMsg, nil
	}

	if q.IsRequired(e.answers) && isEmptyAnswer(normalized) && !q.EmptyAllowed(e.answers) {
		slog.Debug("Engine.processAnswerLocked: required field empty", "sessionID", e.sessionID, "question", q.ID)
		return msgRequired, nil
	}

	if q.Validate != nil {
		if msg := q.Validate(normalized); msg != "" {
			slog.Debug("Engine.processAnswerLocked: validator rejected answer",
				"sessionID", e.sessionID, "question", q.ID, "message", msg)
			return msg, nil
		}
	}

	// Commit.
	e.answers[q.ID] = normalized
	e.appendUserEntry(renderAnswer(*q, normalized), q.ID)
	slog.Debug("Engine.processAnswerLocked: answer committed", "sessionID", e.sessionID, "question", q.ID)

	// Escalation short-circuit takes priority over everything else.
	if rule, ok := e.variant.Rule(q.ID); ok && rule.Matches(e.answers, normalized) {
		e.escalateLocked(ctx, rule)
		e.saveSnapshotLocked()
		return "", nil
	}

	// Editing-from-summary short-circuit: re-post the summary instead of
	// continuing sequential advancement.
	if e.editingField == q.ID {
		e.editingField = ""
		e.presentSummaryLocked()
		e.saveSnapshotLocked()
		return "", nil
	}

	e.advanceFromLocked(ctx, q.ID)
	e.saveSnapshotLocked()
	return "", nil
}

// advanceFromLocked recomputes visibility with the updated answers and moves
// to the question immediately following the just-answered one.
func (e *Engine) advanceFromLocked(ctx context.Context, answeredID string) {
	e.visible = e.variant.Visible(e.answers)

	next := 0
	for i, q := range e.visible {
		if q.ID == answeredID {
			next = i + 1
			break
		}
	}
	e.advanceToLocked(ctx, next)
}

// advanceToLocked walks forward from index, posting informational messages as
// it passes them, until it lands on an answerable question or runs off the end
// of the catalog.
func (e *Engine) advanceToLocked(ctx context.Context, index int) {
	for index < len(e.visible) {
		q := e.visible[index]
		if q.Type != models.QuestionTypeMessage {
			e.pos = index
			e.state = models.StateAwaitingAnswer
			e.promptQuestionLocked(q)
			return
		}

		e.postBotMessage(q.PromptText(e.answers), q.ID, nil)
		if q.Terminal {
			e.finalizeLocked(ctx, false)
			return
		}
		index++
	}

	e.finishCatalogLocked(ctx)
}

// finishCatalogLocked handles the end of the visible sequence: summary
// confirmation for variants that carry summary fields, otherwise straight to
// the completion message.
func (e *Engine) finishCatalogLocked(ctx context.Context) {
	if e.variant.SummaryFields == nil {
		e.finalizeLocked(ctx, true)
		return
	}

	if missing := e.missingRequiredLocked(); len(missing) > 0 {
		slog.Warn("Engine.finishCatalogLocked: catalog exhausted with required answers missing",
			"sessionID", e.sessionID, "missing", missing)
		e.postBotMessage(e.variant.Completion, "", nil)
		e.state = models.StateCompleted
		e.recordIntakeLocked(models.OutcomeCompleted)
		return
	}

	e.presentSummaryLocked()
}

func (e *Engine) missingRequiredLocked() []string {
	var missing []string
	for _, q := range e.variant.Visible(e.answers) {
		if q.Type == models.QuestionTypeMessage {
			continue
		}
		if q.IsRequired(e.answers) && !q.EmptyAllowed(e.answers) && isEmptyAnswer(e.answers[q.ID]) {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

func (e *Engine) presentSummaryLocked() {
	summary := BuildSummary(e.variant, e.answers)
	e.postBotMessage(summary, SummaryConfirmationID, []models.Option{
		{Value: SummaryConfirmValue, Label: "Yes, everything is correct"},
		{Value: SummaryEditValue, Label: "I'd like to change something"},
	})
	e.state = models.StateAwaitingSummaryConfirmation
	e.choosingEditField = false
}

// finalizeLocked submits the intake exactly once and closes the session.
// Submission failure is reported to the patient but never blocks completion:
// staff review backstops the automated path.
func (e *Engine) finalizeLocked(ctx context.Context, postCompletion bool) {
	if e.submitted {
		slog.Debug("Engine.finalizeLocked: duplicate finalize ignored", "sessionID", e.sessionID)
		return
	}
	e.submitted = true

	outcome := models.OutcomeCompleted
	if e.deps.Submitter != nil {
		payload := BuildPayload(e.sessionID, e.variant, e.answers, e.files)
		if err := e.deps.Submitter.Submit(ctx, payload); err != nil {
			slog.Error("Engine.finalizeLocked: submission failed", "sessionID", e.sessionID, "error", err)
			e.postBotMessage(fmt.Sprintf("I'm sorry, I couldn't send your registration automatically (%s). Our team will finish it for you manually.", err), "", nil)
			outcome = models.OutcomeSubmissionFailed
		}
	}

	if postCompletion {
		e.postBotMessage(e.variant.Completion, "", nil)
	}
	e.state = models.StateCompleted
	e.recordIntakeLocked(outcome)
	slog.Info("Engine.finalizeLocked: session completed", "sessionID", e.sessionID, "outcome", outcome)
}

func (e *Engine) escalateLocked(ctx context.Context, rule catalog.EscalationRule) {
	e.postBotMessage(rule.Message, "", nil)
	e.state = models.StateEscalated
	e.escalationReason = rule.Reason
	e.recordIntakeLocked(models.OutcomeEscalated)
	slog.Info("Engine.escalateLocked: session escalated", "sessionID", e.sessionID, "reason", rule.Reason)

	if e.deps.Notifier != nil {
		notifier := e.deps.Notifier
		sessionID, reason := e.sessionID, rule.Reason
		detail := fmt.Sprintf("Intake session %s (%s flow) needs follow-up: %s", sessionID, e.variant.Name, reason)
		go func() {
			if err := notifier.NotifyEscalation(context.WithoutCancel(ctx), sessionID, reason, detail); err != nil {
				slog.Warn("Engine.escalateLocked: staff notification failed", "sessionID", sessionID, "error", err)
			}
		}()
	}
}

func (e *Engine) recordIntakeLocked(outcome models.IntakeOutcome) {
	if e.deps.Intakes == nil {
		return
	}

	answersJSON, err := json.Marshal(e.answers)
	if err != nil {
		slog.Error("Engine.recordIntakeLocked: failed to marshal answers", "sessionID", e.sessionID, "error", err)
	}

	reason := e.answers.GetString("reason")
	if q, ok := e.variant.Question("reason"); ok && reason != "" {
		reason = q.OptionLabel(reason)
	}

	now := time.Now()
	record := models.IntakeRecord{
		ID:               util.GenerateIntakeID(),
		SessionID:        e.sessionID,
		Variant:          e.variant.Name,
		PatientName:      e.answers.GetString("full_name"),
		Email:            e.answers.GetString("email"),
		Phone:            e.answers.GetString("phone"),
		Reason:           reason,
		Outcome:          outcome,
		EscalationReason: e.escalationReason,
		Status:           models.TriageStatusNew,
		AnswersJSON:      string(answersJSON),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := e.deps.Intakes.AddIntake(record); err != nil {
		slog.Error("Engine.recordIntakeLocked: failed to store intake record", "sessionID", e.sessionID, "error", err)
	}
}

// RemoveFile drops one uploaded file from a committed file answer by index and
// renumbers the remaining descriptors from 0.
func (e *Engine) RemoveFile(questionID string, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	descriptors := e.answers.GetFiles(questionID)
	if index < 0 || index >= len(descriptors) {
		return models.ErrFileIndexOutOfRange
	}

	e.files.Remove(descriptors[index].Handle)
	descriptors = append(descriptors[:index], descriptors[index+1:]...)
	for i := range descriptors {
		descriptors[i].Index = i
	}
	e.answers[questionID] = descriptors
	e.saveSnapshotLocked()

	slog.Debug("Engine.RemoveFile: removed file", "sessionID", e.sessionID, "question", questionID, "index", index, "remaining", len(descriptors))
	return nil
}

// Reset discards the session: pending typing timers are cancelled first so no
// stale callback can touch the fresh state, then the cache, snapshot, and
// transcript are cleared and the flow restarts.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.timer.Stop()
	e.generation++
	e.pendingEntries = nil
	e.files.Clear()

	if e.deps.Snapshots != nil {
		if err := e.deps.Snapshots.DeleteSnapshot(e.sessionID); err != nil {
			slog.Error("Engine.Reset: failed to delete snapshot", "sessionID", e.sessionID, "error", err)
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
	}

	e.answers = models.AnswerSet{}
	e.transcript = nil
	e.submitted = false
	e.editingField = ""
	e.choosingEditField = false
	e.escalationReason = ""

	e.startFreshLocked(ctx)
	e.saveSnapshotLocked()
	slog.Info("Engine.Reset: session reset", "sessionID", e.sessionID)
	return nil
}

// Status returns the presentation view: transcript, current question
// descriptor, and the streaming gate.
func (e *Engine) Status() models.SessionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := models.SessionStatus{
		SessionID:       e.sessionID,
		Variant:         e.variant.Name,
		State:           e.state,
		Transcript:      append([]models.TranscriptEntry(nil), e.transcript...),
		StreamingActive: len(e.pendingEntries) > 0,
	}

	if q := e.currentQuestionLocked(); q != nil {
		status.CurrentQuestion = &models.QuestionDescriptor{
			ID:       q.ID,
			Type:     q.Type,
			Prompt:   q.PromptText(e.answers),
			Options:  q.Options,
			Required: q.IsRequired(e.answers),
		}
	}
	return status
}

// State returns the current engine state.
func (e *Engine) State() models.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StreamingActive reports whether a bot message is still pending its typing
// swap; answers and clicks are rejected while true.
func (e *Engine) StreamingActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pendingEntries) > 0
}

func (e *Engine) currentQuestionLocked() *catalog.Question {
	if e.state != models.StateAwaitingAnswer || e.pos < 0 || e.pos >= len(e.visible) {
		return nil
	}
	q := e.visible[e.pos]
	return &q
}

func (e *Engine) promptQuestionLocked(q catalog.Question) {
	var options []models.Option
	if q.Type == models.QuestionTypeBoolean || q.Type == models.QuestionTypeSingleSelect {
		options = q.Options
	}
	e.postBotMessage(q.PromptText(e.answers), q.ID, options)
}

// postBotMessage appends a bot transcript entry. With a typing delay
// configured, a placeholder entry appears first and the swap to the real
// streaming entry is a single transition: the transcript never shows both.
func (e *Engine) postBotMessage(content, questionID string, options []models.Option) {
	entry := models.TranscriptEntry{
		Speaker:    models.SpeakerBot,
		Content:    content,
		Timestamp:  time.Now(),
		QuestionID: questionID,
		Options:    options,
		Streaming:  true,
	}

	if e.deps.TypingDelay <= 0 {
		e.transcript = append(e.transcript, entry)
		return
	}

	placeholder := models.TranscriptEntry{
		Speaker:           models.SpeakerBot,
		Timestamp:         time.Now(),
		QuestionID:        questionID,
		TypingPlaceholder: true,
	}
	e.transcript = append(e.transcript, placeholder)
	e.pendingEntries = append(e.pendingEntries, entry)

	generation := e.generation
	if _, err := e.timer.ScheduleAfter(e.deps.TypingDelay, func() {
		e.swapPlaceholder(generation)
	}); err != nil {
		// Fall back to an immediate swap rather than wedging the gate.
		slog.Error("Engine.postBotMessage: failed to schedule typing swap", "sessionID", e.sessionID, "error", err)
		e.swapPlaceholderLocked()
	}
}

func (e *Engine) swapPlaceholder(generation uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A reset since scheduling invalidates the swap.
	if generation != e.generation {
		slog.Debug("Engine.swapPlaceholder: stale swap dropped", "sessionID", e.sessionID)
		return
	}
	e.swapPlaceholderLocked()
	e.saveSnapshotLocked()
}

// swapPlaceholderLocked replaces the earliest typing placeholder with the
// earliest queued entry as one transition; the transcript never shows both.
func (e *Engine) swapPlaceholderLocked() {
	if len(e.pendingEntries) == 0 {
		return
	}
	entry := e.pendingEntries[0]
	e.pendingEntries = e.pendingEntries[1:]

	for i, t := range e.transcript {
		if t.TypingPlaceholder {
			e.transcript[i] = entry
			return
		}
	}
	e.transcript = append(e.transcript, entry)
}

func (e *Engine) appendUserEntry(content, questionID string) {
	e.transcript = append(e.transcript, models.TranscriptEntry{
		Speaker:    models.SpeakerUser,
		Content:    content,
		Timestamp:  time.Now(),
		QuestionID: questionID,
	})
}

// saveSnapshotLocked persists the session fire-and-forget: failures are logged
// and never surfaced to the patient.
func (e *Engine) saveSnapshotLocked() {
	if e.deps.Snapshots == nil {
		return
	}

	now := time.Now()
	snapshot := models.Snapshot{
		SessionID:  e.sessionID,
		Variant:    e.variant.Name,
		State:      e.state,
		Position:   e.pos,
		Answers:    e.answers.Clone(),
		Transcript: append([]models.TranscriptEntry(nil), e.transcript...),
		Completed:  e.state.IsTerminal(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.deps.Snapshots.SaveSnapshot(snapshot); err != nil {
		slog.Error("Engine.saveSnapshotLocked: failed to persist snapshot", "sessionID", e.sessionID, "error", err)
	}
}
