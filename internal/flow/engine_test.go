package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
	"github.com/NovaFertility/IntakeFlow/internal/store"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int
	payloads []models.SubmissionPayload
	err      error
}

func (f *fakeSubmitter) Submit(ctx context.Context, payload models.SubmissionPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payloads = append(f.payloads, payload)
	return f.err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	notified chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notified: make(chan string, 1)}
}

func (f *fakeNotifier) NotifyEscalation(ctx context.Context, sessionID, reason, detail string) error {
	f.notified <- reason
	return nil
}

func newTestEngine(t *testing.T, variantName string, deps Dependencies) *Engine {
	t.Helper()
	variant, ok := catalog.Get(variantName)
	if !ok {
		t.Fatalf("variant %s not registered", variantName)
	}
	engine := NewEngine("s_test", variant, deps)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return engine
}

func mustAnswer(t *testing.T, engine *Engine, raw interface{}) {
	t.Helper()
	msg, err := engine.HandleAnswer(context.Background(), raw)
	if err != nil {
		t.Fatalf("HandleAnswer(%v) returned error: %v", raw, err)
	}
	if msg != "" {
		t.Fatalf("HandleAnswer(%v) rejected: %q", raw, msg)
	}
}

func currentQuestionID(t *testing.T, engine *Engine) string {
	t.Helper()
	status := engine.Status()
	if status.CurrentQuestion == nil {
		t.Fatalf("no current question, state=%s", status.State)
	}
	return status.CurrentQuestion.ID
}

func TestStartPostsGreetingAndFirstQuestion(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{})

	status := engine.Status()
	if len(status.Transcript) != 2 {
		t.Fatalf("expected greeting plus first question, got %d entries", len(status.Transcript))
	}
	if status.Transcript[0].Speaker != models.SpeakerBot {
		t.Error("greeting should come from the bot")
	}
	if got := currentQuestionID(t, engine); got != "consent" {
		t.Errorf("expected consent first, got %s", got)
	}
	if status.State != models.StateAwaitingAnswer {
		t.Errorf("expected AWAITING_ANSWER, got %s", status.State)
	}
}

func TestDateAnswerRoundTrip(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{})

	mustAnswer(t, engine, true)
	mustAnswer(t, engine, "Jane Roe")
	mustAnswer(t, engine, "jane@example.com")
	mustAnswer(t, engine, "416-555-1234")

	if got := currentQuestionID(t, engine); got != "dob" {
		t.Fatalf("expected dob, got %s", got)
	}
	mustAnswer(t, engine, "1990-09-06")

	if got := engine.answers.GetString("dob"); got != "06/09/1990" {
		t.Errorf("ISO date should commit in display form, got %q", got)
	}

	// The committed display form must also be accepted as-is on re-entry.
	normalized, msg := normalizeDate("06/09/1990")
	if msg != "" {
		t.Fatalf("display form rejected: %q", msg)
	}
	if normalized != "06/09/1990" {
		t.Errorf("display form should be stable, got %v", normalized)
	}
}

func TestRequiredFieldRejectsEmptyWithoutMutation(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{})
	mustAnswer(t, engine, true)

	if got := currentQuestionID(t, engine); got != "full_name" {
		t.Fatalf("expected full_name, got %s", got)
	}
	before := len(engine.Status().Transcript)

	msg, err := engine.HandleAnswer(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != msgRequired {
		t.Errorf("expected required message, got %q", msg)
	}
	if engine.answers.Has("full_name") {
		t.Error("rejected answer must not be committed")
	}
	if got := currentQuestionID(t, engine); got != "full_name" {
		t.Errorf("rejected answer must not advance, now at %s", got)
	}
	if after := len(engine.Status().Transcript); after != before {
		t.Errorf("rejected answer must not touch the transcript, %d -> %d", before, after)
	}
}

func TestValidatorRejectsMalformedEmail(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{})
	mustAnswer(t, engine, true)
	mustAnswer(t, engine, "Jane Roe")

	msg, err := engine.HandleAnswer(context.Background(), "not-an-email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == "" {
		t.Fatal("malformed email should be rejected")
	}
	if engine.answers.Has("email") {
		t.Error("rejected email must not be committed")
	}
}

func TestConsentDeclinedEscalates(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := newFakeNotifier()
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{
		Snapshots: st,
		Intakes:   st,
		Notifier:  notifier,
	})

	mustAnswer(t, engine, false)

	if state := engine.State(); state != models.StateEscalated {
		t.Fatalf("expected ESCALATED, got %s", state)
	}

	select {
	case reason := <-notifier.notified:
		if reason != "consent declined" {
			t.Errorf("unexpected escalation reason %q", reason)
		}
	case <-time.After(time.Second):
		t.Error("staff notification never sent")
	}

	records, err := st.ListIntakes(models.IntakeFilter{})
	if err != nil {
		t.Fatalf("ListIntakes failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one intake record, got %d", len(records))
	}
	if records[0].Outcome != models.OutcomeEscalated {
		t.Errorf("expected escalated outcome, got %s", records[0].Outcome)
	}

	// The session is terminal: further answers are refused.
	if _, err := engine.HandleAnswer(context.Background(), "hello"); !errors.Is(err, models.ErrSessionEnded) {
		t.Errorf("expected ErrSessionEnded after escalation, got %v", err)
	}
}

func walkClassicToEnd(t *testing.T, engine *Engine) {
	t.Helper()
	mustAnswer(t, engine, true)            // consent
	mustAnswer(t, engine, "Jane Roe")      // full_name
	mustAnswer(t, engine, "jane@example.com")
	mustAnswer(t, engine, "416-555-1234")  // phone
	mustAnswer(t, engine, "1990-01-01")    // dob
	mustAnswer(t, engine, false)           // has_partner -> partner_name hidden
	mustAnswer(t, engine, true)            // was_referred -> physician shown, health card hidden
	mustAnswer(t, engine, "Dr. Smith")     // referring_physician
	mustAnswer(t, engine, "ivf")           // reason
	mustAnswer(t, engine, "")              // notes, optional
	mustAnswer(t, engine, false)           // wants_upload -> documents hidden
	mustAnswer(t, engine, 4)               // satisfaction
}

func TestClassicHappyPathCompletesAndSubmitsOnce(t *testing.T) {
	st := store.NewInMemoryStore()
	submitter := &fakeSubmitter{}
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{
		Snapshots: st,
		Intakes:   st,
		Submitter: submitter,
	})

	walkClassicToEnd(t, engine)

	if state := engine.State(); state != models.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", state)
	}
	if submitter.callCount() != 1 {
		t.Fatalf("expected exactly one submission, got %d", submitter.callCount())
	}

	payload := submitter.payloads[0]
	if payload.Fields["dob"] != "1990-01-01" {
		t.Errorf("dob should submit in ISO form, got %q", payload.Fields["dob"])
	}
	if payload.Fields["phone"] != "4165551234" {
		t.Errorf("phone should submit digits only, got %q", payload.Fields["phone"])
	}
	if payload.Fields["consent"] != "true" {
		t.Errorf("consent should submit as bool string, got %q", payload.Fields["consent"])
	}
	if payload.Fields["satisfaction"] != "4" {
		t.Errorf("satisfaction should submit numerically, got %q", payload.Fields["satisfaction"])
	}
	if _, ok := payload.Fields["notes"]; ok {
		t.Error("empty notes should be dropped from the payload")
	}
	if _, ok := payload.Fields["partner_name"]; ok {
		t.Error("hidden questions must not contribute fields")
	}

	records, err := st.ListIntakes(models.IntakeFilter{})
	if err != nil {
		t.Fatalf("ListIntakes failed: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != models.OutcomeCompleted {
		t.Errorf("expected one completed intake record, got %+v", records)
	}
	if records[0].PatientName != "Jane Roe" {
		t.Errorf("intake record should carry the patient name, got %q", records[0].PatientName)
	}
}

func TestConditionalBranchTogglesMidFlow(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{})
	mustAnswer(t, engine, true)
	mustAnswer(t, engine, "Jane Roe")
	mustAnswer(t, engine, "jane@example.com")
	mustAnswer(t, engine, "416-555-1234")
	mustAnswer(t, engine, "1990-01-01")

	mustAnswer(t, engine, true) // has_partner
	if got := currentQuestionID(t, engine); got != "partner_name" {
		t.Errorf("expected partner_name after has_partner=true, got %s", got)
	}
	mustAnswer(t, engine, "Sam Roe")

	mustAnswer(t, engine, false) // was_referred
	if got := currentQuestionID(t, engine); got != "health_card" {
		t.Errorf("expected health_card after was_referred=false, got %s", got)
	}
}

func TestOptionClickCommitsAnswer(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{})

	msg, err := engine.HandleOptionClick(context.Background(), "true", "Yes", "consent")
	if err != nil {
		t.Fatalf("option click failed: %v", err)
	}
	if msg != "" {
		t.Fatalf("option click rejected: %q", msg)
	}
	if got := engine.answers.GetBool("consent"); !got {
		t.Error("option click should commit consent=true")
	}
	if got := currentQuestionID(t, engine); got != "full_name" {
		t.Errorf("option click should advance, now at %s", got)
	}
}

func TestStaleOptionClickIgnored(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{})
	mustAnswer(t, engine, true)

	// Click on the already-answered consent question: a late arrival from the UI.
	msg, err := engine.HandleOptionClick(context.Background(), "false", "No", "consent")
	if err != nil {
		t.Fatalf("stale click must not error: %v", err)
	}
	if msg != "" {
		t.Fatalf("stale click must not reject: %q", msg)
	}
	if got := engine.answers.GetBool("consent"); !got {
		t.Error("stale click must not overwrite the committed answer")
	}
	if got := currentQuestionID(t, engine); got != "full_name" {
		t.Errorf("stale click must not move the flow, now at %s", got)
	}
}

func TestStreamingGateBlocksDuringTypingWindow(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{TypingDelay: 50 * time.Millisecond})

	if !engine.StreamingActive() {
		t.Fatal("typing window should be open right after Start")
	}
	if _, err := engine.HandleAnswer(context.Background(), true); !errors.Is(err, models.ErrStreamingActive) {
		t.Fatalf("expected ErrStreamingActive during typing window, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for engine.StreamingActive() {
		if time.Now().After(deadline) {
			t.Fatal("typing window never closed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Placeholders must be gone once the swap lands.
	for _, entry := range engine.Status().Transcript {
		if entry.TypingPlaceholder {
			t.Error("transcript still holds a typing placeholder after the swap")
		}
	}
	mustAnswer(t, engine, true)
}

func TestSnapshotResumeRestoresProgress(t *testing.T) {
	st := store.NewInMemoryStore()
	deps := Dependencies{Snapshots: st, Intakes: st}
	variant, _ := catalog.Get(catalog.ClassicVariantName)

	first := NewEngine("s_resume", variant, deps)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	mustAnswer(t, first, true)
	mustAnswer(t, first, "Jane Roe")

	// Simulate a process restart: a fresh engine for the same session.
	second := NewEngine("s_resume", variant, deps)
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("resume Start failed: %v", err)
	}

	if got := second.answers.GetString("full_name"); got != "Jane Roe" {
		t.Errorf("resumed engine lost answers, full_name=%q", got)
	}
	if got := currentQuestionID(t, second); got != "email" {
		t.Errorf("resume should continue at email, got %s", got)
	}
	if len(second.Status().Transcript) != len(first.Status().Transcript) {
		t.Error("resumed transcript should match the persisted one")
	}
}

func TestSubmissionFailureStillCompletes(t *testing.T) {
	st := store.NewInMemoryStore()
	submitter := &fakeSubmitter{err: errors.New("endpoint down")}
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{
		Snapshots: st,
		Intakes:   st,
		Submitter: submitter,
	})

	walkClassicToEnd(t, engine)

	if state := engine.State(); state != models.StateCompleted {
		t.Fatalf("submission failure must still complete the session, got %s", state)
	}

	transcript := engine.Status().Transcript
	foundApology := false
	for _, entry := range transcript {
		if entry.Speaker == models.SpeakerBot && strings.Contains(entry.Content, "couldn't send your registration") {
			foundApology = true
		}
	}
	if !foundApology {
		t.Error("patient should see the submission apology")
	}

	records, err := st.ListIntakes(models.IntakeFilter{})
	if err != nil {
		t.Fatalf("ListIntakes failed: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != models.OutcomeSubmissionFailed {
		t.Errorf("expected submission_failed outcome, got %+v", records)
	}
}

func TestRemoveFileRenumbersDescriptors(t *testing.T) {
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{})
	q, _ := engine.variant.Question("documents")

	uploads := []models.FileUpload{
		{Name: "letter.pdf", Size: 3, Type: "application/pdf", Data: []byte("abc")},
		{Name: "labs.pdf", Size: 3, Type: "application/pdf", Data: []byte("def")},
		{Name: "scan.png", Size: 3, Type: "image/png", Data: []byte("ghi")},
	}
	value, msg := engine.normalizeFiles(q, uploads)
	if msg != "" {
		t.Fatalf("normalizeFiles rejected uploads: %q", msg)
	}
	engine.answers["documents"] = value

	if err := engine.RemoveFile("documents", 1); err != nil {
		t.Fatalf("RemoveFile failed: %v", err)
	}

	descriptors := engine.answers.GetFiles("documents")
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors after removal, got %d", len(descriptors))
	}
	if descriptors[0].Name != "letter.pdf" || descriptors[1].Name != "scan.png" {
		t.Errorf("wrong files survived: %s, %s", descriptors[0].Name, descriptors[1].Name)
	}
	for i, d := range descriptors {
		if d.Index != i {
			t.Errorf("descriptor %s has index %d, want %d", d.Name, d.Index, i)
		}
	}

	if err := engine.RemoveFile("documents", 5); !errors.Is(err, models.ErrFileIndexOutOfRange) {
		t.Errorf("expected ErrFileIndexOutOfRange, got %v", err)
	}
}

func TestResetStartsOver(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := newTestEngine(t, catalog.ClassicVariantName, Dependencies{Snapshots: st, Intakes: st})
	mustAnswer(t, engine, true)
	mustAnswer(t, engine, "Jane Roe")

	if err := engine.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if engine.answers.Has("full_name") {
		t.Error("reset must clear answers")
	}
	if got := currentQuestionID(t, engine); got != "consent" {
		t.Errorf("reset should restart at consent, got %s", got)
	}
	status := engine.Status()
	if len(status.Transcript) != 2 {
		t.Errorf("reset transcript should hold greeting plus first question, got %d", len(status.Transcript))
	}

	snapshot, err := st.GetSnapshot("s_test")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if snapshot == nil || snapshot.Answers.Has("full_name") {
		t.Error("persisted snapshot should reflect the fresh session")
	}
}
