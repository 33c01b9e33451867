package flow

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// BuildPayload flattens the answer set into the backend-agnostic submission
// form. Only currently visible questions contribute (answers hidden by an
// upstream change are excluded), dates convert back to ISO form, empty-string
// fields are dropped, and file answers rehydrate from the session cache.
// Descriptors whose handle no longer resolves (the binary did not survive a
// restart) are dropped from the payload; if nothing rehydrates the files field
// is omitted entirely.
func BuildPayload(sessionID string, variant *catalog.Variant, answers models.AnswerSet, files *FileCache) models.SubmissionPayload {
	payload := models.SubmissionPayload{
		SessionID: sessionID,
		Variant:   variant.Name,
		Fields:    make(map[string]string),
	}

	for _, q := range variant.Visible(answers) {
		if q.Type == models.QuestionTypeMessage || !answers.Has(q.ID) {
			continue
		}
		switch q.Type {
		case models.QuestionTypeFileSet:
			for _, d := range answers.GetFiles(q.ID) {
				upload, ok := files.Get(d.Handle)
				if !ok {
					slog.Warn("flow.BuildPayload: file binary unavailable, dropping from payload",
						"sessionID", sessionID, "question", q.ID, "name", d.Name, "handle", d.Handle)
					continue
				}
				payload.Files = append(payload.Files, models.SubmissionFile{
					Name:        upload.Name,
					ContentType: upload.Type,
					Data:        upload.Data,
				})
			}
		case models.QuestionTypeDate:
			if iso := displayDateToISO(answers.GetString(q.ID)); iso != "" {
				payload.Fields[q.ID] = iso
			}
		case models.QuestionTypeBoolean:
			payload.Fields[q.ID] = strconv.FormatBool(answers.GetBool(q.ID))
		case models.QuestionTypeScale, models.QuestionTypeRating:
			if n := answers.GetInt(q.ID); n != 0 {
				payload.Fields[q.ID] = strconv.Itoa(n)
			}
		default:
			if s := answers.GetString(q.ID); s != "" {
				payload.Fields[q.ID] = s
			}
		}
	}

	return payload
}

// displayDateToISO converts a committed DD/MM/YYYY answer back to YYYY-MM-DD.
func displayDateToISO(display string) string {
	if display == "" {
		return ""
	}
	t, err := time.Parse(models.DateLayoutDisplay, display)
	if err != nil {
		slog.Warn("flow.displayDateToISO: malformed committed date", "value", display, "error", err)
		return ""
	}
	return t.Format(models.DateLayoutISO)
}
