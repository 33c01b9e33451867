package flow

import (
	"testing"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
)

func TestBuildPayloadRehydratesFiles(t *testing.T) {
	variant, ok := catalog.Get(catalog.ClassicVariantName)
	if !ok {
		t.Fatal("classic variant not registered")
	}

	cache := NewFileCache()
	descriptor := cache.Put(0, models.FileUpload{
		Name: "referral.pdf",
		Size: 4,
		Type: "application/pdf",
		Data: []byte("data"),
	})

	answers := models.AnswerSet{
		"consent":      true,
		"full_name":    "Jane Roe",
		"wants_upload": true,
		"documents":    []models.FileDescriptor{descriptor},
	}

	payload := BuildPayload("s_1", variant, answers, cache)

	if len(payload.Files) != 1 {
		t.Fatalf("expected one rehydrated file, got %d", len(payload.Files))
	}
	if payload.Files[0].Name != "referral.pdf" || string(payload.Files[0].Data) != "data" {
		t.Errorf("rehydrated file wrong: %+v", payload.Files[0])
	}
	if payload.Fields["full_name"] != "Jane Roe" {
		t.Errorf("fields missing full_name: %+v", payload.Fields)
	}
}

func TestBuildPayloadDropsLostBinaries(t *testing.T) {
	variant, ok := catalog.Get(catalog.ClassicVariantName)
	if !ok {
		t.Fatal("classic variant not registered")
	}

	// Descriptors survive a restart in the snapshot, but the cached bytes do
	// not. The payload must omit what cannot be rehydrated.
	answers := models.AnswerSet{
		"consent":      true,
		"wants_upload": true,
		"documents": []models.FileDescriptor{
			{Index: 0, Name: "lost.pdf", Handle: "gone"},
		},
	}

	payload := BuildPayload("s_1", variant, answers, NewFileCache())

	if payload.Files != nil {
		t.Errorf("unrehydratable files should be dropped, got %+v", payload.Files)
	}
}

func TestBuildPayloadExcludesHiddenAnswers(t *testing.T) {
	variant, ok := catalog.Get(catalog.ClassicVariantName)
	if !ok {
		t.Fatal("classic variant not registered")
	}

	// partner_name was answered and then hidden by flipping has_partner.
	answers := models.AnswerSet{
		"consent":      true,
		"has_partner":  false,
		"partner_name": "Sam Roe",
		"dob":          "01/01/1990",
	}

	payload := BuildPayload("s_1", variant, answers, NewFileCache())

	if _, ok := payload.Fields["partner_name"]; ok {
		t.Error("answers hidden by visibility must not reach the payload")
	}
	if payload.Fields["dob"] != "1990-01-01" {
		t.Errorf("dob should convert to ISO, got %q", payload.Fields["dob"])
	}
}
