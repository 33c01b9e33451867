package submission

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

func TestSubmitPostsMultipartForm(t *testing.T) {
	var (
		gotFields map[string]string
		gotFiles  map[string][]byte
		gotAuth   string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("server failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotFields = make(map[string]string)
		for key, values := range r.MultipartForm.Value {
			gotFields[key] = values[0]
		}
		gotFiles = make(map[string][]byte)
		for _, headers := range r.MultipartForm.File {
			file, err := headers[0].Open()
			if err != nil {
				t.Errorf("failed to open file part: %v", err)
				continue
			}
			data, _ := io.ReadAll(file)
			file.Close()
			gotFiles[headers[0].Filename] = data
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	submitter, err := NewHTTPSubmitter(WithEndpointURL(ts.URL), WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("NewHTTPSubmitter failed: %v", err)
	}

	payload := models.SubmissionPayload{
		SessionID: "s_1",
		Variant:   "classic",
		Fields:    map[string]string{"full_name": "Jane Roe", "dob": "1990-01-01"},
		Files: []models.SubmissionFile{
			{Name: "referral.pdf", ContentType: "application/pdf", Data: []byte("pdf-bytes")},
		},
	}
	if err := submitter.Submit(context.Background(), payload); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if gotFields["session_id"] != "s_1" || gotFields["variant"] != "classic" {
		t.Errorf("session metadata missing: %+v", gotFields)
	}
	if gotFields["full_name"] != "Jane Roe" || gotFields["dob"] != "1990-01-01" {
		t.Errorf("answer fields missing: %+v", gotFields)
	}
	if string(gotFiles["referral.pdf"]) != "pdf-bytes" {
		t.Errorf("file bytes wrong: %+v", gotFiles)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
}

func TestSubmitReportsEndpointFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate registration", http.StatusConflict)
	}))
	defer ts.Close()

	submitter, err := NewHTTPSubmitter(WithEndpointURL(ts.URL))
	if err != nil {
		t.Fatalf("NewHTTPSubmitter failed: %v", err)
	}

	err = submitter.Submit(context.Background(), models.SubmissionPayload{SessionID: "s_1", Fields: map[string]string{}})
	if err == nil {
		t.Fatal("expected error on 409 response")
	}
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("expected *SubmitError, got %T", err)
	}
	if submitErr.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", submitErr.StatusCode)
	}
}

func TestNewHTTPSubmitterRequiresURL(t *testing.T) {
	if _, err := NewHTTPSubmitter(); err == nil {
		t.Error("expected error without endpoint URL")
	}
}
