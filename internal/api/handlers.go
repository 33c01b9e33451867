// Package api provides HTTP handlers for IntakeFlow session endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// maxUploadBytes caps one multipart answer request.
const maxUploadBytes = 32 << 20

// createSessionRequest is the body of POST /sessions.
type createSessionRequest struct {
	Variant string `json:"variant"`
}

// answerRequest is the JSON body of POST /sessions/{id}/answer.
type answerRequest struct {
	Answer interface{} `json:"answer"`
}

// optionClickRequest is the body of POST /sessions/{id}/option.
type optionClickRequest struct {
	Value      string `json:"value"`
	Label      string `json:"label"`
	QuestionID string `json:"question_id"`
}

// removeFileRequest is the body of POST /sessions/{id}/files/remove.
type removeFileRequest struct {
	QuestionID string `json:"question_id"`
	Index      int    `json:"index"`
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sessionsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	engine, err := s.mgr.Create(r.Context(), req.Variant)
	if err != nil {
		if errors.Is(err, models.ErrUnknownVariant) {
			slog.Warn("Server.sessionsHandler: unknown variant", "variant", req.Variant)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown flow variant"))
			return
		}
		slog.Error("Server.sessionsHandler: failed to create session", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}

	slog.Info("Server.sessionsHandler: session created", "sessionID", engine.SessionID(), "variant", engine.Variant())
	writeJSONResponse(w, http.StatusCreated, models.Success(engine.Status()))
}

// sessionSubtreeHandler routes /sessions/{id} and its sub-paths.
func (s *Server) sessionSubtreeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	sessionID, action, _ := strings.Cut(rest, "/")
	if sessionID == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.getSession(w, r, sessionID)
		case http.MethodDelete:
			s.resetSession(w, r, sessionID)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "answer":
		s.requirePost(w, r, sessionID, s.answerSession)
	case "option":
		s.requirePost(w, r, sessionID, s.optionClick)
	case "files/remove":
		s.requirePost(w, r, sessionID, s.removeFile)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session operation"))
	}
}

func (s *Server) requirePost(w http.ResponseWriter, r *http.Request, sessionID string, handler func(http.ResponseWriter, *http.Request, string)) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	handler(w, r, sessionID)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	engine, err := s.mgr.Get(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, sessionID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(engine.Status()))
}

// resetSession handles DELETE /sessions/{id}: the "start new chat" action.
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	engine, err := s.mgr.Get(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, sessionID, err)
		return
	}
	if err := engine.Reset(r.Context()); err != nil {
		slog.Error("Server.resetSession: reset failed", "sessionID", sessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", engine.Status()))
}

func (s *Server) answerSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	engine, err := s.mgr.Get(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, sessionID, err)
		return
	}

	var raw interface{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		uploads, err := parseFileUploads(r)
		if err != nil {
			slog.Warn("Server.answerSession: failed to parse multipart body", "sessionID", sessionID, "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid multipart body"))
			return
		}
		raw = uploads
	} else {
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.answerSession: failed to decode JSON", "sessionID", sessionID, "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		raw = req.Answer
	}

	validationMsg, err := engine.HandleAnswer(r.Context(), raw)
	if err != nil {
		s.writeGateError(w, sessionID, err)
		return
	}
	if validationMsg != "" {
		writeJSONResponse(w, http.StatusOK, models.Rejected(validationMsg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(engine.Status()))
}

func (s *Server) optionClick(w http.ResponseWriter, r *http.Request, sessionID string) {
	engine, err := s.mgr.Get(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, sessionID, err)
		return
	}

	var req optionClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.optionClick: failed to decode JSON", "sessionID", sessionID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	validationMsg, err := engine.HandleOptionClick(r.Context(), req.Value, req.Label, req.QuestionID)
	if err != nil {
		s.writeGateError(w, sessionID, err)
		return
	}
	if validationMsg != "" {
		writeJSONResponse(w, http.StatusOK, models.Rejected(validationMsg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(engine.Status()))
}

func (s *Server) removeFile(w http.ResponseWriter, r *http.Request, sessionID string) {
	engine, err := s.mgr.Get(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, sessionID, err)
		return
	}

	var req removeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.removeFile: failed to decode JSON", "sessionID", sessionID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := engine.RemoveFile(req.QuestionID, req.Index); err != nil {
		if errors.Is(err, models.ErrFileIndexOutOfRange) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("File index out of range"))
			return
		}
		slog.Error("Server.removeFile: failed to remove file", "sessionID", sessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to remove file"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(engine.Status()))
}

// writeSessionError maps session lookup failures to HTTP responses.
func (s *Server) writeSessionError(w http.ResponseWriter, sessionID string, err error) {
	if errors.Is(err, models.ErrSessionNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	slog.Error("Server: session lookup failed", "sessionID", sessionID, "error", err)
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
}

// writeGateError maps engine gate violations to HTTP responses.
func (s *Server) writeGateError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, models.ErrStreamingActive):
		writeJSONResponse(w, http.StatusConflict, models.Error("A reply is still being delivered"))
	case errors.Is(err, models.ErrSessionEnded):
		writeJSONResponse(w, http.StatusConflict, models.Error("This session has ended"))
	case errors.Is(err, models.ErrNoCurrentQuestion):
		writeJSONResponse(w, http.StatusConflict, models.Error("No question is awaiting an answer"))
	default:
		slog.Error("Server: engine rejected request", "sessionID", sessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process request"))
	}
}

// parseFileUploads reads the "files" parts of a multipart answer request.
func parseFileUploads(r *http.Request) ([]models.FileUpload, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, err
	}

	var uploads []models.FileUpload
	if r.MultipartForm == nil {
		return uploads, nil
	}
	for _, header := range r.MultipartForm.File["files"] {
		file, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, err
		}

		lastModified, _ := strconv.ParseInt(r.FormValue("last_modified_"+header.Filename), 10, 64)
		uploads = append(uploads, models.FileUpload{
			Name:         header.Filename,
			Size:         int64(len(data)),
			Type:         header.Header.Get("Content-Type"),
			LastModified: lastModified,
			Data:         data,
		})
	}
	return uploads, nil
}
