package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/hisab/internal/capture"
)

// maxUploadSize bounds multipart uploads; high-resolution phone photos fit well below it
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleState returns the full application state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.State())
}

// handleListReceipts returns the published receipt list, newest first
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.State().Receipts)
}

// handleUploadReceipt stores an uploaded image and runs it through the pipeline
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	ref, err := capture.SaveCapture(s.storage, header.Filename, data)
	if err != nil {
		slog.Error("Error saving upload", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error saving file. Please try again.")
		return
	}

	// Processing runs to completion even if the client goes away
	receipt, err := s.coordinator.ProcessReceiptImage(context.WithoutCancel(r.Context()), ref)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		if errors.Is(err, ErrNotInitialized) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// handleSyncReceipts refreshes the list from the server history and returns it
func (s *Server) handleSyncReceipts(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.LoadUserReceipts(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, s.coordinator.State().Error)
		return
	}
	writeJSON(w, http.StatusOK, s.coordinator.State().Receipts)
}

// handleUpdateUser sets the profile fields of the current user
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.coordinator.UpdateProfile(r.Context(), req.Name, req.Email)
	if err != nil {
		slog.Error("Error updating user", "error", err)
		if errors.Is(err, ErrNotInitialized) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Error saving profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleLogout clears the session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, s.coordinator.State().Error)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearError dismisses the recorded error
func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	s.coordinator.ClearError()
	w.WriteHeader(http.StatusNoContent)
}
