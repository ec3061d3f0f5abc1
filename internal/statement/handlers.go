package statement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/zombor/ocr-ledger/internal/export"
)

// maxUploadSize covers full-resolution phone photos
const maxUploadSize = int64(50 << 20)

// corsError writes a plain text error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// processingError maps service errors from the processing pipeline to a response
func processingError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNoText) || errors.Is(err, ErrNoTransactions) {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	jsonError(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// contentTypeFor guesses a MIME type from the file extension
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleListStatements returns a list of all statements
func (s *Server) handleListStatements(w http.ResponseWriter, r *http.Request) {
	statements, err := s.service.ListStatements()
	if err != nil {
		slog.Error("Error listing statements", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if statements == nil {
		statements = []*Statement{}
	}

	writeJSON(w, http.StatusOK, statements)
}

// handleUploadStatement handles an image upload
func (s *Server) handleUploadStatement(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(header.Filename)
	}

	statement, err := s.service.ProcessUpload(header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing statement", "filename", header.Filename, "error", err)
		processingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, statement)
}

// handleSubmitText parses text that was recognized elsewhere
func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	statement, err := s.service.ProcessText(req.Text)
	if err != nil {
		slog.Error("Error processing text", "error", err)
		processingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, statement)
}

// handleGetStatement returns a single statement
func (s *Server) handleGetStatement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Statement ID required", http.StatusBadRequest)
		return
	}
	statement, err := s.service.GetStatement(id)
	if err != nil {
		corsError(w, "Statement not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, statement)
}

// handleGetStatementFile returns the uploaded image of a statement
func (s *Server) handleGetStatementFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Statement ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetStatementFile(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleExportStatement returns the statement's records as an XLSX download
func (s *Server) handleExportStatement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Statement ID required", http.StatusBadRequest)
		return
	}

	// buffered so a failure can still become an error response
	var buf bytes.Buffer
	if err := s.service.Export(id, &buf); err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Statement not found", http.StatusNotFound)
			return
		}
		slog.Error("Error exporting statement", "id", id, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ledger.xlsx"; filename*=UTF-8''%s`, url.PathEscape(export.Filename)))
	w.Write(buf.Bytes())
}

// handleDeleteStatement deletes a statement
func (s *Server) handleDeleteStatement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Statement ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteStatement(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Statement not found", http.StatusNotFound)
			return
		}
		corsError(w, "Error deleting statement", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
