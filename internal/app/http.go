package app

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trellis/api/internal/search"
	"trellis/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/live" {
		s.handleLive(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
		if projectID == "" {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "projectId is required", nil)
			return
		}
		filterType := search.ResultType(strings.TrimSpace(r.URL.Query().Get("type")))
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, codeValidation, "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, codeValidation, "offset must be an integer", nil)
				return
			}
			offset = parsed
		}

		payload := s.service.Search(search.Query{
			ProjectID:  projectID,
			Text:       q,
			FilterType: filterType,
			Limit:      limit,
			Offset:     offset,
		})
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && (r.URL.Path == "/chat" || r.URL.Path == "/testchat") {
		var body ChatInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		message, err := s.service.SendChat(r.Context(), body, r.URL.Path == "/testchat")
		if err != nil {
			status, code, errMessage, details := mapError(err)
			writeError(w, status, code, errMessage, details)
			return
		}
		writeJSON(w, http.StatusOK, message)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/addCategory" {
		var body CreateItemInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		payload, err := s.service.CreateItem(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/generate-image" {
		var body GenerateImageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		items, err := s.service.GenerateImage(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"images": items})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/likeSuggestion" {
		var body LikeSuggestionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		payload, err := s.service.LikeSuggestion(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/likeImage" {
		var body LikeImageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		payload, err := s.service.LikeImage(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/likeEntity" {
		var body struct {
			ProjectID string `json:"projectId"`
			EntityID  string `json:"entityId"`
			MessageID string `json:"messageId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		if err := s.service.LikeEntity(r.Context(), body.ProjectID, body.EntityID, body.MessageID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"liked": true})
		return
	}

	if r.URL.Path == "/projects" {
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Name              string `json:"name"`
				Description       string `json:"description"`
				IncludeSampleData bool   `json:"includeSampleData"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
				return
			}
			project, err := s.service.CreateProject(r.Context(), body.Name, body.Description, body.IncludeSampleData)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, project)
			return
		case http.MethodGet:
			items, err := s.service.ListProjects(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, codeServerError, "Could not list projects", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": items})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed", nil)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 2 && parts[0] == "projects" {
		if r.Method == http.MethodDelete {
			if err := s.service.DeleteProject(r.Context(), parts[1]); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed", nil)
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.ShortID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack exposes the underlying connection so the WebSocket upgrade on
// /api/live works through the logging middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, codeNotFound, "Not found", nil
	}
	return http.StatusInternalServerError, codeServerError, "Server error", nil
}
