package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"policystudio/api/internal/document"
	"policystudio/api/internal/gate"
	"policystudio/api/internal/genflow"
	"policystudio/api/internal/session"
	"policystudio/api/internal/upstream"
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

		ok, checks := s.service.Ready(ctx)
		status := http.StatusOK
		state := "ready"
		if !ok {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		writeJSON(w, status, map[string]any{"ok": ok, "status": state, "checks": checks})
		return
	}

	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	r = r.WithContext(upstream.WithToken(r.Context(), token))

	if r.Method == http.MethodGet && r.URL.Path == "/api/policies" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		payload, err := s.service.ListPolicies(r.Context(), q, status, limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/policies" {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		policy, err := s.service.CreatePolicy(r.Context(), body.Name)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, policy)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/chat/sessions" {
		var body struct {
			PolicyID string `json:"policy_id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		state, err := s.service.StartChatSession(r.Context(), body.PolicyID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, state)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "chat" && parts[2] == "sessions" {
		s.handleChat(w, r, parts)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "attachments" {
		key := strings.Join(parts[2:], "/")
		switch r.Method {
		case http.MethodGet:
			s.handleAttachmentDownload(w, r, key)
		case http.MethodDelete:
			if err := s.service.DeleteAttachment(r.Context(), key); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "policies" {
		s.handlePolicy(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePolicy(w http.ResponseWriter, r *http.Request, policyID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			policy, err := s.service.GetPolicy(r.Context(), policyID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, policy)
		case http.MethodDelete:
			if err := s.service.DeletePolicy(r.Context(), policyID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[0] {
	case "edit-session":
		if len(rest) == 1 {
			s.handleEditSession(w, r, policyID)
			return
		}
	case "sections":
		s.handleSections(w, r, policyID, rest[1:])
		return
	case "save":
		if len(rest) == 1 && r.Method == http.MethodPost {
			result, err := s.service.Save(r.Context(), policyID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}
	case "validate":
		if len(rest) == 1 && r.Method == http.MethodPost {
			if err := s.service.Validate(r.Context(), policyID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"valid": true})
			return
		}
	case "enhance":
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				Instruction string `json:"instruction"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.Enhance(r.Context(), policyID, body.Instruction)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
			return
		}
	case "compare":
		if len(rest) == 1 && r.Method == http.MethodGet {
			from, err1 := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("from")))
			to, err2 := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("to")))
			if err1 != nil || err2 != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from and to must be version numbers", nil)
				return
			}
			diff, err := s.service.CompareVersions(r.Context(), policyID, from, to)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, diff)
			return
		}
	case "download":
		if len(rest) == 1 && r.Method == http.MethodGet {
			format := strings.TrimSpace(r.URL.Query().Get("format"))
			blob, contentType, filename, err := s.service.Download(r.Context(), policyID, format)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(blob)
			return
		}
	case "workflow":
		if len(rest) == 2 && r.Method == http.MethodPost {
			var body struct {
				Comments string `json:"comments"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			var err error
			switch rest[1] {
			case "approve":
				err = s.service.ApprovePolicy(r.Context(), policyID, body.Comments)
			case "reject":
				err = s.service.RejectPolicy(r.Context(), policyID, body.Comments)
			default:
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
				return
			}
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "attachments":
		if len(rest) == 1 {
			s.handleAttachments(w, r, policyID)
			return
		}
	case "ai-log":
		if len(rest) == 1 && r.Method == http.MethodGet {
			limit := 0
			if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil {
					writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
					return
				}
				limit = parsed
			}
			entries, err := s.service.AIEvents(r.Context(), policyID, limit)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": entries})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleEditSession(w http.ResponseWriter, r *http.Request, policyID string) {
	switch r.Method {
	case http.MethodPost:
		view, err := s.service.StartEditSession(r.Context(), policyID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	case http.MethodGet:
		view, err := s.service.GetEditSession(r.Context(), policyID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := s.service.EndEditSession(r.Context(), policyID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

type reorderBody struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// handleSections dispatches the structural edit routes under
// /api/policies/{id}/sections.
func (s *HTTPServer) handleSections(w http.ResponseWriter, r *http.Request, policyID string, rest []string) {
	// POST /sections — add
	if len(rest) == 0 && r.Method == http.MethodPost {
		view, newID, err := s.service.AddSection(r.Context(), policyID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"section_id": newID, "session": view})
		return
	}

	// POST /sections/reorder
	if len(rest) == 1 && rest[0] == "reorder" && r.Method == http.MethodPost {
		var body reorderBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.ReorderSections(r.Context(), policyID, body.From, body.To)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(rest) == 0 {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	sectionID := rest[0]

	// PUT|DELETE /sections/{sid}
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodPut:
			var patch document.SectionPatch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.UpdateSection(r.Context(), policyID, sectionID, patch)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodDelete:
			view, err := s.service.DeleteSection(r.Context(), policyID, sectionID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// POST /sections/{sid}/rewrite
	if len(rest) == 2 && rest[1] == "rewrite" && r.Method == http.MethodPost {
		var body struct {
			Action string `json:"action"`
			Tone   string `json:"tone"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.RewriteSection(r.Context(), policyID, sectionID, body.Action, body.Tone)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if rest[1] == "subsections" {
		s.handleSubsections(w, r, policyID, sectionID, rest[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSubsections(w http.ResponseWriter, r *http.Request, policyID, sectionID string, rest []string) {
	if len(rest) == 0 && r.Method == http.MethodPost {
		view, newID, err := s.service.AddSubsection(r.Context(), policyID, sectionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"subsection_id": newID, "session": view})
		return
	}

	if len(rest) == 1 && rest[0] == "reorder" && r.Method == http.MethodPost {
		var body reorderBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.ReorderSubsections(r.Context(), policyID, sectionID, body.From, body.To)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(rest) == 0 {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	subsectionID := rest[0]

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodPut:
			var patch document.SubsectionPatch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.UpdateSubsection(r.Context(), policyID, sectionID, subsectionID, patch)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodDelete:
			view, err := s.service.DeleteSubsection(r.Context(), policyID, sectionID, subsectionID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if rest[1] == "fields" {
		s.handleFields(w, r, policyID, sectionID, subsectionID, rest[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleFields(w http.ResponseWriter, r *http.Request, policyID, sectionID, subsectionID string, rest []string) {
	if len(rest) == 0 && r.Method == http.MethodPost {
		view, newID, err := s.service.AddField(r.Context(), policyID, sectionID, subsectionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"field_id": newID, "session": view})
		return
	}

	if len(rest) == 1 && rest[0] == "reorder" && r.Method == http.MethodPost {
		var body reorderBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.ReorderFields(r.Context(), policyID, sectionID, subsectionID, body.From, body.To)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(rest) == 1 {
		fieldID := rest[0]
		switch r.Method {
		case http.MethodPut:
			var patch document.FieldPatch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.UpdateField(r.Context(), policyID, sectionID, subsectionID, fieldID, patch)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodDelete:
			view, err := s.service.DeleteField(r.Context(), policyID, sectionID, subsectionID, fieldID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request, parts []string) {
	// parts: ["api", "chat", "sessions", {sid}, ...]
	if len(parts) < 4 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	sessionID := parts[3]

	if len(parts) == 4 {
		if r.Method == http.MethodGet {
			state, err := s.service.GetChatSession(r.Context(), sessionID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, state)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) != 5 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[4] {
	case "messages":
		var body struct {
			Message string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		state, err := s.service.ChatMessage(r.Context(), sessionID, body.Message)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, state)
	case "confirm":
		state, err := s.service.ConfirmChat(r.Context(), sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			// The reverted session rides along so the client can show the
			// retry affordance without refetching.
			if state != nil {
				writeJSON(w, status, map[string]any{"code": code, "error": message, "session": state})
				return
			}
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, state)
	case "reject":
		state, err := s.service.RejectChat(r.Context(), sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, state)
	case "submit":
		var body struct {
			TemplateID string `json:"template_id"`
			Comments   string `json:"comments"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		state, err := s.service.SubmitChat(r.Context(), sessionID, body.TemplateID, body.Comments)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, state)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

const maxAttachmentSize = 25 << 20 // 25 MiB

func (s *HTTPServer) handleAttachments(w http.ResponseWriter, r *http.Request, policyID string) {
	switch r.Method {
	case http.MethodGet:
		objects, err := s.service.ListAttachments(r.Context(), policyID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"attachments": objects})
	case http.MethodPost:
		if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "file part is required", nil)
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key, err := s.service.UploadAttachment(r.Context(), policyID, header.Filename, contentType, file, header.Size)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"key": key})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAttachmentDownload(w http.ResponseWriter, r *http.Request, key string) {
	reader, info, err := s.service.GetAttachment(r.Context(), key)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	defer reader.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
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

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
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
	var validationErr *gate.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED", validationErr.Error(), map[string]any{
			"issues":                 validationErr.Issues,
			"suggestions":            validationErr.Suggestions,
			"normalized_field_names": validationErr.RenameMap,
			"message":                validationErr.Message,
		}
	}
	if errors.Is(err, gate.ErrServiceUnavailable) {
		return http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI service unavailable, please retry shortly", nil
	}
	if errors.Is(err, session.ErrActionInFlight) {
		return http.StatusConflict, "ACTION_IN_FLIGHT", "The same action is already in progress", nil
	}
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Session not found", nil
	}
	if errors.Is(err, genflow.ErrInvalidTransition) {
		return http.StatusConflict, "INVALID_STATE", err.Error(), nil
	}
	var upstreamErr *upstream.APIError
	if errors.As(err, &upstreamErr) {
		code := upstreamErr.Code
		if code == "" {
			code = "UPSTREAM_ERROR"
		}
		msg := upstreamErr.Message
		if msg == "" {
			msg = "Upstream request failed"
		}
		return upstreamErr.Status, code, msg, nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
