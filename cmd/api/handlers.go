package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brightloom-labs/docrag/engine/agent"
	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/engine/generate"
	"github.com/brightloom-labs/docrag/engine/ingest"
	"github.com/brightloom-labs/docrag/engine/observability"
	"github.com/brightloom-labs/docrag/engine/session"
	"github.com/brightloom-labs/docrag/pkg/fn"
	"github.com/brightloom-labs/docrag/pkg/objectstore"
	"github.com/brightloom-labs/docrag/pkg/repo"
)

func registerRoutes(mux *http.ServeMux, d apiDeps) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/upload", handleUpload(d))
	mux.HandleFunc("POST /api/chat", handleChat(d))
	mux.HandleFunc("POST /api/chat/stream", handleChatStream(d))
	mux.HandleFunc("GET /api/documents", handleDocumentsList(d))
	mux.HandleFunc("GET /api/documents/{id}/download", handleDocumentDownload(d))
	mux.HandleFunc("GET /api/admin/llm-config", handleGetLLMConfig(d))
	mux.HandleFunc("PUT /api/admin/llm-config", handlePutLLMConfig(d))
	mux.HandleFunc("GET /api/logs/stream", handleLogsStream(d))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// --- Caller identity ---
//
// Authentication and session tokens are an external collaborator, out of
// scope for this server (spec §1). The gateway in front of this service is
// expected to resolve the caller's identity and attach it as trusted
// request headers; requestIdentity reads those headers rather than
// validating any credential itself.
type requestIdentity struct {
	UserID             int64
	GroupID            int64
	AccessibleGroupIDs []int64
	UserEmail          string
}

func identityFromRequest(r *http.Request) (requestIdentity, error) {
	userID, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	if err != nil {
		return requestIdentity{}, domain.NewField(domain.KindInputInvalid, "X-User-Id", r.Header.Get("X-User-Id"), err)
	}
	groupID, err := strconv.ParseInt(r.Header.Get("X-Group-Id"), 10, 64)
	if err != nil {
		return requestIdentity{}, domain.NewField(domain.KindInputInvalid, "X-Group-Id", r.Header.Get("X-Group-Id"), err)
	}

	var accessible []int64
	for _, raw := range strings.Split(r.Header.Get("X-Accessible-Group-Ids"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return requestIdentity{}, domain.NewField(domain.KindInputInvalid, "X-Accessible-Group-Ids", raw, err)
		}
		accessible = append(accessible, id)
	}

	return requestIdentity{
		UserID:             userID,
		GroupID:            groupID,
		AccessibleGroupIDs: accessible,
		UserEmail:          r.Header.Get("X-User-Email"),
	}, nil
}

func (id requestIdentity) canAccess(groupID int64) bool {
	for _, g := range id.AccessibleGroupIDs {
		if g == groupID {
			return true
		}
	}
	return false
}

// --- Error mapping ---

func writeError(w http.ResponseWriter, logger interface {
	Warn(msg string, args ...any)
}, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindInputInvalid:
		status = http.StatusBadRequest
	case domain.KindAccessDenied:
		status = http.StatusForbidden
	case domain.KindDataConsistency:
		status = http.StatusNotFound
	case domain.KindServiceUnavailable, domain.KindTransientExternal:
		status = http.StatusServiceUnavailable
	case domain.KindPermanentExternal:
		status = http.StatusBadGateway
	}
	if errors.Is(err, domain.ErrDuplicateUpload) {
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Warn("unhandled error", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// --- Upload ---
//
// The handler never runs extraction on the request path (spec §6): it
// persists the Document record, puts the object, publishes a
// process_document job, and returns immediately.
func handleUpload(d apiDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := identityFromRequest(r)
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, d.cfg.UploadMaxSize+1<<20)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, d.logger, domain.New(domain.KindInputInvalid, err))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, d.logger, domain.New(domain.KindInputInvalid, err))
			return
		}
		defer file.Close()

		kind := domain.DocumentKind(strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), "."))
		if !domain.ValidDocumentKinds[kind] {
			writeError(w, d.logger, domain.NewField(domain.KindInputInvalid, "kind", string(kind), domain.ErrUnsupportedFileKind))
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, d.cfg.UploadMaxSize+1))
		if err != nil {
			writeError(w, d.logger, domain.New(domain.KindInputInvalid, err))
			return
		}
		if int64(len(data)) > d.cfg.UploadMaxSize {
			writeError(w, d.logger, domain.NewField(domain.KindInputInvalid, "size", strconv.Itoa(len(data)), domain.ErrFileTooLarge))
			return
		}

		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])

		created, err := d.documents.Create(r.Context(), domain.Document{
			DisplayName: header.Filename,
			ContentHash: hash,
			GroupID:     ident.GroupID,
			Status:      domain.StatusPending,
		})
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		objectKey := fmt.Sprintf("group_%d/%s_%s", ident.GroupID, hash, sanitizeFilename(header.Filename))
		if _, err := d.objects.Put(r.Context(), objectKey, bytes.NewReader(data), objectstore.PutOptions{ContentType: contentTypeForKind(kind)}); err != nil {
			writeError(w, d.logger, domain.New(domain.KindTransientExternal, err))
			return
		}

		created.ObjectKey = objectKey
		created, err = d.documents.Update(r.Context(), created)
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		if err := ingest.PublishProcessDocument(r.Context(), d.nc, created.ID); err != nil {
			writeError(w, d.logger, domain.New(domain.KindTransientExternal, err))
			return
		}

		d.observer.LogUpload(r.Context(), header.Filename, 0, ident.UserID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     created.ID,
			"status": created.Status,
		})
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename strips anything but the safe object-key character set so
// a stored key never carries path separators, spaces, or other characters
// an object store backend might mishandle.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	safe := unsafeFilenameChars.ReplaceAllString(name, "_")
	if safe == "" {
		return "file"
	}
	return safe
}

func contentTypeForKind(kind domain.DocumentKind) string {
	switch kind {
	case domain.KindPDF:
		return "application/pdf"
	case domain.KindPPTX:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "application/octet-stream"
	}
}

// --- Documents ---

func handleDocumentsList(d apiDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := identityFromRequest(r)
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		groups := ident.AccessibleGroupIDs
		if q := r.URL.Query().Get("group_id"); q != "" {
			gid, err := strconv.ParseInt(q, 10, 64)
			if err != nil {
				writeError(w, d.logger, domain.NewField(domain.KindInputInvalid, "group_id", q, err))
				return
			}
			if !ident.canAccess(gid) {
				writeError(w, d.logger, domain.New(domain.KindAccessDenied, domain.ErrGroupMembership))
				return
			}
			groups = []int64{gid}
		}
		if len(groups) == 0 {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]domain.Document{})
			return
		}

		// One List call per accessible group, fanned out through the same
		// bounded worker pool width as the rest of the request domain
		// (spec §5), then merged.
		results := fn.ParMapResult(groups, d.cfg.RequestPoolN, func(gid int64) fn.Result[[]domain.Document] {
			docs, err := d.documents.List(r.Context(), repo.ListOpts{
				Limit:  50,
				Filter: map[string]any{"group_id": gid},
			})
			if err != nil {
				return fn.Err[[]domain.Document](err)
			}
			return fn.Ok(docs)
		})

		var merged []domain.Document
		for _, res := range results {
			docs, err := res.Unwrap()
			if err != nil {
				writeError(w, d.logger, err)
				return
			}
			merged = append(merged, docs...)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(merged)
	}
}

func handleDocumentDownload(d apiDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := identityFromRequest(r)
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, d.logger, domain.NewField(domain.KindInputInvalid, "id", r.PathValue("id"), err))
			return
		}

		doc, err := d.documents.Get(r.Context(), id)
		if err != nil {
			writeError(w, d.logger, domain.New(domain.KindDataConsistency, domain.ErrDocumentMissing))
			return
		}
		if !ident.canAccess(doc.GroupID) {
			writeError(w, d.logger, domain.New(domain.KindAccessDenied, domain.ErrGroupMembership))
			return
		}
		if doc.ObjectKey == "" {
			writeError(w, d.logger, domain.New(domain.KindDataConsistency, domain.ErrObjectMissing))
			return
		}

		url, err := d.objects.PresignGet(r.Context(), doc.ObjectKey, 15*time.Minute)
		if err != nil {
			writeError(w, d.logger, domain.New(domain.KindTransientExternal, err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"url": url})
	}
}

// --- Chat ---

type chatRequest struct {
	Query          string             `json:"query"`
	SessionID      string             `json:"session_id"`
	ConversationID int64              `json:"conversation_id"`
	GroupProfile   domain.GroupProfile `json:"group_profile"`
}

type chatResponse struct {
	Response       string          `json:"response"`
	Sources        []domain.Source `json:"sources"`
	SessionID      string          `json:"session_id"`
	ConversationID int64           `json:"conversation_id"`
	Intent         string          `json:"intent"`
	LatencyMS      int64           `json:"latency_ms"`
}

// buildState assembles the graph's starting State and ensures a
// conversation row exists, creating one on first turn.
func buildState(ctx context.Context, d apiDeps, ident requestIdentity, req chatRequest) (agent.State, int64, error) {
	conversationID := req.ConversationID
	if conversationID == 0 {
		conv, err := d.conversations.CreateConversation(ctx, domain.Conversation{
			UserID:  ident.UserID,
			Title:   truncateTitle(req.Query),
			GroupID: &ident.GroupID,
		})
		if err != nil {
			return agent.State{}, 0, err
		}
		conversationID = conv.ID
	}

	sessionKey := session.Key(ident.UserID, req.SessionID)
	turns := session.History(ctx, d.cache, sessionKey, d.conversations, conversationID)
	history := make([]agent.HistoryTurn, len(turns))
	for i, t := range turns {
		history[i] = agent.HistoryTurn{Role: t.Role, Content: t.Content}
	}

	profile := req.GroupProfile
	if profile == "" {
		profile = generate.ProfileGeneral
	}

	return agent.State{
		Query:              req.Query,
		SessionID:          req.SessionID,
		UserID:             ident.UserID,
		GroupID:            ident.GroupID,
		AccessibleGroupIDs: ident.AccessibleGroupIDs,
		GroupProfile:       profile,
		History:            history,
	}, conversationID, nil
}

func truncateTitle(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// persistTurn stores the turn in both the recency cache and durable
// history, and records the source chunks as JSON on assistant turns.
func persistTurn(ctx context.Context, d apiDeps, sessionKey string, conversationID int64, role domain.MessageRole, content string, sources []domain.Source, intentLabel string) {
	_ = d.cache.Push(ctx, sessionKey, session.Turn{Role: role, Content: content})

	sourcesJSON := ""
	if len(sources) > 0 {
		if b, err := json.Marshal(sources); err == nil {
			sourcesJSON = string(b)
		}
	}
	_, _ = d.conversations.AppendMessage(ctx, domain.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		SourcesJSON:    sourcesJSON,
		Intent:         intentLabel,
	})
}

func handleChat(d apiDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := identityFromRequest(r)
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
			writeError(w, d.logger, domain.NewField(domain.KindInputInvalid, "query", req.Query, domain.ErrMalformedQuery))
			return
		}
		if !ident.canAccess(ident.GroupID) {
			writeError(w, d.logger, domain.New(domain.KindAccessDenied, domain.ErrGroupMembership))
			return
		}

		ctx := r.Context()
		traceID := observability.NewTraceID()
		d.observer.LogRequest(ctx, traceID, req.Query, ident.UserID, ident.UserEmail)

		state, conversationID, err := buildState(ctx, d, ident, req)
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		d.requestPool <- struct{}{}
		start := time.Now()
		result, err := d.graph.Run(ctx, state)
		<-d.requestPool

		latency := time.Since(start).Milliseconds()
		if err != nil {
			d.observer.LogResponse(ctx, traceID, req.Query, "", "", ident.UserID, latency, domain.StatusError, err.Error())
			writeError(w, d.logger, err)
			return
		}

		d.observer.LogRetrieval(ctx, traceID, len(result.Chunks), result.RetrievalLatencyMS)
		d.observer.LogGeneration(ctx, traceID, string(d.genManager.Config().DefaultProvider), d.genManager.Config().LocalModel, observability.EstimateTokens(result.Response), result.GenerationLatencyMS)

		chunksJSON := ""
		if b, err := json.Marshal(result.Sources); err == nil {
			chunksJSON = string(b)
		}
		d.observer.LogResponse(ctx, traceID, req.Query, result.Response, chunksJSON, ident.UserID, latency, domain.StatusSuccess, "")

		sessionKey := session.Key(ident.UserID, req.SessionID)
		persistTurn(ctx, d, sessionKey, conversationID, domain.RoleUser, req.Query, nil, "")
		persistTurn(ctx, d, sessionKey, conversationID, domain.RoleAssistant, result.Response, result.Sources, string(result.Intent))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			Response:       result.Response,
			Sources:        result.Sources,
			SessionID:      req.SessionID,
			ConversationID: conversationID,
			Intent:         string(result.Intent),
			LatencyMS:      latency,
		})
	}
}

// handleChatStream is the SSE counterpart of handleChat: for each generator
// delta it emits one event {type: chunk, content}; at the end it emits one
// event {type: end, sources, session_id, conversation_id, intent, latency}
// or {type: end, error} on failure (spec §6).
func handleChatStream(d apiDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := identityFromRequest(r)
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
			writeError(w, d.logger, domain.NewField(domain.KindInputInvalid, "query", req.Query, domain.ErrMalformedQuery))
			return
		}
		if !ident.canAccess(ident.GroupID) {
			writeError(w, d.logger, domain.New(domain.KindAccessDenied, domain.ErrGroupMembership))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, d.logger, domain.New(domain.KindInternal, fmt.Errorf("streaming unsupported")))
			return
		}

		ctx := r.Context()
		traceID := observability.NewTraceID()
		d.observer.LogRequest(ctx, traceID, req.Query, ident.UserID, ident.UserEmail)

		state, conversationID, err := buildState(ctx, d, ident, req)
		if err != nil {
			writeError(w, d.logger, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		type runResult struct {
			state agent.State
			err   error
		}
		out := make(chan generate.Delta, 16)
		resultCh := make(chan runResult, 1)

		d.requestPool <- struct{}{}
		start := time.Now()
		go func() {
			finalState, runErr := d.graph.RunStreaming(ctx, state, out)
			resultCh <- runResult{finalState, runErr}
		}()

		for delta := range out {
			if delta.Err != nil {
				continue
			}
			writeSSE(w, flusher, map[string]any{"type": "chunk", "content": delta.Text})
		}
		res := <-resultCh
		<-d.requestPool
		latency := time.Since(start).Milliseconds()

		if res.err != nil {
			d.observer.LogResponse(ctx, traceID, req.Query, "", "", ident.UserID, latency, domain.StatusError, res.err.Error())
			writeSSE(w, flusher, map[string]any{"type": "end", "error": res.err.Error()})
			return
		}

		d.observer.LogRetrieval(ctx, traceID, len(res.state.Chunks), res.state.RetrievalLatencyMS)
		d.observer.LogGeneration(ctx, traceID, string(d.genManager.Config().DefaultProvider), d.genManager.Config().LocalModel, observability.EstimateTokens(res.state.Response), res.state.GenerationLatencyMS)
		chunksJSON := ""
		if b, err := json.Marshal(res.state.Sources); err == nil {
			chunksJSON = string(b)
		}
		d.observer.LogResponse(ctx, traceID, req.Query, res.state.Response, chunksJSON, ident.UserID, latency, domain.StatusSuccess, "")

		sessionKey := session.Key(ident.UserID, req.SessionID)
		persistTurn(ctx, d, sessionKey, conversationID, domain.RoleUser, req.Query, nil, "")
		persistTurn(ctx, d, sessionKey, conversationID, domain.RoleAssistant, res.state.Response, res.state.Sources, string(res.state.Intent))

		writeSSE(w, flusher, map[string]any{
			"type":            "end",
			"sources":         res.state.Sources,
			"session_id":      req.SessionID,
			"conversation_id": conversationID,
			"intent":          string(res.state.Intent),
			"latency":         latency,
		})
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// --- Admin: LLM config ---
//
// Single-writer admin path over engine/generate.Manager's process-wide,
// admin-mutable Config (spec §9).

// redactedConfig is generate.Config with the cloud API key masked, so a
// GET never echoes the live secret back over HTTP.
func redactedConfig(cfg generate.Config) map[string]any {
	keySet := cfg.CloudAPIKey != ""
	return map[string]any{
		"default_provider": cfg.DefaultProvider,
		"local_model":      cfg.LocalModel,
		"local_base_url":   cfg.LocalBaseURL,
		"cloud_model":      cfg.CloudModel,
		"cloud_api_key_set": keySet,
	}
}

func handleGetLLMConfig(d apiDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(redactedConfig(d.genManager.Config()))
	}
}

func handlePutLLMConfig(d apiDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg generate.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, d.logger, domain.New(domain.KindInputInvalid, err))
			return
		}
		if cfg.CloudAPIKey == "" {
			cfg.CloudAPIKey = d.genManager.Config().CloudAPIKey
		}
		d.genManager.Update(cfg)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(redactedConfig(d.genManager.Config()))
	}
}

// --- Live logs ---

func handleLogsStream(d apiDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveLogsWebSocket(w, r, d)
	}
}
