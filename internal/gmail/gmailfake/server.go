// Package gmailfake is an in-process stand-in for the Gmail REST API and the
// Google OAuth token endpoint. It serves the subset of routes the sync engine
// uses and records every call for assertions.
package gmailfake

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jhillyerd/enmime"
	gmailapi "google.golang.org/api/gmail/v1"
)

const messagesPrefix = "/gmail/v1/users/me/messages"

// ListCall records the query of one users.messages.list request.
type ListCall struct {
	MaxResults int
	PageToken  string
}

// Modification records one users.messages.modify request.
type Modification struct {
	MessageID string
	Add       []string
	Remove    []string
}

// Server is a fake Gmail backend. All exported methods are safe for
// concurrent use.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	messages map[string]*gmailapi.Message

	requireAuth  bool
	validTokens  map[string]bool
	issued       int
	refreshFail  bool
	rotate       bool
	tokenTTL     time.Duration
	refreshCalls int

	pendingFailures []int
	failMessages    map[string]int

	listCalls     []ListCall
	getCalls      map[string]int
	sent          []*enmime.Envelope
	modifications []Modification
}

// NewServer starts a fake server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		messages:     make(map[string]*gmailapi.Message),
		validTokens:  make(map[string]bool),
		failMessages: make(map[string]int),
		getCalls:     make(map[string]int),
		tokenTTL:     time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("GET "+messagesPrefix, s.handleList)
	mux.HandleFunc("POST "+messagesPrefix+"/send", s.handleSend)
	mux.HandleFunc("GET "+messagesPrefix+"/{id}", s.handleGet)
	mux.HandleFunc("POST "+messagesPrefix+"/{id}/modify", s.handleModify)
	s.srv = httptest.NewServer(mux)

	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// URL is the server root.
func (s *Server) URL() string {
	return s.srv.URL
}

// Endpoint is the value for gmail.Options.Endpoint.
func (s *Server) Endpoint() string {
	return s.srv.URL + "/"
}

// TokenURL is the OAuth token endpoint.
func (s *Server) TokenURL() string {
	return s.srv.URL + "/token"
}

// AddMessage stores or replaces a message.
func (s *Server) AddMessage(msg *gmailapi.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.Id] = msg
}

// SetLabels replaces the labels of a stored message.
func (s *Server) SetLabels(id string, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok {
		msg.LabelIds = append([]string{}, labels...)
	}
}

// Message returns a stored message, or nil.
func (s *Server) Message(id string) *gmailapi.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

// RequireToken turns on bearer checking and accepts the given access token.
// Tokens issued by the token endpoint are accepted as well.
func (s *Server) RequireToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = true
	s.validTokens[accessToken] = true
}

// RevokeTokens makes every access token issued so far invalid.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validTokens = make(map[string]bool)
}

// FailRefresh makes the token endpoint reject refresh requests.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFail = fail
}

// RotateRefreshTokens makes the token endpoint return a new refresh token.
func (s *Server) RotateRefreshTokens(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = rotate
}

// FailNext makes the next n API requests fail with the given status code.
func (s *Server) FailNext(code, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.pendingFailures = append(s.pendingFailures, code)
	}
}

// FailMessage makes every get of the given message fail with code.
func (s *Server) FailMessage(id string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMessages[id] = code
}

// RefreshCalls is the number of refresh_token grants served.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// ListCalls returns every list request seen so far.
func (s *Server) ListCalls() []ListCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ListCall(nil), s.listCalls...)
}

// GetCalls is the number of get requests for the given message.
func (s *Server) GetCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[id]
}

// Sent returns the parsed envelopes of every sent message.
func (s *Server) Sent() []*enmime.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*enmime.Envelope(nil), s.sent...)
}

// Modifications returns every modify request seen so far.
func (s *Server) Modifications() []Modification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Modification(nil), s.modifications...)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if s.refreshFail {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	s.refreshCalls++
	s.issued++
	accessToken := fmt.Sprintf("fake-access-%d", s.issued)
	s.validTokens[accessToken] = true

	resp := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int(s.tokenTTL.Seconds()),
	}
	if s.rotate {
		resp["refresh_token"] = fmt.Sprintf("fake-refresh-%d", s.issued)
	}
	writeJSON(w, http.StatusOK, resp)
}

// precheck applies queued failures and bearer checking. It reports whether
// the request may proceed. Must be called with s.mu held.
func (s *Server) precheck(w http.ResponseWriter, r *http.Request) bool {
	if len(s.pendingFailures) > 0 {
		code := s.pendingFailures[0]
		s.pendingFailures = s.pendingFailures[1:]
		writeAPIError(w, code)
		return false
	}

	if s.requireAuth {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !s.validTokens[token] {
			writeAPIError(w, http.StatusUnauthorized)
			return false
		}
	}
	return true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.precheck(w, r) {
		return
	}

	maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	if maxResults <= 0 {
		maxResults = 100
	}
	pageToken := r.URL.Query().Get("pageToken")
	s.listCalls = append(s.listCalls, ListCall{MaxResults: maxResults, PageToken: pageToken})

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			writeAPIError(w, http.StatusBadRequest)
			return
		}
		offset = n
	}

	ordered := s.orderedLocked()
	resp := &gmailapi.ListMessagesResponse{
		ResultSizeEstimate: int64(len(ordered)),
	}
	end := offset + maxResults
	if end > len(ordered) {
		end = len(ordered)
	}
	for i := offset; i < end; i++ {
		resp.Messages = append(resp.Messages, &gmailapi.Message{Id: ordered[i].Id, ThreadId: ordered[i].ThreadId})
	}
	if end < len(ordered) {
		resp.NextPageToken = strconv.Itoa(end)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.precheck(w, r) {
		return
	}

	id := r.PathValue("id")
	s.getCalls[id]++
	if code, ok := s.failMessages[id]; ok {
		writeAPIError(w, code)
		return
	}

	msg, ok := s.messages[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.precheck(w, r) {
		return
	}

	var req gmailapi.Message
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest)
		return
	}

	raw, err := base64.URLEncoding.DecodeString(req.Raw)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(req.Raw)
	}
	if err != nil {
		writeAPIError(w, http.StatusBadRequest)
		return
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest)
		return
	}
	s.sent = append(s.sent, env)

	id := fmt.Sprintf("sent-%d", len(s.sent))
	msg := MessageSpec{
		ID:       id,
		ThreadID: id,
		From:     env.GetHeader("From"),
		To:       env.GetHeader("To"),
		Cc:       env.GetHeader("Cc"),
		Subject:  env.GetHeader("Subject"),
		Text:     env.Text,
		HTML:     env.HTML,
		Date:     time.Now(),
		Labels:   []string{"SENT"},
	}.Build()
	s.messages[id] = msg

	writeJSON(w, http.StatusOK, &gmailapi.Message{Id: id, ThreadId: id, LabelIds: []string{"SENT"}})
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.precheck(w, r) {
		return
	}

	var req gmailapi.ModifyMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	s.modifications = append(s.modifications, Modification{
		MessageID: id,
		Add:       req.AddLabelIds,
		Remove:    req.RemoveLabelIds,
	})

	msg, ok := s.messages[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound)
		return
	}
	msg.LabelIds = applyLabels(msg.LabelIds, req.AddLabelIds, req.RemoveLabelIds)
	writeJSON(w, http.StatusOK, &gmailapi.Message{Id: id, ThreadId: msg.ThreadId, LabelIds: msg.LabelIds})
}

func (s *Server) orderedLocked() []*gmailapi.Message {
	ordered := make([]*gmailapi.Message, 0, len(s.messages))
	for _, m := range s.messages {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].InternalDate != ordered[j].InternalDate {
			return ordered[i].InternalDate > ordered[j].InternalDate
		}
		return ordered[i].Id < ordered[j].Id
	})
	return ordered
}

func applyLabels(labels, add, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, l := range remove {
		drop[l] = true
	}

	out := []string{}
	seen := make(map[string]bool)
	for _, l := range append(append([]string{}, labels...), add...) {
		if drop[l] || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": http.StatusText(code),
			"status":  strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_")),
		},
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
