package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	openai "github.com/sashabaranov/go-openai"

	"github.com/surya-garg/UAVLogViewer/internal/agent"
	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

type sliceSource struct {
	recs []flight.Record
	pos  int
}

func (s *sliceSource) Next() bool {
	if s.pos >= len(s.recs) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource) Record() flight.Record { return s.recs[s.pos-1] }
func (s *sliceSource) Err() error            { return nil }

func rec(typ string, fields map[string]float64) flight.Record {
	r := flight.Record{Type: typ, Fields: make(map[string]flight.Value, len(fields))}
	for name, v := range fields {
		r.Fields[name] = flight.Num(v)
	}
	return r
}

func testFlightLog(t *testing.T) *flight.Log {
	t.Helper()
	log, err := flight.Ingest(&sliceSource{recs: []flight.Record{
		rec("GPS", map[string]float64{"TimeUS": 1000000, "Alt": 10, "Status": 3}),
		rec("GPS", map[string]float64{"TimeUS": 2000000, "Alt": 50, "Status": 3}),
		rec("GPS", map[string]float64{"TimeUS": 3000000, "Alt": 30, "Status": 3}),
		rec("BAT", map[string]float64{"TimeUS": 1000000, "Volt": 12.6}),
	}})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	return log
}

// scriptedChat answers every completion request with a fixed reply.
type scriptedChat struct {
	reply string
	err   error
}

func (c *scriptedChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: c.reply,
			},
		}},
	}, nil
}

func defaultConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 1 << 20,
		Origins:        []string{"*"},
		SessionTTL:     time.Hour,
		Model:          "gpt-4o-mini",
	}
}

func testServer(t *testing.T, cfg Config, chat agent.ChatClient) (*Server, *Metrics) {
	t.Helper()
	if chat == nil {
		chat = &scriptedChat{reply: "Looks like a clean flight."}
	}
	log := testFlightLog(t)
	ingest := func(string) (*flight.Log, error) { return log, nil }
	newAgent := func(l *flight.Log) *agent.Agent {
		return agent.New(chat, cfg.Model, l, agent.WithLogger(discardLogger()))
	}
	metrics := NewMetrics()
	srv, err := New(cfg, ingest, newAgent, WithLogger(discardLogger()), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, metrics
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing form field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, h http.Handler, filename string, content []byte, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	fields := map[string]string{}
	if sessionID != "" {
		fields["session_id"] = sessionID
	}
	body, ctype := multipartBody(t, filename, content, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}

func TestUpload(t *testing.T) {
	cfg := defaultConfig(t)
	srv, metrics := testServer(t, cfg, nil)
	h := srv.Handler()

	content := []byte("dataflash bytes")
	rec := doUpload(t, h, "mission.bin", content, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}

	resp := decodeBody[uploadResponse](t, rec)
	if resp.SessionID == "" {
		t.Error("response has no session id")
	}
	if resp.Filename != "mission.bin" {
		t.Errorf("filename = %q", resp.Filename)
	}
	if resp.SizeBytes != int64(len(content)) {
		t.Errorf("size_bytes = %d, want %d", resp.SizeBytes, len(content))
	}
	if resp.Summary.Metadata.TotalMessages != 4 {
		t.Errorf("summary total messages = %d, want 4", resp.Summary.Metadata.TotalMessages)
	}
	if len(resp.Summary.MessageTypes) == 0 || resp.Summary.MessageTypes[0] != "GPS" {
		t.Errorf("summary message types = %v", resp.Summary.MessageTypes)
	}

	entries, err := os.ReadDir(cfg.UploadDir)
	if err != nil {
		t.Fatalf("reading upload dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("upload dir has %d files, want 1 spool", len(entries))
	}
	if got := testutil.ToFloat64(metrics.uploads); got != 1 {
		t.Errorf("uploads counter = %v, want 1", got)
	}
}

func TestUploadRejectsExtension(t *testing.T) {
	srv, metrics := testServer(t, defaultConfig(t), nil)

	rec := doUpload(t, srv.Handler(), "notes.txt", []byte("hello"), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["error"], ".bin") {
		t.Errorf("error = %q, want .bin hint", body["error"])
	}
	if got := testutil.ToFloat64(metrics.uploadFailures); got != 1 {
		t.Errorf("upload failures counter = %v, want 1", got)
	}
}

func TestUploadTooLarge(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.MaxUploadBytes = 64
	srv, _ := testServer(t, cfg, nil)

	rec := doUpload(t, srv.Handler(), "big.bin", bytes.Repeat([]byte("x"), 1024), "")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["error"], "limit") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestUploadMissingFile(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("session_id=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadIngestFailure(t *testing.T) {
	cfg := defaultConfig(t)
	metrics := NewMetrics()
	ingest := func(string) (*flight.Log, error) {
		return nil, errors.New("no valid records before the error threshold")
	}
	newAgent := func(l *flight.Log) *agent.Agent {
		return agent.New(&scriptedChat{}, cfg.Model, l)
	}
	srv, err := New(cfg, ingest, newAgent, WithLogger(discardLogger()), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec := doUpload(t, srv.Handler(), "broken.bin", []byte("garbage"), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["error"], "could not parse") {
		t.Errorf("error = %q", body["error"])
	}

	// A failed ingest must not leave the spool file behind.
	entries, err := os.ReadDir(cfg.UploadDir)
	if err != nil {
		t.Fatalf("reading upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("upload dir has %d files after failed ingest, want 0", len(entries))
	}
	if got := testutil.ToFloat64(metrics.uploadFailures); got != 1 {
		t.Errorf("upload failures counter = %v, want 1", got)
	}
}

func TestUploadReusesSession(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)
	h := srv.Handler()

	first := decodeBody[uploadResponse](t, doUpload(t, h, "a.bin", []byte("one"), ""))
	second := decodeBody[uploadResponse](t, doUpload(t, h, "b.bin", []byte("two"), first.SessionID))

	if second.SessionID != first.SessionID {
		t.Errorf("second upload created session %q, want %q", second.SessionID, first.SessionID)
	}
	if srv.Sessions().Count() != 1 {
		t.Errorf("session count = %d, want 1", srv.Sessions().Count())
	}
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	srv, metrics := testServer(t, defaultConfig(t), &scriptedChat{reply: "Max altitude was 50 m."})
	h := srv.Handler()

	up := decodeBody[uploadResponse](t, doUpload(t, h, "mission.bin", []byte("bytes"), ""))

	rec := postChat(t, h, `{"session_id":"`+up.SessionID+`","message":"How high did it fly?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decodeBody[chatResponse](t, rec)
	if resp.Response != "Max altitude was 50 m." {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.SessionID != up.SessionID {
		t.Errorf("session id = %q, want %q", resp.SessionID, up.SessionID)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", resp.Timestamp, err)
	}
	if got := testutil.ToFloat64(metrics.chats); got != 1 {
		t.Errorf("chat counter = %v, want 1", got)
	}
}

func TestChatUnknownSession(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)

	rec := postChat(t, srv.Handler(), `{"session_id":"nope","message":"hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestChatWithoutUpload(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)
	sess := srv.Sessions().GetOrCreate("")

	rec := postChat(t, srv.Handler(), `{"session_id":"`+sess.ID+`","message":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["error"], "upload") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestChatModelFailure(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), &scriptedChat{err: errors.New("connection refused")})
	h := srv.Handler()

	up := decodeBody[uploadResponse](t, doUpload(t, h, "mission.bin", []byte("bytes"), ""))

	rec := postChat(t, h, `{"session_id":"`+up.SessionID+`","message":"hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["error"], "language model") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestChatBadRequests(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)
	h := srv.Handler()

	for name, body := range map[string]string{
		"malformed json":  `{"session_id":`,
		"missing message": `{"session_id":"x"}`,
		"missing session": `{"message":"hi"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if rec := postChat(t, h, body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSessionInfo(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)
	h := srv.Handler()

	up := decodeBody[uploadResponse](t, doUpload(t, h, "mission.bin", []byte("bytes"), ""))

	req := httptest.NewRequest(http.MethodGet, "/api/session/"+up.SessionID, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	info := decodeBody[sessionInfo](t, rec)
	if info.ID != up.SessionID || !info.HasData || info.Filename != "mission.bin" {
		t.Errorf("info = %+v", info)
	}
	if info.Summary == nil || info.Summary.Metadata.TotalMessages != 4 {
		t.Errorf("summary = %+v", info.Summary)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/session/unknown", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestSessionReset(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)
	h := srv.Handler()

	up := decodeBody[uploadResponse](t, doUpload(t, h, "mission.bin", []byte("bytes"), ""))
	postChat(t, h, `{"session_id":"`+up.SessionID+`","message":"hi"}`)

	sess, ok := srv.Sessions().Get(up.SessionID)
	if !ok {
		t.Fatal("session vanished")
	}
	if len(sess.Agent.History()) == 0 {
		t.Fatal("chat left no history")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/session/"+up.SessionID+"/reset", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if got := len(sess.Agent.History()); got != 0 {
		t.Errorf("history has %d messages after reset, want 0", got)
	}
}

func TestSessionDelete(t *testing.T) {
	cfg := defaultConfig(t)
	srv, _ := testServer(t, cfg, nil)
	h := srv.Handler()

	up := decodeBody[uploadResponse](t, doUpload(t, h, "mission.bin", []byte("bytes"), ""))

	req := httptest.NewRequest(http.MethodDelete, "/api/session/"+up.SessionID, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	entries, err := os.ReadDir(cfg.UploadDir)
	if err != nil {
		t.Fatalf("reading upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("upload dir has %d files after delete, want 0", len(entries))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/session/"+up.SessionID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model field = %v", body["model"])
	}
	if body["active_sessions"] != float64(0) {
		t.Errorf("active_sessions = %v, want 0", body["active_sessions"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t, defaultConfig(t), nil)
	h := srv.Handler()

	doUpload(t, h, "mission.bin", []byte("bytes"), "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, metric := range []string{"uavlog_uploads_total", "uavlog_active_sessions"} {
		if !strings.Contains(rec.Body.String(), metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestCORS(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Origins = []string{"http://localhost:8080"}
	srv, _ := testServer(t, cfg, nil)
	h := srv.Handler()

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
		req.Header.Set("Origin", "http://localhost:8080")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8080" {
			t.Errorf("allow-origin = %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
			t.Errorf("allow-methods = %q", got)
		}
	})

	t.Run("disallowed origin gets no header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("allow-origin = %q, want empty", got)
		}
	})

	t.Run("wildcard allows any origin", func(t *testing.T) {
		anyCfg := defaultConfig(t)
		anyCfg.Origins = []string{"*"}
		anySrv, _ := testServer(t, anyCfg, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://anywhere.example")
		rec := httptest.NewRecorder()
		anySrv.Handler().ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://anywhere.example" {
			t.Errorf("allow-origin = %q", got)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	valid := Config{UploadDir: "uploads", MaxUploadBytes: 1}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	for name, cfg := range map[string]Config{
		"missing upload dir": {MaxUploadBytes: 1},
		"zero size limit":    {UploadDir: "uploads"},
	} {
		t.Run(name, func(t *testing.T) {
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
