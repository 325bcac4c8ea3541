package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

type logSummary struct {
	Metadata      flight.Metadata `json:"metadata"`
	MessageTypes  []string        `json:"message_types"`
	MessageCounts map[string]int  `json:"message_counts"`
	Skipped       int             `json:"skipped_records,omitempty"`
}

type uploadResponse struct {
	SessionID string     `json:"session_id"`
	Filename  string     `json:"filename"`
	SizeBytes int64      `json:"size_bytes"`
	Summary   logSummary `json:"summary"`
	Message   string     `json:"message"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

type sessionInfo struct {
	ID        string      `json:"id"`
	CreatedAt string      `json:"created_at"`
	HasData   bool        `json:"has_data"`
	Filename  string      `json:"filename,omitempty"`
	Summary   *logSummary `json:"summary,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.cfg.MaxUploadBytes {
		s.metrics.uploadFailures.Inc()
		s.writeError(w, http.StatusRequestEntityTooLarge, s.sizeLimitMessage())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.metrics.uploadFailures.Inc()
		if isBodyTooLarge(err) {
			s.writeError(w, http.StatusRequestEntityTooLarge, s.sizeLimitMessage())
			return
		}
		s.writeError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".bin") {
		s.metrics.uploadFailures.Inc()
		s.writeError(w, http.StatusBadRequest, "only .bin dataflash logs are accepted")
		return
	}

	sess := s.sessions.GetOrCreate(r.FormValue("session_id"))

	// Spool under a generated name, never one derived from client input.
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+".bin")
	size, err := spool(path, file)
	if err != nil {
		s.metrics.uploadFailures.Inc()
		os.Remove(path)
		if isBodyTooLarge(err) {
			s.writeError(w, http.StatusRequestEntityTooLarge, s.sizeLimitMessage())
			return
		}
		s.logger.Error("spooling upload failed", slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "could not store the upload")
		return
	}

	start := time.Now()
	log, err := s.ingest(path)
	if err != nil {
		s.metrics.uploadFailures.Inc()
		os.Remove(path)
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("could not parse flight log: %v", err))
		return
	}
	elapsed := time.Since(start)

	s.sessions.Attach(sess, log, s.newAgent(log), header.Filename, path)

	s.metrics.uploads.Inc()
	s.metrics.uploadBytes.Observe(float64(size))
	s.metrics.ingestSeconds.Observe(elapsed.Seconds())

	s.logger.Info("flight log ingested",
		slog.String("session", sess.ID),
		slog.String("filename", header.Filename),
		slog.String("size", humanize.IBytes(uint64(size))),
		slog.Int("messages", log.Len()),
		slog.Duration("elapsed", elapsed))

	s.writeJSON(w, http.StatusOK, uploadResponse{
		SessionID: sess.ID,
		Filename:  header.Filename,
		SizeBytes: size,
		Summary:   summarize(log),
		Message:   "flight log uploaded and analysed",
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}

	sess, ok := s.sessions.Get(req.SessionID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if !sess.HasData() {
		s.writeError(w, http.StatusBadRequest, "no flight log uploaded for this session")
		return
	}

	s.metrics.chats.Inc()
	answer, err := sess.Chat(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("chat failed",
			slog.String("session", sess.ID),
			slog.Any("error", err))
		s.writeError(w, http.StatusBadGateway, "the language model could not be reached")
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		SessionID: sess.ID,
		Response:  answer,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	info := sessionInfo{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt.UTC().Format(time.RFC3339),
		HasData:   sess.HasData(),
		Filename:  sess.Filename,
	}
	if sess.HasData() {
		sum := summarize(sess.Log)
		info.Summary = &sum
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.Agent != nil {
		sess.Agent.Reset()
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"message":    "conversation history cleared",
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.Delete(id) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"message":    "session deleted",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.Count(),
		"model":           s.cfg.Model,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) sizeLimitMessage() string {
	return fmt.Sprintf("upload exceeds the %s limit", humanize.IBytes(uint64(s.cfg.MaxUploadBytes)))
}

func summarize(log *flight.Log) logSummary {
	return logSummary{
		Metadata:      log.Metadata(),
		MessageTypes:  log.Types(),
		MessageCounts: log.Counts(),
		Skipped:       log.Skipped(),
	}
}

func spool(path string, src io.Reader) (n int64, err error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating spool file: %w", err)
	}
	defer closeWithError(dst, &err)

	n, err = io.Copy(dst, src)
	if err != nil {
		return n, fmt.Errorf("writing spool file: %w", err)
	}
	return n, nil
}

// closeWithError closes c, storing the close error in err unless err is
// already set.
func closeWithError(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
