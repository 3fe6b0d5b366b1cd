package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
)

// Multipart field names.
const (
	fieldFile     = "file"
	fieldQuestion = "question"
)

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files managed by net/http.
const multipartMemory = 8 << 20

// handleAsk handles POST /ask: multipart `file` and `question` in, one answer
// out. Nothing is retained between requests. With ?context=true the
// retrieved segments are returned alongside the answer.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	start := time.Now()

	outcome := outcomeOK
	defer func() {
		s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	file, closeFile, err := s.parseUpload(w, r)
	if err != nil {
		outcome = writeError(ctx, w, err)
		return
	}
	defer closeFile()
	if file == nil {
		outcome = writeError(ctx, w, &badRequest{msg: "file is required"})
		return
	}

	question := strings.TrimSpace(r.FormValue(fieldQuestion))
	if question == "" {
		outcome = writeError(ctx, w, &badRequest{msg: "question is required"})
		return
	}

	res, err := s.asker.Ask(ctx, file, question)
	if err != nil {
		outcome = writeError(ctx, w, err)
		return
	}

	resp := answerResponse{Answer: res.Answer}
	if withContext, _ := strconv.ParseBool(r.URL.Query().Get("context")); withContext {
		resp.Context = make([]contextItem, len(res.Context))
		for i, m := range res.Context {
			resp.Context[i] = contextItem{Text: m.Text, Page: m.Page, Similarity: m.Similarity}
		}
	}

	log.Info("question answered",
		slog.Int("segments", len(res.Context)),
		slog.Int("answer_len", len(res.Answer)),
	)
	writeJSON(ctx, w, http.StatusOK, resp)
}

// handleSessionPDF handles POST /api/session/pdf. A request without a file
// part is answered with the upload prompt rather than an error.
func (s *Server) handleSessionPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	file, closeFile, err := s.parseUpload(w, r)
	if err != nil {
		s.sessionOutcome("process", writeError(ctx, w, err))
		return
	}
	defer closeFile()

	var pdf io.Reader
	if file != nil {
		pdf = file
	}
	status, err := s.session.Process(ctx, pdf)
	if err != nil {
		s.sessionOutcome("process", writeError(ctx, w, err))
		return
	}

	s.sessionOutcome("process", outcomeOK)
	writeJSON(ctx, w, http.StatusOK, statusResponse{Status: status, Loaded: s.session.Loaded()})
}

// handleSessionChat handles POST /api/session/chat with a JSON
// {"message": "..."} body.
func (s *Server) handleSessionChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.sessionOutcome("chat", writeError(ctx, w, &badRequest{msg: "invalid request body"}))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.sessionOutcome("chat", writeError(ctx, w, pipeline.ErrEmptyQuestion))
		return
	}

	reply, err := s.session.Chat(ctx, req.Message)
	if err != nil {
		s.sessionOutcome("chat", writeError(ctx, w, err))
		return
	}

	s.sessionOutcome("chat", outcomeOK)
	writeJSON(ctx, w, http.StatusOK, answerResponse{Answer: reply})
}

// handleSessionReset handles DELETE /api/session.
func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	s.sessionOutcome("reset", outcomeOK)
	logging.FromContext(r.Context()).Info("session reset")
	writeJSON(r.Context(), w, http.StatusOK, statusResponse{Status: "Session cleared.", Loaded: false})
}

// handleSessionStatus handles GET /api/session.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	loaded := s.session.Loaded()
	status := pipeline.MsgNotReady
	if loaded {
		status = "Ready."
	}
	writeJSON(r.Context(), w, http.StatusOK, statusResponse{Status: status, Loaded: loaded})
}

// parseUpload parses the multipart body under the upload cap and opens the
// `file` part. It returns a nil file and a no-op closer when the request
// carries no file, including an empty or non-multipart body.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (multipart.File, func(), error) {
	noop := func() {}

	if r.ContentLength == 0 {
		return nil, noop, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, noop, err
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, nil
		}
		return nil, noop, &badRequest{msg: "invalid multipart form: " + err.Error()}
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, _, err := r.FormFile(fieldFile)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, cleanup, nil
	}
	if err != nil {
		cleanup()
		return nil, noop, &badRequest{msg: "invalid file part: " + err.Error()}
	}
	return file, func() {
		_ = file.Close()
		cleanup()
	}, nil
}

// sessionOutcome records one session operation.
func (s *Server) sessionOutcome(op, outcome string) {
	s.metrics.sessionRequestsTotal.WithLabelValues(op, outcome).Inc()
}
