package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfrag-go/internal/answer"
	"github.com/54b3r/pdfrag-go/internal/chunker"
	"github.com/54b3r/pdfrag-go/internal/embedder"
	"github.com/54b3r/pdfrag-go/internal/ingest"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/rag"
	"github.com/54b3r/pdfrag-go/internal/testpdf"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeAsker is a test double for the asker interface.
type fakeAsker struct {
	res pipeline.Result
	err error

	mu        sync.Mutex
	questions []string
	bodies    [][]byte
}

func (f *fakeAsker) Ask(_ context.Context, pdf io.Reader, question string) (pipeline.Result, error) {
	body, _ := io.ReadAll(pdf)
	f.mu.Lock()
	f.questions = append(f.questions, question)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	return f.res, f.err
}

// fakeSession is a test double for the chatSession interface.
type fakeSession struct {
	mu       sync.Mutex
	loaded   bool
	resets   int
	chatErr  error
	procErr  error
	lastChat string
}

func (f *fakeSession) Process(_ context.Context, pdf io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pdf == nil {
		return pipeline.MsgUploadPrompt, nil
	}
	if f.procErr != nil {
		return "", f.procErr
	}
	f.loaded = true
	return pipeline.MsgProcessed, nil
}

func (f *fakeSession) Chat(_ context.Context, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastChat = message
	if f.chatErr != nil {
		return "", f.chatErr
	}
	if !f.loaded {
		return pipeline.MsgNotReady, nil
	}
	return "echo: " + message, nil
}

func (f *fakeSession) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = false
	f.resets++
}

func (f *fakeSession) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

// failingEmbedder always returns an error.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

// fakeChatModel is a test double for model.BaseChatModel.
type fakeChatModel struct {
	reply string
	err   error
}

func (f *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestServer builds a Server around the given fakes with an isolated
// metrics registry and a discarded log.
func newTestServer(t *testing.T, a asker, sess chatSession) *Server {
	t.Helper()
	s, _ := newTestServerWithRegistry(t, a, sess, nil)
	return s
}

func newTestServerWithRegistry(t *testing.T, a asker, sess chatSession, cfg *Config) (*Server, *prometheus.Registry) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	reg := prometheus.NewRegistry()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := newServer(a, sess, cfg)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return s, reg
}

// multipartBody builds a multipart form. A nil pdf omits the file part and
// an empty question omits the question field.
func multipartBody(t *testing.T, pdf []byte, question string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if pdf != nil {
		fw, err := mw.CreateFormFile(fieldFile, "manual.pdf")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(pdf); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if question != "" {
		if err := mw.WriteField(fieldQuestion, question); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// do sends req through the full handler stack.
func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func postAsk(t *testing.T, s *Server, target string, pdf []byte, question string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, pdf, question)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", ct)
	return do(s, req)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

// ---------------------------------------------------------------------------
// POST /ask
// ---------------------------------------------------------------------------

func TestHandleAsk_OK(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{res: pipeline.Result{
		Answer: "79000 kg",
		Context: []rag.Match{
			{Segment: rag.Segment{Seq: 1, Text: "The maximum takeoff weight is 79000 kg.", Page: 2}, Similarity: 0.9},
		},
	}}
	s := newTestServer(t, a, &fakeSession{})

	w := postAsk(t, s, "/ask", []byte("%PDF-fake"), "  What is the MTOW?  ")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}

	var resp answerResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "79000 kg" {
		t.Errorf("answer = %q, want %q", resp.Answer, "79000 kg")
	}
	if resp.Context != nil {
		t.Errorf("context should be omitted without ?context=true, got %v", resp.Context)
	}
	if len(a.questions) != 1 || a.questions[0] != "What is the MTOW?" {
		t.Errorf("asker received questions %q", a.questions)
	}
	if string(a.bodies[0]) != "%PDF-fake" {
		t.Errorf("asker received body %q", a.bodies[0])
	}
}

func TestHandleAsk_WithContext(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{res: pipeline.Result{
		Answer: "79000 kg",
		Context: []rag.Match{
			{Segment: rag.Segment{Text: "takeoff 79000", Page: 2}, Similarity: 0.9},
			{Segment: rag.Segment{Text: "landing 66000", Page: 2}, Similarity: 0.4},
		},
	}}
	s := newTestServer(t, a, &fakeSession{})

	w := postAsk(t, s, "/ask?context=true", []byte("%PDF-fake"), "MTOW?")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	var resp answerResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Context) != 2 {
		t.Fatalf("expected 2 context items, got %d", len(resp.Context))
	}
	if resp.Context[0].Text != "takeoff 79000" || resp.Context[0].Page != 2 {
		t.Errorf("unexpected first context item: %+v", resp.Context[0])
	}
}

func TestHandleAsk_MissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pdf      []byte
		question string
		wantErr  string
	}{
		{name: "no file", pdf: nil, question: "q", wantErr: "file is required"},
		{name: "no question", pdf: []byte("%PDF"), question: "", wantErr: "question is required"},
		{name: "blank question", pdf: []byte("%PDF"), question: "   ", wantErr: "question is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := &fakeAsker{}
			s := newTestServer(t, a, &fakeSession{})

			w := postAsk(t, s, "/ask", tc.pdf, tc.question)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d; body: %s", w.Code, w.Body.String())
			}
			if got := decodeError(t, w); got != tc.wantErr {
				t.Errorf("error = %q, want %q", got, tc.wantErr)
			}
			if len(a.questions) != 0 {
				t.Error("asker must not be called on invalid input")
			}
		})
	}
}

func TestHandleAsk_NotMultipart(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{}, &fakeSession{})
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")

	w := do(s, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d; body: %s", w.Code, w.Body.String())
	}
	if got := decodeError(t, w); got != "file is required" {
		t.Errorf("error = %q, want %q", got, "file is required")
	}
}

func TestHandleAsk_UploadTooLarge(t *testing.T) {
	t.Parallel()

	s, _ := newTestServerWithRegistry(t, &fakeAsker{}, &fakeSession{}, &Config{MaxUploadBytes: 1024})
	w := postAsk(t, s, "/ask", bytes.Repeat([]byte("x"), 4096), "q")
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d; body: %s", w.Code, w.Body.String())
	}
}

func TestHandleAsk_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "parse error", err: &ingest.ParseError{Err: errors.New("malformed PDF")}, want: http.StatusBadRequest},
		{name: "too large", err: &ingest.ParseError{Err: ingest.ErrTooLarge}, want: http.StatusRequestEntityTooLarge},
		{name: "empty document", err: rag.ErrEmptyDocument, want: http.StatusUnprocessableEntity},
		{name: "upstream", err: &answer.UpstreamError{Model: "m", Err: errors.New("503 from provider")}, want: http.StatusBadGateway},
		{name: "upstream timeout", err: &answer.UpstreamError{Model: "m", Err: context.DeadlineExceeded}, want: http.StatusGatewayTimeout},
		{name: "deadline", err: fmt.Errorf("rag: embedding: %w", context.DeadlineExceeded), want: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeAsker{err: tc.err}, &fakeSession{})

			w := postAsk(t, s, "/ask", []byte("%PDF"), "q")
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d; body: %s", tc.want, w.Code, w.Body.String())
			}
			if got := decodeError(t, w); got != tc.err.Error() {
				t.Errorf("error = %q, want %q", got, tc.err.Error())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// /api/session
// ---------------------------------------------------------------------------

func TestSession_Flow(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	s := newTestServer(t, &fakeAsker{}, sess)

	chat := func(msg string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/session/chat", strings.NewReader(`{"message":"`+msg+`"}`))
		req.Header.Set("Content-Type", "application/json")
		return do(s, req)
	}
	decodeAnswer := func(w *httptest.ResponseRecorder) string {
		var resp answerResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.Answer
	}

	// Before upload.
	w := chat("hello")
	if w.Code != http.StatusOK {
		t.Fatalf("chat before upload: expected 200, got %d", w.Code)
	}
	if got := decodeAnswer(w); got != pipeline.MsgNotReady {
		t.Errorf("chat before upload = %q, want %q", got, pipeline.MsgNotReady)
	}

	// Upload.
	body, ct := multipartBody(t, []byte("%PDF"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/session/pdf", body)
	req.Header.Set("Content-Type", ct)
	w = do(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	var st statusResponse
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != pipeline.MsgProcessed || !st.Loaded {
		t.Errorf("upload status = %+v", st)
	}

	// Chat.
	if got := decodeAnswer(chat("max takeoff weight")); got != "echo: max takeoff weight" {
		t.Errorf("chat = %q", got)
	}

	// Status.
	w = do(s, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	st = statusResponse{}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Loaded {
		t.Error("expected loaded:true after upload")
	}

	// Reset.
	w = do(s, httptest.NewRequest(http.MethodDelete, "/api/session", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", w.Code)
	}
	if sess.resets != 1 || sess.Loaded() {
		t.Errorf("reset not applied: resets=%d loaded=%v", sess.resets, sess.Loaded())
	}
	if got := decodeAnswer(chat("again")); got != pipeline.MsgNotReady {
		t.Errorf("chat after reset = %q, want %q", got, pipeline.MsgNotReady)
	}
}

func TestSessionPDF_NoFile(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{}, &fakeSession{})
	body, ct := multipartBody(t, nil, "")
	req := httptest.NewRequest(http.MethodPost, "/api/session/pdf", body)
	req.Header.Set("Content-Type", ct)

	w := do(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	var st statusResponse
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != pipeline.MsgUploadPrompt || st.Loaded {
		t.Errorf("status = %+v, want upload prompt", st)
	}
}

func TestSessionPDF_NoForm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        io.Reader
		contentType string
	}{
		{name: "empty body", body: nil},
		{name: "json body", body: strings.NewReader(`{"file":"x"}`), contentType: "application/json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeAsker{}, &fakeSession{})
			req := httptest.NewRequest(http.MethodPost, "/api/session/pdf", tc.body)
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}

			w := do(s, req)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
			}
			var st statusResponse
			if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if st.Status != pipeline.MsgUploadPrompt {
				t.Errorf("status = %q, want %q", st.Status, pipeline.MsgUploadPrompt)
			}
		})
	}
}

func TestSessionPDF_ProcessError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{}, &fakeSession{procErr: rag.ErrEmptyDocument})
	body, ct := multipartBody(t, []byte("%PDF"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/session/pdf", body)
	req.Header.Set("Content-Type", ct)

	w := do(s, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d; body: %s", w.Code, w.Body.String())
	}
}

func TestSessionChat_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"message":`},
		{name: "empty message", body: `{"message":"  "}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sess := &fakeSession{}
			s := newTestServer(t, &fakeAsker{}, sess)
			req := httptest.NewRequest(http.MethodPost, "/api/session/chat", strings.NewReader(tc.body))
			w := do(s, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d; body: %s", w.Code, w.Body.String())
			}
			if sess.lastChat != "" {
				t.Error("session must not be called on invalid input")
			}
		})
	}
}

func TestSessionChat_UpstreamError(t *testing.T) {
	t.Parallel()

	upstream := &answer.UpstreamError{Model: "gemini-2.5-flash", Err: errors.New("quota exceeded")}
	s := newTestServer(t, &fakeAsker{}, &fakeSession{loaded: true, chatErr: upstream})
	req := httptest.NewRequest(http.MethodPost, "/api/session/chat", strings.NewReader(`{"message":"hi"}`))

	w := do(s, req)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d; body: %s", w.Code, w.Body.String())
	}
	if got := decodeError(t, w); got != upstream.Error() {
		t.Errorf("error = %q, want %q", got, upstream.Error())
	}
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func TestRoutes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{}, &fakeSession{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /: expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<html") {
		t.Error("GET /: expected the embedded chat page")
	}

	w = do(s, httptest.NewRequest(http.MethodPut, "/ask", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /ask: expected 405, got %d", w.Code)
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics: expected 200, got %d", w.Code)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{}, &fakeSession{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc123")

	w := do(s, req)
	if got := w.Header().Get(requestIDHeader); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, nil); err == nil {
		t.Error("expected error for nil pipeline")
	}
}

// ---------------------------------------------------------------------------
// End to end through the real pipeline
// ---------------------------------------------------------------------------

// TestAsk_EndToEnd uploads a generated manual through POST /ask with the
// offline embedder and a stub answerer that echoes the best context line.
func TestAsk_EndToEnd(t *testing.T) {
	t.Parallel()

	ch, err := chunker.New(chunker.Config{Size: 160, Overlap: 20})
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	stub := answer.Func(func(_ context.Context, p string) (string, error) {
		for _, line := range strings.Split(p, "\n") {
			if strings.Contains(line, "79000") {
				return line, nil
			}
		}
		return "information not available", nil
	})
	p, err := pipeline.New(pipeline.Deps{
		Ingestor: ingest.New(ingest.Config{TempDir: t.TempDir()}),
		Chunker:  ch,
		Embedder: embedder.NewLocalEmbedder(0),
		Answerer: stub,
	}, pipeline.Config{})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	s := newTestServer(t, p, pipeline.NewSession(p))

	w := postAsk(t, s, "/ask?context=1", testpdf.Manual(t), "What is the maximum takeoff weight?")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	var resp answerResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Answer, "79000") {
		t.Errorf("answer %q does not mention 79000", resp.Answer)
	}
	if len(resp.Context) == 0 || resp.Context[0].Page != 2 {
		t.Errorf("expected top context from page 2, got %+v", resp.Context)
	}

	w = postAsk(t, s, "/ask", testpdf.Bytes(t, "", ""), "anything")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank PDF: expected 422, got %d; body: %s", w.Code, w.Body.String())
	}

	w = postAsk(t, s, "/ask", []byte("not a pdf at all"), "anything")
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-PDF: expected 400, got %d; body: %s", w.Code, w.Body.String())
	}
}
