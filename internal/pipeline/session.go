package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/54b3r/pdfrag-go/internal/prompt"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Replies returned by Session in place of an answer.
const (
	// MsgUploadPrompt is returned by Process when no document was supplied.
	MsgUploadPrompt = "Please upload a PDF."
	// MsgProcessed is returned by Process after the new index is active.
	MsgProcessed = "PDF processed successfully."
	// MsgNotReady is returned by Chat while no document is loaded.
	MsgNotReady = "Please upload a PDF first."
)

// Session holds the single active document of an interactive chat. It is
// owned by whoever creates it (the HTTP server or the terminal UI) and is
// safe for concurrent use.
//
// Chat turns snapshot the current index under a read lock and run without
// holding it. Process builds the replacement index without any lock held and
// swaps it in under the write lock, so a turn sees either the old or the new
// document, never a mix. Concurrent Process calls are serialised.
type Session struct {
	// pipeline runs every stage; it is shared and immutable.
	pipeline *Pipeline

	// processMu serialises Process calls.
	processMu sync.Mutex

	// mu guards index.
	mu sync.RWMutex
	// index is the active document, nil until the first successful Process.
	index *rag.Index
}

// NewSession returns an empty Session backed by p.
func NewSession(p *Pipeline) *Session {
	return &Session{pipeline: p}
}

// Process indexes pdf and makes it the active document. It returns
// MsgUploadPrompt when pdf is nil. On failure the previous document stays
// active and the error is returned.
func (s *Session) Process(ctx context.Context, pdf io.Reader) (string, error) {
	if pdf == nil {
		return MsgUploadPrompt, nil
	}

	s.processMu.Lock()
	defer s.processMu.Unlock()

	idx, err := s.pipeline.BuildIndex(ctx, pdf)
	if err != nil {
		return "", err
	}
	s.swap(idx)
	return MsgProcessed, nil
}

// ProcessFile is Process for a PDF on disk.
func (s *Session) ProcessFile(ctx context.Context, path string) (string, error) {
	s.processMu.Lock()
	defer s.processMu.Unlock()

	idx, err := s.pipeline.BuildIndexFile(ctx, path)
	if err != nil {
		return "", err
	}
	s.swap(idx)
	return MsgProcessed, nil
}

// Chat answers message against the active document using the chat prompt
// mode. With no document loaded it returns MsgNotReady and a nil error.
func (s *Session) Chat(ctx context.Context, message string) (string, error) {
	res, err := s.ChatResult(ctx, message)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// ChatResult is Chat returning the retrieved context as well.
func (s *Session) ChatResult(ctx context.Context, message string) (Result, error) {
	idx := s.current()
	if idx == nil {
		return Result{Answer: MsgNotReady}, nil
	}
	return s.pipeline.Answer(ctx, idx, message, s.pipeline.cfg.ChatMode)
}

// Reset drops the active document.
func (s *Session) Reset() {
	s.swap(nil)
}

// Loaded reports whether a document is active.
func (s *Session) Loaded() bool {
	return s.current() != nil
}

// Segments returns the number of segments in the active document, or 0.
func (s *Session) Segments() int {
	if idx := s.current(); idx != nil {
		return idx.Len()
	}
	return 0
}

// Mode returns the prompt mode used for chat turns.
func (s *Session) Mode() prompt.Mode {
	return s.pipeline.cfg.ChatMode
}

func (s *Session) current() *rag.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

func (s *Session) swap(idx *rag.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
	s.pipeline.metrics.setSessionLoaded(idx != nil)
}
