// Package lsp implements a language server for STCR scripts.
package lsp

import (
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	_ "github.com/tliron/commonlog/simple"
)

const lsName = "stcr-lsp"

// Server serves diagnostics, document symbols, go-to-definition and
// completion for open documents.
type Server struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	log     commonlog.Logger
	version string
}

// New creates a language server.
func New(version string) *Server {
	s := &Server{
		docs:    make(map[string]string),
		log:     commonlog.GetLogger(lsName),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentCompletion:     s.textDocumentCompletion,
	}

	s.server = glspserver.NewServer(&s.handler, lsName, false)
	return s
}

// RunStdio serves on stdin/stdout until the client disconnects.
func (s *Server) RunStdio() error {
	return s.server.RunStdio()
}

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.log.Infof("initializing %s %s", lsName, s.version)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"$", "@"},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *Server) shutdown(ctx *glsp.Context) error {
	s.log.Info("shutting down")
	return nil
}

func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// Document returns the current text of an open document.
func (s *Server) Document(uri string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[uri]
	return text, ok
}

func (s *Server) setDocument(uri, text string) {
	s.mu.Lock()
	s.docs[uri] = text
	s.mu.Unlock()
}

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.setDocument(string(uri), params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, params.TextDocument.Text)
	return nil
}

func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	if len(params.ContentChanges) == 0 {
		return nil
	}

	// With Full sync, the last change event contains the full text
	text, ok := fullText(params.ContentChanges[len(params.ContentChanges)-1])
	if !ok {
		return nil
	}
	s.setDocument(string(uri), text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	text, ok := s.Document(string(params.TextDocument.URI))
	if !ok {
		return []protocol.DocumentSymbol{}, nil
	}
	return DocumentSymbols(text), nil
}

func (s *Server) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.Document(string(uri))
	if !ok {
		return nil, nil
	}
	r, ok := Definition(text, params.Position)
	if !ok {
		return nil, nil
	}
	return []protocol.Location{{URI: uri, Range: r}}, nil
}

func (s *Server) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.Document(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}
	return Completions(text, params.Position), nil
}

func (s *Server) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := Diagnostics(text)
	s.log.Debugf("%s: %d diagnostics", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func fullText(change any) (string, bool) {
	switch typed := change.(type) {
	case protocol.TextDocumentContentChangeEventWhole:
		return typed.Text, true
	case protocol.TextDocumentContentChangeEvent:
		return typed.Text, true
	default:
		return "", false
	}
}
