package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/circuitbreaker"
	"github.com/synapsedb/synapse/internal/embeddinggw"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/ratelimit"
	"github.com/synapsedb/synapse/internal/store"
	"github.com/synapsedb/synapse/internal/tiermanager"
)

var log = logging.GetLogger("protocol")

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "synapse"
	ServerVersion   = "1.0.0"
)

// Server is the Tool Protocol Layer: a JSON-RPC 2.0 server over stdio
// fronting the Repository, Embedding Gateway, and Tier Manager (§4.6).
type Server struct {
	st       *store.Store
	embedder *embeddinggw.Gateway
	tiers    *tiermanager.Manager
	auth     *Authenticator
	limiter  *ratelimit.Limiter

	embedBreaker *circuitbreaker.Breaker
	storeBreaker *circuitbreaker.Breaker

	poolSaturationThreshold float64

	stdin  io.Reader
	stdout io.Writer
}

// NewServer constructs a Server. Rate limiting and authentication are both
// mandatory collaborators; a nil limiter is never valid (the caller passes
// a disabled one instead, per ratelimit.Config.Enabled=false).
func NewServer(st *store.Store, embedder *embeddinggw.Gateway, tiers *tiermanager.Manager, auth *Authenticator, limiter *ratelimit.Limiter, poolSaturationThreshold float64) *Server {
	return &Server{
		st:                      st,
		embedder:                embedder,
		tiers:                   tiers,
		auth:                    auth,
		limiter:                 limiter,
		embedBreaker:            circuitbreaker.New("embedding_gateway", circuitbreaker.DefaultConfig()),
		storeBreaker:            circuitbreaker.New("store", circuitbreaker.DefaultConfig()),
		poolSaturationThreshold: poolSaturationThreshold,
		stdin:                   os.Stdin,
		stdout:                  os.Stdout,
	}
}

// Run reads newline-delimited JSON-RPC requests from stdin until ctx is
// cancelled or stdin closes. Each line is rate-limited before it is parsed,
// per §4.6.
func (s *Server) Run(ctx context.Context) error {
	log.Info("starting protocol server", "version", ServerVersion)
	scanner := bufio.NewScanner(s.stdin)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			log.Info("context cancelled, shutting down")
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		responses := s.handleLine(ctx, line)
		for _, resp := range responses {
			if resp != nil {
				s.sendResponse(resp)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	log.Info("protocol server shutdown complete")
	return nil
}

// handleLine rate-limits the raw bytes before any JSON parsing, then
// dispatches either a single request or a batch array (§6: "Batches are
// processed as arrays").
func (s *Server) handleLine(ctx context.Context, line []byte) []*Response {
	limitResult := s.limiter.Allow(preParseClientKey(line))
	if !limitResult.Allowed {
		return []*Response{errorResponse(nil, RateLimitExceeded, "rate limit exceeded", map[string]any{
			"limit_type":     limitResult.LimitType,
			"retry_after_ms": limitResult.RetryAfter.Milliseconds(),
		})}
	}

	trimmed := trimLeadingSpace(line)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return []*Response{errorResponse(nil, ParseError, "parse error", err.Error())}
		}
		out := make([]*Response, 0, len(batch))
		for _, item := range batch {
			out = append(out, s.handleRequest(ctx, item))
		}
		return out
	}

	return []*Response{s.handleRequest(ctx, trimmed)}
}

// preParseClientKey derives a rate-limiter key independently of request
// contents, since Allow must run before JSON parsing (§4.6). Over the stdio
// transport one process serves exactly one client connection, so the key is
// constant; a transport that multiplexes several connections over one
// process would derive this from the connection instead.
func preParseClientKey(line []byte) string {
	return "stdio"
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func (s *Server) handleRequest(ctx context.Context, raw json.RawMessage) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, ParseError, "parse error", err.Error())
	}

	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, InvalidRequest, "invalid request", "jsonrpc must be '2.0'")
	}

	if _, err := s.auth.Authenticate(req.Auth); err != nil {
		return errorResponse(req.ID, Unauthenticated, "unauthenticated", err.Error())
	}

	start := time.Now()
	log.LogRequest(req.Method)

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req)
	case "initialized":
		return nil // notification, no response
	case "tools/list":
		resp = resultResponse(req.ID, ToolsListResult{Tools: toolDefinitions()})
	case "tools/call":
		resp = s.handleToolsCall(ctx, req)
	case "ping":
		resp = resultResponse(req.ID, map[string]any{})
	default:
		resp = errorResponse(req.ID, MethodNotFound, "method not found", req.Method)
	}

	duration := float64(time.Since(start).Milliseconds())
	if resp != nil && resp.Error != nil {
		log.LogError(req.Method, errors.New(resp.Error.Message), "code", resp.Error.Code)
	} else {
		log.LogResponse(req.Method, duration)
	}
	return resp
}

func (s *Server) handleInitialize(req Request) *Response {
	return resultResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{ListChanged: false}},
		ServerInfo: ServerInfo{
			Name:        ServerName,
			Version:     ServerVersion,
			Description: "tiered vector-indexed memory engine",
		},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, InvalidParams, "invalid params", err.Error())
	}

	argsJSON, err := json.Marshal(params.Arguments)
	if err != nil {
		return errorResponse(req.ID, InvalidParams, "invalid params", err.Error())
	}

	result, err := s.callTool(ctx, params.Name, argsJSON)
	if err != nil {
		// Malformed or out-of-range arguments are a protocol-level error
		// (§6: "Invalid inputs return -32602/InvalidParams"). Everything
		// else the business layer rejects (not found, invalid transition,
		// circuit open, ...) is reported inside the tool result instead,
		// since the call itself was well-formed.
		if kind, ok := apperr.As(err); ok && kind.Kind == apperr.InvalidInput {
			return errorResponse(req.ID, InvalidParams, "invalid params", err.Error())
		}
		return resultResponse(req.ID, errorResult(err))
	}
	log.LogOperation(params.Name)

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResponse(req.ID, InternalError, "internal error", err.Error())
	}
	return resultResponse(req.ID, textResult(string(body)))
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "store_memory":
		return s.handleStoreMemory(ctx, args)
	case "search_memory":
		return s.handleSearchMemory(ctx, args)
	case "get_memory":
		return s.handleGetMemory(ctx, args)
	case "delete_memory":
		return s.handleDeleteMemory(ctx, args)
	case "migrate_memory":
		return s.handleMigrateMemory(ctx, args)
	case "get_stats":
		return s.handleGetStats(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func (s *Server) sendResponse(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error("failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.stdout, string(data))
}
