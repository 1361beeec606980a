package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"paysplit/core"
	"paysplit/native/bank"
	"paysplit/native/common"
	"paysplit/native/split"
	"paysplit/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	depositPerMinute = 30
	depositBurst     = 10
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeInvalidState   = -32010
	codeNothingDue     = -32011
	codeTransferFailed = -32012
	codeRateLimited    = -32020
	codeQuotaExceeded  = -32021
	codePaused         = -32022
)

// Server exposes the ledger over a single JSON-RPC endpoint plus a websocket
// event stream.
type Server struct {
	node   *core.Node
	logger *slog.Logger

	authToken string

	mu              sync.Mutex
	depositLimiters map[string]*rate.Limiter
}

// NewServer wires a JSON-RPC server around the node. The bearer token guarding
// operator methods comes from PAYSPLIT_RPC_TOKEN unless overridden via
// SetAuthToken.
func NewServer(node *core.Node) *Server {
	token := strings.TrimSpace(os.Getenv("PAYSPLIT_RPC_TOKEN"))
	return &Server{
		node:            node,
		logger:          slog.Default(),
		authToken:       token,
		depositLimiters: make(map[string]*rate.Limiter),
	}
}

// SetAuthToken overrides the operator bearer token.
func (s *Server) SetAuthToken(token string) {
	s.authToken = strings.TrimSpace(token)
}

// SetLogger overrides the default structured logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Handler returns the full RPC routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

// Start serves the RPC endpoint until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeLedgerError maps a node or engine error onto the matching JSON-RPC
// error code and HTTP status.
func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	status, code := classify(err)
	writeError(w, status, id, code, err.Error(), nil)
}

func classify(err error) (int, int) {
	switch {
	case errors.Is(err, split.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, split.ErrAlreadyPopulated),
		errors.Is(err, split.ErrNotPopulated):
		return http.StatusConflict, codeInvalidState
	case errors.Is(err, split.ErrNothingDue),
		errors.Is(err, split.ErrNotPayee):
		return http.StatusConflict, codeNothingDue
	case errors.Is(err, bank.ErrInsufficientVault):
		return http.StatusConflict, codeTransferFailed
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, codePaused
	case errors.Is(err, common.ErrQuotaRequestsExceeded),
		errors.Is(err, common.ErrQuotaAmountExceeded),
		errors.Is(err, common.ErrQuotaCounterOverflow):
		return http.StatusTooManyRequests, codeQuotaExceeded
	case errors.Is(err, split.ErrNoPayees),
		errors.Is(err, split.ErrLengthMismatch),
		errors.Is(err, split.ErrZeroAddress),
		errors.Is(err, split.ErrZeroShares),
		errors.Is(err, split.ErrDuplicatePayee),
		errors.Is(err, split.ErrSharesOverflow),
		errors.Is(err, split.ErrInvalidAsset),
		errors.Is(err, split.ErrIndexOutOfRange),
		errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = recorder
	started := time.Now()
	method := "unknown"
	defer func() {
		observability.RPCMetrics().Observe(method, recorder.status, time.Since(started))
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	method = req.Method

	switch req.Method {
	case "split_addPayees":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleAddPayees(w, r, req)
	case "split_clear":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleClear(w, r, req)
	case "split_release":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleRelease(w, r, req)
	case "split_releaseMany":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleReleaseMany(w, r, req)
	case "split_releaseAll":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleReleaseAll(w, r, req)
	case "split_deposit":
		if !s.allowDeposit(clientSource(r)) {
			observability.RPCMetrics().RecordThrottle("rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "deposit rate limit exceeded", nil)
			return
		}
		s.handleDeposit(w, r, req)
	case "split_releasable":
		s.handleReleasable(w, r, req)
	case "split_totalShares":
		s.handleTotalShares(w, r, req)
	case "split_totalReleased":
		s.handleTotalReleased(w, r, req)
	case "split_shares":
		s.handleShares(w, r, req)
	case "split_released":
		s.handleReleased(w, r, req)
	case "split_payee":
		s.handlePayee(w, r, req)
	case "split_payees":
		s.handlePayees(w, r, req)
	case "split_assets":
		s.handleAssets(w, r, req)
	case "split_vaultBalance":
		s.handleVaultBalance(w, r, req)
	case "split_getBalance":
		s.handleGetBalance(w, r, req)
	case "split_info":
		s.handleInfo(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// allowDeposit applies the per-source deposit rate limit.
func (s *Server) allowDeposit(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.depositLimiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(depositPerMinute)/60, depositBurst)
		s.depositLimiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
