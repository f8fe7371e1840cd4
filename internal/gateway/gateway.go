// Package gateway exposes the allocation engine over HTTP with JSON bodies.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/yuku/numalloc"
	"github.com/yuku/numalloc/internal/directory"
)

// MaxWait caps the wait_ms a claim request may ask for.
const MaxWait = 30 * time.Second

const maxBodyBytes = 1 << 20

// Engine is the part of *numalloc.Engine the gateway drives. Use FromEngine
// to adapt an engine.
type Engine interface {
	Ping(ctx context.Context) error
	Claim(ctx context.Context, count int) ([]numalloc.Number, error)
	Cancel(ctx context.Context, numbers []numalloc.Number) ([]numalloc.Number, error)
	Assign(ctx context.Context, numbers []numalloc.Number, to numalloc.Assignee) ([]numalloc.Number, error)
	Reset(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (numalloc.Stats, error)
	ListAssigned(ctx context.Context) ([]numalloc.Item, error)
	WaitForRelease(ctx context.Context, afterRegister func() error) error
}

// Directory resolves consultant ids for display.
type Directory interface {
	Lookup(ctx context.Context, id string) (directory.Consultant, bool, error)
}

// FromEngine adapts e to Engine. Claimed numbers are handed to the client
// as they are; releasing them is done with a cancellation request.
func FromEngine(e *numalloc.Engine) Engine {
	return engineAdapter{Engine: e}
}

type engineAdapter struct {
	*numalloc.Engine
}

func (a engineAdapter) Claim(ctx context.Context, count int) ([]numalloc.Number, error) {
	r, err := a.Engine.Claim(ctx, count)
	if err != nil {
		return nil, err
	}
	return r.Numbers(), nil
}

// Handler serves the gateway routes.
type Handler struct {
	engine Engine
	dir    Directory
	guard  IdempotencyGuard
	logger *log.Logger
}

type Option func(*Handler)

// WithDirectory enriches listed assignments with consultant names.
func WithDirectory(d Directory) Option {
	return func(h *Handler) { h.dir = d }
}

// WithIdempotency rejects claim requests that reuse an Idempotency-Key.
func WithIdempotency(g IdempotencyGuard) Option {
	return func(h *Handler) { h.guard = g }
}

func WithLogger(l *log.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func New(engine Engine, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		logger: log.New(os.Stderr, "gateway: ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the gateway's HTTP handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /v1/claims", h.claim)
	mux.HandleFunc("POST /v1/cancellations", h.cancel)
	mux.HandleFunc("POST /v1/assignments", h.assign)
	mux.HandleFunc("POST /v1/admin/reset", h.reset)
	mux.HandleFunc("GET /v1/stats", h.stats)
	mux.HandleFunc("GET /v1/assigned", h.assigned)
	return h.withRequestID(mux)
}

type requestIDKey struct{}

func (h *Handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type claimRequest struct {
	Count  int `json:"count"`
	WaitMS int `json:"wait_ms"`
}

type claimResponse struct {
	Numbers          []string `json:"numbers"`
	Requested        int      `json:"requested"`
	NothingAvailable bool     `json:"nothing_available"`
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.WaitMS < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "wait_ms cannot be negative", Code: numalloc.CodeInvalidInput.String()})
		return
	}
	wait := min(time.Duration(req.WaitMS)*time.Millisecond, MaxWait)

	ctx := r.Context()
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.guard != nil {
		ok, err := h.guard.SetIdempotency(ctx, key)
		if err != nil {
			h.logger.Printf("request %s: idempotency check failed: %v", requestID(ctx), err)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "idempotency check failed", Code: numalloc.CodeStoreUnavailable.String()})
			return
		}
		if !ok {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "duplicate request"})
			return
		}
	}

	numbers, err := h.claimOrWait(ctx, req.Count, wait)
	if err != nil {
		h.clearIdempotency(ctx, r.Header.Get("Idempotency-Key"))
		h.writeError(w, r, err)
		return
	}
	if len(numbers) < req.Count {
		h.logger.Printf("request %s: claim degraded: requested %d, got %d", requestID(ctx), req.Count, len(numbers))
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Numbers:          toStrings(numbers),
		Requested:        req.Count,
		NothingAvailable: len(numbers) == 0,
	})
}

// clearIdempotency forgets key after a failed claim so the client can retry
// with it. Nothing was reserved, so the key has not been used.
func (h *Handler) clearIdempotency(ctx context.Context, key string) {
	if key == "" || h.guard == nil {
		return
	}
	if err := h.guard.ClearIdempotency(context.WithoutCancel(ctx), key); err != nil {
		h.logger.Printf("request %s: failed to clear idempotency key: %v", requestID(ctx), err)
	}
}

// errClaimed stops a wait once the re-check after registering found numbers.
var errClaimed = errors.New("claimed while registering")

// claimOrWait claims count numbers. When none are available and wait is
// positive, it waits once for a release and claims once more.
func (h *Handler) claimOrWait(ctx context.Context, count int, wait time.Duration) ([]numalloc.Number, error) {
	numbers, err := h.engine.Claim(ctx, count)
	if err != nil || len(numbers) > 0 || wait <= 0 {
		return numbers, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	// Numbers released between the first claim and registration would not
	// wake us, so claim again once registered.
	var claimed []numalloc.Number
	err = h.engine.WaitForRelease(waitCtx, func() error {
		got, err := h.engine.Claim(ctx, count)
		if err != nil {
			return err
		}
		if len(got) > 0 {
			claimed = got
			return errClaimed
		}
		return nil
	})
	switch {
	case err == nil:
		return h.engine.Claim(ctx, count)
	case errors.Is(err, errClaimed):
		return claimed, nil
	case numalloc.CodeOf(err) != numalloc.CodeUnknown:
		return nil, err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, nil
	default:
		h.logger.Printf("request %s: cannot wait for release: %v", requestID(ctx), err)
		return nil, nil
	}
}

// jsonNumber decodes a number given either as a JSON string or as a JSON
// integer. Both name the same item.
type jsonNumber numalloc.Number

func (n *jsonNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := numalloc.ParseNumber(s)
		if err != nil {
			return err
		}
		*n = jsonNumber(parsed)
		return nil
	}
	var i int64
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("number must be a string or an integer: %s", data)
	}
	*n = jsonNumber(numalloc.NumberFromInt(i))
	return nil
}

type numbersRequest struct {
	Numbers []jsonNumber `json:"numbers"`
}

type updatedResponse struct {
	Updated []string `json:"updated"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req numbersRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.engine.Cancel(r.Context(), toNumbers(req.Numbers))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updatedResponse{Updated: toStrings(updated)})
}

type assignRequest struct {
	Numbers           []jsonNumber `json:"numbers"`
	ConsultantID      string       `json:"consultant_id"`
	ConsultantAccount string       `json:"consultant_account"`
	ClientName        string       `json:"client_name"`
	ClientTaxID       string       `json:"client_tax_id"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.engine.Assign(r.Context(), toNumbers(req.Numbers), numalloc.Assignee{
		ConsultantID:      req.ConsultantID,
		ConsultantAccount: req.ConsultantAccount,
		ClientName:        req.ClientName,
		ClientTaxID:       req.ClientTaxID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(updated) < len(req.Numbers) {
		h.logger.Printf("request %s: assigned %d of %d numbers", requestID(r.Context()), len(updated), len(req.Numbers))
	}
	writeJSON(w, http.StatusOK, updatedResponse{Updated: toStrings(updated)})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.Reset(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Printf("request %s: reset %d numbers", requestID(r.Context()), n)
	writeJSON(w, http.StatusOK, map[string]int64{"reset": n})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body := make(map[string]int64, len(numalloc.States))
	for state, count := range stats.ByState() {
		body[state.String()] = count
	}
	writeJSON(w, http.StatusOK, body)
}

type assignedItem struct {
	Number            string    `json:"number"`
	ConsultantID      string    `json:"consultant_id"`
	ConsultantAccount string    `json:"consultant_account"`
	ConsultantName    string    `json:"consultant_name,omitempty"`
	ClientName        string    `json:"client_name"`
	ClientTaxID       string    `json:"client_tax_id"`
	AssignedAt        time.Time `json:"assigned_at"`
}

func (h *Handler) assigned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.engine.ListAssigned(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	names := map[string]string{}
	body := make([]assignedItem, 0, len(items))
	for _, item := range items {
		if item.Assignment == nil {
			continue
		}
		a := item.Assignment
		name, ok := names[a.ConsultantID]
		if !ok {
			name = h.consultantName(ctx, a.ConsultantID)
			names[a.ConsultantID] = name
		}
		body = append(body, assignedItem{
			Number:            item.Number.String(),
			ConsultantID:      a.ConsultantID,
			ConsultantAccount: a.ConsultantAccount,
			ConsultantName:    name,
			ClientName:        a.ClientName,
			ClientTaxID:       a.ClientTaxID,
			AssignedAt:        a.AssignedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, body)
}

// consultantName returns the directory name for id, or "" when the directory
// is not configured, has no record or fails.
func (h *Handler) consultantName(ctx context.Context, id string) string {
	if h.dir == nil {
		return ""
	}
	c, found, err := h.dir.Lookup(ctx, id)
	if err != nil {
		h.logger.Printf("request %s: directory lookup for %s failed: %v", requestID(ctx), id, err)
		return ""
	}
	if !found {
		return ""
	}
	return c.Name
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: numalloc.CodeInvalidInput.String()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := numalloc.CodeOf(err)
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		h.logger.Printf("request %s: %s %s failed: %v", requestID(r.Context()), r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code.String()})
}

func statusOf(code numalloc.Code) int {
	switch code {
	case numalloc.CodeInvalidInput:
		return http.StatusBadRequest
	case numalloc.CodeResetDisabled:
		return http.StatusForbidden
	case numalloc.CodeOperationTimeout:
		return http.StatusGatewayTimeout
	case numalloc.CodeStoreUnavailable, numalloc.CodeInvalidState:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func toNumbers(values []jsonNumber) []numalloc.Number {
	numbers := make([]numalloc.Number, len(values))
	for i, v := range values {
		numbers[i] = numalloc.Number(v)
	}
	return numbers
}

func toStrings(numbers []numalloc.Number) []string {
	values := make([]string, len(numbers))
	for i, n := range numbers {
		values[i] = n.String()
	}
	return values
}
