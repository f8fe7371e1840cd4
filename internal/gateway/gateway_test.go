package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/numalloc"
	"github.com/yuku/numalloc/internal/directory"
)

// fakeEngine keeps item states in memory.
type fakeEngine struct {
	mu       sync.Mutex
	states   map[numalloc.Number]numalloc.State
	assigned map[numalloc.Number]numalloc.Assignment

	err      error
	released chan struct{}
	waits    int
}

func newFakeEngine(numbers ...numalloc.Number) *fakeEngine {
	e := &fakeEngine{
		states:   map[numalloc.Number]numalloc.State{},
		assigned: map[numalloc.Number]numalloc.Assignment{},
	}
	for _, n := range numbers {
		e.states[n] = numalloc.StateAvailable
	}
	return e
}

func (e *fakeEngine) sorted() []numalloc.Number {
	numbers := make([]numalloc.Number, 0, len(e.states))
	for n := range e.states {
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)
	return numbers
}

func (e *fakeEngine) Ping(context.Context) error { return e.err }

func (e *fakeEngine) Claim(_ context.Context, count int) ([]numalloc.Number, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if count < 1 {
		return nil, &numalloc.Error{Code: numalloc.CodeInvalidInput, Op: "Claim", Message: "bad count"}
	}
	var claimed []numalloc.Number
	for _, n := range e.sorted() {
		if len(claimed) == count {
			break
		}
		if e.states[n] == numalloc.StateAvailable {
			e.states[n] = numalloc.StateReserved
			claimed = append(claimed, n)
		}
	}
	return claimed, nil
}

func (e *fakeEngine) Cancel(_ context.Context, numbers []numalloc.Number) ([]numalloc.Number, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	updated := []numalloc.Number{}
	for _, n := range numbers {
		if state, ok := e.states[n]; ok && state != numalloc.StateAvailable {
			e.states[n] = numalloc.StateAvailable
			delete(e.assigned, n)
			updated = append(updated, n)
		}
	}
	return updated, nil
}

func (e *fakeEngine) Assign(_ context.Context, numbers []numalloc.Number, to numalloc.Assignee) ([]numalloc.Number, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if to.ConsultantID == "" {
		return nil, &numalloc.Error{Code: numalloc.CodeInvalidInput, Op: "Assign", Message: "consultant id cannot be empty"}
	}
	updated := []numalloc.Number{}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(len(e.assigned)) * time.Second)
	for _, n := range numbers {
		if state, ok := e.states[n]; ok && state != numalloc.StateAssigned {
			e.states[n] = numalloc.StateAssigned
			e.assigned[n] = numalloc.Assignment{Assignee: to, AssignedAt: at}
			updated = append(updated, n)
		}
	}
	return updated, nil
}

func (e *fakeEngine) Reset(context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return 0, e.err
	}
	var n int64
	for number, state := range e.states {
		if state != numalloc.StateAvailable {
			e.states[number] = numalloc.StateAvailable
			n++
		}
	}
	clear(e.assigned)
	return n, nil
}

func (e *fakeEngine) Stats(context.Context) (numalloc.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return numalloc.Stats{}, e.err
	}
	var s numalloc.Stats
	for _, state := range e.states {
		switch state {
		case numalloc.StateAvailable:
			s.Available++
		case numalloc.StateReserved:
			s.Reserved++
		case numalloc.StateAssigned:
			s.Assigned++
		}
	}
	return s, nil
}

func (e *fakeEngine) ListAssigned(context.Context) ([]numalloc.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	items := []numalloc.Item{}
	for _, n := range e.sorted() {
		if a, ok := e.assigned[n]; ok {
			items = append(items, numalloc.Item{Number: n, State: numalloc.StateAssigned, Assignment: &a})
		}
	}
	slices.SortStableFunc(items, func(a, b numalloc.Item) int {
		return b.Assignment.AssignedAt.Compare(a.Assignment.AssignedAt)
	})
	return items, nil
}

func (e *fakeEngine) WaitForRelease(ctx context.Context, afterRegister func() error) error {
	e.mu.Lock()
	e.waits++
	released := e.released
	e.mu.Unlock()
	if released == nil {
		return errors.New("release listener is not running")
	}
	if afterRegister != nil {
		if err := afterRegister(); err != nil {
			return err
		}
	}
	select {
	case <-released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeDirectory map[string]directory.Consultant

func (d fakeDirectory) Lookup(_ context.Context, id string) (directory.Consultant, bool, error) {
	if id == "broken" {
		return directory.Consultant{}, false, errors.New("directory unavailable")
	}
	c, ok := d[id]
	return c, ok, nil
}

type fakeGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (g *fakeGuard) SetIdempotency(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *fakeGuard) ClearIdempotency(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}

func newServer(t *testing.T, engine Engine, opts ...Option) *httptest.Server {
	t.Helper()
	opts = append(opts, WithLogger(log.New(io.Discard, "", 0)))
	srv := httptest.NewServer(New(engine, opts...).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, header ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealth(t *testing.T) {
	engine := newFakeEngine()
	srv := newServer(t, engine)

	resp, body := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	engine.err = &numalloc.Error{Code: numalloc.CodeStoreUnavailable, Op: "Ping", Message: "down"}
	resp, _ = do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestClaim(t *testing.T) {
	t.Run("claims numbers", func(t *testing.T) {
		srv := newServer(t, newFakeEngine("1", "2", "3"))

		resp, body := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 2})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"numbers":["1","2"],"requested":2,"nothing_available":false}`, string(body))
	})

	t.Run("nothing available", func(t *testing.T) {
		srv := newServer(t, newFakeEngine())

		resp, body := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"numbers":[],"requested":1,"nothing_available":true}`, string(body))
	})

	t.Run("invalid input", func(t *testing.T) {
		srv := newServer(t, newFakeEngine("1"))

		resp, body := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 0})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), `"code":"InvalidInput"`)

		resp, _ = do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1, WaitMS: -1})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = do(t, srv, http.MethodPost, "/v1/claims", "not an object")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = do(t, srv, http.MethodGet, "/v1/claims", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("timeout maps to 504", func(t *testing.T) {
		engine := newFakeEngine("1")
		engine.err = &numalloc.Error{Code: numalloc.CodeOperationTimeout, Op: "Claim", Message: "operation timed out"}
		srv := newServer(t, engine)

		resp, body := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1})
		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
		assert.Contains(t, string(body), `"code":"OperationTimeout"`)
	})

	t.Run("idempotency key", func(t *testing.T) {
		srv := newServer(t, newFakeEngine("1", "2"), WithIdempotency(&fakeGuard{}))

		resp, _ := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1}, "Idempotency-Key", "k1")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1}, "Idempotency-Key", "k1")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		resp, _ = do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1}, "Idempotency-Key", "k2")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("idempotency key is reusable after a failed claim", func(t *testing.T) {
		engine := newFakeEngine("1")
		engine.err = &numalloc.Error{Code: numalloc.CodeStoreUnavailable, Op: "Claim", Message: "store unavailable"}
		srv := newServer(t, engine, WithIdempotency(&fakeGuard{}))

		resp, _ := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1}, "Idempotency-Key", "k1")
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		engine.mu.Lock()
		engine.err = nil
		engine.mu.Unlock()

		resp, body := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1}, "Idempotency-Key", "k1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"numbers":["1"],"requested":1,"nothing_available":false}`, string(body))

		resp, _ = do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1}, "Idempotency-Key", "k1")
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "a successful claim keeps its key")
	})

	t.Run("idempotency store failure", func(t *testing.T) {
		srv := newServer(t, newFakeEngine("1"), WithIdempotency(&fakeGuard{err: errors.New("redis down")}))

		resp, _ := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1}, "Idempotency-Key", "k1")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestClaim_Wait(t *testing.T) {
	t.Run("claims after a release", func(t *testing.T) {
		engine := newFakeEngine("1")
		engine.released = make(chan struct{})
		srv := newServer(t, engine)

		resp, _ := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		go func() {
			assert.Eventually(t, func() bool {
				engine.mu.Lock()
				defer engine.mu.Unlock()
				return engine.waits == 1
			}, 5*time.Second, 5*time.Millisecond)
			_, _ = engine.Cancel(context.Background(), []numalloc.Number{"1"})
			close(engine.released)
		}()

		resp, body := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1, WaitMS: 5000})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"numbers":["1"],"requested":1,"nothing_available":false}`, string(body))
	})

	t.Run("gives up after wait_ms", func(t *testing.T) {
		engine := newFakeEngine()
		engine.released = make(chan struct{})
		srv := newServer(t, engine)

		start := time.Now()
		resp, body := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1, WaitMS: 50})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Contains(t, string(body), `"nothing_available":true`)
	})

	t.Run("not listening", func(t *testing.T) {
		srv := newServer(t, newFakeEngine())

		resp, body := do(t, srv, http.MethodPost, "/v1/claims", claimRequest{Count: 1, WaitMS: 50})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"nothing_available":true`)
	})
}

func TestCancelAndAssign(t *testing.T) {
	engine := newFakeEngine("1", "2", "3")
	srv := newServer(t, engine)

	resp, body := do(t, srv, http.MethodPost, "/v1/assignments", assignRequest{
		Numbers:      []jsonNumber{"1", "2"},
		ConsultantID: "c-1",
		ClientName:   "Acme",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"updated":["1","2"]}`, string(body))

	resp, body = do(t, srv, http.MethodPost, "/v1/cancellations", numbersRequest{Numbers: []jsonNumber{"2", "3"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"updated":["2"]}`, string(body))

	resp, _ = do(t, srv, http.MethodPost, "/v1/assignments", assignRequest{Numbers: []jsonNumber{"3"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReset(t *testing.T) {
	engine := newFakeEngine("1", "2")
	srv := newServer(t, engine)
	_, _ = engine.Claim(context.Background(), 2)

	resp, body := do(t, srv, http.MethodPost, "/v1/admin/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"reset":2}`, string(body))

	engine.err = &numalloc.Error{Code: numalloc.CodeResetDisabled, Op: "Reset", Message: "reset is disabled"}
	resp, body = do(t, srv, http.MethodPost, "/v1/admin/reset", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"ResetDisabled"`)
}

func TestStats(t *testing.T) {
	engine := newFakeEngine("1", "2", "3", "4")
	srv := newServer(t, engine)
	_, _ = engine.Claim(context.Background(), 1)
	_, _ = engine.Assign(context.Background(), []numalloc.Number{"4"}, numalloc.Assignee{ConsultantID: "c-1"})

	resp, body := do(t, srv, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"AVAILABLE":2,"RESERVED":1,"ASSIGNED":1}`, string(body))

	engine.err = &numalloc.Error{Code: numalloc.CodeInvalidState, Op: "Stats", Message: "bad label"}
	resp, _ = do(t, srv, http.MethodGet, "/v1/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAssigned(t *testing.T) {
	engine := newFakeEngine("1", "2", "3")
	dir := fakeDirectory{"c-1": {ID: "c-1", Name: "Ada", Account: "acct-1"}}
	srv := newServer(t, engine, WithDirectory(dir))

	ctx := context.Background()
	_, _ = engine.Assign(ctx, []numalloc.Number{"1"}, numalloc.Assignee{ConsultantID: "c-1", ClientName: "Acme"})
	_, _ = engine.Assign(ctx, []numalloc.Number{"2"}, numalloc.Assignee{ConsultantID: "broken"})
	_, _ = engine.Assign(ctx, []numalloc.Number{"3"}, numalloc.Assignee{ConsultantID: "c-unknown"})

	resp, body := do(t, srv, http.MethodGet, "/v1/assigned", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []assignedItem
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 3)
	assert.Equal(t, "3", items[0].Number, "most recent first")
	assert.Empty(t, items[0].ConsultantName)
	assert.Equal(t, "2", items[1].Number)
	assert.Empty(t, items[1].ConsultantName, "lookup failures do not fail the request")
	assert.Equal(t, "1", items[2].Number)
	assert.Equal(t, "Ada", items[2].ConsultantName)
	assert.Equal(t, "Acme", items[2].ClientName)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), items[2].AssignedAt)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusOf(numalloc.CodeUnknown))
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(numalloc.CodeStoreUnavailable))
}

func TestNumbersAcceptIntegersAndStrings(t *testing.T) {
	engine := newFakeEngine("1", "2", "3", "4")
	srv := newServer(t, engine)
	_, err := engine.Claim(context.Background(), 3)
	require.NoError(t, err)

	resp, body := do(t, srv, http.MethodPost, "/v1/cancellations", json.RawMessage(`{"numbers":[1,"2"," 3 "]}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"updated":["1","2","3"]}`, string(body))

	resp, body = do(t, srv, http.MethodPost, "/v1/assignments",
		json.RawMessage(`{"numbers":[4],"consultant_id":"c-1"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"updated":["4"]}`, string(body))

	for _, numbers := range []string{`[1.5]`, `[true]`, `[null]`, `[""]`, `[{}]`} {
		resp, _ := do(t, srv, http.MethodPost, "/v1/cancellations", json.RawMessage(`{"numbers":`+numbers+`}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "numbers %s", numbers)
	}
}
