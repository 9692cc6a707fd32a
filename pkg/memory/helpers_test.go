package memory

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/semem-store/pkg/sparql"
)

const (
	testQueryURL  = "http://store.test/sparql/query"
	testUpdateURL = "http://store.test/sparql/update"
	testGraph     = "http://example.org/graph/test"
)

var testEndpoint = Endpoint{Query: testQueryURL, Update: testUpdateURL}

// recordedRequest is one request seen by fakeEndpoint.
type recordedRequest struct {
	URL         string
	ContentType string
	Body        string
	User        string
	Password    string
}

func (r recordedRequest) isUpdate() bool {
	return r.ContentType == contentTypeUpdate
}

// fakeEndpoint is an http.RoundTripper standing in for a triple store. It
// records requests, and keeps the interactions inserted by the last history
// save so that LoadHistory can read them back.
type fakeEndpoint struct {
	mu       sync.Mutex
	requests []recordedRequest
	rows     []sparql.Binding
	snapshot []sparql.Binding

	// fail decides per request whether to answer with an error status.
	fail func(req recordedRequest) (status int, body string)
	// transportErr, when set, fails every request before it is "sent".
	transportErr error
	// delay is slept before answering.
	delay time.Duration
}

func (f *fakeEndpoint) RoundTrip(r *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	rec := recordedRequest{
		URL:         r.URL.String(),
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
	}
	rec.User, rec.Password, _ = r.BasicAuth()

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	fail, transportErr, delay := f.fail, f.transportErr, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return nil, r.Context().Err()
		}
	}

	if transportErr != nil {
		return nil, transportErr
	}

	if fail != nil {
		if status, payload := fail(rec); status != 0 {
			return respond(r, status, payload), nil
		}
	}

	if rec.isUpdate() {
		f.apply(rec.Body)
		return respond(r, http.StatusNoContent, ""), nil
	}

	f.mu.Lock()
	rows := f.rows
	if rows == nil {
		rows = []sparql.Binding{}
	}
	doc := map[string]any{
		"head":    map[string]any{"vars": []string{}},
		"results": map[string]any{"bindings": rows},
	}
	f.mu.Unlock()

	payload, _ := json.Marshal(doc)
	return respond(r, http.StatusOK, string(payload)), nil
}

func respond(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

var (
	interactionBlock = regexp.MustCompile(`(?s)<[^>]+> a semem:Interaction ;(.*?)\.\n`)
	literalProperty  = regexp.MustCompile(`semem:(\w+) "((?:[^"\\]|\\.)*)"`)
)

// apply interprets the updates the store issues: COPY takes a snapshot, the
// rollback statement restores it, CLEAR empties and INSERT DATA adds rows.
func (f *fakeEndpoint) apply(update string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasPrefix(update, "COPY SILENT"):
		f.snapshot = append([]sparql.Binding(nil), f.rows...)
		return
	case strings.HasPrefix(update, "DROP SILENT GRAPH") && strings.Contains(update, "ADD SILENT"):
		f.rows = append([]sparql.Binding(nil), f.snapshot...)
		return
	case strings.HasPrefix(update, "CLEAR SILENT GRAPH"):
		f.rows = nil
	}

	for _, block := range interactionBlock.FindAllStringSubmatch(update, -1) {
		row := sparql.Binding{}

		for _, prop := range literalProperty.FindAllStringSubmatch(block[1], -1) {
			value, err := strconv.Unquote(`"` + prop[2] + `"`)
			if err != nil {
				panic("update contains an unparseable literal: " + prop[2])
			}
			row[prop[1]] = sparql.Term{Type: "literal", Value: value}
		}

		f.rows = append(f.rows, row)
	}
}

func (f *fakeEndpoint) setRows(rows []sparql.Binding) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
}

func (f *fakeEndpoint) setFail(fail func(req recordedRequest) (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeEndpoint) all() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeEndpoint) reads() int {
	n := 0
	for _, r := range f.all() {
		if !r.isUpdate() {
			n++
		}
	}
	return n
}

func (f *fakeEndpoint) updates() []string {
	var out []string
	for _, r := range f.all() {
		if r.isUpdate() {
			out = append(out, r.Body)
		}
	}
	return out
}

func (f *fakeEndpoint) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

// failUpdatesContaining fails updates whose body contains substr.
func failUpdatesContaining(substr string) func(req recordedRequest) (int, string) {
	return func(req recordedRequest) (int, string) {
		if req.isUpdate() && strings.Contains(req.Body, substr) {
			return http.StatusInternalServerError, "boom: " + substr
		}
		return 0, ""
	}
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testOptions(fake *fakeEndpoint, clock *testClock) Options {
	return Options{
		GraphName:  testGraph,
		Dimension:  4,
		HTTPClient: &http.Client{Transport: fake},
		Logger:     log.New(io.Discard),
		Clock:      clock.Now,
	}
}

func newTestStore(fake *fakeEndpoint) *SPARQLStore {
	store, err := NewSPARQLStore(testEndpoint, testOptions(fake, newTestClock()))
	if err != nil {
		panic(err)
	}
	return store
}

func newTestCachedStore(fake *fakeEndpoint, clock *testClock, tune func(*Options)) *CachedSPARQLStore {
	opts := testOptions(fake, clock)
	if tune != nil {
		tune(&opts)
	}

	store, err := NewCachedSPARQLStore(testEndpoint, opts)
	if err != nil {
		panic(err)
	}
	return store
}

func sampleInteraction(id string, ts int64) Interaction {
	return Interaction{
		ID:          id,
		Prompt:      "prompt " + id,
		Output:      "output " + id,
		Embedding:   []float64{0.1, 0.2, 0.3, 0.4},
		Timestamp:   ts,
		AccessCount: 1,
		Concepts:    []string{"alpha", "beta"},
		DecayFactor: 0.9,
	}
}

var errNetwork = errors.New("connection reset by peer")
