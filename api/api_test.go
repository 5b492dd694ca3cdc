package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/inklet/newsletter-backend/db"
	"github.com/inklet/newsletter-backend/email"
	"github.com/inklet/newsletter-backend/subscription"
)

var (
	testAPI *API
	server  *httptest.Server
	memdb   *db.MemDatabase
	emailer *mockEmailer
)

// mockEmailer captures every message the workflow tries to send.
type mockEmailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (e *mockEmailer) Send(ctx context.Context, msg email.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, msg)
	return nil
}

func (e *mockEmailer) messages() []email.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]email.Message, len(e.sent))
	copy(out, e.sent)
	return out
}

func (e *mockEmailer) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = nil
	e.err = nil
}

// Load env. vars, initialize the in-memory DB hook, and test the API.
func TestMain(m *testing.M) {
	godotenv.Overload(".env.test")
	memdb = db.InitMemDatabase()
	emailer = &mockEmailer{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	service := subscription.NewService(memdb, emailer, "http://127.0.0.1:8000", logger, nil)
	testAPI = &API{Service: service}
	mux := http.NewServeMux()
	server = httptest.NewServer(testAPI.RegisterHandlers(mux))
	code := m.Run()
	server.Close()
	os.Exit(code)
}

func teardown() {
	memdb.ClearTables()
	emailer.reset()
}

func postSubscription(t *testing.T, name string, address string) *http.Response {
	t.Helper()
	data := url.Values{}
	if name != "" {
		data.Set("name", name)
	}
	if address != "" {
		data.Set("email", address)
	}
	resp, err := http.PostForm(server.URL+"/subscriptions", data)
	if err != nil {
		t.Fatalf("POST to /subscriptions failed: %v", err)
	}
	return resp
}

var errTestProviderDown = errors.New("email provider is down")

var tokenPattern = regexp.MustCompile(`subscription_token=([A-Za-z0-9]+)`)

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

// lastIssuedToken digs the confirmation token out of the most recently
// captured email, the way a subscriber would follow the link.
func lastIssuedToken(t *testing.T) string {
	t.Helper()
	msgs := emailer.messages()
	if len(msgs) == 0 {
		t.Fatalf("no confirmation email was captured")
	}
	matches := tokenPattern.FindStringSubmatch(msgs[len(msgs)-1].TextBody)
	if len(matches) != 2 {
		t.Fatalf("no confirmation link in email body: %s", msgs[len(msgs)-1].TextBody)
	}
	return matches[1]
}

func TestPing(t *testing.T) {
	resp, err := http.Get(server.URL + "/ping")
	if err != nil {
		t.Fatalf("GET /ping failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /ping, got %d", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}

func TestResponsesAreJSON(t *testing.T) {
	defer teardown()
	resp := postSubscription(t, "carlos jose", "carlos.cruz@gmail.com")
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}
