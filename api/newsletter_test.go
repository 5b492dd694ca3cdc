package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func postNewsletter(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/newsletters", "application/json",
		bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST to /newsletters failed: %v", err)
	}
	return resp
}

const testIssueBody = `{
	"title": "Newsletter Title",
	"content": {
		"text": "Newsletter body as plain text",
		"html": "<p>Newsletter body as html</p>"
	}
}`

func confirmSubscriber(t *testing.T, name string, address string) {
	t.Helper()
	resp := postSubscription(t, name, address)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe failed with %d", resp.StatusCode)
	}
	token := lastIssuedToken(t)
	resp, err := http.Get(server.URL + "/subscriptions/confirm?subscription_token=" + token)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm failed with %d", resp.StatusCode)
	}
}

func TestNewsletterReachesOnlyConfirmedSubscribers(t *testing.T) {
	defer teardown()

	confirmSubscriber(t, "Confirmed Reader", "confirmed@gmail.com")
	postSubscription(t, "Pending Reader", "pending@gmail.com")
	before := len(emailer.messages())

	resp := postNewsletter(t, testIssueBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	issues := emailer.messages()[before:]
	if len(issues) != 1 {
		t.Fatalf("expected exactly 1 newsletter delivery, got %d", len(issues))
	}
	if issues[0].To != "confirmed@gmail.com" {
		t.Errorf("newsletter went to %q, expected the confirmed subscriber", issues[0].To)
	}
	if issues[0].Subject != "Newsletter Title" {
		t.Errorf("unexpected subject %q", issues[0].Subject)
	}
}

func TestNewsletterToUnconfirmedSubscribersSendsNothing(t *testing.T) {
	defer teardown()

	postSubscription(t, "Pending Reader", "pending@gmail.com")
	before := len(emailer.messages())

	resp := postNewsletter(t, testIssueBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if sent := len(emailer.messages()) - before; sent != 0 {
		t.Errorf("pending subscribers must not receive newsletters, got %d deliveries", sent)
	}
}

func TestNewsletterReportsDeliveryCounts(t *testing.T) {
	defer teardown()

	confirmSubscriber(t, "First Reader", "first@gmail.com")
	confirmSubscriber(t, "Second Reader", "second@gmail.com")

	resp := postNewsletter(t, testIssueBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var parsed struct {
		Response map[string]int `json:"response"`
	}
	if err := json.Unmarshal([]byte(readBody(t, resp)), &parsed); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if parsed.Response["delivered"] != 2 || parsed.Response["failed"] != 0 {
		t.Errorf("unexpected delivery report: %v", parsed.Response)
	}
}

func TestNewsletterRejectsMalformedBody(t *testing.T) {
	resp := postNewsletter(t, "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestNewsletterRejectsEmptyIssue(t *testing.T) {
	resp := postNewsletter(t, `{"title": "", "content": {"text": "", "html": ""}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, "400") {
		t.Errorf("response should carry the status code, got %s", body)
	}
}

func TestNewsletterOnlyAcceptsPost(t *testing.T) {
	resp, err := http.Get(server.URL + "/newsletters")
	if err != nil {
		t.Fatalf("GET /newsletters failed: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}
