package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"
	"golang.org/x/net/idna"
)

// SubscriberStatus tracks where a subscriber is in the confirmation flow.
// A subscriber only ever moves from pending_confirmation to confirmed.
type SubscriberStatus string

// Possible values for SubscriberStatus.
const (
	StatusPendingConfirmation SubscriberStatus = "pending_confirmation"
	StatusConfirmed           SubscriberStatus = "confirmed"
)

// Subscriber mirrors a row of the subscriptions table.
type Subscriber struct {
	ID           uuid.UUID        `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	SubscribedAt time.Time        `json:"subscribed_at"`
	Status       SubscriberStatus `json:"status"`
}

// NewSubscriber holds a validated (name, email) pair that has not been
// persisted yet.
type NewSubscriber struct {
	Name  SubscriberName
	Email SubscriberEmail
}

// ParseNewSubscriber validates both fields of a subscribe request. Errors
// from both validators are reported together.
func ParseNewSubscriber(rawName string, rawEmail string) (NewSubscriber, error) {
	name, nameErr := ParseSubscriberName(rawName)
	email, emailErr := ParseSubscriberEmail(rawEmail)
	if nameErr != nil || emailErr != nil {
		problems := []string{}
		if nameErr != nil {
			problems = append(problems, nameErr.Error())
		}
		if emailErr != nil {
			problems = append(problems, emailErr.Error())
		}
		return NewSubscriber{}, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return NewSubscriber{Name: name, Email: email}, nil
}

// SubscriberName is a display name that passed validation.
type SubscriberName string

func (n SubscriberName) String() string { return string(n) }

// Maximum name length in user-perceived characters. A grapheme cluster
// counts once no matter how many codepoints compose it.
const maxNameGraphemes = 256

var forbiddenNameCharacters = []rune{'/', '(', ')', '"', '<', '>', '\\', '{', '}'}

// ParseSubscriberName validates a candidate subscriber name. Every rule is
// checked even after one fails, so the caller gets a complete diagnosis.
func ParseSubscriberName(raw string) (SubscriberName, error) {
	problems := []string{}
	if strings.TrimSpace(raw) == "" {
		problems = append(problems, "name must not be empty")
	}
	if uniseg.GraphemeClusterCount(raw) > maxNameGraphemes {
		problems = append(problems, fmt.Sprintf("name must not exceed %d characters", maxNameGraphemes))
	}
	if strings.ContainsAny(raw, string(forbiddenNameCharacters)) {
		problems = append(problems, "name must not contain any of / ( ) \" < > \\ { }")
	}
	if len(problems) > 0 {
		return "", fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return SubscriberName(raw), nil
}

// SubscriberEmail is an email address that passed the syntax check.
type SubscriberEmail string

func (e SubscriberEmail) String() string { return string(e) }

// ParseSubscriberEmail validates a candidate email address: a non-empty
// local part, an @, and a dotted domain that survives IDNA conversion.
func ParseSubscriberEmail(raw string) (SubscriberEmail, error) {
	if raw == "" {
		return "", fmt.Errorf("email must not be empty")
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return "", fmt.Errorf("%q is not a valid email address", raw)
	}
	at := strings.LastIndex(raw, "@")
	if at < 1 || at == len(raw)-1 {
		return "", fmt.Errorf("%q is not a valid email address", raw)
	}
	domain := raw[at+1:]
	if !validEmailDomain(domain) {
		return "", fmt.Errorf("%q does not have a valid domain", raw)
	}
	return SubscriberEmail(raw), nil
}

// validEmailDomain requires at least two non-empty dot-separated labels,
// each of which converts cleanly to its ASCII (punycode) form.
func validEmailDomain(domain string) bool {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
	}
	_, err := idna.Lookup.ToASCII(domain)
	return err == nil
}
