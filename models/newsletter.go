package models

import "fmt"

// Newsletter is one issue to broadcast to confirmed subscribers.
type Newsletter struct {
	Title   string            `json:"title"`
	Content NewsletterContent `json:"content"`
}

// NewsletterContent carries both variants of the issue body.
type NewsletterContent struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// Validate rejects issues that are missing a title or both body variants.
func (n Newsletter) Validate() error {
	if n.Title == "" {
		return fmt.Errorf("newsletter title must not be empty")
	}
	if n.Content.Text == "" && n.Content.HTML == "" {
		return fmt.Errorf("newsletter content must not be empty")
	}
	return nil
}
