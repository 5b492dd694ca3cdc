package email

import (
	"fmt"

	"github.com/inklet/newsletter-backend/models"
)

const confirmationEmailSubject = "Confirm your newsletter subscription"

const confirmationHTMLTemplate = `Welcome to our newsletter!<br>Click <a href="%s">here</a> to confirm your subscription.`

const confirmationTextTemplate = `Welcome to our newsletter!
Visit %s to confirm your subscription.`

// ConfirmationMessage builds the confirmation email for a new subscriber.
// Both body variants carry the identical confirmation link.
func ConfirmationMessage(recipient string, confirmationLink string) Message {
	return Message{
		To:       recipient,
		Subject:  confirmationEmailSubject,
		HTMLBody: fmt.Sprintf(confirmationHTMLTemplate, confirmationLink),
		TextBody: fmt.Sprintf(confirmationTextTemplate, confirmationLink),
	}
}

// NewsletterMessage builds one issue delivery for a confirmed subscriber.
func NewsletterMessage(recipient string, issue models.Newsletter) Message {
	return Message{
		To:       recipient,
		Subject:  issue.Title,
		HTMLBody: issue.Content.HTML,
		TextBody: issue.Content.Text,
	}
}
