// Package email is the escalation channel boundary. The actual transport is
// an external collaborator; services inject a Sender.
package email

import (
	"context"
	"log"
)

type Sender interface {
	Send(ctx context.Context, recipientID, subject, body string) error
}

// LogSender writes would-be emails to the service log. It stands in for the
// real transport in development and single-node deployments.
type LogSender struct{}

func (LogSender) Send(_ context.Context, recipientID, subject, body string) error {
	log.Printf("email to %s: %s: %s", recipientID, subject, body)
	return nil
}
