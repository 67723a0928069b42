package collab

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"
)

// DefaultMailjetURL — адрес Mailjet API.
const DefaultMailjetURL = "https://api.mailjet.com"

// Digest — содержимое письма-дайджеста.
type Digest struct {
	AgentName    string
	CriteriaType string
	Summaries    []Summary
	GeneratedAt  time.Time
}

// Deliverer доставляет дайджест получателю.
type Deliverer interface {
	Deliver(ctx context.Context, recipient string, digest Digest) error
}

// MailjetDeliverer отправляет дайджест через Mailjet Send API v3.1.
type MailjetDeliverer struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	SenderEmail string
	SenderName  string
	Client      *http.Client
}

type mailjetAddress struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type mailjetMessage struct {
	From     mailjetAddress   `json:"From"`
	To       []mailjetAddress `json:"To"`
	Subject  string           `json:"Subject"`
	HTMLPart string           `json:"HTMLPart"`
	CustomID string           `json:"CustomID,omitempty"`
}

type mailjetRequest struct {
	Messages []mailjetMessage `json:"Messages"`
}

type mailjetResponse struct {
	Messages []struct {
		Status string `json:"Status"`
	} `json:"Messages"`
}

// Deliver отправляет письмо. Ответ со статусом сообщения, отличным от
// "success", считается ошибкой доставки.
func (d *MailjetDeliverer) Deliver(ctx context.Context, recipient string, digest Digest) error {
	if d.APIKey == "" || d.APISecret == "" || d.SenderEmail == "" {
		return fmt.Errorf("%w: mailjet credentials are not set", ErrNotConfigured)
	}

	html, err := RenderDigest(digest)
	if err != nil {
		return err
	}

	baseURL := d.BaseURL
	if baseURL == "" {
		baseURL = DefaultMailjetURL
	}

	if digest.GeneratedAt.IsZero() {
		digest.GeneratedAt = time.Now()
	}

	body := mailjetRequest{Messages: []mailjetMessage{{
		From:     mailjetAddress{Email: d.SenderEmail, Name: d.SenderName},
		To:       []mailjetAddress{{Email: recipient}},
		Subject:  "Email Summary - " + digest.AgentName,
		HTMLPart: html,
		CustomID: "EmailSummary-" + digest.GeneratedAt.UTC().Format("20060102-150405"),
	}}}

	var resp mailjetResponse
	_, err = doJSON(ctx, d.Client, jsonRequest{
		Method:    http.MethodPost,
		URL:       strings.TrimRight(baseURL, "/") + "/v3.1/send",
		Body:      body,
		BasicAuth: &[2]string{d.APIKey, d.APISecret},
	}, &resp)
	if err != nil {
		return fmt.Errorf("mailjet send: %w", err)
	}

	for _, m := range resp.Messages {
		if m.Status != "success" {
			return fmt.Errorf("%w: mailjet message status %q", ErrRequest, m.Status)
		}
	}
	return nil
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Email Summary - {{.AgentName}}</title></head>
<body>
<h1>Email Summary</h1>
<p>Your automated email digest from {{.AgentName}}</p>
<p><strong>{{len .Summaries}} emails</strong> summarized ({{.CriteriaType}})</p>
{{range .Summaries}}<div>
<p><strong>{{.Sender}}</strong></p>
<p>{{.Subject}}</p>
<p>{{.Date}}</p>
<p>{{.Summary}}</p>
</div>
{{end}}</body>
</html>`))

// RenderDigest формирует HTML письма.
func RenderDigest(digest Digest) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, digest); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}
