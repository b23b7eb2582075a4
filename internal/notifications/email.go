package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/textutil"
)

const smtpDialTimeout = 30 * time.Second

type sendMailFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// mailSender delivers a rendered message. Tests replace it via SetMailSenderForTests.
var mailSender sendMailFunc = sendMail

type emailService struct {
	host     string
	addr     string
	username string
	password string
	from     string
	to       string
	topic    string
	now      func() time.Time
}

func newEmailService(cfg *config.Config) *emailService {
	return &emailService{
		host:     cfg.Email.SMTPHost,
		addr:     net.JoinHostPort(cfg.Email.SMTPHost, strconv.Itoa(cfg.Email.SMTPPort)),
		username: cfg.Email.Username,
		password: cfg.Email.Password,
		from:     cfg.Email.From,
		to:       cfg.Email.Recipient,
		topic:    cfg.Generator.Topic,
		now:      time.Now,
	}
}

type mail struct {
	subject string
	text    string
	html    string
}

var approvalHTML = template.Must(template.New("approval").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 640px; margin: 0 auto;">
<h2>{{.Topic}} Tip for Approval</h2>
<h3>{{.Item.Headline}}</h3>
<div>{{.Explanation}}</div>
{{if .Item.Code}}<pre style="background: #f4f4f4; padding: 12px; border-radius: 4px;"><code>{{.Item.Code}}</code></pre>{{end}}
<p>File: <code>{{.Item.Filename}}</code></p>
<p>
<a href="{{.ApproveURL}}" style="background: #2e7d32; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Approve</a>
&nbsp;
<a href="{{.RejectURL}}" style="background: #c62828; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Reject</a>
</p>
</body>
</html>
`))

func (e *emailService) NotifyApprovalRequested(ctx context.Context, req ApprovalRequest) error {
	explanation, err := textutil.MarkdownHTML(req.Item.Explanation)
	if err != nil {
		return fmt.Errorf("render explanation: %w", err)
	}
	var html bytes.Buffer
	if err := approvalHTML.Execute(&html, struct {
		Topic       string
		Item        content.Item
		Explanation template.HTML
		ApproveURL  string
		RejectURL   string
	}{e.topic, req.Item, template.HTML(explanation), req.ApproveURL, req.RejectURL}); err != nil { //nolint:gosec
		return fmt.Errorf("render approval email: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", req.Item.Headline)
	if req.Item.Explanation != "" {
		fmt.Fprintf(&text, "%s\n\n", req.Item.Explanation)
	}
	if req.Item.Code != "" {
		fmt.Fprintf(&text, "%s\n\n", req.Item.Code)
	}
	fmt.Fprintf(&text, "File: %s\n\nApprove: %s\nReject:  %s\n", req.Item.Filename, req.ApproveURL, req.RejectURL)

	return e.send(ctx, mail{
		subject: fmt.Sprintf("%s Tip for Approval: %s", e.topic, req.Item.Headline),
		text:    text.String(),
		html:    html.String(),
	})
}

func (e *emailService) NotifyPublished(ctx context.Context, item content.Item, viewURL string) error {
	text := fmt.Sprintf("Published: %s\n", item.Headline)
	html := "<p>Published: " + template.HTMLEscapeString(item.Headline) + "</p>"
	if viewURL != "" {
		text += viewURL + "\n"
		html += `<p><a href="` + template.HTMLEscapeString(viewURL) + `">View on remote</a></p>`
	}
	return e.send(ctx, mail{
		subject: fmt.Sprintf("%s Tip Published: %s", e.topic, item.Headline),
		text:    text,
		html:    html,
	})
}

func (e *emailService) NotifyError(ctx context.Context, err error, label string) error {
	msg := errorMessage(err, label)
	return e.send(ctx, mail{
		subject: "tipflow Error",
		text:    msg + "\n",
		html:    "<p>" + template.HTMLEscapeString(msg) + "</p>",
	})
}

func (e *emailService) TestNotification(ctx context.Context) error {
	return e.send(ctx, mail{
		subject: "tipflow Test Notification",
		text:    "Notification system test\n",
		html:    "<p>Notification system test</p>",
	})
}

func (e *emailService) send(ctx context.Context, m mail) error {
	msg, err := e.compose(m)
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}
	if err := mailSender(ctx, e.addr, auth, e.from, []string{e.to}, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// compose renders a multipart/alternative message with text and HTML parts.
func (e *emailService) compose(m mail) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, part := range []struct{ contentType, data string }{
		{"text/plain; charset=utf-8", m.text},
		{"text/html; charset=utf-8", m.html},
	} {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", part.contentType)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create mail part: %w", err)
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.data)); err != nil {
			return nil, fmt.Errorf("encode mail part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("encode mail part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close mail body: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.from)
	fmt.Fprintf(&msg, "To: %s\r\n", e.to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", writer.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// sendMail is smtp.SendMail with a context-bound dial and deadline.
func sendMail(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(2 * smtpDialTimeout)
	}
	_ = conn.SetDeadline(deadline)

	host, _, _ := net.SplitHostPort(addr)
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
