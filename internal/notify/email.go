package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"jobwatch/aggregator-service/internal/model"
)

// ChannelEmail is the registry key for the SMTP sender.
const ChannelEmail = "email"

// emailTemplate renders one posting as a small HTML message.
var emailTemplate = template.Must(template.New("job").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:24px;background:#f3f4f6;font-family:-apple-system,'Segoe UI',Helvetica,sans-serif;">
  <table width="560" cellpadding="0" cellspacing="0" style="background:#fff;border-radius:8px;margin:0 auto;">
    <tr>
      <td style="background:#1e3a5f;padding:20px 24px;border-radius:8px 8px 0 0;">
        <p style="margin:0;font-size:11px;color:#93c5fd;letter-spacing:1.5px;text-transform:uppercase;">New Job Match</p>
        <h1 style="margin:6px 0 0;font-size:20px;color:#fff;">{{.Title}}</h1>
        <p style="margin:4px 0 0;font-size:13px;color:#93c5fd;">{{.CompanyName}}{{if .Location}} · {{.Location}}{{end}}</p>
      </td>
    </tr>
    <tr>
      <td style="padding:20px 24px;">
        <p style="margin:0 0 12px;font-size:14px;color:#374151;">Match score: <strong>{{.ScoreLabel}}</strong></p>
        {{if .Reasons}}<ul style="margin:0 0 16px;padding-left:18px;color:#374151;font-size:13px;">
        {{range .Reasons}}<li>{{.}}</li>{{end}}
        </ul>{{end}}
        <a href="{{.URL}}" style="display:inline-block;padding:8px 20px;background:#1e3a5f;color:#fff;border-radius:4px;text-decoration:none;font-size:13px;">Apply →</a>
      </td>
    </tr>
  </table>
</body>
</html>`))

type emailData struct {
	CompanyName string
	Title       string
	Location    string
	URL         string
	ScoreLabel  string
	Reasons     []string
}

// EmailSender delivers postings over SMTP, one message per posting.
type EmailSender struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	To       []string
}

// NewEmailSender constructs an EmailSender.
func NewEmailSender(addr, username, password, from string, to []string) *EmailSender {
	return &EmailSender{Addr: addr, Username: username, Password: password, From: from, To: to}
}

// Send renders and delivers one posting. Any SMTP failure is returned
// unwrapped to the dispatcher, which leaves the job eligible for the next
// cycle.
func (e *EmailSender) Send(ctx context.Context, job model.DigestJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := emailData{
		CompanyName: job.CompanyName,
		Title:       job.Title,
		Location:    job.Location,
		URL:         job.URL,
		ScoreLabel:  scoreLabel(job.MatchScore),
		Reasons:     presentableReasons(job.MatchReasons),
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	subject := fmt.Sprintf("[Jobs] %s — %s (%s)", job.CompanyName, job.Title, data.ScoreLabel)
	msg := buildMessage(e.From, e.To, subject, body.String())

	host := e.Addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	auth := smtp.PlainAuth("", e.Username, e.Password, host)
	if err := smtp.SendMail(e.Addr, auth, e.From, e.To, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

func scoreLabel(score *float64) string {
	if score == nil {
		return "unscored"
	}
	return fmt.Sprintf("%d%%", int(*score*100))
}

// presentableReasons hides pre-filter bookkeeping from the user-facing mail.
func presentableReasons(reasons []string) []string {
	var out []string
	for _, r := range reasons {
		if r == "" || strings.HasPrefix(r, "pre-filtered") {
			continue
		}
		out = append(out, r)
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}
