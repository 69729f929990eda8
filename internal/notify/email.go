package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends alerts over SMTP with STARTTLS and PLAIN auth.
type Email struct {
	Host string
	Port int
	User string
	Pass string
	From string

	// Timeout bounds one delivery; zero leaves it to the caller's ctx.
	Timeout time.Duration

	send SendFunc
	now  func() time.Time
}

func NewEmail(host string, port int, user, pass, from string) *Email {
	if from == "" {
		from = user
	}
	return &Email{
		Host: host,
		Port: port,
		User: user,
		Pass: pass,
		From: from,
		send: smtp.SendMail,
		now:  time.Now,
	}
}

func (e *Email) Name() string { return "email" }

// Configured reports whether credentials are present.
func (e *Email) Configured() bool {
	return e != nil && e.User != "" && e.Pass != "" && e.Host != ""
}

func (e *Email) Send(ctx context.Context, msg Message) Result {
	if strings.TrimSpace(msg.To) == "" {
		return skipped("email", "no recipient address")
	}
	if !e.Configured() {
		return skipped("email", "smtp credentials not configured")
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	auth := smtp.PlainAuth("", e.User, e.Pass, e.Host)
	raw := e.compose(msg)

	// smtp.SendMail has no context; race it against ctx so a hung server
	// cannot hold the caller past its deadline.
	done := make(chan error, 1)
	go func() { done <- e.send(addr, auth, e.From, []string{msg.To}, raw) }()

	select {
	case <-ctx.Done():
		return failed(e.Name(), fmt.Errorf("smtp send: %w", ctx.Err()))
	case err := <-done:
		if err != nil {
			return failed(e.Name(), fmt.Errorf("smtp send: %w", err))
		}
		return delivered(e.Name())
	}
}

func (e *Email) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: \"Uptime Monitor\" <%s>\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	if strings.ContainsAny(v, "\r\n") {
		return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
	}
	return v
}
