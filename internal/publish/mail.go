package publish

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nugget/tubedigest/internal/config"
)

const smtpDialTimeout = 30 * time.Second

// MailSink sends the summaries of a changeset as one digest e-mail.
type MailSink struct {
	cfg  config.MailConfig
	send func(ctx context.Context, from string, rcpt []string, msg []byte) error
	now  func() time.Time
}

// NewMailSink creates a sink delivering through the SMTP server in cfg.
func NewMailSink(cfg config.MailConfig) *MailSink {
	s := &MailSink{cfg: cfg, now: time.Now}
	s.send = s.sendSMTP
	return s
}

// Name implements Sink.
func (s *MailSink) Name() string { return "mail" }

// Publish mails the summary notes in cs. Transcript files are skipped.
func (s *MailSink) Publish(ctx context.Context, cs Changeset) error {
	var parts []string
	for _, f := range cs.Files {
		if !strings.HasPrefix(f.Path, SummariesDir+"/") || !strings.HasSuffix(f.Path, ".md") {
			continue
		}
		parts = append(parts, StripFrontMatter(string(f.Data)))
	}
	if len(parts) == 0 {
		return nil
	}

	msg, err := s.compose(digestSubject(len(parts)), strings.Join(parts, "\n\n---\n\n"))
	if err != nil {
		return err
	}
	rcpt := make([]string, 0, len(s.cfg.To))
	for _, to := range s.cfg.To {
		rcpt = append(rcpt, extractAddress(to))
	}
	return s.send(ctx, extractAddress(s.cfg.From), rcpt, msg)
}

func digestSubject(n int) string {
	if n == 1 {
		return "[tubedigest] 1 new summary"
	}
	return fmt.Sprintf("[tubedigest] %d new summaries", n)
}

// compose builds a multipart/alternative message with a plain text part
// and an HTML part rendered from the Markdown body.
func (s *MailSink) compose(subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(subject)

	from, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", s.cfg.From, err)
	}
	h.SetAddressList("From", []*mail.Address{from})

	to := make([]*mail.Address, 0, len(s.cfg.To))
	for _, a := range s.cfg.To {
		addr, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("parse address %q: %w", a, err)
		}
		to = append(to, addr)
	}
	h.SetAddressList("To", to)

	htmlBody, err := RenderHTML(subject, body)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}
	for _, p := range []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", markdownToPlain(body)},
		{"text/html; charset=utf-8", htmlBody},
	} {
		var ph mail.InlineHeader
		ph.Set("Content-Type", p.contentType)
		pw, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create part: %w", err)
		}
		if _, err := io.WriteString(pw, p.content); err != nil {
			return nil, fmt.Errorf("write part: %w", err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("close part: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	mdBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdImage   = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

func markdownToPlain(md string) string {
	s := mdImage.ReplaceAllString(md, "$1")
	s = mdLink.ReplaceAllString(s, "$1 ($2)")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// extractAddress returns the bare address of "Name <addr>".
func extractAddress(s string) string {
	if strings.HasSuffix(s, ">") {
		if i := strings.LastIndexByte(s, '<'); i >= 0 {
			return s[i+1 : len(s)-1]
		}
	}
	return s
}

// sendSMTP delivers msg over a fresh connection: implicit TLS unless
// StartTLS is set, then optional PLAIN auth.
func (s *MailSink) sendSMTP(ctx context.Context, from string, rcpt []string, msg []byte) error {
	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = min(dialTimeout, time.Until(deadline))
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if s.cfg.StartTLS {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client on %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}
	if s.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, r := range rcpt {
		if err := client.Rcpt(r); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", r, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}
	return client.Quit()
}
