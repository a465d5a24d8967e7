package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"vatsuok/config"
	"vatsuok/models"
)

// sendTimeout bounds one whole SMTP conversation, dial included.
const sendTimeout = 10 * time.Second

// sendFunc is smtp.SendMail with a context.
type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
	notifyTo string
	siteName string
	domain   string
	timeout  time.Duration
	send     sendFunc
}

func NewEmailService(cfg *config.Config) *EmailService {
	e := &EmailService{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.Port,
		user:     cfg.SMTP.User,
		password: cfg.SMTP.Password,
		from:     cfg.SMTP.From,
		notifyTo: cfg.SMTP.NotifyTo,
		siteName: cfg.SiteTitle,
		domain:   cfg.Domain,
		timeout:  sendTimeout,
	}
	e.send = e.sendMail
	return e
}

// NotifyContact tells the site owner about a new contact message.
func (e *EmailService) NotifyContact(ctx context.Context, contact models.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("[%s] New message: %s", e.siteName, oneLine(contact.Subject))
	body := fmt.Sprintf(`
New message from the contact form.

From:    %s <%s>
Subject: %s

%s

---
Read it on %s/admin
`, contact.Name, contact.Email, oneLine(contact.Subject), contact.Message, e.domain)

	message := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Reply-To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", e.from, e.notifyTo, oneLine(contact.Email), subject, body)

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%s", e.host, e.port)

	if err := e.send(ctx, addr, auth, e.from, []string{e.notifyTo}, []byte(message)); err != nil {
		return fmt.Errorf("send contact notification: %w", err)
	}
	return nil
}

// sendMail does what smtp.SendMail does, but gives up once ctx is done or
// the timeout passes, so a stalled server cannot hold the request.
func (e *EmailService) sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, e.host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// oneLine keeps visitor input from adding mail headers.
func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
