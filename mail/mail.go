// Package mail delivers task notifications.
package mail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/imagvfx/autolite/config"
	"github.com/sirupsen/logrus"
)

var page = template.Must(template.New("mail").Parse(`<!DOCTYPE html>
<html>
  <head></head>
  <body>
    {{range .}}{{.}}<br/>
    {{end}}
  </body>
</html>
`))

// SMTP sends notifications as html mails through a smtp server.
type SMTP struct {
	Server   string
	Port     int
	Username string
	Password string

	// From is the sender. It is Username when empty.
	From string

	// Timeout bounds a delivery, from dialing to quit.
	// DefaultTimeout is used when it is not positive.
	Timeout time.Duration

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

const DefaultTimeout = 10 * time.Second

// NewSMTP creates a SMTP from settings.
func NewSMTP(cfg config.SMTPConfig) *SMTP {
	m := &SMTP{
		Server:   cfg.Server,
		Port:     int(cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Timeout:  time.Duration(cfg.Timeout) * time.Second,
	}
	m.send = m.sendMail
	return m
}

// sendMail is smtp.SendMail with a deadline on the whole conversation,
// so a server which never answers cannot hold the caller.
func (m *SMTP) sendMail(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	err = conn.SetDeadline(time.Now().Add(timeout))
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, m.Server)
	if err != nil {
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		err = c.StartTLS(&tls.Config{ServerName: m.Server})
		if err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			err = c.Auth(a)
			if err != nil {
				return err
			}
		}
	}
	err = c.Mail(from)
	if err != nil {
		return err
	}
	for _, rcpt := range to {
		err = c.Rcpt(rcpt)
		if err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	if err != nil {
		return err
	}
	err = w.Close()
	if err != nil {
		return err
	}
	return c.Quit()
}

func (m *SMTP) from() string {
	if m.From != "" {
		return m.From
	}
	return m.Username
}

// Notify sends a mail. It does nothing when there is no recipient.
func (m *SMTP) Notify(recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return nil
	}
	msg, err := Message(m.from(), recipients, subject, body)
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Server)
	}
	addr := net.JoinHostPort(m.Server, strconv.Itoa(m.Port))
	err = m.send(addr, auth, m.from(), recipients, msg)
	if err != nil {
		return fmt.Errorf("send mail to %v: %w", recipients, err)
	}
	return nil
}

// Message builds a html mail. Lines of body are kept as they are.
func Message(from string, to []string, subject, body string) ([]byte, error) {
	b := &bytes.Buffer{}
	fmt.Fprintf(b, "From: %s\r\n", from)
	fmt.Fprintf(b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(b, "Content-Type: text/html; charset=\"utf-8\"\r\n")
	fmt.Fprintf(b, "\r\n")
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	err := page.Execute(b, lines)
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Log writes notifications to a logger instead of sending them.
// It is used when smtp is disabled.
type Log struct {
	Logger logrus.FieldLogger
}

// Notify implements autolite.Notifier.
func (l *Log) Notify(recipients []string, subject, body string) error {
	l.Logger.WithField("to", strings.Join(recipients, ",")).Info(subject)
	return nil
}
