package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"libraryapi/internal/config"
	"libraryapi/internal/loan"
)

// defaultSendTimeout bounds one delivery when the caller's context has no deadline.
const defaultSendTimeout = 30 * time.Second

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPDispatcher mails the notice to the loan's contact address.
type SMTPDispatcher struct {
	addr    string
	host    string
	auth    smtp.Auth
	from    string
	timeout time.Duration
	send    sendFunc
	now     func() time.Time
	logger  zerolog.Logger
}

func NewSMTPDispatcher(cfg config.SMTPConfig, logger zerolog.Logger) *SMTPDispatcher {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	d := &SMTPDispatcher{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:    cfg.Host,
		auth:    auth,
		from:    cfg.From,
		timeout: defaultSendTimeout,
		now:     time.Now,
		logger:  logger.With().Str("component", "smtp_dispatcher").Logger(),
	}
	d.send = d.sendMail
	return d
}

func (d *SMTPDispatcher) NotifyLate(ctx context.Context, l loan.Loan) error {
	to := l.ContactAddress()
	if to == "" {
		return &DispatchError{LoanID: l.ID, Err: ErrNoRecipient}
	}
	if err := ctx.Err(); err != nil {
		return &DispatchError{LoanID: l.ID, Recipient: to, Err: err}
	}

	if err := d.send(ctx, d.addr, d.auth, d.from, []string{to}, d.message(to, l)); err != nil {
		return &DispatchError{LoanID: l.ID, Recipient: to, Err: err}
	}
	d.logger.Debug().Str("loan_id", l.ID).Str("to", to).Msg("late notice sent")
	return nil
}

// sendMail is smtp.SendMail bound to ctx: the dial honours cancellation and
// every read or write on the connection fails once the deadline passes.
func (d *SMTPDispatcher) sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set smtp deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, d.host)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: d.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt to: %w", err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}
	return c.Quit()
}

func (d *SMTPDispatcher) message(to string, l loan.Loan) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", d.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", lateSubject)
	fmt.Fprintf(&b, "Date: %s\r\n", d.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(lateBody(l))
	return b.Bytes()
}
