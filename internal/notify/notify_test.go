package notify

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryapi/internal/book"
	"libraryapi/internal/config"
	"libraryapi/internal/loan"
)

var lateLoan = loan.Loan{
	ID:            "loan-1",
	Book:          book.Book{ID: "book-1", ISBN: "123", Title: "Dune"},
	Customer:      "Fulano",
	CustomerEmail: "fulano@example.com",
	LoanDate:      time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC),
}

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestSMTP(sendErr error) (*SMTPDispatcher, *[]sentMail) {
	var sent []sentMail
	d := NewSMTPDispatcher(config.SMTPConfig{Host: "mail.local", Port: 2525, From: "library@example.com"}, zerolog.Nop())
	d.send = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return sendErr
	}
	return d, &sent
}

func TestSMTPDispatcher_NotifyLate(t *testing.T) {
	t.Run("sends to the contact address", func(t *testing.T) {
		d, sent := newTestSMTP(nil)

		require.NoError(t, d.NotifyLate(context.Background(), lateLoan))
		require.Len(t, *sent, 1)
		m := (*sent)[0]
		assert.Equal(t, "mail.local:2525", m.addr)
		assert.Equal(t, "library@example.com", m.from)
		assert.Equal(t, []string{"fulano@example.com"}, m.to)
		assert.Contains(t, m.msg, "Subject: Late book return")
		assert.Contains(t, m.msg, "Dune (ISBN 123), taken on 2026-10-01")
	})

	t.Run("transport failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		d, _ := newTestSMTP(boom)

		err := d.NotifyLate(context.Background(), lateLoan)
		var dispatchErr *DispatchError
		require.ErrorAs(t, err, &dispatchErr)
		assert.Equal(t, "loan-1", dispatchErr.LoanID)
		assert.Equal(t, "fulano@example.com", dispatchErr.Recipient)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no address", func(t *testing.T) {
		d, sent := newTestSMTP(nil)
		l := lateLoan
		l.CustomerEmail = ""

		assert.ErrorIs(t, d.NotifyLate(context.Background(), l), ErrNoRecipient)
		assert.Empty(t, *sent)
	})

	t.Run("cancelled context", func(t *testing.T) {
		d, sent := newTestSMTP(nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, d.NotifyLate(ctx, lateLoan), context.Canceled)
		assert.Empty(t, *sent)
	})
}

// fakeSMTPServer answers a single session and records the DATA payload.
func fakeSMTPServer(t *testing.T) (addr string, body <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 fake ready")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.Fields(line)[0]); cmd {
			case "EHLO", "HELO", "MAIL", "RCPT":
				_ = tp.PrintfLine("250 ok")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				out <- string(data)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestSMTPDispatcher_SendMail(t *testing.T) {
	t.Run("delivers over a real session", func(t *testing.T) {
		addr, body := fakeSMTPServer(t)
		d := NewSMTPDispatcher(config.SMTPConfig{Host: "127.0.0.1", From: "library@example.com"}, zerolog.Nop())
		d.addr = addr

		require.NoError(t, d.NotifyLate(context.Background(), lateLoan))
		select {
		case msg := <-body:
			assert.Contains(t, msg, "To: fulano@example.com")
			assert.Contains(t, msg, "Dune (ISBN 123)")
		case <-time.After(2 * time.Second):
			t.Fatal("server never received the message")
		}
	})

	t.Run("silent server is bounded by the context deadline", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// Hold the connection open without a greeting.
			defer conn.Close()
			time.Sleep(5 * time.Second)
		}()

		d := NewSMTPDispatcher(config.SMTPConfig{Host: "127.0.0.1", From: "library@example.com"}, zerolog.Nop())
		d.addr = ln.Addr().String()
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		start := time.Now()
		err = d.NotifyLate(ctx, lateLoan)
		var dispatchErr *DispatchError
		require.ErrorAs(t, err, &dispatchErr)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("silent server without a caller deadline", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			time.Sleep(5 * time.Second)
		}()

		d := NewSMTPDispatcher(config.SMTPConfig{Host: "127.0.0.1", From: "library@example.com"}, zerolog.Nop())
		d.addr = ln.Addr().String()
		d.timeout = 150 * time.Millisecond

		start := time.Now()
		assert.Error(t, d.NotifyLate(context.Background(), lateLoan))
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestLogDispatcher_NotifyLate(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(zerolog.New(&buf))

	require.NoError(t, d.NotifyLate(context.Background(), lateLoan))
	assert.Contains(t, buf.String(), `"loan_id":"loan-1"`)
	assert.Contains(t, buf.String(), `"to":"fulano@example.com"`)
}
