package action

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/stocksentry/stocksentry/internal/metrics"
	"github.com/stocksentry/stocksentry/pkg/types"
)

const smtpTimeout = 10 * time.Second

// Mailer sends a single message. The SMTP implementation is the production
// one; tests substitute a capture.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// EmailExecutor sends a notification email for a matched record. Transient
// delivery failures are retried exactly once, like webhook delivery.
// Config keys: "to" (required, string or list), "subject" (required),
// "body" (optional, defaults to the subject).
type EmailExecutor struct {
	mailer Mailer
}

// NewEmailExecutor creates an email executor over a mailer.
func NewEmailExecutor(m Mailer) *EmailExecutor {
	return &EmailExecutor{mailer: m}
}

func (e *EmailExecutor) Type() types.ActionType { return types.ActionEmail }

func (e *EmailExecutor) Execute(ctx context.Context, rec types.Record, config map[string]any) Result {
	to, err := recipients(config["to"])
	if err != nil {
		return fail(types.FailurePermanent, "%v", err)
	}
	subject, err := configString(config, "subject")
	if err != nil {
		return fail(types.FailurePermanent, "%v", err)
	}
	body, _ := config["body"].(string)
	if body == "" {
		body = subject
	}
	body = fmt.Sprintf("%s\n\nRecord: %s", body, rec.ID)

	if err := e.mailer.Send(ctx, to, subject, body); err != nil {
		category := classifyMailError(err)
		if category == types.FailureTransient || category == types.FailureTimeout {
			metrics.ActionRetries.Add(1)
			err = e.mailer.Send(ctx, to, subject, body)
		}
		if err != nil {
			return fail(classifyMailError(err), "sending email: %v", err)
		}
	}
	return ok(map[string]any{"to": to, "subject": subject})
}

// classifyMailError maps delivery failures onto the retry taxonomy. SMTP
// reply codes invert the HTTP convention: 4yz means try again later, 5yz is
// a permanent rejection.
func classifyMailError(err error) types.FailureCategory {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return types.FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout
	}
	var perr *textproto.Error
	if errors.As(err, &perr) {
		if perr.Code >= 500 {
			return types.FailurePermanent
		}
		return types.FailureTransient
	}
	return types.FailureTransient
}

func recipients(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, errors.New(`config key "to" is required`)
		}
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, isString := item.(string)
			if !isString {
				return nil, errors.New(`config key "to" must contain only strings`)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, errors.New(`config key "to" is required`)
		}
		return out, nil
	case []string:
		if len(v) == 0 {
			return nil, errors.New(`config key "to" is required`)
		}
		return v, nil
	default:
		return nil, errors.New(`config key "to" is required`)
	}
}

// SMTPMailer sends mail through a plain SMTP relay. Every network
// operation runs under a connection deadline derived from the context so a
// stalled relay cannot wedge an action chain.
type SMTPMailer struct {
	addr    string
	from    string
	timeout time.Duration
}

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(cfg types.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:    cfg.From,
		timeout: smtpTimeout,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("dialing smtp relay %s: %w", m.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	host, _, err := net.SplitHostPort(m.addr)
	if err != nil {
		host = m.addr
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake with %s: %w", m.addr, err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp message body: %w", err)
	}
	return client.Quit()
}
