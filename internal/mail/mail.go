// Package mail delivers invite and welcome notifications.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"civitec.org/internal/identity"
	"civitec.org/internal/invite"
	"civitec.org/internal/obs"
)

var _ invite.Notifier = (*SMTPSender)(nil)
var _ invite.Notifier = (*LogSender)(nil)

// Config holds SMTP transport settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends plain-text mail over SMTP with optional PLAIN auth.
type SMTPSender struct {
	cfg Config
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender constructs a sender from transport settings.
func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) SendInvite(ctx context.Context, inv *invite.Invite, acceptURL string) error {
	body := inviteBody(inv, acceptURL)
	return s.deliver(inv.Email, "Você foi convidado para o CiviTec", body)
}

func (s *SMTPSender) SendWelcome(ctx context.Context, u *identity.User) error {
	body := welcomeBody(u)
	return s.deliver(u.Email, "Bem-vindo ao CiviTec!", body)
}

func (s *SMTPSender) deliver(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

func inviteBody(inv *invite.Invite, acceptURL string) string {
	hours := int(time.Until(inv.ExpiresAt).Round(time.Hour) / time.Hour)
	if hours < 1 {
		hours = 1
	}
	return fmt.Sprintf(
		"Olá %s,\n\n"+
			"Você foi convidado para o CiviTec como %s (%s).\n\n"+
			"Acesse o link abaixo para criar sua senha:\n%s\n\n"+
			"Seu código de segurança: %s\n\n"+
			"O convite expira em %d horas.\n",
		inv.FullName, inv.Role.Display(), inv.Sector.Display(),
		acceptURL, inv.SecurityCode, hours,
	)
}

func welcomeBody(u *identity.User) string {
	return fmt.Sprintf(
		"Olá %s,\n\n"+
			"Sua conta no CiviTec está ativa.\n"+
			"Papel: %s\nSetor: %s\n",
		u.FullName(), u.Role.Display(), u.Sector.Display(),
	)
}

// LogSender is the development sender used when SMTP is not configured. It
// logs delivery without the security code or token.
type LogSender struct{}

func (LogSender) SendInvite(ctx context.Context, inv *invite.Invite, acceptURL string) error {
	obs.LogRequest(map[string]any{
		"level": "info", "msg": "invite notification (console)",
		"invite_id": inv.ID, "email": inv.Email,
	})
	return nil
}

func (LogSender) SendWelcome(ctx context.Context, u *identity.User) error {
	obs.LogRequest(map[string]any{
		"level": "info", "msg": "welcome notification (console)",
		"user_id": u.ID, "email": u.Email,
	})
	return nil
}
