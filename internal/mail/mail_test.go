package mail

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"civitec.org/internal/identity"
	"civitec.org/internal/invite"
)

func testInvite() *invite.Invite {
	return &invite.Invite{
		ID: "inv-1", Email: "joao@prefeitura.gov.br", FullName: "João Silva",
		Role: identity.RoleSectorAdmin, Sector: identity.SectorRH,
		SecurityCode: "123456", Token: "tok",
		ExpiresAt: time.Now().Add(72 * time.Hour),
	}
}

func TestSMTPSenderInvite(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := NewSMTPSender(Config{
		Host: "smtp.local", Port: 587,
		Username: "svc", Password: "pw", From: "no-reply@civitec.local",
	})
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		if a == nil {
			t.Error("expected PLAIN auth when username is set")
		}
		return nil
	}

	inv := testInvite()
	if err := s.SendInvite(context.Background(), inv, "http://localhost:3000/invite/accept?token=tok"); err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	if gotAddr != "smtp.local:587" || gotFrom != "no-reply@civitec.local" {
		t.Errorf("addr=%q from=%q", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != inv.Email {
		t.Errorf("to = %v", gotTo)
	}
	body := string(gotMsg)
	for _, want := range []string{"123456", "invite/accept?token=tok", "João Silva", "Administrador de Setor"} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if !strings.Contains(body, "Subject: Você foi convidado") {
		t.Error("subject header missing")
	}
}

func TestSMTPSenderWelcome(t *testing.T) {
	var gotMsg []byte
	s := NewSMTPSender(Config{Host: "smtp.local", Port: 25, From: "no-reply@civitec.local"})
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if a != nil {
			t.Error("expected no auth without username")
		}
		gotMsg = msg
		return nil
	}

	u := &identity.User{
		Email: "joao@prefeitura.gov.br", FirstName: "João", LastName: "Silva",
		Role: identity.RoleEmployee, Sector: identity.SectorObras,
	}
	if err := s.SendWelcome(context.Background(), u); err != nil {
		t.Fatalf("SendWelcome: %v", err)
	}
	if !strings.Contains(string(gotMsg), "João Silva") {
		t.Error("welcome body missing user name")
	}
}

func TestLogSenderNeverFails(t *testing.T) {
	var s LogSender
	if err := s.SendInvite(context.Background(), testInvite(), "http://x/y"); err != nil {
		t.Errorf("SendInvite: %v", err)
	}
	if err := s.SendWelcome(context.Background(), &identity.User{ID: "u-1", Email: "a@b.c"}); err != nil {
		t.Errorf("SendWelcome: %v", err)
	}
}
