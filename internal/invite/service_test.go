package invite

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"civitec.org/internal/identity"
)

// stubNotifier records deliveries and can be told to fail.
type stubNotifier struct {
	invites   []*Invite
	welcomes  []*identity.User
	failSend  bool
	acceptURL string
}

func (s *stubNotifier) SendInvite(ctx context.Context, inv *Invite, acceptURL string) error {
	if s.failSend {
		return errors.New("smtp down")
	}
	cp := *inv
	s.invites = append(s.invites, &cp)
	s.acceptURL = acceptURL
	return nil
}

func (s *stubNotifier) SendWelcome(ctx context.Context, u *identity.User) error {
	s.welcomes = append(s.welcomes, u)
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *InMemory, *identity.InMemory, *stubNotifier) {
	t.Helper()
	invites := NewInMemory()
	users := identity.NewInMemory()
	mailer := &stubNotifier{}
	svc := NewService(invites, users, mailer, opts...)
	return svc, invites, users, mailer
}

func createPending(t *testing.T, svc *Service) *Invite {
	t.Helper()
	inv, err := svc.Create(context.Background(), CreateParams{
		Email:     "Joao.Silva@prefeitura.gov.br",
		FullName:  "João Silva",
		Role:      identity.RoleSectorAdmin,
		Sector:    identity.SectorRH,
		CreatedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return inv
}

func TestCreateIssuesTokenAndCode(t *testing.T) {
	svc, _, _, mailer := newTestService(t)
	inv := createPending(t, svc)

	if inv.Email != "joao.silva@prefeitura.gov.br" {
		t.Errorf("email not normalized: %q", inv.Email)
	}
	if len(inv.Token) < 43 {
		t.Errorf("token too short: %d chars", len(inv.Token))
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(inv.SecurityCode) {
		t.Errorf("security code is not six digits: %q", inv.SecurityCode)
	}
	if inv.Status != StatusPending {
		t.Errorf("status = %s, want PENDING", inv.Status)
	}
	if len(mailer.invites) != 1 {
		t.Fatalf("expected one invite delivery, got %d", len(mailer.invites))
	}
	if mailer.acceptURL != svc.AcceptURL(inv) {
		t.Errorf("accept url = %q", mailer.acceptURL)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	cases := []struct {
		name string
		p    CreateParams
	}{
		{"missing email", CreateParams{FullName: "X Y", Role: identity.RoleEmployee, Sector: identity.SectorRH}},
		{"bad email", CreateParams{Email: "nope", FullName: "X Y", Role: identity.RoleEmployee, Sector: identity.SectorRH}},
		{"missing name", CreateParams{Email: "a@b.c", Role: identity.RoleEmployee, Sector: identity.SectorRH}},
		{"sector required", CreateParams{Email: "a@b.c", FullName: "X Y", Role: identity.RoleSectorAdmin}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.p); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCreateMasterAdminNeedsNoSector(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), CreateParams{
		Email:    "chief@prefeitura.gov.br",
		FullName: "Chefe Geral",
		Role:     identity.RoleMasterAdmin,
	})
	if err != nil {
		t.Fatalf("Create master admin invite: %v", err)
	}
}

func TestCreateRejectsDuplicatePending(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	createPending(t, svc)
	_, err := svc.Create(context.Background(), CreateParams{
		Email:    "joao.silva@prefeitura.gov.br",
		FullName: "João Silva",
		Role:     identity.RoleEmployee,
		Sector:   identity.SectorRH,
	})
	if !errors.Is(err, ErrDuplicatePending) {
		t.Errorf("err = %v, want ErrDuplicatePending", err)
	}
}

func TestCreateRejectsActiveEmail(t *testing.T) {
	svc, _, users, _ := newTestService(t)
	if err := users.Create(context.Background(), &identity.User{
		Email: "maria@prefeitura.gov.br", Username: "maria", IsActive: true,
		Role: identity.RoleEmployee, Sector: identity.SectorObras,
	}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(context.Background(), CreateParams{
		Email:    "maria@prefeitura.gov.br",
		FullName: "Maria Souza",
		Role:     identity.RoleEmployee,
		Sector:   identity.SectorObras,
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("err = %v, want ErrEmailTaken", err)
	}
}

func TestCreateDeliveryFailureRollsBack(t *testing.T) {
	svc, invites, _, mailer := newTestService(t)
	mailer.failSend = true

	_, err := svc.Create(context.Background(), CreateParams{
		Email:    "joao@prefeitura.gov.br",
		FullName: "João Silva",
		Role:     identity.RoleEmployee,
		Sector:   identity.SectorRH,
	})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("err = %v, want ErrDelivery", err)
	}
	all, err := invites.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("invite survived failed delivery: %d rows", len(all))
	}
}

func TestValidateMasksEmailAndHidesCode(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	inv := createPending(t, svc)

	sum, err := svc.Validate(context.Background(), inv.Token, inv.SecurityCode)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sum.MaskedEmail != "jo***@prefeitura.gov.br" {
		t.Errorf("masked email = %q", sum.MaskedEmail)
	}
	if sum.FullName != "João Silva" {
		t.Errorf("full name = %q", sum.FullName)
	}
	if sum.RoleDisplay != "Administrador de Setor" {
		t.Errorf("role display = %q", sum.RoleDisplay)
	}
}

func TestValidateWrongCode(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	inv := createPending(t, svc)

	if _, err := svc.Validate(context.Background(), inv.Token, "000000"); !errors.Is(err, ErrInvalidCode) {
		if inv.SecurityCode == "000000" {
			t.Skip("generated code happened to be 000000")
		}
		t.Errorf("err = %v, want ErrInvalidCode", err)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.Validate(context.Background(), "no-such-token", "123456"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestValidateExpiryIsLazyAndSticky(t *testing.T) {
	now := time.Now().UTC()
	clock := &now
	svc, invites, _, _ := newTestService(t, WithClock(func() time.Time { return *clock }))
	inv := createPending(t, svc)

	later := now.Add(73 * time.Hour)
	clock = &later

	if _, err := svc.Validate(context.Background(), inv.Token, inv.SecurityCode); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	stored, err := invites.FindByID(context.Background(), inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusExpired {
		t.Errorf("status = %s, want EXPIRED written back", stored.Status)
	}

	// Expired stays expired even if the clock moves back.
	clock = &now
	if _, err := svc.Validate(context.Background(), inv.Token, inv.SecurityCode); !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired after rollback", err)
	}
}

func TestAcceptCreatesActiveUser(t *testing.T) {
	svc, invites, users, mailer := newTestService(t)
	inv := createPending(t, svc)

	user, err := svc.Accept(context.Background(), AcceptParams{
		Token:           inv.Token,
		SecurityCode:    inv.SecurityCode,
		Password:        "Sup3rSecreta",
		PasswordConfirm: "Sup3rSecreta",
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !user.IsActive {
		t.Error("accepted user is not active")
	}
	if user.FirstName != "João" || user.LastName != "Silva" {
		t.Errorf("name split = %q %q", user.FirstName, user.LastName)
	}
	if user.Role != identity.RoleSectorAdmin || user.Sector != identity.SectorRH {
		t.Errorf("role/sector = %s/%s", user.Role, user.Sector)
	}
	if err := identity.VerifyPassword(user.PasswordHash, "Sup3rSecreta"); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}

	stored, err := invites.FindByID(context.Background(), inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusAccepted || stored.AcceptedAt == nil {
		t.Errorf("invite not marked accepted: %+v", stored)
	}
	if len(mailer.welcomes) != 1 {
		t.Errorf("welcome deliveries = %d, want 1", len(mailer.welcomes))
	}
	if _, err := users.FindByEmail(context.Background(), inv.Email); err != nil {
		t.Errorf("user not findable by email: %v", err)
	}
}

func TestAcceptIsOneShot(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	inv := createPending(t, svc)

	p := AcceptParams{
		Token: inv.Token, SecurityCode: inv.SecurityCode,
		Password: "Sup3rSecreta", PasswordConfirm: "Sup3rSecreta",
	}
	if _, err := svc.Accept(context.Background(), p); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := svc.Accept(context.Background(), p); !errors.Is(err, ErrAlreadyAccepted) {
		t.Errorf("second accept err = %v, want ErrAlreadyAccepted", err)
	}
}

func TestAcceptPasswordChecksRunBeforeInviteLoad(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	inv := createPending(t, svc)

	cases := []struct {
		name    string
		p       AcceptParams
		wantErr error
	}{
		{"mismatch", AcceptParams{Token: inv.Token, SecurityCode: inv.SecurityCode,
			Password: "Sup3rSecreta", PasswordConfirm: "outra"}, ErrInvalidInput},
		{"weak", AcceptParams{Token: inv.Token, SecurityCode: inv.SecurityCode,
			Password: "abc", PasswordConfirm: "abc"}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Accept(context.Background(), tc.p); !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	// The invite must still be usable afterwards.
	if _, err := svc.Validate(context.Background(), inv.Token, inv.SecurityCode); err != nil {
		t.Errorf("invite burned by failed accepts: %v", err)
	}
}

func TestAcceptReactivatesDormantUser(t *testing.T) {
	svc, _, users, _ := newTestService(t)

	dormant := &identity.User{
		Email: "joao.silva@prefeitura.gov.br", Username: "joao.silva@prefeitura.gov.br",
		FirstName: "Jo", LastName: "Antigo",
		Role: identity.RoleEmployee, Sector: identity.SectorObras, IsActive: false,
	}
	if err := users.Create(context.Background(), dormant); err != nil {
		t.Fatal(err)
	}

	inv := createPending(t, svc)
	user, err := svc.Accept(context.Background(), AcceptParams{
		Token: inv.Token, SecurityCode: inv.SecurityCode,
		Password: "Sup3rSecreta", PasswordConfirm: "Sup3rSecreta",
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if user.ID != dormant.ID {
		t.Errorf("expected the dormant record to be reused, got new id %s", user.ID)
	}
	if !user.IsActive || user.Role != identity.RoleSectorAdmin || user.Sector != identity.SectorRH {
		t.Errorf("dormant user not refreshed: %+v", user)
	}
}

func TestCancelBlocksAcceptance(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	inv := createPending(t, svc)

	cancelled, err := svc.Cancel(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	if _, err := svc.Validate(context.Background(), inv.Token, inv.SecurityCode); !errors.Is(err, ErrCancelled) {
		t.Errorf("validate err = %v, want ErrCancelled", err)
	}
	if _, err := svc.Cancel(context.Background(), inv.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestListPendingFiltersTerminalStates(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	first := createPending(t, svc)
	second, err := svc.Create(context.Background(), CreateParams{
		Email:    "ana@prefeitura.gov.br",
		FullName: "Ana Lima",
		Role:     identity.RoleSectorOperator,
		Sector:   identity.SectorTributos,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(context.Background(), first.ID); err != nil {
		t.Fatal(err)
	}

	pending, err := svc.ListPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("pending = %v", pending)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"joao.silva@gov.br", "jo***@gov.br"},
		{"ab@gov.br", "ab***@gov.br"},
		{"a@gov.br", "a***@gov.br"},
		{"not-an-email", "not-an-email"},
	}
	for _, tc := range cases {
		if got := MaskEmail(tc.in); got != tc.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
