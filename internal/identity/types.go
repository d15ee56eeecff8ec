package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("identity: not found")
	ErrAlreadyExists = errors.New("identity: already exists")
	ErrInvalidInput  = errors.New("identity: invalid input")
)

// Role is the closed set of access tiers. The tiers form a capability
// lattice, not an inheritance chain: each is checked explicitly.
type Role string

const (
	RoleMasterAdmin    Role = "MASTER_ADMIN"
	RoleSectorAdmin    Role = "SECTOR_ADMIN"
	RoleSectorOperator Role = "SECTOR_OPERATOR"
	RoleEmployee       Role = "EMPLOYEE"
)

// ParseRole validates a role code.
func ParseRole(code string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(code))) {
	case RoleMasterAdmin:
		return RoleMasterAdmin, nil
	case RoleSectorAdmin:
		return RoleSectorAdmin, nil
	case RoleSectorOperator:
		return RoleSectorOperator, nil
	case RoleEmployee:
		return RoleEmployee, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, code)
	}
}

// Display returns the human-readable label for the role.
func (r Role) Display() string {
	switch r {
	case RoleMasterAdmin:
		return "Administrador Master"
	case RoleSectorAdmin:
		return "Administrador de Setor"
	case RoleSectorOperator:
		return "Operador de Setor"
	case RoleEmployee:
		return "Funcionário"
	default:
		return string(r)
	}
}

// Sector is an organizational partition scoping sector-bound roles.
type Sector string

const (
	SectorRH        Sector = "RH"
	SectorTributos  Sector = "TRIBUTOS"
	SectorLicitacao Sector = "LICITACAO"
	SectorObras     Sector = "OBRAS"
)

// ParseSector validates a sector code. The empty string maps to no sector.
func ParseSector(code string) (Sector, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", nil
	}
	switch Sector(code) {
	case SectorRH, SectorTributos, SectorLicitacao, SectorObras:
		return Sector(code), nil
	default:
		return "", fmt.Errorf("%w: unknown sector %q", ErrInvalidInput, code)
	}
}

// Display returns the human-readable label for the sector.
func (s Sector) Display() string {
	switch s {
	case SectorRH:
		return "Recursos Humanos"
	case SectorTributos:
		return "Tributos"
	case SectorLicitacao:
		return "Licitação"
	case SectorObras:
		return "Obras"
	case "":
		return "Não definido"
	default:
		return string(s)
	}
}

var cpfPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)

// ValidCPF reports whether the value matches the XXX.XXX.XXX-XX format.
// An empty CPF is allowed; the field is optional.
func ValidCPF(cpf string) bool {
	if cpf == "" {
		return true
	}
	return cpfPattern.MatchString(cpf)
}

// User is an authenticated identity with a role and optional sector.
// Email is the sole authentication handle and is globally unique.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	CPF          string    `json:"cpf,omitempty"`
	Role         Role      `json:"role"`
	Sector       Sector    `json:"sector,omitempty"`
	IsActive     bool      `json:"is_active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsMasterAdmin() bool    { return u.Role == RoleMasterAdmin }
func (u *User) IsSectorAdmin() bool    { return u.Role == RoleSectorAdmin }
func (u *User) IsSectorOperator() bool { return u.Role == RoleSectorOperator }
func (u *User) IsEmployee() bool       { return u.Role == RoleEmployee }

// CanAccessSector reports whether the user may touch resources in the sector.
func (u *User) CanAccessSector(sector Sector) bool {
	if u.IsMasterAdmin() {
		return true
	}
	return u.Sector == sector
}

// SplitFullName breaks a display name on the first whitespace boundary.
func SplitFullName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	first = parts[0]
	if len(parts) == 2 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}
