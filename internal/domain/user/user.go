// Package user implements the user domain specialization (spec.md §4.4):
// email, token->userId and permission->set<userId> indices, plus
// validation of email format and a non-empty user id. Email uniqueness is
// not enforced: two records with the same email are both stored and both
// indexed under it.
package user

import (
	"regexp"
	"strings"

	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

const (
	IndexEmail      = "email"
	IndexToken      = "token"
	IndexPermission = "permission"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Payload is the domain-shaped data a user record carries.
type Payload struct {
	Email       string
	Token       string
	Permissions []string
}

// Hooks implements processor.DomainHooks for the user domain.
type Hooks struct{}

func New() *Hooks { return &Hooks{} }

func (Hooks) Domain() record.Domain { return record.DomainUser }

func (Hooks) RequiredIndices() []string { return []string{IndexEmail, IndexToken, IndexPermission} }

// Validate enforces a non-empty userId and a syntactically valid email.
func (Hooks) Validate(r *record.Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return xerrors.New(xerrors.InvalidConfiguration, "user record requires a non-empty id")
	}
	p, ok := r.Data.(Payload)
	if !ok {
		return xerrors.New(xerrors.InvalidConfiguration, "user record data must be user.Payload")
	}
	if !emailRe.MatchString(p.Email) {
		return xerrors.New(xerrors.InvalidConfiguration, "user record has an invalid email")
	}
	return nil
}

// ExtractIndexKeys maps email, token, and each permission onto the userId.
func (Hooks) ExtractIndexKeys(r *record.Record) map[string][]string {
	p, ok := r.Data.(Payload)
	if !ok {
		return nil
	}
	keys := map[string][]string{}
	if p.Email != "" {
		keys[IndexEmail] = []string{p.Email}
	}
	if p.Token != "" {
		keys[IndexToken] = []string{p.Token}
	}
	if len(p.Permissions) > 0 {
		keys[IndexPermission] = append([]string(nil), p.Permissions...)
	}
	return keys
}
