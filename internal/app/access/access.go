package access

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("access: authentication required")
	ErrForbidden       = errors.New("access: insufficient permissions")
)

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleTenant Role = "TENANT"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole accepts "owner", "ROLE_OWNER" and similar spellings.
func ParseRole(raw string) (Role, bool) {
	r := strings.ToUpper(strings.TrimSpace(raw))
	r = strings.TrimPrefix(r, "ROLE_")
	switch Role(r) {
	case RoleOwner, RoleTenant, RoleAdmin:
		return Role(r), true
	}
	return "", false
}

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	AccountID string
	Role      Role
}

func (a Actor) Authenticated() bool {
	return strings.TrimSpace(a.AccountID) != "" && a.Role != ""
}

// CanManageListings checks the role alone, before any listing is loaded.
func (a Actor) CanManageListings() error {
	if !a.Authenticated() {
		return ErrUnauthenticated
	}
	if a.Role != RoleOwner && a.Role != RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// CanCreateFor reports whether the actor may create listings for ownerID.
func (a Actor) CanCreateFor(ownerID string) error {
	if err := a.CanManageListings(); err != nil {
		return err
	}
	if a.Role == RoleAdmin || a.AccountID == ownerID {
		return nil
	}
	return ErrForbidden
}

// CanManage reports whether the actor may mutate a listing owned by ownerID.
func (a Actor) CanManage(ownerID string) error {
	return a.CanCreateFor(ownerID)
}

// CanBook reports whether the actor may request a booking.
func (a Actor) CanBook() error {
	if !a.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

type ctxKey struct{}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}
