// Package identity decides who a realtime session belongs to and which role
// it carries.
package identity

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"

	"github.com/gogotex/pagesync/internal/config"
	"github.com/gogotex/pagesync/internal/tokens"
	"github.com/gogotex/pagesync/pkg/logger"
	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"

	AnonymousName = "Anonymous"
)

type Identity struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Color    string `json:"color"`
	Role     Role   `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Params are the raw values a client presents when connecting.
type Params struct {
	UserID   string
	UserName string
	Color    string
	Token    string
}

func ParamsFromQuery(q url.Values) Params {
	return Params{
		UserID:   strings.TrimSpace(q.Get("user_id")),
		UserName: strings.TrimSpace(q.Get("user_name")),
		Color:    strings.TrimSpace(q.Get("color")),
		Token:    q.Get("token"),
	}
}

type Resolver struct {
	secret     string
	admins     map[string]struct{}
	legacyName bool
	newID      func() string
}

func NewResolver(cfg config.IdentityConfig) *Resolver {
	r := &Resolver{
		secret:     cfg.TokenSecret,
		admins:     make(map[string]struct{}, len(cfg.AdminUserIDs)),
		legacyName: cfg.LegacyAdminName,
		newID:      uuid.NewString,
	}
	for _, id := range cfg.AdminUserIDs {
		r.admins[id] = struct{}{}
	}
	return r
}

// Resolve fills in defaults and assigns a role. A valid role token issued for
// the same user id wins; then the configured admin list; then, only when
// enabled, the legacy rule that a user named "admin" is an admin.
func (r *Resolver) Resolve(p Params) Identity {
	id := Identity{UserID: p.UserID, UserName: p.UserName, Color: p.Color, Role: RoleUser}
	if id.UserID == "" {
		id.UserID = r.newID()
	}
	if id.UserName == "" {
		id.UserName = AnonymousName
	}
	if id.Color == "" {
		id.Color = RandomColor()
	}

	if role, ok := r.tokenRole(p.Token, id.UserID); ok {
		id.Role = role
		return id
	}
	if _, ok := r.admins[id.UserID]; ok {
		id.Role = RoleAdmin
		return id
	}
	if r.legacyName && strings.EqualFold(id.UserName, "admin") {
		id.Role = RoleAdmin
	}
	return id
}

func (r *Resolver) tokenRole(token, userID string) (Role, bool) {
	if token == "" || r.secret == "" {
		return "", false
	}
	claims, err := tokens.ParseRoleToken(r.secret, token)
	if err != nil {
		logger.Warnf("identity: rejecting role token for %s: %v", userID, err)
		return "", false
	}
	if claims.Subject != userID {
		logger.Warnf("identity: role token subject %q does not match user %q", claims.Subject, userID)
		return "", false
	}
	switch Role(claims.Role) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	}
	return "", false
}

// RandomColor returns a random #rrggbb color.
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(0x1000000))
}
