// Package auth implements API key authentication for the HTTP surface.
// Keys are static, parsed from configuration at startup, and map to a
// tenant plus the role set individual routes check.
package auth

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	TenantID string
	Roles    []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// APIKeyValidator resolves a presented API key to an identity.
type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator holds a fixed key table parsed from configuration.
type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses a comma separated list of
// key:tenant:role|role entries. Blank entries are skipped, so trailing
// commas are harmless. An empty spec yields a validator that rejects
// every key.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, identity, err := parseKeyEntry(entry)
		if err != nil {
			return nil, err
		}
		validator.keys[key] = identity
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func parseKeyEntry(entry string) (string, Identity, error) {
	key, rest, ok := strings.Cut(entry, ":")
	if !ok {
		return "", Identity{}, fmt.Errorf("static key entry %q: want key:tenant:role|role", entry)
	}
	tenant, rolesSpec, ok := strings.Cut(rest, ":")
	if !ok || strings.Contains(rolesSpec, ":") {
		return "", Identity{}, fmt.Errorf("static key entry %q: want key:tenant:role|role", entry)
	}

	key = strings.TrimSpace(key)
	tenant = strings.TrimSpace(tenant)
	if key == "" || tenant == "" {
		return "", Identity{}, fmt.Errorf("static key entry %q: key and tenant must be non-empty", entry)
	}
	roles := splitRoles(rolesSpec)
	if len(roles) == 0 {
		return "", Identity{}, fmt.Errorf("static key entry %q: at least one role is required", entry)
	}
	return key, Identity{TenantID: tenant, Roles: roles}, nil
}

func splitRoles(spec string) []string {
	seen := map[string]struct{}{}
	roles := make([]string, 0, 2)
	for _, role := range strings.Split(spec, "|") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
