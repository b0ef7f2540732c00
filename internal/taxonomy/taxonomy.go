// Package taxonomy provides the static onboarding catalog: which industries
// exist, which roles they contain, and which suggested lecture topics each
// role carries. The catalog ships embedded and is read-only at runtime.
package taxonomy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed catalog.json
var catalogJSON []byte

// Role is one selectable role within an industry.
type Role struct {
	Label  string   `json:"label"`
	Topics []string `json:"topics"`
}

// Industry groups the roles available for one industry selection.
type Industry struct {
	Label string          `json:"label"`
	Roles map[string]Role `json:"roles"`
}

// Catalog is the industry → role → topics lookup table.
type Catalog struct {
	industries map[string]Industry
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	var industries map[string]Industry
	if err := json.Unmarshal(catalogJSON, &industries); err != nil {
		return nil, fmt.Errorf("parsing onboarding catalog: %w", err)
	}
	return &Catalog{industries: industries}, nil
}

// Industries returns all industry identifiers in sorted order.
func (c *Catalog) Industries() []string {
	ids := make([]string, 0, len(c.industries))
	for id := range c.industries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Roles returns the role identifiers for an industry in sorted order,
// or nil for an unknown industry.
func (c *Catalog) Roles(industry string) []string {
	ind, ok := c.industries[industry]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(ind.Roles))
	for id := range ind.Roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasRole reports whether the (industry, role) pair exists in the catalog.
func (c *Catalog) HasRole(industry, role string) bool {
	ind, ok := c.industries[industry]
	if !ok {
		return false
	}
	_, ok = ind.Roles[role]
	return ok
}

// Topics returns the suggested topics for an (industry, role) pair.
// Unknown pairs yield an empty list, mirroring the cleared topic list
// when no valid selection is active.
func (c *Catalog) Topics(industry, role string) []string {
	ind, ok := c.industries[industry]
	if !ok {
		return nil
	}
	r, ok := ind.Roles[role]
	if !ok {
		return nil
	}
	return r.Topics
}

// IndustryLabel returns the display label for an industry, or the raw
// identifier when unknown.
func (c *Catalog) IndustryLabel(industry string) string {
	if ind, ok := c.industries[industry]; ok {
		return ind.Label
	}
	return industry
}

// RoleLabel returns the display label for a role, or the raw identifier
// when unknown.
func (c *Catalog) RoleLabel(industry, role string) string {
	if ind, ok := c.industries[industry]; ok {
		if r, ok := ind.Roles[role]; ok {
			return r.Label
		}
	}
	return role
}
