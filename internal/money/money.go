// Package money holds the integer-cents and basis-point arithmetic used by the
// ledger. Amounts are always int64 cents; rates are int64 basis points where
// 10000 bps == 100%.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"
)

// BasisPoints is the denominator for every rate in this package.
const BasisPoints int64 = 10000

// Role identifies who a slice of a purchase is booked to.
type Role string

const (
	RoleAuthor    Role = "author"
	RolePublisher Role = "publisher"
	RolePlatform  Role = "platform"
)

// Known reports whether r is one of the built-in roles. Any other role
// (for example "editor" in a custom split) is an extension role and is
// allocated like the others but can never be the catch-all.
func (r Role) Known() bool {
	switch r {
	case RoleAuthor, RolePublisher, RolePlatform:
		return true
	}
	return false
}

// Rules maps a role to its share in basis points.
type Rules map[Role]int64

// Total returns the sum of all shares.
func (r Rules) Total() int64 {
	var total int64
	for _, bps := range r {
		total += bps
	}
	return total
}

// Without returns a copy of r without the given role.
func (r Rules) Without(role Role) Rules {
	out := make(Rules, len(r))
	for k, v := range r {
		if k != role {
			out[k] = v
		}
	}
	return out
}

// Has reports whether role has an entry, even a zero one.
func (r Rules) Has(role Role) bool {
	_, ok := r[role]
	return ok
}

// Value implements driver.Valuer so rules can be stored as JSONB.
func (r Rules) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for Rules.
func (r *Rules) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}
	b, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, r)
}

// Breakdown is the role -> cents result of splitting a purchase.
type Breakdown map[Role]int64

// Sum returns the total cents across all roles.
func (b Breakdown) Sum() int64 {
	var total int64
	for _, cents := range b {
		total += cents
	}
	return total
}

// Value implements driver.Valuer so a breakdown can be stored as JSONB.
func (b Breakdown) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner for Breakdown.
func (b *Breakdown) Scan(value any) error {
	if value == nil {
		*b = nil
		return nil
	}
	data, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, b)
}

func asBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, errors.New("type assertion to []byte failed")
}

// FeeAndNet splits price into the platform fee and the payee's net.
// The fee always rounds up so the platform never under-collects a fractional
// cent; net is whatever is left and is never negative.
func FeeAndNet(priceCents, feeBps int64) (feeCents, netCents int64) {
	if priceCents <= 0 {
		return 0, 0
	}
	if feeBps < 0 {
		feeBps = 0
	}
	feeCents = (priceCents*feeBps + BasisPoints - 1) / BasisPoints
	if feeCents > priceCents {
		feeCents = priceCents
	}
	netCents = priceCents - feeCents
	return feeCents, netCents
}

// CatchAll returns the role that receives the unallocated remainder:
// publisher if present, else author, else platform.
func CatchAll(rules Rules) Role {
	switch {
	case rules.Has(RolePublisher):
		return RolePublisher
	case rules.Has(RoleAuthor):
		return RoleAuthor
	}
	return RolePlatform
}

// Allocate distributes netCents across rules. Each role gets
// floor(net*bps/10000); whatever flooring or an under-100% rule set leaves
// behind goes to the catch-all role. Roles are walked in sorted order and no
// role can take more than is left, so the result always sums to netCents even
// when the rules total more than 10000 bps. Negative nets allocate nothing.
func Allocate(netCents int64, rules Rules) Breakdown {
	if netCents < 0 {
		netCents = 0
	}

	roles := make([]Role, 0, len(rules))
	for role := range rules {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	out := make(Breakdown, len(rules)+1)
	remaining := netCents
	for _, role := range roles {
		bps := rules[role]
		if bps < 0 {
			bps = 0
		}
		amount := netCents * bps / BasisPoints
		if amount > remaining {
			amount = remaining
		}
		out[role] = amount
		remaining -= amount
	}

	out[CatchAll(rules)] += remaining
	return out
}

// ShareBps expresses part as basis points of whole using integer division.
func ShareBps(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	return part * BasisPoints / whole
}
