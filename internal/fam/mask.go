package fam

// Mask is the policy bit set carried by every ScopeNode, both as its own
// policy_mask and as the inherited cone_policy.
type Mask uint32

const (
	AllowRead Mask = 1 << iota
	AllowWrite
	AllowProbe
	AllowEnumerate
	ReportAccess
	ReportExplicitExpected
	Deny
)

// AllowAll sets all four allow bits (read, write, probe, enumerate) and is the conventional
// root scope of an "allow-all" manifest (spec.md §8 scenario 1).
const AllowAll = AllowRead | AllowWrite | AllowProbe | AllowEnumerate

// Has reports whether every bit in other is set in m.
func (m Mask) Has(other Mask) bool {
	return m&other == other
}

// Combine folds a cone policy into a running mask the way the evaluator
// accumulates cone_policy while descending the scope tree (spec.md §4.C):
// bits are additive, so a descendant never loses a grant or a deny its
// ancestor's cone conferred.
func (m Mask) Combine(cone Mask) Mask {
	return m | cone
}
