// Package policy computes the effective PolicyResult for a path and
// operation by walking a manifest's scope tree (spec.md §4.C).
package policy

import (
	"sort"
	"strings"

	"github.com/ocx/sandboxcore/internal/fam"
)

// Op is a requested file-system operation.
type Op int

const (
	OpProbe Op = iota
	OpRead
	OpWrite
	OpEnumerate
	OpExec
	OpReadlink
	OpCreate
)

// requiredMask maps each operation onto the spec's seven-bit policy mask.
// exec requires read access to the binary being executed; readlink is a
// probe-like existence/metadata check; create requires write access to the
// containing directory scope. This mapping is a necessary implementer
// decision: only four of the seven mask bits (spec.md §3) are allow bits,
// for seven operations, so exec/readlink/create share bits with
// read/probe/write.
// RequiredMask exposes requiredMask for callers (internal/dispatch) that
// need to record which mask bit a report's access attempt corresponds to.
func RequiredMask(op Op) fam.Mask {
	return requiredMask(op)
}

func requiredMask(op Op) fam.Mask {
	switch op {
	case OpProbe:
		return fam.AllowProbe
	case OpRead:
		return fam.AllowRead
	case OpWrite:
		return fam.AllowWrite
	case OpEnumerate:
		return fam.AllowEnumerate
	case OpExec:
		return fam.AllowRead
	case OpReadlink:
		return fam.AllowProbe
	case OpCreate:
		return fam.AllowWrite
	default:
		return 0
	}
}

// ReasonCode explains why a PolicyResult came out the way it did.
type ReasonCode int

const (
	ReasonRootScope ReasonCode = iota
	ReasonExplicitScope
	ReasonConeInherited
	ReasonDeniedExplicit
	ReasonDeniedCone
	ReasonNoMatchDefaultDeny
)

// Result is the evaluator's verdict for one (path, operation) pair.
type Result struct {
	Allowed  bool
	Report   bool
	Expected bool
	Reason   ReasonCode
}

// NormalizePath case-folds, collapses duplicate separators and resolves ".."
// lexically (never by stat, per spec.md §4.C).
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	leadingSlash := strings.HasPrefix(path, "/")
	raw := strings.Split(path, "/")
	stack := make([]string, 0, len(raw))
	for _, seg := range raw {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, strings.ToUpper(seg))
		}
	}
	joined := strings.Join(stack, "/")
	if leadingSlash {
		return "/" + joined
	}
	return joined
}

// components splits a normalized path into its path components.
func components(normalized string) []string {
	normalized = strings.TrimPrefix(normalized, "/")
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, "/")
}

// Evaluate walks root's scope tree for path and op, combining cone_policy
// while descending and then OR-ing in the most specific matching node's
// (non-cone) policy_mask. Bits only accumulate: a deeper node's
// policy_mask cannot clear a grant or a Deny inherited from an ancestor's
// cone. Equal-depth ties are impossible in a
// well-formed tree (sibling names are unique); where case-folding makes two
// sibling names collide, the first in lexicographic order on the
// case-folded bytes wins (spec.md §9 Open Question 1, see DESIGN.md).
func Evaluate(root *fam.ScopeNode, path string, op Op) Result {
	if root == nil {
		return Result{Allowed: false, Report: true, Reason: ReasonNoMatchDefaultDeny}
	}

	normalized := NormalizePath(path)
	parts := components(normalized)

	node := root
	cone := root.ConePolicy
	mostSpecific := root
	mostSpecificDepth := 0

	depth := 0
	for _, part := range parts {
		child := lookupChild(node, part)
		if child == nil {
			break
		}
		depth++
		node = child
		cone = cone.Combine(child.ConePolicy)
		mostSpecific = child
		mostSpecificDepth = depth
	}
	_ = mostSpecificDepth

	effective := cone
	want := requiredMask(op)

	// The most specific matching node's own policy_mask is added to the
	// inherited cone bits; it cannot remove any of them.
	effective = effective.Combine(mostSpecific.PolicyMask)

	denied := effective.Has(fam.Deny)
	allowed := !denied && effective.Has(want)
	report := effective.Has(fam.ReportAccess) || denied
	expected := effective.Has(fam.ReportExplicitExpected)

	reason := ReasonNoMatchDefaultDeny
	switch {
	case denied && mostSpecific != root:
		reason = ReasonDeniedExplicit
	case denied:
		reason = ReasonDeniedCone
	case mostSpecific == root:
		reason = ReasonRootScope
	case mostSpecific.PolicyMask.Has(want):
		reason = ReasonExplicitScope
	default:
		reason = ReasonConeInherited
	}

	return Result{Allowed: allowed, Report: report, Expected: expected, Reason: reason}
}

func lookupChild(node *fam.ScopeNode, name string) *fam.ScopeNode {
	candidates := make([]*fam.ScopeNode, 0, 1)
	for _, c := range node.Children {
		if strings.EqualFold(c.Name, name) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	sort.Slice(candidates, func(i, j int) bool {
		return strings.ToUpper(candidates[i].Name) < strings.ToUpper(candidates[j].Name)
	})
	return candidates[0]
}
