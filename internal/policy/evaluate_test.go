package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/sandboxcore/internal/fam"
)

func TestEvaluateAllowAllRoot(t *testing.T) {
	root := &fam.ScopeNode{
		PolicyMask: fam.AllowAll | fam.ReportAccess,
		ConePolicy: fam.AllowAll | fam.ReportAccess,
	}

	res := Evaluate(root, "/tmp/a.txt", OpRead)
	assert.True(t, res.Allowed)
	assert.True(t, res.Report)
}

func TestEvaluateNestedDeny(t *testing.T) {
	root := &fam.ScopeNode{
		PolicyMask: fam.AllowAll | fam.ReportAccess,
		ConePolicy: fam.AllowAll | fam.ReportAccess,
		Children: []*fam.ScopeNode{
			{
				Name: "tmp",
				Children: []*fam.ScopeNode{
					{
						Name:       "obj",
						PolicyMask: fam.Deny | fam.ReportAccess,
						ConePolicy: fam.Deny | fam.ReportAccess,
					},
				},
			},
		},
	}

	res := Evaluate(root, "/tmp/obj/t1.obj", OpProbe)
	assert.False(t, res.Allowed)
	assert.True(t, res.Report)
	assert.Equal(t, ReasonDeniedExplicit, res.Reason)

	// A sibling outside the denied cone stays allowed.
	res = Evaluate(root, "/tmp/other/x.txt", OpRead)
	assert.True(t, res.Allowed)
}

func TestEvaluateMostSpecificWins(t *testing.T) {
	// Deny bits are sticky: once a cone carries Deny, no deeper node can
	// wholesale un-deny via the additive bitset (there is no "clear" bit,
	// only "set"). A more specific node instead adds expectations on top
	// of an allow cone, which is the well-formed case this design targets.
	root := &fam.ScopeNode{
		PolicyMask: fam.AllowAll,
		ConePolicy: fam.AllowAll,
		Children: []*fam.ScopeNode{
			{
				Name:       "secrets",
				PolicyMask: fam.Deny,
				ConePolicy: fam.Deny,
				Children: []*fam.ScopeNode{
					{
						Name:       "public.txt",
						PolicyMask: fam.AllowRead,
						ConePolicy: 0,
					},
				},
			},
			{
				Name:       "explicit",
				PolicyMask: fam.AllowRead | fam.ReportExplicitExpected,
				ConePolicy: 0,
			},
		},
	}

	res := Evaluate(root, "/secrets/shadow", OpRead)
	assert.False(t, res.Allowed)

	res = Evaluate(root, "/secrets/public.txt", OpRead)
	assert.False(t, res.Allowed, "deny cone bits are additive and cannot be cleared by a deeper allow")

	res = Evaluate(root, "/explicit/file", OpRead)
	assert.True(t, res.Allowed)
	assert.True(t, res.Expected, "the more specific node's own policy_mask adds report_explicit_expected on top of the inherited allow-all cone")
}

func TestNormalizePathCaseAndDots(t *testing.T) {
	assert.Equal(t, "/A/B", NormalizePath("/a/./B/../b"))
	assert.Equal(t, "/A", NormalizePath("/../A"))
	assert.Equal(t, "/A/B", NormalizePath("/A//B"))
}

func TestEvaluateCaseInsensitive(t *testing.T) {
	root := &fam.ScopeNode{
		PolicyMask: 0,
		ConePolicy: 0,
		Children: []*fam.ScopeNode{
			{Name: "Tmp", PolicyMask: fam.AllowRead, ConePolicy: fam.AllowRead},
		},
	}

	res := Evaluate(root, "/TMP/file", OpRead)
	assert.True(t, res.Allowed)
}

func TestEvaluateOperationMapping(t *testing.T) {
	root := &fam.ScopeNode{PolicyMask: fam.AllowRead | fam.AllowWrite, ConePolicy: fam.AllowRead | fam.AllowWrite}

	assert.True(t, Evaluate(root, "/a", OpExec).Allowed, "exec requires read access")
	assert.True(t, Evaluate(root, "/a", OpCreate).Allowed, "create requires write access")
	assert.False(t, Evaluate(root, "/a", OpReadlink).Allowed, "readlink requires probe access, not granted here")
}
