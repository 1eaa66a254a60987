package agent

import (
	"context"
	"testing"

	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompliance_Verdicts(t *testing.T) {
	ac, rec := newTestContext(t)
	gate := ac.Compliance.(*compliance.Engine)

	base := testutil.NewProspectBuilder("acme").Region("US").Build()
	body := "Hello Acme team." + gate.Footer(base)

	allowed := testutil.NewProspectBuilder("acme").Region("US").Draft("Hi", body).Build()
	out, err := Compliance(DefaultOptions())(context.Background(), ac, allowed)
	require.NoError(t, err)
	assert.True(t, out.Compliance.Allowed())
	assert.Equal(t, "can-spam", out.Compliance.Policy)

	require.NoError(t, gate.Add(compliance.Entry{Type: compliance.EntryDomain, Value: "acme.com"}))
	out, err = Compliance(DefaultOptions())(context.Background(), ac, allowed)
	require.NoError(t, err)
	assert.True(t, out.Compliance.Blocked())
	assert.Equal(t, "domain suppressed", out.Compliance.Reason)

	verdicts := rec.Kind(core.EventPolicyVerdict)
	require.Len(t, verdicts, 2)
	assert.Equal(t, "acme", verdicts[1].ProspectID)
}

func TestCompliance_NoDraftIsBlocked(t *testing.T) {
	ac, _ := newTestContext(t)
	out, err := Compliance(DefaultOptions())(context.Background(), ac, testutil.NewProspectBuilder("acme").Build())
	require.NoError(t, err)
	assert.True(t, out.Compliance.Blocked())
	assert.Equal(t, "no draft to check", out.Compliance.Reason)
}
