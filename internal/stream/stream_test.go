package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() InitParams {
	return InitParams{
		Network:           "base",
		PricePerUnit:      "1000",
		UnitSeconds:       30,
		PayTo:             "0x2222222222222222222222222222222222222222",
		Asset:             "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		MaxTimeoutSeconds: 60,
	}
}

func TestNewSessionRejectsBadPrice(t *testing.T) {
	p := testParams()
	p.PricePerUnit = "not-a-number"
	_, err := NewSession(p)
	assert.Error(t, err)
}

func TestNewSessionRejectsZeroUnitSeconds(t *testing.T) {
	p := testParams()
	p.UnitSeconds = 0
	_, err := NewSession(p)
	assert.Error(t, err)
}

func TestNextRequirementUsesSliceIndex(t *testing.T) {
	s, err := NewSession(testParams())
	require.NoError(t, err)

	first := s.NextRequirement()
	assert.Equal(t, 0, first.SliceIndex)
	assert.Equal(t, "1000", first.Requirements.MaxAmountRequired)
	assert.Equal(t, s.ID(), first.StreamID)
	assert.Equal(t, StateAwaiting, s.State())
}

func TestCurrentMatchesLastNextRequirement(t *testing.T) {
	s, err := NewSession(testParams())
	require.NoError(t, err)

	first := s.NextRequirement()
	assert.Equal(t, first, s.Current())
}

func TestBeginPayRejectsWrongSlice(t *testing.T) {
	s, err := NewSession(testParams())
	require.NoError(t, err)
	s.NextRequirement()

	assert.Error(t, s.BeginPay(1)) // slice 0 is outstanding, not 1
	assert.NoError(t, s.BeginPay(0))
}

func TestBeginPayRejectsWhenNotAwaiting(t *testing.T) {
	s, err := NewSession(testParams())
	require.NoError(t, err)
	// no NextRequirement() called yet: state is StateInit
	assert.Error(t, s.BeginPay(0))
}

func TestAcceptAdvancesSliceAndExtendsWindow(t *testing.T) {
	s, err := NewSession(testParams())
	require.NoError(t, err)
	s.NextRequirement()
	require.NoError(t, s.BeginPay(0))

	now := time.Unix(1_700_000_000, 0)
	accept := s.Accept(now, nil, nil)

	assert.Equal(t, 0, accept.SliceIndex)
	assert.Equal(t, now.UnixMilli()+30_000, accept.PrepaidUntilMs)
	assert.Equal(t, 1, s.SliceIndex())
	assert.Equal(t, StateAwaiting, s.State())
}

func TestAcceptExtendsFromPriorDeadlineNotWallClock(t *testing.T) {
	s, err := NewSession(testParams())
	require.NoError(t, err)

	s.NextRequirement()
	require.NoError(t, s.BeginPay(0))
	first := s.Accept(time.Unix(1_700_000_000, 0), nil, nil)

	s.NextRequirement()
	require.NoError(t, s.BeginPay(1))
	// Second accept happens "early", well before the first prepaid window
	// elapses; the new deadline should extend from the old one, not reset
	// from wall-clock now.
	second := s.Accept(time.Unix(1_700_000_005, 0), nil, nil)

	assert.Equal(t, first.PrepaidUntilMs+30_000, second.PrepaidUntilMs)
}

func TestFailReturnsToAwaitingForRetry(t *testing.T) {
	s, err := NewSession(testParams())
	require.NoError(t, err)
	s.NextRequirement()
	require.NoError(t, s.BeginPay(0))

	s.Fail()
	assert.Equal(t, StateAwaiting, s.State())
	assert.NoError(t, s.BeginPay(0)) // same slice can be retried
}
