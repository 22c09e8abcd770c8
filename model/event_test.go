package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		from, to EventStatus
		ok       bool
	}{
		{StatusNew, StatusAcknowledged, true},
		{StatusNew, StatusResolved, true},
		{StatusNew, StatusDismissed, true},
		{StatusAcknowledged, StatusResolved, true},
		{StatusAcknowledged, StatusDismissed, false},
		{StatusAcknowledged, StatusNew, false},
		{StatusResolved, StatusNew, false},
		{StatusResolved, StatusAcknowledged, false},
		{StatusResolved, StatusDismissed, false},
		{StatusDismissed, StatusNew, false},
		{StatusDismissed, StatusResolved, false},
		{StatusNew, StatusNew, false},
	}
	for _, tc := range cases {
		err := ValidateTransition(tc.from, tc.to)
		if tc.ok {
			require.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			require.Error(t, err, "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestEventOpen(t *testing.T) {
	require.True(t, RegressionEvent{Status: StatusNew}.Open())
	require.True(t, RegressionEvent{Status: StatusAcknowledged}.Open())
	require.False(t, RegressionEvent{Status: StatusResolved}.Open())
	require.False(t, RegressionEvent{Status: StatusDismissed}.Open())
}

func TestSeverityString(t *testing.T) {
	require.Equal(t, "low", SeverityLow.String())
	require.Equal(t, "critical", SeverityCritical.String())
	require.Equal(t, "severity(9)", Severity(9).String())
}
