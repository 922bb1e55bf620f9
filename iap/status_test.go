package iap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	for _, s := range []Status{
		StatusInvalidRequest,
		StatusInvalidReceiptData,
		StatusAuthError,
		StatusAccountError,
		StatusServiceUnavailable,
		StatusSubscriptionExpired,
	} {
		require.True(t, s.IsKnown(), s.String())
		require.True(t, s.IsFailure(), s.String())
	}

	require.True(t, StatusSuccess.IsKnown())
	require.False(t, StatusSuccess.IsFailure())

	require.False(t, StatusMissing.IsKnown())
	require.False(t, StatusMissing.IsFailure())

	// 21001 is not part of the table.
	require.False(t, Status(21001).IsKnown())
	require.False(t, Status(21007).IsFailure())

	require.Equal(t, "subscription expired", StatusSubscriptionExpired.String())
	require.Equal(t, "status 21007", Status(21007).String())
}
