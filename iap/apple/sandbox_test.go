package apple

import (
	"context"
	"encoding/base64"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/code-payments/iap-receipt-validation/iap"
)

// Test the real thing against the sandbox, requires a base64 receipt from a
// sandbox purchase.
func TestSandboxValidator(t *testing.T) {
	_ = godotenv.Load()

	encoded := os.Getenv("IAP_TEST_RECEIPT")
	if encoded == "" {
		t.Skip("IAP_TEST_RECEIPT is not set, skipping integration test")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	validator := NewValidator(zaptest.NewLogger(t), WithSandbox())

	receipt, err := validator.ValidateReceipt(
		context.Background(),
		data,
		os.Getenv("IAP_TEST_PRODUCT_ID"),
		os.Getenv("IAP_TEST_SHARED_SECRET"),
	)
	if err != nil {
		// Expired sandbox subscriptions are still a successful round trip.
		require.ErrorIs(t, err, iap.ErrApple)
	}
	require.NotNil(t, receipt)
	t.Logf("Receipt: %+v", receipt)
}
