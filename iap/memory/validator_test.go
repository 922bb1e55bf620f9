package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/code-payments/iap-receipt-validation/iap"
	"github.com/code-payments/iap-receipt-validation/iap/tests"
)

func TestMemoryValidator(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("error generating key pair: %v", err)
	}

	validator := NewMemoryValidator(zaptest.NewLogger(t), pub, WithSharedSecret("secret"))
	validReceiptFunc := func(productID string) []byte {
		return GenerateValidReceipt(priv, productID)
	}

	teardown := func() {}

	tests.RunValidatorTests(t, validator, validReceiptFunc, teardown)
}

func TestMemoryValidator_NoDataMakesNoCall(t *testing.T) {
	pub, _, err := GenerateKeyPair()
	require.NoError(t, err)

	validator := NewMemoryValidator(zaptest.NewLogger(t), pub)

	result := <-iap.NewClient(zaptest.NewLogger(t), validator).Go(context.Background(), nil, "com.example.product", "")
	require.ErrorIs(t, result.Err, iap.ErrNoData)
	require.Nil(t, result.Receipt)
	require.Equal(t, "com.example.product", result.ProductIdentifier)

	require.Zero(t, validator.(*MemoryValidator).Calls())
}

func TestMemoryValidator_FailureStatuses(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)
	_, otherPriv, err := GenerateKeyPair()
	require.NoError(t, err)

	validator := NewMemoryValidator(zaptest.NewLogger(t), pub, WithSharedSecret("secret"))

	for _, tc := range []struct {
		name     string
		data     []byte
		secret   string
		expected iap.Status
	}{
		{"Malformed", []byte("invalid"), "secret", iap.StatusInvalidReceiptData},
		{"BadSignature", GenerateValidReceipt(otherPriv, "com.example.product"), "secret", iap.StatusAuthError},
		{"WrongSecret", GenerateValidReceipt(priv, "com.example.product"), "wrong", iap.StatusAccountError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			receipt, err := validator.ValidateReceipt(context.Background(), tc.data, "com.example.product", tc.secret)
			require.ErrorIs(t, err, iap.ErrApple)
			require.Equal(t, tc.expected, iap.StatusOf(err))
			require.NotNil(t, receipt)
			require.Equal(t, tc.expected, receipt.Status)
			require.Empty(t, receipt.TransactionID)
		})
	}

	require.EqualValues(t, 3, validator.(*MemoryValidator).Calls())
}

func TestMemoryValidator_SubscriptionExpired(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	validator := NewMemoryValidator(zaptest.NewLogger(t), pub, WithExpiredProducts("com.example.monthly"))
	validator.(*MemoryValidator).now = func() time.Time { return now }

	receipt, err := validator.ValidateReceipt(context.Background(), GenerateValidReceipt(priv, "com.example.monthly"), "com.example.monthly", "")
	require.ErrorIs(t, err, iap.ErrApple)
	require.Equal(t, iap.StatusSubscriptionExpired, iap.StatusOf(err))

	require.NotNil(t, receipt)
	require.Equal(t, "com.example.monthly", receipt.ProductID)
	require.NotNil(t, receipt.ExpirationDate)
	require.True(t, receipt.ExpirationDate.Before(now))
	require.NotNil(t, receipt.LatestExpiredReceiptInfo)
	require.Equal(t, "com.example.monthly", receipt.LatestExpiredReceiptInfo["product_id"])
	require.Nil(t, receipt.LatestReceiptInfo)
}

func TestMemoryValidator_Success(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	validator := NewMemoryValidator(zaptest.NewLogger(t), pub)
	validator.(*MemoryValidator).now = func() time.Time { return now }

	data := GenerateValidReceipt(priv, "com.example.lifetime")
	receipt, err := validator.ValidateReceipt(context.Background(), data, "com.example.lifetime", "")
	require.NoError(t, err)
	require.Equal(t, iap.StatusSuccess, receipt.Status)
	require.Equal(t, "Sandbox", receipt.Environment)
	require.Equal(t, now, *receipt.PurchaseDate)
	require.Equal(t, receipt.TransactionID, receipt.OriginalTransactionID)
	require.Nil(t, receipt.ExpirationDate)
	require.NotEmpty(t, receipt.LatestReceiptData)
	require.Equal(t, "com.example.lifetime", receipt.LatestReceiptInfo["product_id"])
}
