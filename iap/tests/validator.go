package tests

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/code-payments/iap-receipt-validation/iap"
)

// ValidReceiptForProduct returns receipt bytes the validator under test
// accepts for productID.
type ValidReceiptForProduct func(productID string) []byte

const completionTimeout = 5 * time.Second

func RunValidatorTests(t *testing.T, v iap.Validator, validReceiptFunc ValidReceiptForProduct, teardown func()) {
	for _, tf := range []func(t *testing.T, v iap.Validator, validReceiptFunc ValidReceiptForProduct){
		testNoData,
		testValidReceipt,
		testInvalidReceipt,
		testCancelledContext,
		testConcurrentValidations,
		testFuture,
	} {
		tf(t, v, validReceiptFunc)
		teardown()
	}
}

type completion struct {
	receipt     *iap.Receipt
	receiptData []byte
	productID   string
	err         error
}

func validate(t *testing.T, client *iap.Client, ctx context.Context, receiptData []byte, productID, secret string) completion {
	done := make(chan completion, 2)
	client.Validate(ctx, receiptData, productID, secret, func(receipt *iap.Receipt, data []byte, product string, err error) {
		done <- completion{receipt, data, product, err}
	})

	var result completion
	select {
	case result = <-done:
	case <-time.After(completionTimeout):
		t.Fatal("timed out waiting for completion")
	}

	// The completion must not fire a second time.
	select {
	case <-done:
		t.Fatal("completion fired more than once")
	case <-time.After(10 * time.Millisecond):
	}
	return result
}

func testNoData(t *testing.T, v iap.Validator, _ ValidReceiptForProduct) {
	t.Run("NoData", func(t *testing.T) {
		client := iap.NewClient(zaptest.NewLogger(t), v)

		for _, data := range [][]byte{nil, {}} {
			result := validate(t, client, context.Background(), data, "com.example.product", "secret")
			require.ErrorIs(t, result.err, iap.ErrNoData)
			require.Nil(t, result.receipt)
			require.Equal(t, "com.example.product", result.productID)
			require.Empty(t, result.receiptData)
		}

		receipt, err := v.ValidateReceipt(context.Background(), nil, "com.example.product", "")
		require.ErrorIs(t, err, iap.ErrNoData)
		require.Nil(t, receipt)
	})
}

func testValidReceipt(t *testing.T, v iap.Validator, validReceiptFunc ValidReceiptForProduct) {
	t.Run("ValidReceipt", func(t *testing.T) {
		client := iap.NewClient(zaptest.NewLogger(t), v)

		productID := "com.example.subscription.monthly"
		data := validReceiptFunc(productID)

		result := validate(t, client, context.Background(), data, productID, "secret")
		require.NoError(t, result.err)
		require.NotNil(t, result.receipt)
		require.Equal(t, iap.StatusSuccess, result.receipt.Status)
		require.Equal(t, productID, result.receipt.ProductID)
		require.NotEmpty(t, result.receipt.TransactionID)
		require.NotNil(t, result.receipt.PurchaseDate)
		require.Equal(t, data, result.receiptData)
		require.Equal(t, productID, result.productID)
	})
}

func testInvalidReceipt(t *testing.T, v iap.Validator, _ ValidReceiptForProduct) {
	t.Run("InvalidReceipt", func(t *testing.T) {
		client := iap.NewClient(zaptest.NewLogger(t), v)

		data := []byte("invalid")
		result := validate(t, client, context.Background(), data, "com.example.product", "secret")
		require.Error(t, result.err)

		code, ok := iap.CodeOf(result.err)
		require.True(t, ok)
		require.NotEqual(t, iap.ErrorCodeNoData, code)
		if result.receipt != nil {
			require.NotEqual(t, iap.StatusSuccess, result.receipt.Status)
		}
		require.Equal(t, data, result.receiptData)
		require.Equal(t, "com.example.product", result.productID)
	})
}

func testCancelledContext(t *testing.T, v iap.Validator, validReceiptFunc ValidReceiptForProduct) {
	t.Run("CancelledContext", func(t *testing.T) {
		client := iap.NewClient(zaptest.NewLogger(t), v)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		productID := "com.example.product"
		data := validReceiptFunc(productID)

		result := validate(t, client, ctx, data, productID, "secret")
		require.ErrorIs(t, result.err, iap.ErrConnection)
		require.Nil(t, result.receipt)
		require.Equal(t, data, result.receiptData)
		require.Equal(t, productID, result.productID)
	})
}

func testConcurrentValidations(t *testing.T, v iap.Validator, validReceiptFunc ValidReceiptForProduct) {
	t.Run("ConcurrentValidations", func(t *testing.T) {
		client := iap.NewClient(zaptest.NewLogger(t), v)

		const count = 16

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			results = map[string]completion{}
		)

		for i := 0; i < count; i++ {
			productID := fmt.Sprintf("com.example.product.%d", i)

			wg.Add(1)
			client.Validate(context.Background(), validReceiptFunc(productID), productID, "secret", func(receipt *iap.Receipt, data []byte, product string, err error) {
				defer wg.Done()

				mu.Lock()
				defer mu.Unlock()
				results[productID] = completion{receipt, data, product, err}
			})
		}
		wg.Wait()

		require.Len(t, results, count)
		for productID, result := range results {
			require.NoError(t, result.err)
			require.Equal(t, productID, result.productID)
			require.Equal(t, validReceiptFunc(productID), result.receiptData)
			require.Equal(t, productID, result.receipt.ProductID)
		}
	})
}

func testFuture(t *testing.T, v iap.Validator, validReceiptFunc ValidReceiptForProduct) {
	t.Run("Future", func(t *testing.T) {
		client := iap.NewClient(zaptest.NewLogger(t), v)

		productID := "com.example.product"
		data := validReceiptFunc(productID)

		select {
		case result := <-client.Go(context.Background(), data, productID, "secret"):
			require.NoError(t, result.Err)
			require.Equal(t, iap.StatusSuccess, result.Receipt.Status)
			require.Equal(t, data, result.ReceiptData)
			require.Equal(t, productID, result.ProductIdentifier)
		case <-time.After(completionTimeout):
			t.Fatal("timed out waiting for result")
		}

		result := <-client.Go(context.Background(), nil, productID, "secret")
		require.ErrorIs(t, result.Err, iap.ErrNoData)
		require.Nil(t, result.Receipt)
	})
}
