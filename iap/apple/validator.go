package apple

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/awa/go-iap/appstore"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/iap-receipt-validation/iap"
)

// maxResponseSize caps how much of a response body is read. Real responses
// are a few KiB even with a long transaction history.
const maxResponseSize = 1 << 20

// Validator validates receipts with the App Store verifyReceipt service.
type Validator struct {
	log        *zap.Logger
	httpClient Doer

	// The verifyReceipt URL, production by default.
	endpoint string

	timeout                time.Duration
	excludeOldTransactions bool
}

func NewValidator(log *zap.Logger, opts ...Option) iap.Validator {
	if log == nil {
		log = zap.NewNop()
	}

	v := &Validator{
		log:        log,
		httpClient: &http.Client{},
		endpoint:   appstore.ProductionURL,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) ValidateReceipt(ctx context.Context, receiptData []byte, productIdentifier, sharedSecret string) (*iap.Receipt, error) {
	if len(receiptData) == 0 {
		return nil, iap.NewError(iap.ErrorCodeNoData, iap.StatusMissing, nil)
	}

	log := v.log.With(
		zap.String("product_id", productIdentifier),
		zap.String("receipt_id", iap.Fingerprint(receiptData)),
		zap.String("endpoint", v.endpoint),
	)

	body, err := json.Marshal(appstore.IAPRequest{
		ReceiptData:            base64.StdEncoding.EncodeToString(receiptData),
		Password:               sharedSecret,
		ExcludeOldTransactions: v.excludeOldTransactions,
	})
	if err != nil {
		return nil, iap.NewError(iap.ErrorCodeUnknown, iap.StatusMissing, errors.Wrap(err, "failed to marshal request"))
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, iap.NewError(iap.ErrorCodeUnknown, iap.StatusMissing, errors.Wrap(err, "failed to create request"))
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Sending receipt for validation")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		log.Warn("Failed to reach validation service", zap.Error(err))
		return nil, iap.NewError(iap.ErrorCodeConnection, iap.StatusMissing, errors.Wrap(err, "failed to send request"))
	}
	if resp == nil || resp.Body == nil {
		log.Warn("Validation service returned no response")
		return nil, iap.NewError(iap.ErrorCodeConnection, iap.StatusMissing, errors.New("no response"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("Unexpected http status from validation service", zap.Int("http_status", resp.StatusCode))
		return nil, iap.NewError(iap.ErrorCodeConnection, iap.StatusMissing, errors.Errorf("unexpected http status code: %d", resp.StatusCode))
	}

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		log.Warn("Failed to read validation response", zap.Error(err))
		return nil, iap.NewError(iap.ErrorCodeConnection, iap.StatusMissing, errors.Wrap(err, "failed to read response body"))
	}
	if len(responseBody) > maxResponseSize {
		log.Warn("Validation response too large")
		return nil, iap.NewError(iap.ErrorCodeInvalidData, iap.StatusMissing, errors.Errorf("response exceeds %d bytes", maxResponseSize))
	}

	receipt, err := iap.DecodeResponse(responseBody, productIdentifier)
	if err != nil {
		log.Warn("Receipt failed validation", zap.Int("status", int(iap.StatusOf(err))), zap.Error(err))
		return receipt, err
	}

	log.Debug("Receipt is valid", zap.String("transaction_id", receipt.TransactionID))
	return receipt, nil
}
