package memory

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/iap-receipt-validation/iap"
)

// MemoryValidator is an in-memory stand-in for the verifyReceipt service. A
// receipt is a product id signed by the owner key, in the format
// base64(signature)|product_id. Responses are rendered in the service's JSON
// shape and decoded the same way real ones are.
type MemoryValidator struct {
	log       *zap.Logger
	publicKey ed25519.PublicKey

	sharedSecret string
	expired      map[string]struct{}
	now          func() time.Time

	calls atomic.Int64
}

type Option func(v *MemoryValidator)

// WithSharedSecret makes the validator answer StatusAccountError when the
// caller's secret doesn't match.
func WithSharedSecret(secret string) Option {
	return func(v *MemoryValidator) {
		v.sharedSecret = secret
	}
}

// WithExpiredProducts makes the validator answer StatusSubscriptionExpired for
// the given products.
func WithExpiredProducts(productIDs ...string) Option {
	return func(v *MemoryValidator) {
		for _, id := range productIDs {
			v.expired[id] = struct{}{}
		}
	}
}

// NewMemoryValidator creates a new MemoryValidator from a given public key.
func NewMemoryValidator(log *zap.Logger, pubKey ed25519.PublicKey, opts ...Option) iap.Validator {
	if log == nil {
		log = zap.NewNop()
	}

	v := &MemoryValidator{
		log:       log,
		publicKey: pubKey,
		expired:   map[string]struct{}{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Calls returns how many receipts reached the fake service.
func (v *MemoryValidator) Calls() int64 {
	return v.calls.Load()
}

func (v *MemoryValidator) ValidateReceipt(ctx context.Context, receiptData []byte, productIdentifier, sharedSecret string) (*iap.Receipt, error) {
	if len(receiptData) == 0 {
		return nil, iap.NewError(iap.ErrorCodeNoData, iap.StatusMissing, nil)
	}

	v.calls.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, iap.NewError(iap.ErrorCodeConnection, iap.StatusMissing, errors.Wrap(err, "request aborted"))
	}

	body, err := json.Marshal(v.respond(receiptData, sharedSecret))
	if err != nil {
		return nil, iap.NewError(iap.ErrorCodeUnknown, iap.StatusMissing, errors.Wrap(err, "failed to render response"))
	}

	receipt, err := iap.DecodeResponse(body, productIdentifier)
	if err != nil {
		v.log.Debug("Receipt failed validation",
			zap.String("product_id", productIdentifier),
			zap.String("receipt_id", iap.Fingerprint(receiptData)),
			zap.Error(err),
		)
	}
	return receipt, err
}

func (v *MemoryValidator) respond(receiptData []byte, sharedSecret string) map[string]any {
	signature, productID, err := parseReceipt(receiptData)
	if err != nil {
		return map[string]any{"status": iap.StatusInvalidReceiptData}
	}

	if !ed25519.Verify(v.publicKey, productID, signature) {
		return map[string]any{"status": iap.StatusAuthError}
	}

	if v.sharedSecret != "" && sharedSecret != v.sharedSecret {
		return map[string]any{"status": iap.StatusAccountError}
	}

	now := v.now()
	transactionID := iap.Fingerprint(signature)
	fields := map[string]any{
		"product_id":                string(productID),
		"transaction_id":            transactionID,
		"original_transaction_id":   transactionID,
		"purchase_date_ms":          millis(now),
		"original_purchase_date_ms": millis(now),
	}

	resp := map[string]any{
		"status":      iap.StatusSuccess,
		"environment": "Sandbox",
		"receipt":     fields,
	}

	if _, ok := v.expired[string(productID)]; ok {
		purchased := now.Add(-31 * 24 * time.Hour)
		fields["purchase_date_ms"] = millis(purchased)
		fields["original_purchase_date_ms"] = millis(purchased)
		fields["expires_date"] = millis(now.Add(-time.Hour))

		resp["status"] = iap.StatusSubscriptionExpired
		resp["latest_expired_receipt_info"] = fields
	} else {
		resp["latest_receipt"] = base64.StdEncoding.EncodeToString(receiptData)
		resp["latest_receipt_info"] = fields
	}

	return resp
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// GenerateValidReceipt signs productID with owner and returns receipt bytes
// the matching MemoryValidator accepts.
func GenerateValidReceipt(owner ed25519.PrivateKey, productID string) []byte {
	signature := ed25519.Sign(owner, []byte(productID))
	return []byte(base64.StdEncoding.EncodeToString(signature) + "|" + productID)
}

func parseReceipt(receipt []byte) (signature []byte, productID []byte, err error) {
	parts := bytes.Split(receipt, []byte("|"))
	if len(parts) != 2 {
		return nil, nil, errors.Errorf("invalid receipt format: %q", receipt)
	}

	signature, err = base64.StdEncoding.DecodeString(string(parts[0]))
	if err != nil {
		return nil, nil, errors.Wrap(err, "error decoding signature")
	}

	return signature, parts[1], nil
}
