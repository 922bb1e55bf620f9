package iap

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Validator interface {

	// ValidateReceipt sends the raw receipt to the validation service and
	// parses the response. Exactly one remote call is made, unless
	// receiptData is empty, in which case ErrNoData is returned without one.
	//
	// On failure the returned error is a *ValidationError. A Receipt may be
	// returned alongside it when the service answered with a failure status.
	ValidateReceipt(ctx context.Context, receiptData []byte, productIdentifier, sharedSecret string) (*Receipt, error)
}

// CompletionFunc receives the outcome of an asynchronous validation.
// receiptData and productIdentifier are the values the call was started with.
type CompletionFunc func(receipt *Receipt, receiptData []byte, productIdentifier string, err error)

// Result is the outcome of a validation delivered by Client.Go.
type Result struct {
	Receipt           *Receipt
	ReceiptData       []byte
	ProductIdentifier string
	Err               error
}

// Client runs validations asynchronously against a Validator. It holds no
// per-call state, so a single Client can serve any number of concurrent calls.
type Client struct {
	log       *zap.Logger
	validator Validator
}

func NewClient(log *zap.Logger, validator Validator) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		log:       log,
		validator: validator,
	}
}

// Validate starts a validation and calls completion exactly once with the
// result. Empty receiptData completes with ErrNoData before Validate returns;
// otherwise completion runs on its own goroutine.
//
// Nothing is retried. A cancelled or expired ctx completes with ErrConnection.
func (c *Client) Validate(ctx context.Context, receiptData []byte, productIdentifier, sharedSecret string, completion CompletionFunc) {
	if completion == nil {
		completion = func(*Receipt, []byte, string, error) {}
	}

	log := c.log.With(
		zap.String("call_id", uuid.NewString()),
		zap.String("product_id", productIdentifier),
	)

	if len(receiptData) == 0 {
		log.Debug("No receipt data to validate")
		completion(nil, receiptData, productIdentifier, NewError(ErrorCodeNoData, StatusMissing, nil))
		return
	}

	log = log.With(zap.String("receipt_id", Fingerprint(receiptData)))

	go func() {
		start := time.Now()

		receipt, err := c.validator.ValidateReceipt(ctx, receiptData, productIdentifier, sharedSecret)
		if receipt == nil && err == nil {
			err = NewError(ErrorCodeUnknown, StatusMissing, errors.New("validator returned no receipt"))
		}

		log := log.With(zap.Duration("elapsed", time.Since(start)))
		if err != nil {
			log.Debug("Receipt validation failed", zap.Int("status", int(StatusOf(err))), zap.Error(err))
		} else {
			log.Debug("Receipt validated", zap.Int("status", int(receipt.Status)))
		}

		completion(receipt, receiptData, productIdentifier, err)
	}()
}

// Go is like Validate but delivers the result on a channel. The channel
// receives exactly one Result and is never closed.
func (c *Client) Go(ctx context.Context, receiptData []byte, productIdentifier, sharedSecret string) <-chan Result {
	ch := make(chan Result, 1)
	c.Validate(ctx, receiptData, productIdentifier, sharedSecret, func(receipt *Receipt, data []byte, product string, err error) {
		ch <- Result{
			Receipt:           receipt,
			ReceiptData:       data,
			ProductIdentifier: product,
			Err:               err,
		}
	})
	return ch
}
