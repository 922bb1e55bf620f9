package iap

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"
)

// Receipt is the parsed view of a verifyReceipt response. A new Receipt is
// built for every call and is owned by the caller.
//
// When Status is a failure code, the transaction ids and dates must not be
// relied upon. For StatusSubscriptionExpired the latest receipt info fields
// are still populated from the response.
//
// ProductID is the product of the transaction the fields were read from. The
// fields come from the receipt itself, the newest in_app entry for the
// requested product, or the latest receipt info. When the requested product
// has no in_app entry, the latest receipt info may describe a different
// product, so callers should compare ProductID with the one they asked for.
type Receipt struct {
	Status Status

	// Fields holds the raw "receipt" object from the response.
	Fields map[string]any

	ExpirationDate       *time.Time
	OriginalPurchaseDate *time.Time
	PurchaseDate         *time.Time

	OriginalTransactionID string
	ProductID             string
	TransactionID         string

	// LatestReceipt is set when "latest_receipt" is an object.
	// LatestReceiptData is set when it is the base64 receipt blob instead,
	// which is what the service sends for auto-renewable subscriptions.
	LatestReceipt     map[string]any
	LatestReceiptData string

	LatestExpiredReceiptInfo map[string]any
	LatestReceiptInfo        map[string]any

	// Environment is "Sandbox" or "Production" when the service reports it.
	Environment string
}

// serviceTimeLayout is the layout of the non-millisecond date fields, e.g.
// "2014-05-14 16:03:12 Etc/GMT".
const serviceTimeLayout = "2006-01-02 15:04:05 Etc/GMT"

// DecodeResponse parses a verifyReceipt response body and classifies it.
//
// The productIdentifier selects which in_app entry supplies the transaction
// fields for receipts that carry more than one purchase.
//
// A body that is not a JSON object yields a nil Receipt and ErrInvalidData. A
// missing status yields a Receipt with StatusMissing and ErrInvalidData. Known
// failure statuses yield the Receipt together with ErrApple; statuses the
// service does not document yield the Receipt together with ErrUnknown.
func DecodeResponse(body []byte, productIdentifier string) (*Receipt, error) {
	doc, err := decodeObject(body)
	if err != nil {
		return nil, NewError(ErrorCodeInvalidData, StatusMissing, err)
	}

	receipt := newReceipt(doc, productIdentifier)

	switch {
	case receipt.Status == StatusMissing:
		return receipt, NewError(ErrorCodeInvalidData, StatusMissing, errors.New("response has no status"))
	case receipt.Status == StatusSuccess:
		return receipt, nil
	case receipt.Status.IsKnown():
		return receipt, NewError(ErrorCodeApple, receipt.Status, nil)
	default:
		return receipt, NewError(ErrorCodeUnknown, receipt.Status, nil)
	}
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("response is not an object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("response has data after the top-level object")
	}
	return doc, nil
}

func newReceipt(doc map[string]any, productIdentifier string) *Receipt {
	r := &Receipt{
		Status:      statusField(doc),
		Fields:      objectField(doc, "receipt"),
		Environment: stringField(doc, "environment"),
	}

	switch v := doc["latest_receipt"].(type) {
	case map[string]any:
		r.LatestReceipt = v
	case string:
		r.LatestReceiptData = v
	}

	r.LatestReceiptInfo = latestInfo(doc["latest_receipt_info"], productIdentifier)
	r.LatestExpiredReceiptInfo = latestInfo(doc["latest_expired_receipt_info"], productIdentifier)

	tx := transactionFields(r, productIdentifier)
	if tx == nil {
		return r
	}

	r.ExpirationDate = timeField(tx, "expires_date_ms", "expires_date", "expires_date_formatted")
	r.OriginalPurchaseDate = timeField(tx, "original_purchase_date_ms", "original_purchase_date")
	r.PurchaseDate = timeField(tx, "purchase_date_ms", "purchase_date")
	r.OriginalTransactionID = stringField(tx, "original_transaction_id")
	r.ProductID = stringField(tx, "product_id")
	r.TransactionID = stringField(tx, "transaction_id")
	return r
}

// transactionFields picks the object that describes the purchase: the
// receipt itself for single-transaction receipts, the newest matching in_app
// entry for app receipts, or the latest receipt info as a last resort.
func transactionFields(r *Receipt, productIdentifier string) map[string]any {
	if r.Fields != nil {
		if _, ok := r.Fields["transaction_id"]; ok {
			return r.Fields
		}
		if _, ok := r.Fields["product_id"]; ok {
			return r.Fields
		}
		if entries, ok := r.Fields["in_app"].([]any); ok {
			if entry := newestEntry(entries, productIdentifier); entry != nil {
				return entry
			}
		}
	}
	if r.LatestReceiptInfo != nil {
		return r.LatestReceiptInfo
	}
	return r.LatestExpiredReceiptInfo
}

// latestInfo accepts either a single object or an array of transactions, in
// which case the newest one for the product wins (or the newest overall if
// none match).
func latestInfo(v any, productIdentifier string) map[string]any {
	switch v := v.(type) {
	case map[string]any:
		return v
	case []any:
		if entry := newestEntry(v, productIdentifier); entry != nil {
			return entry
		}
		return newestEntry(v, "")
	}
	return nil
}

func newestEntry(entries []any, productIdentifier string) map[string]any {
	var (
		newest     map[string]any
		newestTime time.Time
	)
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if productIdentifier != "" && stringField(entry, "product_id") != productIdentifier {
			continue
		}

		var purchased time.Time
		if t := timeField(entry, "purchase_date_ms", "purchase_date"); t != nil {
			purchased = *t
		}
		// Ties go to the later entry; the service lists oldest first.
		if newest == nil || !purchased.Before(newestTime) {
			newest, newestTime = entry, purchased
		}
	}
	return newest
}

func statusField(doc map[string]any) Status {
	switch v := doc["status"].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return StatusMissing
		}
		return Status(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return StatusMissing
		}
		return Status(n)
	}
	return StatusMissing
}

func objectField(doc map[string]any, key string) map[string]any {
	v, _ := doc[key].(map[string]any)
	return v
}

func stringField(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// timeField returns the first of keys that holds a readable timestamp.
func timeField(doc map[string]any, keys ...string) *time.Time {
	for _, key := range keys {
		if t, ok := parseTime(doc[key]); ok {
			return &t
		}
	}
	return nil
}

func parseTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	case string:
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		if t, err := time.Parse(serviceTimeLayout, v); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
