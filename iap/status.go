package iap

import "strconv"

// Status is the status code returned by the App Store verifyReceipt service.
// Values are fixed by the remote service.
type Status int

const (
	// StatusMissing is used when the response carried no status, or one that
	// could not be read as an integer.
	StatusMissing Status = -1

	// StatusSuccess means the receipt is valid. For app purchases and
	// non-renewables this does not mean the purchase hasn't expired, only that
	// the receipt itself is well formed and authentic.
	StatusSuccess Status = 0

	// StatusInvalidRequest means the service could not read the JSON object
	// that was sent.
	StatusInvalidRequest Status = 21000

	// StatusInvalidReceiptData means the receipt-data property was malformed
	// or missing.
	StatusInvalidReceiptData Status = 21002

	// StatusAuthError means the receipt could not be authenticated.
	StatusAuthError Status = 21003

	// StatusAccountError means the shared secret does not match the one on
	// file for the account.
	StatusAccountError Status = 21004

	// StatusServiceUnavailable means the receipt server is not currently
	// available.
	StatusServiceUnavailable Status = 21005

	// StatusSubscriptionExpired means the receipt is valid but the
	// subscription has expired. The decoded receipt data is still returned.
	StatusSubscriptionExpired Status = 21006
)

var statusNames = map[Status]string{
	StatusMissing:             "missing",
	StatusSuccess:             "success",
	StatusInvalidRequest:      "invalid request",
	StatusInvalidReceiptData:  "invalid receipt data",
	StatusAuthError:           "receipt authentication failed",
	StatusAccountError:        "shared secret mismatch",
	StatusServiceUnavailable:  "service unavailable",
	StatusSubscriptionExpired: "subscription expired",
}

// IsKnown reports whether s is one of the codes the service documents.
func (s Status) IsKnown() bool {
	if s == StatusMissing {
		return false
	}
	_, ok := statusNames[s]
	return ok
}

// IsFailure reports whether s is a known, non-success code.
func (s Status) IsFailure() bool {
	return s.IsKnown() && s != StatusSuccess
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status " + strconv.Itoa(int(s))
}
