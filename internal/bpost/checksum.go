// Package bpost builds the signed parameter sets required by the BPOST
// Shipping Manager hosted page.
package bpost

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ActionStart opens the Shipping Manager flow for a new order.
const ActionStart = "START"

var ErrMissingField = errors.New("bpost: missing mandatory field")

// Checksum signs a parameter map the way the Shipping Manager verifies it:
// keys sorted ascending, joined as k=v pairs with '&', passphrase appended as
// a trailing unkeyed suffix, SHA-256 over the UTF-8 bytes, lowercase hex.
func Checksum(fields map[string]string, passphrase string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fields[k])
		sb.WriteByte('&')
	}
	sb.WriteString(passphrase)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// StartRequest describes one hosted-flow opening for an order. Optional
// fields left at their zero value are excluded from the signature entirely;
// the Shipping Manager rejects signatures computed over empty strings.
type StartRequest struct {
	AccountID       string
	CustomerCountry string
	OrderReference  string

	CostCenter       string
	OrderWeightGrams int
	ExtraSecure      bool
}

// Params validates the mandatory fields, assembles the parameter map and
// signs it. The returned map is what the client forwards verbatim to the
// hosted form.
func (r StartRequest) Params(passphrase string) (map[string]string, error) {
	if r.AccountID == "" {
		return nil, fmt.Errorf("%w: accountId", ErrMissingField)
	}
	if r.CustomerCountry == "" {
		return nil, fmt.Errorf("%w: customerCountry", ErrMissingField)
	}
	if r.OrderReference == "" {
		return nil, fmt.Errorf("%w: orderReference", ErrMissingField)
	}

	fields := map[string]string{
		"accountId":       r.AccountID,
		"action":          ActionStart,
		"customerCountry": r.CustomerCountry,
		"orderReference":  r.OrderReference,
	}
	if r.CostCenter != "" {
		fields["costCenter"] = r.CostCenter
	}
	if r.OrderWeightGrams > 0 {
		fields["orderWeight"] = strconv.Itoa(r.OrderWeightGrams)
	}
	if r.ExtraSecure {
		fields["extraSecure"] = "true"
	}

	fields["checksum"] = Checksum(fields, passphrase)
	return fields, nil
}
