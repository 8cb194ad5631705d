package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Domain prefixes for content-derived identity. The version suffix allows
// a future algorithm change without colliding with existing ids.
const (
	domainPayload = "slotwire/payload/v1"
	domainRule    = "slotwire/rule/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadHash returns the identity hash of a payload's canonical form.
// The applier uses it to sub-group devices whose effective payloads are
// identical into a single downstream command.
func PayloadHash(p Payload) (string, error) {
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("payload hash: %w", err)
	}
	return hashWithDomain(domainPayload, canonical), nil
}

// DeriveRuleID generates a stable id for a rule authored without one.
// The id is a 12-character hex prefix of a SHA-256 over the rule's
// defining fields, so re-loading an unchanged config yields the same id.
func DeriveRuleID(sources SourceFilter, pattern Pattern, slotID string) string {
	var filter string
	if sources.All {
		filter = "*"
	} else {
		ids := make([]string, len(sources.IDs))
		copy(ids, sources.IDs)
		sort.Strings(ids)
		filter = strings.Join(ids, ",")
	}
	seed := fmt.Sprintf("rule_%s_%s:%s_%s", filter, pattern.Kind, pattern.Value, slotID)
	return hashWithDomain(domainRule, []byte(seed))[:12]
}
