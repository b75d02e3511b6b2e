package ruleengine

import (
	"strings"

	"github.com/google/uuid"

	"github.com/rafaeljc/bifrost/internal/delivery"
)

// ValidTntID strips the location cluster suffix (".28_0") from a tntId.
// An empty tntId yields "".
func ValidTntID(tntID string) string {
	id, _, _ := strings.Cut(tntID, ".")
	return id
}

// GetOrCreateVisitorID picks the identifier allocations are keyed on:
// marketing cloud visitor id, then tntId (without its cluster suffix), then
// third party id. A fresh uuid is returned when none is set.
func GetOrCreateVisitorID(visitor *delivery.VisitorID) string {
	if visitor != nil {
		if visitor.MarketingCloudVisitorID != "" {
			return visitor.MarketingCloudVisitorID
		}
		if id := ValidTntID(visitor.TntID); id != "" {
			return id
		}
		if visitor.ThirdPartyID != "" {
			return visitor.ThirdPartyID
		}
	}
	return uuid.NewString()
}
