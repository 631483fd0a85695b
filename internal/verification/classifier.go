package verification

import (
	"strings"

	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/scan"
)

// ruleInput is everything a classification rule may inspect
type ruleInput struct {
	record   domain.VerificationRecord
	document *domain.ImportDocument
}

// Rule is one ordered classification rule. Rules are evaluated first-match;
// a rule that does not apply returns ok=false.
type Rule struct {
	Name  string
	Apply func(in ruleInput) (domain.VerificationStatus, bool)
}

// Classifier computes a verification status from record content. Status is
// recomputed on every evaluation, never stored, so classification is
// idempotent by construction.
type Classifier struct {
	rules []Rule
}

func NewClassifier() *Classifier {
	return &Classifier{rules: defaultRules()}
}

// Classify evaluates the ordered rule set and returns the first match.
// document may be nil for scanned-only records.
func (c *Classifier) Classify(record domain.VerificationRecord, document *domain.ImportDocument) domain.VerificationStatus {
	in := ruleInput{record: record, document: document}
	for _, rule := range c.rules {
		if status, ok := rule.Apply(in); ok {
			return status
		}
	}
	return domain.StatusPending
}

// Rules exposes the ordered rule set so each rule can be exercised on its own
func (c *Classifier) Rules() []Rule {
	return c.rules
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name: "scanned-only",
			Apply: func(in ruleInput) (domain.VerificationStatus, bool) {
				if in.record.IsScannedOnly || strings.HasPrefix(in.record.ID, "scanned_") {
					// A pending seed means an import for the order exists
					// somewhere; the group waits for its invoice instead of
					// surfacing as an orphan
					if in.record.Status == domain.StatusPending {
						return domain.StatusPending, true
					}
					return domain.StatusScannedOnly, true
				}
				return "", false
			},
		},
		{
			Name: "parse-error",
			Apply: func(in ruleInput) (domain.VerificationStatus, bool) {
				if in.document != nil && in.document.ParseError != "" {
					return domain.StatusException, true
				}
				return "", false
			},
		},
		{
			Name: "missing-customer",
			Apply: func(in ruleInput) (domain.VerificationStatus, bool) {
				if !hasCustomerIdentity(in.record) {
					return domain.StatusException, true
				}
				return "", false
			},
		},
		{
			Name: "has-warnings",
			Apply: func(in ruleInput) (domain.VerificationStatus, bool) {
				if len(in.record.Warnings) > 0 {
					return domain.StatusInvestigation, true
				}
				if in.document != nil && len(in.document.Warnings) > 0 {
					return domain.StatusInvestigation, true
				}
				return "", false
			},
		},
		{
			Name: "order-verified",
			Apply: func(in ruleInput) (domain.VerificationStatus, bool) {
				if in.document == nil {
					return "", false
				}
				want := scan.NormalizeOrderNumber(in.record.OrderNumber)
				for _, verified := range in.document.VerifiedOrderNumbers {
					if scan.NormalizeOrderNumber(verified) == want {
						return domain.StatusVerified, true
					}
				}
				return "", false
			},
		},
		{
			Name: "document-approved",
			Apply: func(in ruleInput) (domain.VerificationStatus, bool) {
				if in.document == nil {
					return "", false
				}
				if in.document.Status == domain.ImportApproved || in.document.Status == domain.ImportVerified {
					return domain.StatusVerified, true
				}
				return "", false
			},
		},
		{
			Name: "document-rejected",
			Apply: func(in ruleInput) (domain.VerificationStatus, bool) {
				if in.document != nil && in.document.Status == domain.ImportRejected {
					return domain.StatusRejected, true
				}
				return "", false
			},
		},
		{
			Name: "processing",
			Apply: func(in ruleInput) (domain.VerificationStatus, bool) {
				if in.document != nil && in.document.Processing {
					return domain.StatusInProgress, true
				}
				return "", false
			},
		},
	}
}

// hasCustomerIdentity checks every place customer identity can live: the
// record itself, then each line item's origin row via record fields. Import
// sources disagree about where customer fields live, so absence anywhere
// means the record cannot be approved against a customer.
func hasCustomerIdentity(record domain.VerificationRecord) bool {
	if strings.TrimSpace(record.CustomerName) != "" || strings.TrimSpace(record.CustomerID) != "" {
		return true
	}
	for _, event := range record.Scans {
		if strings.TrimSpace(event.CustomerName) != "" || strings.TrimSpace(event.CustomerID) != "" {
			return true
		}
	}
	return false
}
