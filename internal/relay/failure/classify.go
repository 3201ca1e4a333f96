package failure

import (
	"regexp"
	"strings"
)

// Classification is the verdict for one error message.
type Classification struct {
	Category  Category
	Retryable bool
}

// nonceRacePatterns are transient ordering races on the chain's tx pool.
var nonceRacePatterns = []string{
	"priority is too low",
	"stale nonce",
	"nonce too low",
	"nonce mismatch",
	"transaction is already in the pool",
}

// Pool rejection code returned alongside "Priority is too low".
var poolPriorityCode = regexp.MustCompile(`\b1014\b`)

// Ordered rules after the nonce checks; first match wins.
var rules = []struct {
	patterns []string
	category Category
}{
	{[]string{"insufficient balance", "insufficient funds", "payment"}, CategoryTransaction},
	{[]string{"network", "connection", "timeout"}, CategoryNetwork},
	{[]string{"proof", "verification"}, CategoryVerification},
	{[]string{"missing", "invalid"}, CategoryValidation},
	{[]string{"submission", "session"}, CategorySubmission},
}

// Classify determines the category for a given error.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown}
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage classifies a raw error message.
func ClassifyMessage(msg string) Classification {
	lower := strings.ToLower(msg)

	if containsAny(lower, nonceRacePatterns) || poolPriorityCode.MatchString(lower) {
		return Classification{Category: CategoryTransaction, Retryable: true}
	}

	// A bare "invalid transaction" also covers permanent rejections such as
	// insufficient funds, so it only counts as a race when nonce is named.
	if strings.Contains(lower, "invalid transaction") && strings.Contains(lower, "nonce") {
		return Classification{Category: CategoryTransaction, Retryable: true}
	}

	for _, r := range rules {
		if containsAny(lower, r.patterns) {
			return Classification{Category: r.category}
		}
	}

	return Classification{Category: CategoryUnknown}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
