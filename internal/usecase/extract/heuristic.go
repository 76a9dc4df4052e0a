package extract

import (
	"strings"

	"github.com/kailas-cloud/triage/internal/domain/ticket"
)

// heuristicSummaryRunes limits the summary of an unrecognized ticket.
const heuristicSummaryRunes = 80

// Heuristic classifies a ticket by keywords, without a language model.
func Heuristic(description string) ticket.Fields {
	d := strings.ToLower(description)

	switch {
	case containsAny(d, "500", "checkout", "payment"):
		return heuristicFields("Checkout/payment issue", "Bug", "High")
	case containsAny(d, "password", "reset", "email"):
		return heuristicFields("Password reset issue", "Bug", "Medium")
	default:
		summary := ticket.Truncate(strings.TrimSpace(description), heuristicSummaryRunes)
		return heuristicFields(summary, "General", "Low")
	}
}

func heuristicFields(summary, category, severity string) ticket.Fields {
	return ticket.Fields{
		Summary:  ticket.Ptr(summary),
		Category: ticket.Ptr(category),
		Severity: ticket.Ptr(severity),
		Source:   ticket.SourceHeuristic,
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
