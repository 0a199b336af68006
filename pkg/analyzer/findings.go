package analyzer

import "github.com/loadforge/loadforge/pkg/api"

// recommendedActions is the static catalogue of guidance text: every
// deduction's Finding carries a recommended_action keyed by category,
// never a one-off string composed at the call site.
var recommendedActions = map[string]string{
	"latency":          "Investigate slow endpoints and consider caching, query optimization, or horizontal scaling.",
	"server_processing": "Profile server-side request handling; waiting time dominated by backend work rather than network transfer.",
	"error_rate":        "Inspect error logs for the failing request paths and verify upstream dependency health.",
	"throughput":        "Check for connection pool, worker, or rate-limit ceilings preventing the target from sustaining load.",
	"core_web_vitals":   "Reduce render-blocking resources and optimize the largest above-the-fold content to improve perceived load.",
	"payload_size":      "Audit response payloads for unnecessary data, and consider compression or pagination.",
	"worker_dropout":    "Review container provisioning logs for the dropped workers; their results are excluded from this report.",
	"no_samples":        "No timing samples were collected; verify workers can reach the target and are emitting summaries.",
	"no_successful_workers": "No worker produced results; investigate container provisioning and image health before retrying.",
}

func severityFor(deduction int) api.Severity {
	switch {
	case deduction >= 20:
		return api.SeverityHigh
	case deduction >= 10:
		return api.SeverityMedium
	default:
		return api.SeverityLow
	}
}

func finding(category, title, detail string, deduction int, metrics ...string) api.Finding {
	return api.Finding{
		Severity:          severityFor(deduction),
		Category:          category,
		Title:             title,
		Detail:            detail,
		SupportingMetrics: metrics,
		RecommendedAction: recommendedActions[category],
	}
}
