// Package analyzer implements the Metrics Analyzer: it turns a
// CanonicalSummary into a graded, deterministic PerformanceReport.
package analyzer

import (
	"fmt"
	"sort"

	"github.com/loadforge/loadforge/pkg/api"
)

// Context is the small amount of run-level information the grading
// algorithm needs beyond the statistics themselves.
type Context struct {
	TestKind        api.TestKind
	TargetURL       string
	DurationSeconds float64
	TotalVUs        int
}

// Analyzer is stateless; its only behavior is the deterministic Analyze
// function below, kept as a type for symmetry with the other components
// and so a future caller can attach configuration (e.g. custom thresholds)
// without changing the call signature.
type Analyzer struct{}

// New returns a ready-to-use Analyzer.
func New() *Analyzer { return &Analyzer{} }

// Analyze computes a PerformanceReport from summary and ctx. It is a pure
// function of its inputs: repeated calls on the same summary produce
// byte-identical output.
func (an *Analyzer) Analyze(summary *api.CanonicalSummary, ctx Context) *api.PerformanceReport {
	manifest := summary.Runtime

	if manifest.SuccessfulWorkers == 0 {
		return &api.PerformanceReport{
			Grade:            api.GradeF,
			Score:            0,
			CanonicalSummary: summary,
			Findings: []api.Finding{
				finding("no_successful_workers", "No workers completed successfully",
					"Every worker ended without producing results; see the run manifest for per-worker status.", 100),
			},
		}
	}

	if totalSamples(summary) == 0 {
		return &api.PerformanceReport{
			Grade:            api.GradeF,
			Score:            0,
			CanonicalSummary: summary,
			Findings: []api.Finding{
				finding("no_samples", "No timing samples were collected",
					"Workers completed but reported zero Point records.", 100),
			},
		}
	}

	score := 100
	var findings []api.Finding

	if ctx.TestKind == api.TestKindBrowser {
		score, findings = applyBrowserDeductions(summary, score, findings)
	} else {
		score, findings = applyProtocolDeductions(summary, ctx, score, findings)
	}

	if manifest.Partial {
		findings = append(findings, finding("worker_dropout", "Some workers did not contribute results",
			fmt.Sprintf("%d of %d workers succeeded; the report reflects only their combined samples.",
				manifest.SuccessfulWorkers, manifest.WorkerCount), 10))
	}

	if score < 0 {
		score = 0
	}

	sortFindings(findings)

	return &api.PerformanceReport{
		Grade:             gradeFor(score),
		Score:             score,
		CanonicalSummary:  summary,
		Findings:          findings,
		TimingsBreakdown:  phaseBreakdown(summary),
		ResourceBreakdown: resourceBreakdown(summary, ctx),
	}
}

func totalSamples(summary *api.CanonicalSummary) int64 {
	var total int64
	for _, s := range summary.Metrics {
		total += s.Count
	}
	return total
}

func metric(summary *api.CanonicalSummary, name string) (*api.SeriesStats, bool) {
	s, ok := summary.Metrics[name]
	if !ok || s.Count == 0 {
		return nil, false
	}
	return s, true
}

func applyProtocolDeductions(summary *api.CanonicalSummary, ctx Context, score int, findings []api.Finding) (int, []api.Finding) {
	if d, ok := metric(summary, "http_req_duration"); ok {
		switch {
		case d.Percentiles.P95 > 5000:
			score -= 35
			findings = append(findings, finding("latency", "Request latency is very high",
				fmt.Sprintf("p95 http_req_duration is %.0f ms (threshold 5000 ms).", d.Percentiles.P95), 35, "http_req_duration.p95"))
		case d.Percentiles.P95 > 2000:
			score -= 20
			findings = append(findings, finding("latency", "Request latency is elevated",
				fmt.Sprintf("p95 http_req_duration is %.0f ms (threshold 2000 ms).", d.Percentiles.P95), 20, "http_req_duration.p95"))
		}
	}

	if f, ok := metric(summary, "http_req_failed"); ok {
		switch {
		case f.Mean > 0.10:
			score -= 40
			findings = append(findings, finding("error_rate", "Error rate is critical",
				fmt.Sprintf("%.1f%% of requests failed (threshold 10%%).", f.Mean*100), 40, "http_req_failed.mean"))
		case f.Mean > 0.05:
			score -= 25
			findings = append(findings, finding("error_rate", "Error rate is high",
				fmt.Sprintf("%.1f%% of requests failed (threshold 5%%).", f.Mean*100), 25, "http_req_failed.mean"))
		case f.Mean > 0.01:
			score -= 10
			findings = append(findings, finding("error_rate", "Error rate is above baseline",
				fmt.Sprintf("%.1f%% of requests failed (threshold 1%%).", f.Mean*100), 10, "http_req_failed.mean"))
		}
	}

	if reqs, ok := metric(summary, "http_reqs"); ok && ctx.DurationSeconds > 0 {
		throughput := float64(reqs.Count) / ctx.DurationSeconds
		if throughput < 10 && ctx.TotalVUs >= 25 {
			score -= 15
			findings = append(findings, finding("throughput", "Throughput is low for the requested concurrency",
				fmt.Sprintf("Sustained %.1f req/s with %d virtual users (threshold 10 req/s).", throughput, ctx.TotalVUs), 15, "http_reqs"))
		}
	}

	if w, ok := metric(summary, "http_req_waiting"); ok && w.Mean > 400 {
		score -= 10
		findings = append(findings, finding("server_processing", "Server think time dominates request latency",
			fmt.Sprintf("Mean http_req_waiting is %.0f ms (threshold 400 ms).", w.Mean), 10, "http_req_waiting.mean"))
	}

	if recv, ok := metric(summary, "data_received"); ok {
		if reqs, ok2 := metric(summary, "http_reqs"); ok2 && reqs.Mean > 0 {
			perReq := recv.Mean / reqs.Mean
			const twoHundredKiB = 200 * 1024
			if perReq > twoHundredKiB {
				score -= 5
				findings = append(findings, finding("payload_size", "Response payloads are large relative to request volume",
					fmt.Sprintf("Mean data_received per request is %.0f bytes (threshold %.0f bytes).", perReq, float64(twoHundredKiB)), 5, "data_received", "http_reqs"))
			}
		}
	}

	return score, findings
}

func applyBrowserDeductions(summary *api.CanonicalSummary, score int, findings []api.Finding) (int, []api.Finding) {
	if lcp, ok := metric(summary, "largest_contentful_paint"); ok {
		switch {
		case lcp.Percentiles.P75 > 4000:
			score -= 35
			findings = append(findings, finding("core_web_vitals", "Largest Contentful Paint is very slow",
				fmt.Sprintf("p75 largest_contentful_paint is %.0f ms (threshold 4000 ms).", lcp.Percentiles.P75), 35, "largest_contentful_paint.p75"))
		case lcp.Percentiles.P75 > 2500:
			score -= 20
			findings = append(findings, finding("core_web_vitals", "Largest Contentful Paint is slow",
				fmt.Sprintf("p75 largest_contentful_paint is %.0f ms (threshold 2500 ms).", lcp.Percentiles.P75), 20, "largest_contentful_paint.p75"))
		}
	}

	if cls, ok := metric(summary, "cumulative_layout_shift"); ok {
		switch {
		case cls.Percentiles.P75 > 0.25:
			score -= 20
			findings = append(findings, finding("core_web_vitals", "Cumulative Layout Shift is severe",
				fmt.Sprintf("p75 cumulative_layout_shift is %.3f (threshold 0.25).", cls.Percentiles.P75), 20, "cumulative_layout_shift.p75"))
		case cls.Percentiles.P75 > 0.1:
			score -= 10
			findings = append(findings, finding("core_web_vitals", "Cumulative Layout Shift exceeds guidance",
				fmt.Sprintf("p75 cumulative_layout_shift is %.3f (threshold 0.1).", cls.Percentiles.P75), 10, "cumulative_layout_shift.p75"))
		}
	}

	if fid, ok := metric(summary, "first_input_delay"); ok {
		switch {
		case fid.Percentiles.P75 > 300:
			score -= 20
			findings = append(findings, finding("core_web_vitals", "First Input Delay is severe",
				fmt.Sprintf("p75 first_input_delay is %.0f ms (threshold 300 ms).", fid.Percentiles.P75), 20, "first_input_delay.p75"))
		case fid.Percentiles.P75 > 100:
			score -= 10
			findings = append(findings, finding("core_web_vitals", "First Input Delay exceeds guidance",
				fmt.Sprintf("p75 first_input_delay is %.0f ms (threshold 100 ms).", fid.Percentiles.P75), 10, "first_input_delay.p75"))
		}
	}

	return score, findings
}

func gradeFor(score int) api.Grade {
	switch {
	case score >= 90:
		return api.GradeA
	case score >= 80:
		return api.GradeB
	case score >= 70:
		return api.GradeC
	case score >= 60:
		return api.GradeD
	default:
		return api.GradeF
	}
}

// sortFindings orders high severity before medium before low, and within a
// severity band alphabetically by category.
func sortFindings(findings []api.Finding) {
	rank := func(s api.Severity) int {
		switch s {
		case api.SeverityHigh:
			return 0
		case api.SeverityMedium:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(findings, func(i, j int) bool {
		ri, rj := rank(findings[i].Severity), rank(findings[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return findings[i].Category < findings[j].Category
	})
}

func phaseBreakdown(summary *api.CanonicalSummary) api.PhaseBreakdown {
	mean := func(name string) float64 {
		if s, ok := metric(summary, name); ok {
			return s.Mean
		}
		return 0
	}
	return api.PhaseBreakdown{
		BlockedMs:    mean("http_req_blocked"),
		ConnectingMs: mean("http_req_connecting"),
		TLSMs:        mean("http_req_tls_handshaking"),
		SendingMs:    mean("http_req_sending"),
		WaitingMs:    mean("http_req_waiting"),
		ReceivingMs:  mean("http_req_receiving"),
	}
}

func resourceBreakdown(summary *api.CanonicalSummary, ctx Context) api.ResourceBreakdown {
	rb := api.ResourceBreakdown{}
	if s, ok := metric(summary, "data_sent"); ok {
		rb.DataSentBytes = s.Sum
	}
	if s, ok := metric(summary, "data_received"); ok {
		rb.DataReceivedBytes = s.Sum
	}
	if reqs, ok := metric(summary, "http_reqs"); ok && ctx.TotalVUs > 0 {
		rb.RequestsPerVU = float64(reqs.Count) / float64(ctx.TotalVUs)
	}
	return rb
}
