/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bench

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// MetricStats holds the percentile set reported for one latency metric.
// Values are in the metric's native unit (seconds).
type MetricStats struct {
	P50     float64 `json:"p50"`
	P90     float64 `json:"p90"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
	Mean    float64 `json:"mean"`
	Samples int     `json:"samples"`
}

// RunReport is the aggregate view over a batch's outcomes. All fields are
// derived; building a report mutates nothing.
type RunReport struct {
	TotalRequests int           `json:"total_requests"`
	Duration      time.Duration `json:"duration"`
	Outcomes      int           `json:"outcomes"`
	Successful    int           `json:"successful"`

	E2E          MetricStats `json:"e2e_latency"`
	TTFT         MetricStats `json:"ttft"`
	TimePerToken MetricStats `json:"time_per_token"`

	RequestsPerSec        float64 `json:"requests_per_sec"`
	PromptTokensPerSec    float64 `json:"prompt_tokens_per_sec"`
	GeneratedTokensPerSec float64 `json:"generated_tokens_per_sec"`

	FinishReasons map[string]int `json:"finish_reasons"`
}

// BuildReport computes percentile and throughput statistics over a
// batch. Latency stats cover successful outcomes only; throughput and the
// finish-reason histogram cover the entire batch, with totalRequests as
// the denominator.
func BuildReport(outcomes []RequestOutcome, duration time.Duration, totalRequests int) RunReport {
	report := RunReport{
		TotalRequests: totalRequests,
		Duration:      duration,
		Outcomes:      len(outcomes),
		FinishReasons: make(map[string]int),
	}

	var (
		e2e          []float64
		ttft         []float64
		timePerToken []float64
		promptToks   int
		genToks      int
	)
	for _, o := range outcomes {
		reason := o.FinishReason
		if reason == "" {
			reason = FinishClientAbort
		}
		report.FinishReasons[reason]++

		if !o.Succeeded() {
			continue
		}
		report.Successful++
		e2e = append(e2e, o.E2ELatency)
		if o.TTFT > 0 {
			ttft = append(ttft, o.TTFT)
		}
		if o.TimePerToken > 0 {
			timePerToken = append(timePerToken, o.TimePerToken)
		}
		promptToks += o.PromptTokens
		genToks += o.GeneratedTokens
	}

	if report.Successful == 0 {
		return report
	}

	report.E2E = metricStats(e2e)
	report.TTFT = metricStats(ttft)
	report.TimePerToken = metricStats(timePerToken)

	if sec := duration.Seconds(); sec > 0 {
		report.RequestsPerSec = float64(totalRequests) / sec
		report.PromptTokensPerSec = float64(promptToks) / sec
		report.GeneratedTokensPerSec = float64(genToks) / sec
	}

	return report
}

// Render writes the human-readable report. Rendering is the reporter's
// only side effect; an empty batch or a batch with no successful
// outcomes short-circuits before any percentile math.
func (r RunReport) Render(w io.Writer) {
	if r.Outcomes == 0 {
		fmt.Fprintln(w, "No results to report.")
		return
	}
	if r.Successful == 0 {
		fmt.Fprintln(w, "No successful requests to report.")
		return
	}

	renderSection(w, "E2E Request Latency")
	renderLatency(w, r.E2E, "Average")

	if r.TTFT.Samples > 0 {
		renderSection(w, "Time To First Token Latency (Streaming)")
		renderLatency(w, r.TTFT, "Average")
	}
	if r.TimePerToken.Samples > 0 {
		renderSection(w, "Time Per Output Token Latency (Streaming)")
		renderLatencyMs(w, r.TimePerToken)
	}

	renderSection(w, "Token Throughput")
	fmt.Fprintf(w, "Overall RPS: %.2f req/s\n", r.RequestsPerSec)
	fmt.Fprintf(w, "Prompt Tokens/Sec: %.2f\n", r.PromptTokensPerSec)
	fmt.Fprintf(w, "Generation Tokens/Sec: %.2f\n", r.GeneratedTokensPerSec)

	renderSection(w, "Finish Reason")
	for _, reason := range sortedReasons(r.FinishReasons) {
		count := r.FinishReasons[reason]
		fmt.Fprintf(w, "%s: %d (%.1f%%)\n", reason, count, float64(count)/float64(r.TotalRequests)*100)
	}
}

func renderSection(w io.Writer, title string) {
	bar := strings.Repeat("=", 50)
	fmt.Fprintf(w, "\n%s\n  %s\n%s\n", bar, title, bar)
}

func renderLatency(w io.Writer, s MetricStats, meanLabel string) {
	fmt.Fprintf(w, "P99: %.4fs\n", s.P99)
	fmt.Fprintf(w, "P95: %.4fs\n", s.P95)
	fmt.Fprintf(w, "P90: %.4fs\n", s.P90)
	fmt.Fprintf(w, "P50 (Median): %.4fs\n", s.P50)
	fmt.Fprintf(w, "%s: %.4fs\n", meanLabel, s.Mean)
}

func renderLatencyMs(w io.Writer, s MetricStats) {
	fmt.Fprintf(w, "P99: %.4fms\n", s.P99*1000)
	fmt.Fprintf(w, "P95: %.4fms\n", s.P95*1000)
	fmt.Fprintf(w, "P90: %.4fms\n", s.P90*1000)
	fmt.Fprintf(w, "P50 (Median): %.4fms\n", s.P50*1000)
	fmt.Fprintf(w, "Mean: %.4fms\n", s.Mean*1000)
}

func sortedReasons(hist map[string]int) []string {
	reasons := make([]string, 0, len(hist))
	for reason := range hist {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	return reasons
}

func metricStats(values []float64) MetricStats {
	if len(values) == 0 {
		return MetricStats{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return MetricStats{
		P50:     percentile(sorted, 50),
		P90:     percentile(sorted, 90),
		P95:     percentile(sorted, 95),
		P99:     percentile(sorted, 99),
		Mean:    mean(sorted),
		Samples: len(sorted),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile computes a linear-interpolation percentile over an already
// sorted sample.
func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	index := (p / 100.0) * float64(len(sortedValues)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return sortedValues[len(sortedValues)-1]
	}

	weight := index - float64(lower)
	return sortedValues[lower]*(1-weight) + sortedValues[upper]*weight
}
