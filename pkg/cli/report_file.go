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

package cli

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/defilantech/llmstress/pkg/bench"
)

// writeMarkdownReport renders a run's report as a standalone markdown
// file for sharing and later comparison.
func writeMarkdownReport(path string, cfg bench.RunConfig, endpoint string, report bench.RunReport) error {
	var buf strings.Builder

	buf.WriteString("# llmstress Report\n\n")
	buf.WriteString(fmt.Sprintf("**Test:** %s  \n", cfg.Name))
	buf.WriteString(fmt.Sprintf("**Generated:** %s  \n", time.Now().Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("**Host:** %s (%s/%s)  \n", hostname(), runtime.GOOS, runtime.GOARCH))
	buf.WriteString(fmt.Sprintf("**Endpoint:** %s  \n", endpoint))
	buf.WriteString(fmt.Sprintf("**Model:** %s  \n\n", cfg.Model))
	buf.WriteString("---\n\n")

	buf.WriteString("## Run\n\n")
	buf.WriteString("| Setting | Value |\n")
	buf.WriteString("|---------|-------|\n")
	buf.WriteString(fmt.Sprintf("| Requests | %d |\n", cfg.NumRequests))
	buf.WriteString(fmt.Sprintf("| Concurrency | %d |\n", cfg.Concurrency))
	buf.WriteString(fmt.Sprintf("| Prompt Words | %d |\n", cfg.PromptWords))
	buf.WriteString(fmt.Sprintf("| Max Tokens | %d |\n", cfg.MaxTokens))
	buf.WriteString(fmt.Sprintf("| Stream | %t |\n", cfg.Stream))
	buf.WriteString(fmt.Sprintf("| Duration | %s |\n", report.Duration.Round(time.Millisecond)))
	buf.WriteString(fmt.Sprintf("| Successful | %d/%d |\n\n", report.Successful, report.TotalRequests))

	if report.Successful > 0 {
		buf.WriteString("## Latency\n\n")
		buf.WriteString("| Metric | P50 | P90 | P95 | P99 | Mean |\n")
		buf.WriteString("|--------|-----|-----|-----|-----|------|\n")
		writeLatencyRow(&buf, "E2E (s)", report.E2E, 1)
		if report.TTFT.Samples > 0 {
			writeLatencyRow(&buf, "TTFT (s)", report.TTFT, 1)
		}
		if report.TimePerToken.Samples > 0 {
			writeLatencyRow(&buf, "Per token (ms)", report.TimePerToken, 1000)
		}

		buf.WriteString("\n## Throughput\n\n")
		buf.WriteString("| Metric | Value |\n")
		buf.WriteString("|--------|-------|\n")
		buf.WriteString(fmt.Sprintf("| Requests/sec | %.2f |\n", report.RequestsPerSec))
		buf.WriteString(fmt.Sprintf("| Prompt tokens/sec | %.2f |\n", report.PromptTokensPerSec))
		buf.WriteString(fmt.Sprintf("| Generation tokens/sec | %.2f |\n", report.GeneratedTokensPerSec))
	} else {
		buf.WriteString("No successful requests to report.\n")
	}

	buf.WriteString("\n## Finish Reasons\n\n")
	buf.WriteString("| Reason | Count | Share |\n")
	buf.WriteString("|--------|-------|-------|\n")
	total := report.TotalRequests
	reasons := make([]string, 0, len(report.FinishReasons))
	for reason := range report.FinishReasons {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		count := report.FinishReasons[reason]
		buf.WriteString(fmt.Sprintf("| %s | %d | %.1f%% |\n", reason, count, float64(count)/float64(total)*100))
	}

	return os.WriteFile(path, []byte(buf.String()), 0644)
}

func writeLatencyRow(buf *strings.Builder, label string, s bench.MetricStats, scale float64) {
	buf.WriteString(fmt.Sprintf("| %s | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
		label, s.P50*scale, s.P90*scale, s.P95*scale, s.P99*scale, s.Mean*scale))
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
