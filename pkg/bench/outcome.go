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

// Finish reasons reported by the driver. The first two come from the
// target API; the rest classify client-side failures.
const (
	FinishStop        = "stop"
	FinishLength      = "length"
	FinishUnknown     = "unknown"
	FinishClientAbort = "client_abort"

	prefixClientError     = "client_error: "
	prefixUnexpectedError = "unexpected_error: "
)

// RequestOutcome records the result of one dispatched request. Timing
// fields are zero when the request did not reach the corresponding phase:
// E2ELatency is only set when the call completed, TTFT only when a
// streaming response delivered at least one chunk.
type RequestOutcome struct {
	RequestID string `json:"request_id"`

	// E2ELatency is the end-to-end latency in seconds.
	E2ELatency float64 `json:"e2e_latency,omitempty"`
	// TTFT is the time to first token in seconds. For non-streaming
	// requests it equals E2ELatency by definition.
	TTFT float64 `json:"ttft,omitempty"`
	// TimePerToken is the per-output-token latency in seconds, derived
	// from (E2ELatency - TTFT) / (MaxTokens - 1) on streaming runs.
	TimePerToken float64 `json:"time_per_token,omitempty"`

	PromptTokens    int `json:"prompt_tokens,omitempty"`
	GeneratedTokens int `json:"generated_tokens,omitempty"`

	FinishReason string `json:"finish_reason"`
}

// Succeeded reports whether the request completed and carries latency
// data. Failed and timed-out requests never record a latency.
func (o RequestOutcome) Succeeded() bool {
	return o.E2ELatency > 0
}
