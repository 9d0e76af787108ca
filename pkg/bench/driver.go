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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// DefaultRequestTimeout is the per-request wall-clock budget.
const DefaultRequestTimeout = 60 * time.Second

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Stream    bool   `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
	} `json:"usage"`
}

// Observer receives each RequestOutcome as it is recorded. Implementations
// must be safe for concurrent use.
type Observer interface {
	Observe(RequestOutcome)
}

// Driver executes a batch of completions requests with bounded
// concurrency and produces exactly one RequestOutcome per request.
type Driver struct {
	// Client is shared by every in-flight request. Its connection pool
	// must be safe for concurrent use.
	Client *http.Client
	// Timeout is the per-request budget. Zero means DefaultRequestTimeout.
	Timeout time.Duration
	// Observer, when set, is notified of every recorded outcome.
	Observer Observer
}

// NewDriver returns a Driver whose transport pool is sized for the given
// concurrency level.
func NewDriver(concurrency int) *Driver {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = concurrency * 2
	t.MaxConnsPerHost = 0
	t.MaxIdleConnsPerHost = concurrency * 2

	return &Driver{
		Client:  &http.Client{Transport: t},
		Timeout: DefaultRequestTimeout,
	}
}

func (d *Driver) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultRequestTimeout
}

func (d *Driver) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

// Run dispatches one request per prompt against baseURL, admitting at
// most cfg.Concurrency network calls at a time, and returns the collected
// outcomes plus the wall-clock duration of the whole batch. A failure or
// timeout in one request never aborts its siblings; every failure mode is
// converted into that request's own outcome.
func (d *Driver) Run(
	ctx context.Context, cfg RunConfig, baseURL string, prompts []string,
) ([]RequestOutcome, time.Duration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}
	if len(prompts) != cfg.NumRequests {
		return nil, 0, fmt.Errorf("got %d prompts for %d requests", len(prompts), cfg.NumRequests)
	}

	target := strings.TrimSuffix(baseURL, "/") + cfg.completionsPath()
	klog.V(2).Infof("dispatching %d requests to %s (concurrency %d, stream %t)",
		cfg.NumRequests, target, cfg.Concurrency, cfg.Stream)

	var (
		outcomes = make([]RequestOutcome, 0, cfg.NumRequests)
		mu       sync.Mutex
		wg       sync.WaitGroup
		gate     = make(chan struct{}, cfg.Concurrency)
	)

	start := time.Now()
	for i := 0; i < cfg.NumRequests; i++ {
		wg.Add(1)
		go func(prompt string) {
			defer wg.Done()

			gate <- struct{}{}
			outcome := d.send(ctx, cfg, target, prompt)
			<-gate

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()

			if d.Observer != nil {
				d.Observer.Observe(outcome)
			}
		}(prompts[i])
	}
	wg.Wait()
	duration := time.Since(start)

	klog.V(2).Infof("batch finished: %d outcomes in %s", len(outcomes), duration.Round(time.Millisecond))
	return outcomes, duration, nil
}

// send executes one request end to end. It never returns an error;
// failures are encoded in the outcome's finish reason.
func (d *Driver) send(ctx context.Context, cfg RunConfig, target, prompt string) RequestOutcome {
	id := uuid.NewString()

	body, err := json.Marshal(completionRequest{
		Model:     cfg.Model,
		Prompt:    prompt,
		MaxTokens: cfg.MaxTokens,
		Stream:    cfg.Stream,
	})
	if err != nil {
		return failedOutcome(id, prefixUnexpectedError+"encode")
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return failedOutcome(id, prefixUnexpectedError+"request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client().Do(req)
	if err != nil {
		klog.V(3).Infof("request %s failed: %v", id, err)
		return failedOutcome(id, classifyFailure(reqCtx, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if cfg.Stream {
		return d.consumeStream(reqCtx, cfg, id, prompt, resp.Body, start)
	}
	return d.readCompletion(reqCtx, id, prompt, resp, start)
}

// consumeStream drains an incremental response, recording the arrival of
// the first chunk as TTFT. The wire format of the chunks is irrelevant;
// only their timing matters. Per-chunk token counts are not available
// from the target, so the full MaxTokens budget is assumed consumed and
// the finish reason is reported as "length".
func (d *Driver) consumeStream(
	ctx context.Context, cfg RunConfig, id, prompt string, body io.Reader, start time.Time,
) RequestOutcome {
	var ttft float64
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 && ttft == 0 {
			ttft = time.Since(start).Seconds()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return failedOutcome(id, FinishClientAbort)
			}
			return failedOutcome(id, classifyFailure(ctx, err))
		}
	}
	e2e := time.Since(start).Seconds()

	outcome := RequestOutcome{
		RequestID:       id,
		E2ELatency:      e2e,
		TTFT:            ttft,
		PromptTokens:    len(strings.Fields(prompt)),
		GeneratedTokens: cfg.MaxTokens,
		FinishReason:    FinishLength,
	}
	if ttft > 0 && cfg.MaxTokens > 1 {
		outcome.TimePerToken = (e2e - ttft) / float64(cfg.MaxTokens-1)
	}
	return outcome
}

// readCompletion awaits a full non-streaming response and parses its
// usage and finish reason. With no streaming phase, TTFT equals the
// end-to-end latency by definition.
func (d *Driver) readCompletion(
	ctx context.Context, id, prompt string, resp *http.Response, start time.Time,
) RequestOutcome {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return failedOutcome(id, FinishClientAbort)
		}
		return failedOutcome(id, classifyFailure(ctx, err))
	}
	e2e := time.Since(start).Seconds()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		klog.V(3).Infof("request %s: HTTP %d: %s", id, resp.StatusCode, truncate(data, 200))
		return failedOutcome(id, prefixUnexpectedError+"http_status")
	}

	var completion completionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return failedOutcome(id, prefixUnexpectedError+"decode")
	}
	if len(completion.Choices) == 0 {
		return failedOutcome(id, prefixUnexpectedError+"malformed_response")
	}

	promptTokens := len(strings.Fields(prompt))
	if completion.Usage.PromptTokens != nil {
		promptTokens = *completion.Usage.PromptTokens
	}
	generatedTokens := 0
	if completion.Usage.CompletionTokens != nil {
		generatedTokens = *completion.Usage.CompletionTokens
	}
	finishReason := completion.Choices[0].FinishReason
	if finishReason == "" {
		finishReason = FinishUnknown
	}

	return RequestOutcome{
		RequestID:       id,
		E2ELatency:      e2e,
		TTFT:            e2e,
		PromptTokens:    promptTokens,
		GeneratedTokens: generatedTokens,
		FinishReason:    finishReason,
	}
}

func failedOutcome(id, reason string) RequestOutcome {
	return RequestOutcome{RequestID: id, FinishReason: reason}
}

// classifyFailure maps a request error onto the finish-reason taxonomy:
// timeouts become client_abort, transport-level failures client_error
// with a category, anything else unexpected_error.
func classifyFailure(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return FinishClientAbort
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FinishClientAbort
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return prefixClientError + "dns"
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return prefixClientError + "connection"
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return prefixClientError + "read"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return prefixClientError + opErr.Op
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return prefixClientError + "transport"
	}
	return prefixUnexpectedError + "internal"
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
