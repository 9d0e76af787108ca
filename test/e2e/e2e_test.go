//go:build e2e
// +build e2e

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

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/defilantech/llmstress/pkg/bench"
)

// mockInferenceServer imitates an OpenAI-compatible completions endpoint,
// serving both /v1/models discovery and streaming or non-streaming
// /v1/completions requests.
type mockInferenceServer struct {
	server   *httptest.Server
	requests atomic.Int64
}

func newMockInferenceServer(modelID string) *mockInferenceServer {
	m := &mockInferenceServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": modelID}},
		})
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		m.requests.Add(1)
		var req struct {
			Prompt    string `json:"prompt"`
			MaxTokens int    `json:"max_tokens"`
			Stream    bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Stream {
			flusher, ok := w.(http.Flusher)
			if !ok {
				http.Error(w, "streaming unsupported", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/event-stream")
			for i := 0; i < 3; i++ {
				_, _ = w.Write([]byte("data: {\"choices\":[{\"text\":\"tok \"}]}\n\n"))
				flusher.Flush()
				time.Sleep(5 * time.Millisecond)
			}
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
			return
		}
		time.Sleep(5 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		promptTokens := 7
		completionTokens := req.MaxTokens
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": "hello", "finish_reason": "stop"}},
			"usage": map[string]int{
				"prompt_tokens":     promptTokens,
				"completion_tokens": completionTokens,
			},
		})
	})
	m.server = httptest.NewServer(mux)
	return m
}

func (m *mockInferenceServer) URL() string { return m.server.URL }
func (m *mockInferenceServer) Close()      { m.server.Close() }

var _ = Describe("Load test against a mock inference server", Ordered, func() {
	const modelID = "qwen2.5-0.5b-instruct"
	var mock *mockInferenceServer

	BeforeAll(func() {
		By("starting the mock inference server")
		mock = newMockInferenceServer(modelID)
	})

	AfterAll(func() {
		mock.Close()
	})

	It("should discover the served model", func() {
		models, err := bench.DetectModels(context.Background(), http.DefaultClient, mock.URL())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(Equal([]string{modelID}))
	})

	It("should complete a non-streaming batch with one outcome per request", func() {
		cfg := bench.RunConfig{
			Name:        "e2e non-streaming",
			Model:       modelID,
			NumRequests: 20,
			Concurrency: 5,
			PromptWords: 50,
			MaxTokens:   16,
		}
		Expect(cfg.Validate()).To(Succeed())

		By("generating the synthetic workload")
		rng := rand.New(rand.NewSource(1))
		prompts := bench.GeneratePrompts(rng, cfg)
		Expect(prompts).To(HaveLen(cfg.NumRequests))

		By("driving the batch")
		before := mock.requests.Load()
		driver := bench.NewDriver(cfg.Concurrency)
		outcomes, duration, err := driver.Run(context.Background(), cfg, mock.URL(), prompts)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcomes).To(HaveLen(cfg.NumRequests))
		Expect(duration).To(BeNumerically(">", 0))
		Expect(mock.requests.Load() - before).To(Equal(int64(cfg.NumRequests)))

		By("checking every outcome succeeded with server-reported usage")
		for _, o := range outcomes {
			Expect(o.Succeeded()).To(BeTrue())
			Expect(o.FinishReason).To(Equal("stop"))
			Expect(o.PromptTokens).To(Equal(7))
			Expect(o.GeneratedTokens).To(Equal(cfg.MaxTokens))
			Expect(o.TTFT).To(Equal(o.E2ELatency))
		}

		By("rendering the report")
		report := bench.BuildReport(outcomes, duration, cfg.NumRequests)
		Expect(report.Successful).To(Equal(cfg.NumRequests))
		var buf bytes.Buffer
		report.Render(&buf)
		Expect(buf.String()).To(ContainSubstring("E2E Request Latency"))
		Expect(buf.String()).To(ContainSubstring("Token Throughput"))
		Expect(buf.String()).To(ContainSubstring("stop: 20 (100.0%)"))
	})

	It("should measure time to first token on a streaming batch", func() {
		cfg := bench.RunConfig{
			Name:        "e2e streaming",
			Model:       modelID,
			NumRequests: 10,
			Concurrency: 4,
			PromptWords: 25,
			MaxTokens:   8,
			Stream:      true,
		}
		rng := rand.New(rand.NewSource(2))
		prompts := bench.GeneratePrompts(rng, cfg)

		driver := bench.NewDriver(cfg.Concurrency)
		outcomes, duration, err := driver.Run(context.Background(), cfg, mock.URL(), prompts)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcomes).To(HaveLen(cfg.NumRequests))

		for _, o := range outcomes {
			Expect(o.Succeeded()).To(BeTrue())
			Expect(o.FinishReason).To(Equal("length"))
			Expect(o.GeneratedTokens).To(Equal(cfg.MaxTokens))
			Expect(o.TTFT).To(BeNumerically(">", 0))
			Expect(o.TTFT).To(BeNumerically("<=", o.E2ELatency))
			Expect(o.TimePerToken).To(BeNumerically(">", 0))
		}

		report := bench.BuildReport(outcomes, duration, cfg.NumRequests)
		var buf bytes.Buffer
		report.Render(&buf)
		Expect(buf.String()).To(ContainSubstring("Time To First Token Latency (Streaming)"))
		Expect(buf.String()).To(ContainSubstring("Time Per Output Token Latency (Streaming)"))
	})

	It("should isolate failures when requests time out", func() {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}))
		defer slow.Close()

		cfg := bench.RunConfig{
			Name:        "e2e timeout",
			Model:       modelID,
			NumRequests: 4,
			Concurrency: 4,
			PromptWords: 10,
			MaxTokens:   4,
		}
		rng := rand.New(rand.NewSource(3))
		prompts := bench.GeneratePrompts(rng, cfg)

		driver := bench.NewDriver(cfg.Concurrency)
		driver.Timeout = 100 * time.Millisecond
		outcomes, duration, err := driver.Run(context.Background(), cfg, slow.URL, prompts)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcomes).To(HaveLen(cfg.NumRequests))

		for _, o := range outcomes {
			Expect(o.Succeeded()).To(BeFalse())
			Expect(o.FinishReason).To(Equal("client_abort"))
		}

		report := bench.BuildReport(outcomes, duration, cfg.NumRequests)
		Expect(report.Successful).To(BeZero())
		var buf bytes.Buffer
		report.Render(&buf)
		Expect(buf.String()).To(ContainSubstring("No successful requests to report."))
	})
})
