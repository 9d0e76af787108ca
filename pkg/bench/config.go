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

// Package bench implements the load-generation core: synthetic workload
// generation, a bounded-concurrency request driver for OpenAI-style
// completions endpoints, and percentile-based result reporting.
package bench

import "fmt"

// DefaultCompletionsPath is the endpoint path used when RunConfig leaves
// CompletionsPath empty.
const DefaultCompletionsPath = "/v1/completions"

// RunConfig is the immutable configuration for a single test run.
type RunConfig struct {
	// Name is a label for the run, used only in rendered output.
	Name string `json:"name" yaml:"name"`
	// Model is the model identifier sent with every request.
	Model string `json:"model" yaml:"model"`
	// NumRequests is the total number of requests to dispatch.
	NumRequests int `json:"num_requests" yaml:"requests"`
	// Concurrency bounds the number of requests in flight at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// PromptWords is the target word count fed to the workload generator.
	PromptWords int `json:"prompt_words" yaml:"prompt_words"`
	// MaxTokens is the max_tokens value sent with every request.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// Stream selects the streaming completions path and enables TTFT
	// measurement.
	Stream bool `json:"stream" yaml:"stream"`
	// CompletionsPath overrides DefaultCompletionsPath when set.
	CompletionsPath string `json:"completions_path,omitempty" yaml:"completions_path,omitempty"`
}

// Validate checks the numeric fields a caller must supply.
func (c RunConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.NumRequests < 1 {
		return fmt.Errorf("requests must be positive, got %d", c.NumRequests)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.PromptWords < 0 {
		return fmt.Errorf("prompt words must be non-negative, got %d", c.PromptWords)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

func (c RunConfig) completionsPath() string {
	if c.CompletionsPath != "" {
		return c.CompletionsPath
	}
	return DefaultCompletionsPath
}
