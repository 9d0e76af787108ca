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
	"math/rand"
	"strings"
	"testing"
)

func TestGeneratePromptWordCount(t *testing.T) {
	testCases := []struct {
		name     string
		words    int
		expected int
	}{
		{"fifty words", 50, 10},
		{"exact multiple", 25, 5},
		{"rounds down", 27, 5},
		{"below five", 4, 0},
		{"zero", 0, 0},
		{"single word", 5, 1},
	}

	rng := rand.New(rand.NewSource(1))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			prompt := GeneratePrompt(rng, tc.words)
			got := len(strings.Fields(prompt))
			if got != tc.expected {
				t.Errorf("GeneratePrompt(%d) produced %d words, expected %d", tc.words, got, tc.expected)
			}
		})
	}
}

func TestGeneratePromptVocabulary(t *testing.T) {
	vocab := make(map[string]bool, len(promptVocabulary))
	for _, w := range promptVocabulary {
		vocab[w] = true
	}

	rng := rand.New(rand.NewSource(42))
	prompt := GeneratePrompt(rng, 500)
	for _, w := range strings.Fields(prompt) {
		if !vocab[w] {
			t.Errorf("word %q not in vocabulary", w)
		}
	}
}

func TestGeneratePromptSeparator(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	prompt := GeneratePrompt(rng, 100)

	if strings.Contains(prompt, "  ") {
		t.Errorf("prompt contains double space: %q", prompt)
	}
	if strings.HasPrefix(prompt, " ") || strings.HasSuffix(prompt, " ") {
		t.Errorf("prompt has leading/trailing space: %q", prompt)
	}
}

func TestGeneratePromptsOnePerRequest(t *testing.T) {
	cfg := RunConfig{
		Model:       "m",
		NumRequests: 8,
		Concurrency: 2,
		PromptWords: 50,
		MaxTokens:   10,
	}

	rng := rand.New(rand.NewSource(3))
	prompts := GeneratePrompts(rng, cfg)

	if len(prompts) != cfg.NumRequests {
		t.Fatalf("expected %d prompts, got %d", cfg.NumRequests, len(prompts))
	}
	for i, p := range prompts {
		if got := len(strings.Fields(p)); got != 10 {
			t.Errorf("prompt %d has %d words, expected 10", i, got)
		}
	}
}
