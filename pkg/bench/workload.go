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
)

// promptVocabulary is the filler-word pool for synthetic prompts. The
// target never validates prompt content; only its length matters for the
// token-throughput figures.
var promptVocabulary = []string{
	"explain", "how", "to", "build", "a", "fast", "car", "using", "python",
	"what", "is", "the", "capital", "of", "mongolia", "tell", "me", "a",
	"story", "about", "a", "dragon", "and", "a", "knight", "the", "meaning",
	"of", "life",
}

// GeneratePrompt returns a synthetic prompt of words/5 vocabulary words
// (integer division) chosen uniformly with replacement, joined by single
// spaces.
func GeneratePrompt(rng *rand.Rand, words int) string {
	count := words / 5
	if count <= 0 {
		return ""
	}
	picked := make([]string, count)
	for i := range picked {
		picked[i] = promptVocabulary[rng.Intn(len(promptVocabulary))]
	}
	return strings.Join(picked, " ")
}

// GeneratePrompts produces one independent prompt per request in the run.
func GeneratePrompts(rng *rand.Rand, cfg RunConfig) []string {
	prompts := make([]string, cfg.NumRequests)
	for i := range prompts {
		prompts[i] = GeneratePrompt(rng, cfg.PromptWords)
	}
	return prompts
}
