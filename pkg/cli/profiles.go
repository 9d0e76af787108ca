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
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a named run shape. The built-in profiles mirror the three
// classic test modes: throughput, latency, and scheduler stress.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Requests    int    `yaml:"requests"`
	Concurrency int    `yaml:"concurrency"`
	PromptWords int    `yaml:"prompt_words"`
	MaxTokens   int    `yaml:"max_tokens"`
	Stream      bool   `yaml:"stream"`
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		"throughput": {
			Name:        "Throughput Test",
			Description: "Moderate concurrency, small prompts and responses; measures max RPS and token throughput",
			Requests:    200,
			Concurrency: 20,
			PromptWords: 50,
			MaxTokens:   60,
			Stream:      false,
		},
		"latency": {
			Name:        "Latency (Streaming) Test",
			Description: "Low concurrency, streaming; measures TTFT and per-token generation latency",
			Requests:    50,
			Concurrency: 5,
			PromptWords: 256,
			MaxTokens:   512,
			Stream:      true,
		},
		"stress": {
			Name:        "Scheduler Stress Test",
			Description: "Very high concurrency to queue requests; expect high P99 latencies",
			Requests:    500,
			Concurrency: 150,
			PromptWords: 10,
			MaxTokens:   10,
			Stream:      false,
		},
	}
}

func loadProfiles(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}

	profiles := make(map[string]Profile, len(file.Profiles))
	for _, p := range file.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profile without a name in %s", path)
		}
		key := strings.ToLower(p.Name)
		if _, exists := profiles[key]; exists {
			return nil, fmt.Errorf("duplicate profile %q in %s", p.Name, path)
		}
		profiles[key] = p
	}
	return profiles, nil
}

// resolveProfile finds a profile by name, preferring ones loaded from the
// given file over the built-ins.
func resolveProfile(name, path string) (Profile, error) {
	key := strings.ToLower(name)

	if path != "" {
		profiles, err := loadProfiles(path)
		if err != nil {
			return Profile{}, err
		}
		if p, ok := profiles[key]; ok {
			return p, nil
		}
	}

	if p, ok := builtinProfiles()[key]; ok {
		return p, nil
	}
	return Profile{}, fmt.Errorf("unknown profile %q (built-ins: throughput, latency, stress)", name)
}

// apply copies the profile's run shape onto the options, keeping the
// caller's endpoint and model settings.
func (p Profile) apply(opts *runOptions) {
	opts.name = p.Name
	opts.requests = p.Requests
	opts.concurrency = p.Concurrency
	opts.promptWords = p.PromptWords
	opts.maxTokens = p.MaxTokens
	opts.stream = p.Stream
}
