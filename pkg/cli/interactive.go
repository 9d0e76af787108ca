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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/defilantech/llmstress/pkg/bench"
)

type interactiveOptions struct {
	endpoint   string
	namespace  string
	service    string
	remotePort int
	timeout    time.Duration
}

func NewInteractiveCommand() *cobra.Command {
	opts := &interactiveOptions{}

	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Run load tests from an interactive menu",
		Long: `Interactive test suite: set up the target once (port forwarding and
model detection), then pick throughput, latency, or scheduler-stress runs
from a menu, adjusting request counts and concurrency per run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.InOrStdin(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Target base URL (skips port forwarding)")
	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", "default", "Kubernetes namespace of the target service")
	cmd.Flags().StringVar(&opts.service, "service", "", "Kubernetes service to port-forward to")
	cmd.Flags().IntVar(&opts.remotePort, "remote-port", 80, "Service port to forward to")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", bench.DefaultRequestTimeout, "Per-request timeout")

	return cmd
}

func runInteractive(in io.Reader, opts *interactiveOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("\n══════════════════════════════════════════════════\n")
	fmt.Printf("  LLM Interactive Stress Test Suite\n")
	fmt.Printf("══════════════════════════════════════════════════\n")

	runOpts := &runOptions{
		endpoint:    opts.endpoint,
		namespace:   opts.namespace,
		service:     opts.service,
		remotePort:  opts.remotePort,
		portForward: true,
	}
	endpoint, cleanup, err := resolveEndpoint(ctx, runOpts)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	reader := bufio.NewReader(in)
	model, err := chooseModel(ctx, reader, endpoint)
	if err != nil {
		return err
	}

	for {
		fmt.Printf("\n══════════════════════════════════════════════════\n")
		fmt.Printf("  Test Menu\n")
		fmt.Printf("══════════════════════════════════════════════════\n")
		fmt.Println("1: Throughput Test (High RPS, non-streaming)")
		fmt.Println("2: Latency Test (TTFT, streaming)")
		fmt.Println("3: Scheduler Stress Test (High concurrency)")
		fmt.Println("4: Exit")

		choice := promptString(reader, "Select a test to run", "1")

		var profile Profile
		switch choice {
		case "1":
			profile = builtinProfiles()["throughput"]
		case "2":
			profile = builtinProfiles()["latency"]
		case "3":
			profile = builtinProfiles()["stress"]
		case "4":
			return nil
		default:
			fmt.Println("❌ Invalid choice, please try again.")
			continue
		}

		fmt.Printf("\n--- %s ---\n", profile.Name)
		if profile.Description != "" {
			fmt.Println(profile.Description)
		}

		cfg := bench.RunConfig{
			Name:        profile.Name,
			Model:       model,
			NumRequests: promptInt(reader, "Number of requests", profile.Requests),
			Concurrency: promptInt(reader, "Concurrency level", profile.Concurrency),
			PromptWords: promptInt(reader, "Prompt word count", profile.PromptWords),
			MaxTokens:   promptInt(reader, "Max new tokens", profile.MaxTokens),
			Stream:      profile.Stream,
		}

		if err := executeRun(ctx, cfg, endpoint, opts.timeout, ""); err != nil {
			fmt.Printf("❌ Test failed: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// chooseModel detects the endpoint's models and lets the user pick when
// more than one is available.
func chooseModel(ctx context.Context, reader *bufio.Reader, endpoint string) (string, error) {
	fmt.Printf("🔍 Detecting available models...\n")
	models, err := bench.DetectModels(ctx, nil, endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to detect models: %w", err)
	}
	fmt.Printf("   ✅ Found models: %v\n", models)

	if len(models) == 1 {
		return models[0], nil
	}

	fmt.Println("Please choose a model to use for the test:")
	for i, id := range models {
		fmt.Printf("  %d: %s\n", i+1, id)
	}
	choice := promptInt(reader, "Enter model number", 1)
	if choice < 1 || choice > len(models) {
		return "", fmt.Errorf("model number %d out of range", choice)
	}
	return models[choice-1], nil
}

func promptString(reader *bufio.Reader, label, def string) string {
	fmt.Printf("➡️  %s [%s]: ", label, def)
	line, err := reader.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptInt(reader *bufio.Reader, label string, def int) int {
	for {
		raw := promptString(reader, label, strconv.Itoa(def))
		value, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Println("❌ Invalid input. Please enter an integer.")
			continue
		}
		return value
	}
}
