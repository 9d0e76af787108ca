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
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/defilantech/llmstress/internal/kube"
	"github.com/defilantech/llmstress/pkg/bench"
)

type runOptions struct {
	endpoint    string
	namespace   string
	service     string
	remotePort  int
	portForward bool

	name        string
	model       string
	requests    int
	concurrency int
	promptWords int
	maxTokens   int
	stream      bool
	timeout     time.Duration

	profile      string
	profilesFile string
	report       string
}

func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single load test against an inference endpoint",
		Long: `Run one load test: dispatch a fixed number of completions requests with
bounded concurrency, then print latency percentiles, throughput, and the
finish-reason distribution.

The target is either --endpoint (a base URL) or a Kubernetes service
reached via automatic port forwarding (--namespace/--service). When
--model is omitted, the first model reported by /v1/models is used.

Examples:
  # Direct endpoint, non-streaming throughput run
  llmstress run --endpoint http://localhost:8080 --requests 200 --concurrency 20

  # Streaming latency run with TTFT measurement
  llmstress run --endpoint http://localhost:8080 --stream --requests 50 --concurrency 5

  # Port-forward to a cluster service, named profile
  llmstress run -n llm-d --service llm-d-inference-gateway-istio --profile throughput

  # Custom profiles from a YAML file, markdown report
  llmstress run --endpoint http://localhost:8080 --profiles-file profiles.yaml \
    --profile soak --report soak.md
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(opts)
		},
	}

	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Target base URL (skips port forwarding)")
	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", "default", "Kubernetes namespace of the target service")
	cmd.Flags().StringVar(&opts.service, "service", "", "Kubernetes service to port-forward to")
	cmd.Flags().IntVar(&opts.remotePort, "remote-port", 80, "Service port to forward to")
	cmd.Flags().BoolVar(&opts.portForward, "port-forward", true, "Automatically set up port forwarding")

	cmd.Flags().StringVar(&opts.name, "name", "Load Test", "Label for the run, shown in output")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model identifier (auto-detected when empty)")
	cmd.Flags().IntVar(&opts.requests, "requests", 200, "Total number of requests to send")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 20, "Maximum requests in flight at once")
	cmd.Flags().IntVar(&opts.promptWords, "prompt-words", 50, "Target prompt word count for the workload generator")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 60, "Maximum tokens to generate per request")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Use streaming completions and measure TTFT")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", bench.DefaultRequestTimeout, "Per-request timeout")

	cmd.Flags().StringVar(&opts.profile, "profile", "",
		"Named run profile: throughput, latency, stress, or one from --profiles-file")
	cmd.Flags().StringVar(&opts.profilesFile, "profiles-file", "", "YAML file with additional run profiles")
	cmd.Flags().StringVar(&opts.report, "report", "", "Write a markdown report to this file")

	return cmd
}

func runLoadTest(opts *runOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.profile != "" {
		profile, err := resolveProfile(opts.profile, opts.profilesFile)
		if err != nil {
			return err
		}
		profile.apply(opts)
	}

	endpoint, cleanup, err := resolveEndpoint(ctx, opts)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	model, err := resolveModel(ctx, opts.model, endpoint)
	if err != nil {
		return err
	}

	cfg := bench.RunConfig{
		Name:        opts.name,
		Model:       model,
		NumRequests: opts.requests,
		Concurrency: opts.concurrency,
		PromptWords: opts.promptWords,
		MaxTokens:   opts.maxTokens,
		Stream:      opts.stream,
	}
	return executeRun(ctx, cfg, endpoint, opts.timeout, opts.report)
}

// resolveEndpoint returns the base URL to target, either directly or
// through a port-forward whose cleanup the caller must run.
func resolveEndpoint(ctx context.Context, opts *runOptions) (string, func(), error) {
	if opts.endpoint != "" {
		return opts.endpoint, nil, nil
	}
	if opts.service == "" {
		return "", nil, fmt.Errorf("either --endpoint or --service is required")
	}
	if !opts.portForward {
		return "", nil, fmt.Errorf("--service requires port forwarding; use --endpoint to target directly")
	}

	fmt.Printf("⚡ Port forwarding to service/%s in namespace %s...\n", opts.service, opts.namespace)
	forwarder, err := kube.ForwardService(ctx, opts.namespace, opts.service, opts.remotePort)
	if err != nil {
		return "", nil, err
	}
	fmt.Printf("   ✅ Connected on port %d\n", forwarder.LocalPort)
	return forwarder.Endpoint(), forwarder.Close, nil
}

// resolveModel auto-detects the model when none was given. Non-interactive
// callers get the first advertised model.
func resolveModel(ctx context.Context, model, endpoint string) (string, error) {
	if model != "" {
		return model, nil
	}

	fmt.Printf("🔍 Detecting available models...\n")
	models, err := bench.DetectModels(ctx, nil, endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to detect models: %w", err)
	}
	fmt.Printf("   ✅ Found models: %v\n", models)
	return models[0], nil
}

// executeRun drives one configured batch end to end and renders the
// report to stdout, plus optionally to a markdown file.
func executeRun(ctx context.Context, cfg bench.RunConfig, endpoint string, timeout time.Duration, reportPath string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("\n🚀 Running Test: %s\n", cfg.Name)
	fmt.Printf("═════════════════════════════════════════════════\n")
	fmt.Printf("Endpoint:     %s\n", endpoint)
	fmt.Printf("Model:        %s\n", cfg.Model)
	fmt.Printf("Requests:     %d\n", cfg.NumRequests)
	fmt.Printf("Concurrency:  %d\n", cfg.Concurrency)
	fmt.Printf("Prompt Words: %d\n", cfg.PromptWords)
	fmt.Printf("Max Tokens:   %d\n", cfg.MaxTokens)
	fmt.Printf("Stream:       %t\n", cfg.Stream)
	fmt.Printf("═════════════════════════════════════════════════\n\n")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prompts := bench.GeneratePrompts(rng, cfg)

	driver := bench.NewDriver(cfg.Concurrency)
	driver.Timeout = timeout

	progress := bench.NewProgress(os.Stdout, cfg.NumRequests)
	driver.Observer = progress
	progress.Start()

	outcomes, duration, err := driver.Run(ctx, cfg, endpoint, prompts)
	progress.Stop()
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Test finished in %.2f seconds.\n", duration.Seconds())

	report := bench.BuildReport(outcomes, duration, cfg.NumRequests)
	report.Render(os.Stdout)

	if reportPath != "" {
		if err := writeMarkdownReport(reportPath, cfg, endpoint, report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("\n📄 Report: %s\n", reportPath)
	}

	return nil
}
