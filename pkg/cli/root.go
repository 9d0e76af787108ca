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
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the llmstress CLI
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llmstress",
		Short: "Load-testing harness for LLM inference endpoints",
		Long: `llmstress: stress testing for OpenAI-style completions APIs.

Fire configurable volumes of concurrent completions requests at an
inference endpoint, measure per-request and aggregate latency (including
time-to-first-token on streaming runs), and report percentile statistics
and finish-reason distributions.

Targets can be reached directly with --endpoint, or through an automatic
port-forward to a Kubernetes service.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewInteractiveCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
