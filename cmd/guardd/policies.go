package main

import (
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"autopilot-guard/internal/config"
	"autopilot-guard/internal/models"
	"autopilot-guard/internal/queue"
	"autopilot-guard/internal/retry"
)

type effective struct {
	Policies map[string]retry.Policy `yaml:"policies"`
	Queue    config.QueueSection     `yaml:"queue"`
}

func newPoliciesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Print the effective retry policies and queue limits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = config.Load().PolicyFile
			}
			var pf config.PolicyFile
			if file != "" {
				var err error
				if pf, err = config.LoadPolicyFile(file); err != nil {
					return err
				}
			}
			limits, err := pf.MergeLimits(queue.DefaultLimits())
			if err != nil {
				return err
			}
			out := effective{
				Policies: pf.MergePolicies(retry.DefaultPolicies()),
				Queue:    config.QueueSection{MaxSize: limits.MaxQueueSize},
			}
			out.Queue.TTL = make(map[string]time.Duration, len(limits.TTL))
			out.Queue.MaxRetries = make(map[string]int, len(limits.MaxRetries))
			for _, p := range models.Priorities() {
				out.Queue.TTL[p.String()] = limits.TTL[p]
				out.Queue.MaxRetries[p.String()] = limits.MaxRetries[p]
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "policy file (defaults to POLICY_FILE)")
	return cmd
}
