package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/shotapi/internal/client"
)

func newCaptureCmd() *cobra.Command {
	var (
		target  string
		params  []string
		out     string
		baseURL string
		apiKey  string
		timeout time.Duration
		retries int
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Request a capture from a running service and save it",
		Example: `  shotapi capture --url https://example.com --out example.png
  shotapi capture --url https://example.com --param format=pdf --param fullPage=true --out example.pdf`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query, err := parseParams(params)
			if err != nil {
				return err
			}
			query["url"] = target
			if apiKey == "" {
				apiKey = configFrom(cmd.Context()).Auth.APIKey
			}

			c := client.New(client.Config{BaseURL: baseURL, APIKey: apiKey, Timeout: timeout, Retries: retries})
			res, err := c.Capture(cmd.Context(), query)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, res.Payload, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, cache %s)\n",
				out, humanize.Bytes(uint64(len(res.Payload))), res.ContentType, res.CacheStatus)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "page to capture")
	cmd.Flags().StringArrayVar(&params, "param", nil, "extra capture parameter as name=value (repeatable)")
	cmd.Flags().StringVarP(&out, "out", "o", "capture.png", "output file")
	cmd.Flags().StringVar(&baseURL, "server", "http://localhost:3000", "service base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (defaults to auth.api_key)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
	cmd.Flags().IntVar(&retries, "retries", 1, "retries on 502, 503 and 504")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func parseParams(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs)+1)
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q, want name=value", p)
		}
		out[name] = value
	}
	return out, nil
}
