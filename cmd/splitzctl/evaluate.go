package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matt-riley/splitz"
	"github.com/matt-riley/splitz/internal/logging"
)

func newEvaluateCmd() *cobra.Command {
	var (
		configPath  string
		visitorCode string
		featureKey  string
		customData  []string
		device      string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a feature flag against a local configuration snapshot",
		Long: `Loads a configuration snapshot from a JSON file and evaluates one
feature flag for a visitor, printing the result as JSON. Custom data is
attached with repeated --data index=value flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("read configuration: %w", err)
			}

			client, err := splitz.NewClient(splitz.Config{
				SiteCode:        "local",
				BaseURL:         "http://localhost",
				RefreshInterval: time.Hour,
				FetchTimeout:    10 * time.Second,
				FlushInterval:   time.Second,
			}, splitz.WithLogger(logging.New(logLevel)))
			if err != nil {
				return err
			}
			if err := client.LoadSnapshot(payload); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			ctx := cmd.Context()
			for _, pair := range customData {
				index, value, err := splitDataPair(pair)
				if err != nil {
					return err
				}
				if err := client.AddData(ctx, visitorCode, splitz.CustomData{Index: index, Values: []string{value}}); err != nil {
					return err
				}
			}
			if device != "" {
				if err := client.AddData(ctx, visitorCode, splitz.Device{Type: device}); err != nil {
					return err
				}
			}

			result, err := client.EvaluateFeatureFlag(ctx, visitorCode, featureKey)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a configuration snapshot JSON file")
	cmd.Flags().StringVarP(&visitorCode, "visitor", "v", "", "visitor code to evaluate")
	cmd.Flags().StringVarP(&featureKey, "flag", "f", "", "feature flag key")
	cmd.Flags().StringArrayVarP(&customData, "data", "d", nil, "custom data as index=value, repeatable")
	cmd.Flags().StringVar(&device, "device", "", "device type fact, e.g. PHONE")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level for snapshot parsing")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("visitor")
	_ = cmd.MarkFlagRequired("flag")

	return cmd
}

func splitDataPair(pair string) (int, string, error) {
	key, value, found := strings.Cut(pair, "=")
	if !found {
		return 0, "", fmt.Errorf("invalid --data %q, want index=value", pair)
	}
	index, err := strconv.Atoi(key)
	if err != nil {
		return 0, "", fmt.Errorf("invalid custom data index %q: %w", key, err)
	}
	return index, value, nil
}
