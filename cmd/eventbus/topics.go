package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

type topicsOptions struct {
	manifest string
	sources  []string
}

func newTopicsCmd() *cobra.Command {
	opts := &topicsOptions{}
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Print the event types a manifest registers",
		Example: "  eventbus topics --manifest handlers.yaml\n" +
			"  eventbus topics --manifest handlers.yaml --source billing",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topics, err := manifestTopics(cmd, opts)
			if err != nil {
				return err
			}
			for _, t := range topics {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "handler manifest (YAML)")
	cmd.Flags().StringSliceVar(&opts.sources, "source", nil, "discovery sources to register (default: all in the manifest)")
	return cmd
}

// manifestTopics registers the manifest's handlers in a throwaway
// dispatcher and returns its topic list.
func manifestTopics(cmd *cobra.Command, opts *topicsOptions) ([]string, error) {
	if opts.manifest == "" {
		return nil, errors.New("--manifest is required")
	}
	catalog, err := eventbus.LoadManifest(opts.manifest)
	if err != nil {
		return nil, err
	}

	d := eventbus.NewDispatcher(eventbus.Config{
		Discoverer: catalog,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	sources := opts.sources
	if len(sources) == 0 {
		sources = catalog.Sources()
	}
	for _, src := range sources {
		if err := d.InitializeFromDiscovery(cmd.Context(), src); err != nil {
			return nil, err
		}
	}
	return d.ListTopics(), nil
}
