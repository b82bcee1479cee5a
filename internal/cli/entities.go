package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/tickloop/pkg/model"
)

func newEntitiesCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List registered entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(fmt.Sprintf("/api/v1/entities/?limit=%d&offset=%d", limit, offset))
			if err != nil {
				return fmt.Errorf("list entities: %w", err)
			}
			var list []model.EntityInfo
			if err := resp.decode(&list); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No entities registered.")
				return nil
			}
			fmt.Fprintf(out, "%-40s  %-10s  %-24s  %s\n", "ID", "KIND", "NAME", "TICKS")
			fmt.Fprintf(out, "%-40s  %-10s  %-24s  %s\n", "----", "----", "----", "-----")
			for _, e := range list {
				fmt.Fprintf(out, "%-40s  %-10s  %-24s  %s\n", e.ID, e.Kind, e.Name, humanize.Comma(e.Ticks))
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(list), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entities to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entities to skip")
	return cmd
}

func newSpawnCmd() *cobra.Command {
	var name, paramsFile string
	var params []string

	cmd := &cobra.Command{
		Use:   "spawn <kind>",
		Short: "Build and register an entity on a running server",
		Long: `Spawns an entity of the given kind. Parameters come from --param key=value
flags (values are parsed as YAML scalars) and from a YAML --params-file.

  tickd spawn lifetime --param ticks=120
  tickd spawn script --params-file wander.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := model.EntitySpec{Kind: args[0], Name: name, Params: map[string]any{}}
			if paramsFile != "" {
				data, err := os.ReadFile(paramsFile)
				if err != nil {
					return fmt.Errorf("read params file: %w", err)
				}
				if err := yaml.Unmarshal(data, &spec.Params); err != nil {
					return fmt.Errorf("parse params file: %w", err)
				}
			}
			for _, p := range params {
				key, value, err := parseParam(p)
				if err != nil {
					return err
				}
				spec.Params[key] = value
			}

			resp, err := client.Post("/api/v1/entities/", spec)
			if err != nil {
				return fmt.Errorf("spawn: %w", err)
			}
			var info model.EntityInfo
			if err := resp.decode(&info); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entity spawned: %s (%s %s)\n", info.ID, info.Kind, info.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Entity name (default kind-<id>)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&paramsFile, "params-file", "", "YAML file of parameters")
	return cmd
}

// parseParam splits key=value and decodes value as a YAML scalar, so
// ticks=120 is a number and child=counter a string.
func parseParam(s string) (string, any, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --param %q: want key=value", s)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return key, n, nil
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return key, raw, nil
	}
	switch value.(type) {
	case string, bool, float64:
		return key, value, nil
	}
	return key, raw, nil
}

func newDespawnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "despawn <entity_id>",
		Short: "Unregister an entity on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Delete("/api/v1/entities/" + args[0]); err != nil {
				return fmt.Errorf("despawn: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entity despawned: %s\n", args[0])
			return nil
		},
	}
}
