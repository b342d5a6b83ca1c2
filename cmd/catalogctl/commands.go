package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"erpquery/internal/catalog"
	"erpquery/internal/service"
)

func resolveCmd(catalogPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <entity name>",
		Short: "Show the ranked candidates for an entity name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(*catalogPath)
			if err != nil {
				return err
			}
			name := strings.Join(args, " ")
			res := service.NewEntityResolver(cat).Resolve(name)

			out := cmd.OutOrStdout()
			if len(res.Candidates) == 0 {
				fmt.Fprintf(out, "No services found for %q.\n", name)
				return nil
			}
			fmt.Fprintf(out, "tier: %s\n", res.Tier)
			for _, c := range res.Candidates {
				fmt.Fprintf(out, "%6.3f  %s/%s (%s)\n", c.Score, c.ServiceName, c.EntityName, c.ServiceTitle)
			}
			if res.Probing() {
				fmt.Fprintln(out, "candidates will be probed until one returns data")
			}
			return nil
		},
	}
}

func mapFieldCmd(catalogPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "map-field <service> <entity> <field>",
		Short: "Map a user-supplied field name to its API field name",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(*catalogPath)
			if err != nil {
				return err
			}
			field := strings.Join(args[2:], " ")
			mapped, ok := service.NewFieldMapper(cat).Lookup(args[0], args[1], field)

			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "%s (no mapping, passed through)\n", field)
				return nil
			}
			fmt.Fprintln(out, mapped)
			return nil
		},
	}
}

func paramsCmd(catalogPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "params [service]",
		Short: "List parameter-based services and their mandatory filters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(*catalogPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				p, ok := cat.ParameterAPI(args[0])
				if !ok {
					fmt.Fprintf(out, "%s has no mandatory filters\n", args[0])
					return nil
				}
				printParameterAPI(cmd, p)
				return nil
			}
			for i := range cat.ParameterAPIs {
				printParameterAPI(cmd, &cat.ParameterAPIs[i])
			}
			return nil
		},
	}
}

func printParameterAPI(cmd *cobra.Command, p *catalog.ParameterAPI) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s/%s\n", p.Service, p.Entity)
	fmt.Fprintf(out, "  mandatory: %s\n", strings.Join(p.MandatoryFilters, ", "))
	if len(p.OptionalFilters) > 0 {
		fmt.Fprintf(out, "  optional:  %s\n", strings.Join(p.OptionalFilters, ", "))
	}
	fmt.Fprintf(out, "  pattern:   %s\n", p.URLPattern)
	if p.ExampleQuery != "" {
		fmt.Fprintf(out, "  example:   %s\n", p.ExampleQuery)
	}
}

func validateCmd(catalogPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the catalog parses and its references point at whitelisted services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(*catalogPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog OK: %d services, %d known entities, %d synonym groups, %d parameter APIs\n",
				len(cat.Services), len(cat.KnownEntities), len(cat.Synonyms), len(cat.ParameterAPIs))
			return nil
		},
	}
}
