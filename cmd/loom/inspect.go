package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/loom/internal/compiler"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/infrastructure/config"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

func newInspectCmd(flags *rootFlags) *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the routing table and pipeline summary for a blueprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(flags, "inspect")
			if err != nil {
				return err
			}
			ctx := ports.WithCorrelationID(cmd.Context(), ports.GenerateCorrelationID())

			loader := config.NewYAMLLoader(logger)
			loaded, err := loader.Load(ctx, projectPath)
			if err != nil {
				return err
			}

			sink := diagnostics.NewCollector()
			result, err := compiler.Compile(ctx, loaded.Blueprint, loaded.Oracle, sink, logger, compiler.Options{
				ModuleName: loaded.Module,
			})

			renderer := diagnostics.NewRenderer(os.Stderr)
			renderer.Render(sink.All())
			if err != nil {
				if errors.Is(err, compiler.ErrCompilationFailed) {
					return fmt.Errorf("%d error(s) emitted", sink.ErrorCount())
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "ROUTES")
			for _, leaf := range result.Router.Leaves {
				if leaf.CatchAllFallback {
					fmt.Fprintf(out, "  %-30s -> fallback %s\n", leaf.Path, result.Db.RenderComponent(leaf.Fallback))
					continue
				}
				for _, handler := range leaf.Handlers {
					methods := leaf.MethodsOf(handler)
					label := strings.Join(methods, "|")
					if len(methods) == 9 {
						label = "ANY"
					}
					path := leaf.Path
					if leaf.Domain != "" {
						path = leaf.Domain + path
					}
					fmt.Fprintf(out, "  %-7s %-22s -> %s\n", label, path, result.Db.RenderComponent(handler))
				}
			}
			fmt.Fprintf(out, "  %-30s -> %s\n", "(no match)", result.Db.RenderComponent(result.Router.RootFallback))

			fmt.Fprintln(out, "\nPIPELINES")
			names := make([]string, 0, len(result.Pipelines))
			byName := make(map[string]int)
			for _, p := range result.Pipelines {
				names = append(names, p.Name)
				byName[p.Name] = len(p.Stages)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %-10s %d stage(s)\n", name, byName[name])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectPath, "blueprint", "b", "loom.yaml", "Path to the project file")

	return cmd
}
