package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/loom/internal/compiler"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/infrastructure/config"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

func newGenerateCmd(flags *rootFlags) *cobra.Command {
	var (
		projectPath string
		outputDir   string
		debugGraphs bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile a blueprint into a server crate",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(flags, "generate")
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
				ModuleName:  loaded.Module,
				DebugGraphs: debugGraphs,
			})

			renderer := diagnostics.NewRenderer(os.Stderr)
			renderer.Render(sink.All())

			if err != nil {
				if errors.Is(err, compiler.ErrCompilationFailed) {
					return fmt.Errorf("%d error(s) emitted", sink.ErrorCount())
				}
				return err
			}

			if debugGraphs {
				for _, dump := range result.GraphDumps {
					fmt.Fprintln(os.Stderr, dump)
				}
			}

			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			sourcePath := filepath.Join(outputDir, "server.go")
			if err := os.WriteFile(sourcePath, []byte(result.App.Source), 0644); err != nil {
				return fmt.Errorf("failed to write generated source: %w", err)
			}
			manifestPath := filepath.Join(outputDir, "go.mod")
			if err := os.WriteFile(manifestPath, []byte(result.App.Manifest), 0644); err != nil {
				return fmt.Errorf("failed to write manifest: %w", err)
			}

			logger.Info(ctx, "server crate generated",
				"source", sourcePath,
				"manifest", manifestPath,
				"pipelines", len(result.Pipelines),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectPath, "blueprint", "b", "loom.yaml", "Path to the project file")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "generated", "Directory for the generated crate")
	cmd.Flags().BoolVar(&debugGraphs, "debug-graph", false, "Print every call graph as a tree")

	return cmd
}
