package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civiclab/reportd/internal/catalog"
	"github.com/civiclab/reportd/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate OpenAPI specification",
		Long: `Generate an OpenAPI 3.1 specification for the report API.
The spec includes the reportable tables, their row shapes, and all
designer, saved-query, and export operations.`,
		Example: `  reportd openapi                  # print to stdout
  reportd openapi -o openapi.json  # write to file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(baseURL, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Server URL embedded in the spec")

	return cmd
}

func runOpenAPI(baseURL, outputFile string) error {
	src, err := openSource()
	if err != nil {
		return err
	}
	defer src.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.New(src, viper.GetStringSlice("source.tables"), logger)

	tables, err := cat.Tables(context.Background())
	if err != nil {
		return fmt.Errorf("introspect schema: %w", err)
	}

	doc := openapi.Generate(baseURL, tables)
	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}
	jsonBytes = append(jsonBytes, '\n')

	if outputFile != "" {
		if err := os.WriteFile(outputFile, jsonBytes, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outputFile)
		return nil
	}
	fmt.Print(string(jsonBytes))
	return nil
}
