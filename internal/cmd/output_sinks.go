package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pricewise/pricewise/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|yaml")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// writeOutput renders v in the requested format to the --out target.
func writeOutput(cmd *cobra.Command, v any, renderTable func() string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	rendered, err := output.Render(format, v, renderTable)
	if err != nil {
		return err
	}

	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

func openSink(path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}
