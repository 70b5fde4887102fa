package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Azure/ai-gateway/pkg/container"
	"github.com/Azure/ai-gateway/pkg/logger"
)

func newCheckDockerfileCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check-dockerfile [path]",
		Short: "Validate a Dockerfile against the gateway image contract",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "Dockerfile"
			if len(args) > 0 {
				path = args[0]
			}

			v := container.NewValidator(container.DefaultContract(), logger.Get())
			result, err := v.ValidateFile(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printResult(out, path, result)
			}

			if !result.Valid {
				return fmt.Errorf("%s violates the image contract (%d errors)", path, len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func printResult(w io.Writer, path string, r *container.Result) {
	fmt.Fprintf(w, "%s: %d stages, recipe %s\n", path, len(r.Stages), r.Recipe)
	for _, issue := range r.Errors {
		fmt.Fprintf(w, "  ERROR   line %d [%s] %s\n", issue.Line, issue.Rule, issue.Message)
	}
	for _, issue := range r.Warnings {
		fmt.Fprintf(w, "  WARNING line %d [%s] %s\n", issue.Line, issue.Rule, issue.Message)
	}
	for _, s := range r.Suggestions {
		fmt.Fprintf(w, "  hint    %s\n", s)
	}
	if r.Valid {
		fmt.Fprintln(w, "OK")
	}
}
