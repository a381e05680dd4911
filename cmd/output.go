// File: cmd/output.go
package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/webpilot/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func checkFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or yaml)", format)
	}
}

// encode writes v as indented JSON or YAML.
func encode(out io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
}

// printJob renders one job. The text form shows status, output and the log.
func printJob(out io.Writer, format string, j *store.Job) error {
	if format != "text" {
		return encode(out, format, j)
	}
	fmt.Fprintf(out, "Job %d: %s\n", j.ID, j.Status)
	fmt.Fprintf(out, "Goal: %s\n", j.Goal)
	fmt.Fprintf(out, "URL:  %s\n", j.StartingURL)
	if j.Output != nil {
		fmt.Fprintf(out, "Output:\n  %s\n", strings.ReplaceAll(*j.Output, "\n", "\n  "))
	}
	if len(j.Log) > 0 {
		fmt.Fprintln(out, "Log:")
		for _, line := range j.Log {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	return nil
}

// printJobTable renders jobs as aligned columns.
func printJobTable(out io.Writer, jobs []store.Job) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tGOAL")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", j.ID, j.Status, j.CreatedAt.Local().Format(time.DateTime), truncate(j.Goal, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
