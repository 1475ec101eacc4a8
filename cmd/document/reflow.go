package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gogotex/pagesync/internal/reflow"
	"github.com/spf13/cobra"
)

type reflowFlags struct {
	capacity int
	cols     int
	lines    int
	start    int
}

func newReflowCmd() *cobra.Command {
	var f reflowFlags
	cmd := &cobra.Command{
		Use:   "reflow",
		Short: "reflow a JSON array of pages read from stdin",
		Long: "Reads a JSON array of page strings on stdin, moves overflowing text to the\n" +
			"following pages and prints the resulting array. Capacity is either a count of\n" +
			"visible characters (--capacity) or a wrapped-line box (--cols and --lines).",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := f.oracle()
			if err != nil {
				return err
			}
			return runReflow(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), o, f.start)
		},
	}
	cmd.Flags().IntVar(&f.capacity, "capacity", 0, "visible characters per page")
	cmd.Flags().IntVar(&f.cols, "cols", 0, "columns per line")
	cmd.Flags().IntVar(&f.lines, "lines", 0, "lines per page")
	cmd.Flags().IntVar(&f.start, "start", 0, "first page to reflow")
	return cmd
}

func (f reflowFlags) oracle() (reflow.Oracle, error) {
	box := f.cols > 0 || f.lines > 0
	switch {
	case f.capacity > 0 && box:
		return nil, errors.New("use either --capacity or --cols/--lines, not both")
	case f.capacity > 0:
		return reflow.RuneCapacity(f.capacity), nil
	case f.cols > 0 && f.lines > 0:
		return reflow.LineCapacity(f.cols, f.lines), nil
	case box:
		return nil, errors.New("--cols and --lines must both be positive")
	default:
		return nil, errors.New("one of --capacity or --cols/--lines is required")
	}
}

func runReflow(in io.Reader, out, errOut io.Writer, o reflow.Oracle, start int) error {
	var pages []string
	if err := json.NewDecoder(in).Decode(&pages); err != nil {
		return fmt.Errorf("read pages: %w", err)
	}
	if start < 0 || (len(pages) > 0 && start >= len(pages)) {
		return fmt.Errorf("--start %d out of range for %d pages", start, len(pages))
	}

	res := reflow.Reflow(pages, start, o)
	if res.Stuck >= 0 {
		fmt.Fprintf(errOut, "warning: page %d holds an unbreakable run longer than a page\n", res.Stuck)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res.Pages)
}
