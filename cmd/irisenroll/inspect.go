package main

import (
	"fmt"
	"io"
	"os"

	"github.com/osvaldoandrade/irisenroll/internal/matfile"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newInspectCmd(u *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.mat>...",
		Short: "Show the variables stored in template files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.OutOrStdout(), u, args)
		},
	}
}

func inspect(w io.Writer, u *ui, paths []string) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"File", "Variable", "Class", "Size", "Nonzero"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	var failed int
	for _, p := range paths {
		vars, err := decodeFile(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, u.err("[ERROR]"), err)
			failed++
			continue
		}
		for _, v := range vars {
			class := "double"
			if v.Matrix.Logical {
				class = "logical"
			}
			tw.AppendRow(table.Row{
				p,
				v.Name,
				class,
				fmt.Sprintf("%dx%d", v.Matrix.Rows, v.Matrix.Cols),
				v.Matrix.CountNonZero(),
			})
		}
	}
	if tw.Length() > 0 {
		fmt.Fprintln(w, tw.Render())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be read", failed, len(paths))
	}
	return nil
}

func decodeFile(path string) ([]matfile.Variable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vars, err := matfile.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vars, nil
}
