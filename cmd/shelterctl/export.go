package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kiranshivaraju/sheltertrack/internal/animal"
	"github.com/kiranshivaraju/sheltertrack/internal/archive"
	"github.com/kiranshivaraju/sheltertrack/internal/export"
	"github.com/spf13/cobra"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		from, to  string
		out       string
		toArchive bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export animal records as CSV",
		Long: `Export animal records as CSV, newest intake first.

--from and --to take YYYY-MM-DD dates in local time and only apply when
both are given; --to covers its whole day. With --archive the file is
uploaded to EXPORT_S3_BUCKET instead of written locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := export.ParseRange(from, to, time.Local)
			if err != nil {
				return err
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			animals, err := animal.NewService(st).Export(cmd.Context(), start, end)
			if err != nil {
				return err
			}

			if toArchive {
				if a.cfg.Export.Bucket == "" {
					return archive.ErrDisabled
				}
				arch, err := archive.New(cmd.Context(), a.cfg.Export)
				if err != nil {
					return err
				}
				res, err := arch.Archive(cmd.Context(), animals, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d rows to s3://%s/%s\n", res.Rows, res.Bucket, res.Key)
				return nil
			}

			return writeExport(cmd.OutOrStdout(), out, func(w io.Writer) error {
				return export.WriteCSV(w, animals)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVarP(&out, "out", "o", "", `output file; "-" or empty for stdout, a directory for the default filename`)
	cmd.Flags().BoolVar(&toArchive, "archive", false, "upload to the configured S3 bucket")
	return cmd
}

// writeExport writes to stdout, to path, or to the dated default filename inside path
// when path is a directory.
func writeExport(stdout io.Writer, path string, render func(io.Writer) error) error {
	if path == "" || path == "-" {
		return render(stdout)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, export.Filename(time.Now()))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := render(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}
