package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/modoterra/gamehost/pkg/psf"
	"github.com/modoterra/gamehost/pkg/transport/uds"
)

var psfCmd = &cobra.Command{
	Use:   "psf",
	Short: "Inspect PSF parameter files (param.sfo)",
}

var (
	psfYAML   bool
	psfWatch  bool
	psfRemote bool
)

var psfShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Decode and print a PSF file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if psfWatch {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return psf.Watch(ctx, path, func(doc *psf.Document, err error) {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					return
				}
				printPSF(out, doc)
				fmt.Fprintln(out)
			})
		}

		var doc *psf.Document
		if psfRemote {
			doc = &psf.Document{}
			err = call(uds.MethodDecodePSF, uds.DecodePSFRequest{Path: path}, doc)
		} else {
			doc, err = psf.Open(path)
		}
		if err != nil {
			return err
		}
		return printPSF(out, doc)
	},
}

func init() {
	psfShowCmd.Flags().BoolVar(&psfYAML, "yaml", false, "output as YAML")
	psfShowCmd.Flags().BoolVar(&psfWatch, "watch", false, "print again whenever the file changes")
	psfShowCmd.Flags().BoolVar(&psfRemote, "daemon", false, "decode through the daemon")
	psfCmd.AddCommand(psfShowCmd)
}

func printPSF(w io.Writer, doc *psf.Document) error {
	if psfYAML {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(doc)
	}
	if !doc.LastWrite.IsZero() {
		fmt.Fprintf(w, "# modified %s\n", doc.LastWrite.Format("2006-01-02 15:04:05"))
	}
	for _, k := range doc.Keys() {
		v := doc.Entries[k]
		fmt.Fprintf(w, "%-20s %-8s %s\n", k, v.Kind, v)
	}
	return nil
}
