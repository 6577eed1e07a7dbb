package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/sipflow/internal/sip"
)

var attrsCmd = &cobra.Command{
	Use:   "attrs",
	Short: "List the call attributes usable in columns and ignore rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAttrs(attrsOutput, cmd.OutOrStdout())
	},
}

var attrsOutput string

func init() {
	attrsCmd.Flags().StringVarP(&attrsOutput, "output", "o", "text", "output format: text or yaml")
}

type attrDoc struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

func runAttrs(output string, out io.Writer) error {
	switch output {
	case "text":
		for _, h := range sip.Attrs() {
			if _, err := fmt.Fprintf(out, "%-10s %s\n", h.Name, h.Desc); err != nil {
				return err
			}
		}
		return nil
	case "yaml":
		docs := make([]attrDoc, 0, len(sip.Attrs()))
		for _, h := range sip.Attrs() {
			docs = append(docs, attrDoc{Name: h.Name, Description: h.Desc})
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output %q (must be text or yaml)", output)
	}
}
