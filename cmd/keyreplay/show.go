package main

import (
	"maps"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/szaher/designs/keyreplay/internal/secrets"
)

type showOutput struct {
	Descriptor   string            `yaml:"descriptor"`
	PasswordFile string            `yaml:"password_file"`
	URL          string            `yaml:"url,omitempty"`
	Script       string            `yaml:"script,omitempty"`
	Extra        map[string]string `yaml:"extra,omitempty"`
	Data         map[string]string `yaml:"data"`
}

func newShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show <account>",
		Short: "Print an account's descriptor and decrypted data",
		Long:  "Show decrypts the account's secret file and prints it with the descriptor. Values are redacted unless --reveal is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			d, data, err := a.service.Show(ctx, args[0])
			if err != nil {
				return err
			}

			out := showOutput{
				Descriptor:   d.Path,
				PasswordFile: d.PasswordFile,
				URL:          d.URL,
				Script:       d.Script,
				Extra:        d.Extra,
				Data:         maps.Clone(data),
			}
			if !reveal {
				for k := range out.Data {
					out.Data[k] = secrets.Redacted
				}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret values in clear text")

	return cmd
}
