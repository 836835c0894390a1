package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSettingsCmd(cfg *Config) *cobra.Command {
	var number int
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the resolved settings of the source or of clone --number",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cfg.resolveSettings(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("number") {
				s = s.CloneSettings(number)
			}
			if s.Password != "" {
				s.Password = "********"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{s.Alias: s}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().IntVar(&number, "number", 0, "Show the settings of this clone")
	return cmd
}
