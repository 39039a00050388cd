package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/chemsource/config"
	"github.com/c360studio/chemsource/pipeline"
	"github.com/c360studio/chemsource/source"
)

// retrievalFlags are the per-call overrides of the retrieval policy.
type retrievalFlags struct {
	priority     string
	singleSource bool
}

func (f *retrievalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.priority, "priority", "p", "", "Source tried first: WIKIPEDIA or PUBMED (default from config)")
	cmd.Flags().BoolVar(&f.singleSource, "single-source", false, "Only query the priority source")
}

// resolve applies the flags on top of cfg.
func (f *retrievalFlags) resolve(cmd *cobra.Command, cfg *config.Config) (source.Kind, bool) {
	priority := cfg.PriorityKind()
	if f.priority != "" {
		priority = source.ParseKind(f.priority)
	}
	single := cfg.Retrieval.SingleSource
	if cmd.Flags().Changed("single-source") {
		single = f.singleSource
	}
	return priority, single
}

type retrieveOutput struct {
	Name       string `json:"name"`
	InfoSource string `json:"info_source"`
	Text       string `json:"text"`
}

type classifyOutput struct {
	Name       string   `json:"name"`
	InfoSource string   `json:"info_source,omitempty"`
	Text       string   `json:"text,omitempty"`
	Categories []string `json:"categories"`
}

func retrieveCmd(c *cli) *cobra.Command {
	var flags retrievalFlags

	cmd := &cobra.Command{
		Use:   "retrieve <compound>",
		Short: "Fetch Wikipedia and/or PubMed text for a compound",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			p, err := pipeline.New(*cfg, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}

			priority, single := flags.resolve(cmd, cfg)
			info, err := p.Retrieve(cmd.Context(), args[0], priority, single)
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), retrieveOutput{
				Name:       args[0],
				InfoSource: info.InfoSource,
				Text:       info.Text,
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func classifyCmd(c *cli) *cobra.Command {
	var (
		infoSource string
		text       string
		textFile   string
	)

	cmd := &cobra.Command{
		Use:   "classify <compound>",
		Short: "Classify a compound from text you provide",
		Long: `Classify a compound from caller-supplied context without retrieving anything.
Use --text or --text-file ("-" reads stdin). Without text the prompt says no
information is available.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if textFile != "" {
				data, err := readTextFile(cmd.InOrStdin(), textFile)
				if err != nil {
					return err
				}
				text = string(data)
			}
			if infoSource == "" {
				infoSource = source.TagNone
				if strings.TrimSpace(text) != "" {
					infoSource = "USER"
				}
			}

			p, err := pipeline.New(*cfg, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}

			labels, err := p.Classify(cmd.Context(), args[0], pipeline.Information{InfoSource: infoSource, Text: text})
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), classifyOutput{
				Name:       args[0],
				InfoSource: infoSource,
				Categories: labels.Strings(),
			})
		},
	}

	cmd.Flags().StringVar(&infoSource, "info-source", "", "Tag describing where the text came from")
	cmd.Flags().StringVar(&text, "text", "", "Context text for the compound")
	cmd.Flags().StringVar(&textFile, "text-file", "", "Read context text from a file, or - for stdin")
	return cmd
}

func runCmd(c *cli) *cobra.Command {
	var flags retrievalFlags

	cmd := &cobra.Command{
		Use:   "run <compound>",
		Short: "Retrieve context for a compound and classify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			p, err := pipeline.New(*cfg, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}

			priority, single := flags.resolve(cmd, cfg)
			info, labels, err := p.Chemsource(cmd.Context(), args[0], priority, single)
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), classifyOutput{
				Name:       args[0],
				InfoSource: info.InfoSource,
				Text:       info.Text,
				Categories: labels.Strings(),
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func configCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	var (
		path  string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write the default configuration. Without --path the user config
(~/.config/chemsource/config.yaml) is created if it does not exist yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), c.logLevel, c.logFormat)

			if path == "" {
				written, err := config.NewLoader(logger).EnsureUserConfig()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), written)
				return nil
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "Write to this file instead of the user config")
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg.Model.Key = mask(cfg.Model.Key)
			cfg.Literature.APIKey = mask(cfg.Literature.APIKey)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func readTextFile(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	return data, nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

func writeOutput(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
