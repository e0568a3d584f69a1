package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"adloader/internal/ads"
	"adloader/internal/content"
	"adloader/pkg/logger"
)

type rootOptions struct {
	envRoot  string
	pixelURL string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "adctl",
		Short:         "Inspect catalog cards and resolve experience decks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envRoot, "env-root", "", "content catalog origin (default $ADS_ENV_ROOT or http://localhost)")
	rootCmd.PersistentFlags().StringVar(&opts.pixelURL, "pixel-url", "", "tracking pixel URL (default $ADS_PIXEL_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(cardCmd(opts))
	rootCmd.AddCommand(resolveCmd(opts))
	return rootCmd
}

func (o *rootOptions) loader(logOut io.Writer) *ads.Loader {
	cfg := ads.DefaultConfig().FromEnv()
	if o.envRoot != "" {
		cfg.EnvRoot = o.envRoot
	}
	if o.pixelURL != "" {
		cfg.PixelURL = o.pixelURL
	}
	log := logger.NewTo(logOut, o.logLevel, true)
	return ads.NewLoader(cfg, ads.WithLogger(log))
}

func cardCmd(opts *rootOptions) *cobra.Command {
	var (
		preview bool
		params  map[string]string
	)
	cmd := &cobra.Command{
		Use:   "card <id>",
		Short: "Fetch one card from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := content.Query{}
			for k, v := range params {
				q[k] = v
			}
			if preview {
				q["preview"] = "true"
			}
			loader := opts.loader(cmd.ErrOrStderr())
			card, err := loader.GetCard(cmd.Context(), args[0], q, uuid.NewString())
			if err != nil {
				return fmt.Errorf("get card: %w", err)
			}
			if card == nil {
				return fmt.Errorf("card %s not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), card)
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "bypass the card cache")
	cmd.Flags().StringToStringVar(&params, "param", nil, "extra query parameter, k=v (repeatable)")
	return cmd
}

func resolveCmd(opts *rootOptions) *cobra.Command {
	var (
		file       string
		campaign   string
		categories []string
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Fill the sponsored slots of an experience read from a JSON file",
		Long: `Fill the sponsored slots of an experience and print the result.

Examples:
  adctl resolve --file exp.json --campaign cam-1
  adctl resolve --file - --campaign cam-1 --category food --category travel`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := readExperience(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			var cats []string
			if cmd.Flags().Changed("category") {
				cats = categories
			}
			loader := opts.loader(cmd.ErrOrStderr())
			out, err := loader.LoadAds(cmd.Context(), exp, cats, campaign, uuid.NewString())
			if err != nil {
				return fmt.Errorf("resolve %s: %w", exp.ID, err)
			}
			return printJSON(cmd.OutOrStdout(), ads.ApplyPixels(loader.Config().PixelURL, out))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "experience JSON file, - for stdin")
	cmd.Flags().StringVarP(&campaign, "campaign", "c", "", "campaign id to draw sponsored cards from")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "category filter (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readExperience(stdin io.Reader, path string) (*content.Experience, error) {
	var (
		raw []byte
		err error
	)
	if strings.TrimSpace(path) == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read experience: %w", err)
	}
	var exp content.Experience
	if err := json.Unmarshal(raw, &exp); err != nil {
		return nil, fmt.Errorf("parse experience: %w", err)
	}
	return &exp, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
