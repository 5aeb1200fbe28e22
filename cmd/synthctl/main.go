package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func main() {
	baseURL := getenv("SYNTH_BASE_URL", "http://localhost:8080")
	token := getenv("SYNTH_TOKEN", "")
	var profileName string
	defaults := &profile{}
	ui := newUI()

	root := &cobra.Command{
		Use:   "synthctl",
		Short: "Synthetic data platform CLI",
		Long:  "synthctl uploads datasets, submits generation requests and fetches the synthetic output.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL of the synth API")
	root.PersistentFlags().StringVar(&token, "token", token, "Bearer token")
	root.PersistentFlags().StringVar(&profileName, "profile", "", "Config profile (default $SYNTHCTL_PROFILE or the current profile)")

	// Flags beat environment variables, which beat the stored profile.
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		store, err := openProfiles()
		if err != nil {
			return err
		}
		_, prof := store.active(profileName)
		*defaults = prof
		if !cmd.Flags().Changed("base-url") && os.Getenv("SYNTH_BASE_URL") == "" && prof.BaseURL != "" {
			baseURL = prof.BaseURL
		}
		if !cmd.Flags().Changed("token") && os.Getenv("SYNTH_TOKEN") == "" && prof.Token != "" {
			token = prof.Token
		}
		return nil
	}

	api := func() (*client, error) {
		if strings.TrimSpace(token) == "" {
			return nil, errors.New("token is required (run `synthctl init` or pass --token)")
		}
		return newClient(baseURL, token), nil
	}

	root.AddCommand(
		initCmd(&profileName, ui),
		uploadCmd(api, ui),
		generateCmd(api, defaults, ui),
		statusCmd(api, ui),
		waitCmd(api, ui),
		trialsCmd(api, ui),
		cancelCmd(api, ui),
		retryCmd(api, ui),
		downloadCmd(api, defaults, ui),
		listCmd(api, ui),
		notificationsCmd(api, ui),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		flags    profile
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or update a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openProfiles()
			if err != nil {
				return err
			}
			name, prof := store.active(*profileName)
			merge(&prof, flags)
			if prof.BaseURL == "" {
				prof.BaseURL = "http://localhost:8080"
			}

			if !noPrompt {
				p := newPrompter()
				prof.BaseURL = p.line("Base URL", prof.BaseURL)
				prof.DefaultModel = p.line("Default model (ctgan|tvae)", prof.DefaultModel)
				prof.DownloadDir = p.line("Download directory", prof.DownloadDir)
				if flags.Token == "" {
					fmt.Println(ui.dim("current token: " + redact(prof.Token)))
					t, err := p.secret("Token (empty keeps current)")
					if err != nil {
						return err
					}
					if t != "" {
						prof.Token = t
					}
				}
			}
			if m := prof.DefaultModel; m != "" && m != string(domain.FamilyCTGAN) && m != string(domain.FamilyTVAE) {
				return fmt.Errorf("unknown model %q", m)
			}

			store.put(name, prof, *profileName != "")
			if err := store.save(); err != nil {
				return err
			}
			fmt.Printf("%s Saved profile '%s' to %s\n", ui.ok("[OK]"), name, store.path)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.BaseURL, "base-url", "", "Base URL of the synth API")
	cmd.Flags().StringVar(&flags.Token, "token", "", "Bearer token")
	cmd.Flags().StringVar(&flags.DefaultModel, "default-model", "", "Model used by generate when --model is not set")
	cmd.Flags().StringVar(&flags.DownloadDir, "download-dir", "", "Directory download writes to when --output is not set")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

// merge copies the non-empty fields of src into dst.
func merge(dst *profile, src profile) {
	set := func(to *string, from string) {
		if v := strings.TrimSpace(from); v != "" {
			*to = v
		}
	}
	set(&dst.BaseURL, src.BaseURL)
	set(&dst.Token, src.Token)
	set(&dst.DefaultModel, src.DefaultModel)
	set(&dst.DownloadDir, src.DownloadDir)
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(ui *ui) string {
	title := ui.title("synthctl")
	return fmt.Sprintf(`%s: CLI for the synthetic data platform

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  synthctl init
  synthctl upload customers.csv
  synthctl generate --dataset datasets/u1/abc.csv --model ctgan --samples 1000 --param epochs=300
  synthctl generate --dataset datasets/u1/abc.csv --model tvae --samples 1000 --method bayesian --trials 20 --wait
  synthctl download <id> -o synthetic.csv

`, title, profilePath())
}
