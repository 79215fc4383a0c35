package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dotcommander/actionlib/internal/settings"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change stored credentials and the system prompt",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the stored settings with credentials masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := opts.app(cmd.Context())
				if err != nil {
					return err
				}
				out := newPrinter(cmd.OutOrStdout())
				s := a.settings.Snapshot()

				out.printf("%s %s\n", out.label.Render("Settings file:"), filepath.Join(a.cfg.Paths.DataDir, a.cfg.Paths.SettingsFile))
				out.printf("%s %s\n", out.label.Render("OAuth token:"), mask(s.OAuthToken))
				out.printf("%s %s\n", out.label.Render("IAM token:"), mask(s.IAMToken))
				out.printf("%s %s\n", out.label.Render("IAM token expires:"), describeExpiry(s, time.Now()))
				out.printf("%s %s\n", out.label.Render("Model:"), a.client.ModelURI())
				out.println(out.label.Render("System prompt:"))
				out.println(out.code.Render(s.SystemPrompt))
				return nil
			},
		},
		newSetOAuthCmd(opts),
		newSetPromptCmd(opts),
	)

	return cmd
}

func newSetOAuthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-oauth [token]",
		Short: "Store the OAuth token used to obtain IAM tokens",
		Long: `Store the OAuth token used to obtain IAM tokens.

Without an argument the token is read from stdin; on a terminal it is not
echoed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())

			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				token, err = readSecret(cmd, "OAuth token: ")
				if err != nil {
					return err
				}
			}

			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("empty OAuth token")
			}

			if err := a.settings.SetOAuthToken(cmd.Context(), token); err != nil {
				return err
			}
			out.success("OAuth token saved (%s)", mask(token))
			return nil
		},
	}
}

func newSetPromptCmd(opts *rootOptions) *cobra.Command {
	var (
		file  string
		reset bool
	)

	cmd := &cobra.Command{
		Use:   "set-prompt [prompt]",
		Short: "Change the system prompt sent before every action's code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			given := 0
			for _, set := range []bool{len(args) == 1, file != "", reset} {
				if set {
					given++
				}
			}
			if given != 1 {
				return fmt.Errorf("give exactly one of a prompt argument, --file or --reset")
			}

			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())

			var prompt string
			switch {
			case reset:
				prompt = settings.DefaultSystemPrompt
			case file == "-":
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading prompt from stdin: %w", err)
				}
				prompt = string(data)
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading prompt file: %w", err)
				}
				prompt = string(data)
			default:
				prompt = args[0]
			}

			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("empty system prompt")
			}

			if err := a.settings.SetSystemPrompt(cmd.Context(), prompt); err != nil {
				return err
			}
			out.success("System prompt saved")
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `Read the prompt from a file ("-" for stdin)`)
	cmd.Flags().BoolVar(&reset, "reset", false, "Restore the built-in prompt")

	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and refresh the IAM token",
	}

	var raw bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cached IAM token and its expiry",
		Long: `Show the cached IAM token and its expiry.

With --raw a valid token is printed alone, exchanging a new one first when
the cached token has expired, so it can be used in scripts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())

			if raw {
				token, err := a.settings.ValidToken(cmd.Context())
				if err != nil {
					return describeRemoteError(err)
				}
				out.println(token)
				return nil
			}

			s := a.settings.Snapshot()
			out.printf("%s %s\n", out.label.Render("IAM token:"), mask(s.IAMToken))
			out.printf("%s %s\n", out.label.Render("Expires:"), describeExpiry(s, time.Now()))
			return nil
		},
	}
	show.Flags().BoolVar(&raw, "raw", false, "Print only a valid token")

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the OAuth token for a new IAM token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())

			if err := a.settings.RefreshToken(cmd.Context()); err != nil {
				return describeRemoteError(err)
			}

			s := a.settings.Snapshot()
			out.success("IAM token refreshed, valid until %s", s.IAMTokenExpires.Local().Format(time.DateTime))
			return nil
		},
	}

	cmd.AddCommand(show, refresh)
	return cmd
}

func describeExpiry(s settings.Settings, now time.Time) string {
	if s.IAMToken == "" {
		return "no token issued"
	}
	at := s.IAMTokenExpires.Local().Format(time.DateTime)
	if s.TokenValid(now) {
		return fmt.Sprintf("%s (in %s)", at, s.IAMTokenExpires.Sub(now).Round(time.Minute))
	}
	return at + " (expired)"
}

// readSecret reads one line from stdin, without echo when stdin is a terminal
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return line, nil
}
