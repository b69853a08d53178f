package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vartalap/internal/chat"
	"vartalap/internal/config"
	"vartalap/internal/domain"
)

var errNotSignedIn = errors.New("not signed in, run `vartalap login` first")

func newRootCmd(cfg *config.ClientConfig) *cobra.Command {
	root := &cobra.Command{
		Use:           "vartalap",
		Short:         "Terminal chat with an AI assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, runChat)
		},
	}
	root.AddCommand(
		newSignUpCmd(cfg),
		newVerifyCmd(cfg),
		newLoginCmd(cfg),
		newLogoutCmd(cfg),
		newWhoAmICmd(cfg),
		newChatsCmd(cfg),
	)
	return root
}

func withApp(cmd *cobra.Command, cfg *config.ClientConfig, run func(*cobra.Command, *app) error) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(cmd, a)
}

func requireUser(a *app) (domain.Identity, error) {
	user, ok := a.sess.CurrentUser()
	if !ok {
		return domain.Identity{}, errNotSignedIn
	}
	return user, nil
}

func runChat(cmd *cobra.Command, a *app) error {
	user, err := requireUser(a)
	if err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	ws := chat.NewWorkspace(cmd.Context(), a.logger, a.sess, chat.WorkspaceOptions{
		MaxMessageLength: a.cfg.MaxMessageLength,
		OnChange: func(chat.Snapshot) {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	})
	defer ws.Close()

	authCh := make(chan domain.AuthState, 1)
	unsubscribe := a.sess.OnAuthChange(func(st domain.AuthState) {
		if st.Status != domain.AuthUnauthenticated {
			return
		}
		select {
		case authCh <- st:
		default:
		}
	})
	defer unsubscribe()

	m := newModel(ws, user, changed, authCh)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running chat: %w", err)
	}
	if fm, ok := final.(*model); ok && fm.ended != nil {
		return fm.ended
	}
	return nil
}

func newSignUpCmd(cfg *config.ClientConfig) *cobra.Command {
	var opts struct {
		Email    string
		Password string
		Name     string
	}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(cmd *cobra.Command, a *app) error {
				in := bufio.NewReader(cmd.InOrStdin())
				email, err := valueOrPrompt(in, cmd.OutOrStdout(), opts.Email, "Email: ")
				if err != nil {
					return err
				}
				password, err := valueOrPrompt(in, cmd.OutOrStdout(), opts.Password, "Password: ")
				if err != nil {
					return err
				}
				verify, err := a.sess.SignUp(cmd.Context(), email, password, opts.Name)
				if err != nil {
					return errors.New(userMessage(err))
				}
				if verify {
					fmt.Fprintf(cmd.OutOrStdout(), "Check your email to verify your account, then run: vartalap verify --email %s --code <code>\n", email)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (prompted when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	return cmd
}

func newVerifyCmd(cfg *config.ClientConfig) *cobra.Command {
	var opts struct {
		Email  string
		Code   string
		Resend bool
	}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Confirm the email verification code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(cmd *cobra.Command, a *app) error {
				in := bufio.NewReader(cmd.InOrStdin())
				email, err := valueOrPrompt(in, cmd.OutOrStdout(), opts.Email, "Email: ")
				if err != nil {
					return err
				}
				if opts.Resend {
					if err := a.sess.ResendVerification(cmd.Context(), email); err != nil {
						return errors.New(userMessage(err))
					}
					fmt.Fprintln(cmd.OutOrStdout(), "A new code is on its way")
					return nil
				}
				code, err := valueOrPrompt(in, cmd.OutOrStdout(), opts.Code, "Code: ")
				if err != nil {
					return err
				}
				if err := a.sess.VerifyEmail(cmd.Context(), email, code); err != nil {
					return errors.New(userMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Email verified, signed in as %s\n", email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Code, "code", "", "verification code")
	cmd.Flags().BoolVar(&opts.Resend, "resend", false, "send a new code instead of verifying")
	return cmd
}

func newLoginCmd(cfg *config.ClientConfig) *cobra.Command {
	var opts struct {
		Email    string
		Password string
	}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(cmd *cobra.Command, a *app) error {
				in := bufio.NewReader(cmd.InOrStdin())
				email, err := valueOrPrompt(in, cmd.OutOrStdout(), opts.Email, "Email: ")
				if err != nil {
					return err
				}
				password, err := valueOrPrompt(in, cmd.OutOrStdout(), opts.Password, "Password: ")
				if err != nil {
					return err
				}
				if err := a.sess.SignIn(cmd.Context(), email, password); err != nil {
					if errors.Is(err, domain.ErrEmailUnverified) {
						return fmt.Errorf("email not verified, run: vartalap verify --email %s", email)
					}
					return errors.New(userMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (prompted when empty)")
	return cmd
}

func newLogoutCmd(cfg *config.ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(cmd *cobra.Command, a *app) error {
				if err := a.sess.SignOut(cmd.Context()); err != nil {
					a.logger.Warn("remote sign out failed", zap.Error(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoAmICmd(cfg *config.ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(cmd *cobra.Command, a *app) error {
				user, err := requireUser(a)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), displayName(user))
				return nil
			})
		},
	}
}

func newChatsCmd(cfg *config.ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List your chats, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(cmd *cobra.Command, a *app) error {
				if _, err := requireUser(a); err != nil {
					return err
				}
				dir := chat.NewDirectory(a.logger, a.sess)
				for c, err := range dir.ListChats(cmd.Context()) {
					if err != nil {
						return errors.New(userMessage(err))
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.DisplayTitle())
				}
				return nil
			})
		},
	}
}

func valueOrPrompt(in *bufio.Reader, out io.Writer, value, prompt string) (string, error) {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func displayName(u domain.Identity) string {
	if u.DisplayName != "" {
		return fmt.Sprintf("%s <%s>", u.DisplayName, u.Email)
	}
	return u.Email
}
