package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/venue-ops/collab/internal/app/collabclient"
	"github.com/venue-ops/collab/internal/collab"
)

type options struct {
	apiBase string
	token   string
	timeout time.Duration
}

func (o *options) client() *collabclient.Client {
	c := collabclient.New(o.apiBase, nil)
	c.Token = o.token
	return c
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// NewRootCommand builds the collabctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "collabctl",
		Short: "Drive artist collaborations from the terminal",
		Long: `collabctl talks to the collaboration API: it shows an invitation's
milestones and progress, completes milestones, changes status and posts
messages on behalf of the logged-in party.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.apiBase, "api", envOr("COLLAB_API", "http://localhost:8080"), "collaboration API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("COLLAB_TOKEN"), "access token (defaults to $COLLAB_TOKEN)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")

	root.AddCommand(
		newLoginCommand(opts),
		newShowCommand(opts),
		newStatusCommand(opts),
		newCompleteCommand(opts),
		newRefreshCommand(opts),
		newSayCommand(opts),
	)
	return root
}

// Execute runs the root command and prints failures in red.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err)
		return err
	}
	return nil
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func printError(w io.Writer, err error) {
	red.Fprintf(w, "Error: %v\n", err)
	switch {
	case errors.Is(err, collab.ErrInvalidTransition):
		fmt.Fprintln(w, "Run `collabctl show <invitation>` to list the statuses the current progress allows.")
	case errors.Is(err, collab.ErrNotAuthorized):
		fmt.Fprintln(w, "The milestone is assigned to the other party.")
	}
}

func printWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		yellow.Fprintf(w, "warning: %s\n", warning)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
