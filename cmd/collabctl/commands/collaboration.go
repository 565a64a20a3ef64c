package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/collab"
)

func newLoginCommand(opts *options) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := opts.client().Login(ctx, username, password)
			if err != nil {
				return err
			}
			green.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", resp.Username, resp.Kind)
			fmt.Fprintf(cmd.OutOrStdout(), "export COLLAB_TOKEN=%s\n", resp.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <invitation>",
		Short: "Show milestones, progress and messages of an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			snap, err := opts.client().Snapshot(ctx, args[0])
			if err != nil {
				return err
			}
			renderSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <invitation> <status>",
		Short: "Change the status of an invitation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := collab.ParseStatus(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := opts.client().ChangeStatus(ctx, args[0], target)
			if err != nil {
				return err
			}
			if res.StatusChanged {
				green.Fprintf(cmd.OutOrStdout(), "Status changed from %s to %s\n", res.PreviousStatus, res.Invitation.Status)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Status unchanged (%s)\n", res.Invitation.Status)
			}
			printWarnings(cmd.ErrOrStderr(), res.Warnings)
			return nil
		},
	}
}

func newCompleteCommand(opts *options) *cobra.Command {
	var reopen bool
	cmd := &cobra.Command{
		Use:   "complete <invitation> <milestone>",
		Short: "Mark a milestone completed (or reopen it with --reopen)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := collab.MilestoneCompleted
			if reopen {
				status = collab.MilestonePending
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := opts.client().UpdateMilestone(ctx, args[0], args[1], lifecycle.MilestonePatch{Status: &status})
			if err != nil {
				return err
			}
			green.Fprintf(cmd.OutOrStdout(), "Progress %d%%\n", res.Progress.Percent)
			if res.StatusChanged {
				fmt.Fprintf(cmd.OutOrStdout(), "Status changed from %s to %s\n", res.PreviousStatus, res.Invitation.Status)
			}
			printWarnings(cmd.ErrOrStderr(), res.Warnings)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reopen, "reopen", false, "move the milestone back to pending")
	return cmd
}

func newRefreshCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <invitation>",
		Short: "Recompute progress and apply automatic completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := opts.client().Refresh(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Progress %d%%, status %s\n", res.Progress.Percent, res.Invitation.Status)
			printWarnings(cmd.ErrOrStderr(), res.Warnings)
			return nil
		},
	}
}

func newSayCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "say <invitation> <message...>",
		Short: "Post a chat message to the collaboration log",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			msg, err := opts.client().PostMessage(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			green.Fprintf(cmd.OutOrStdout(), "Posted message %s\n", msg.ID)
			return nil
		},
	}
}

func renderSnapshot(w io.Writer, snap lifecycle.Snapshot) {
	inv := snap.Invitation
	cyan.Fprintf(w, "Invitation %s\n", inv.ID)
	fmt.Fprintf(w, "  status:   %s\n", inv.Status)
	fmt.Fprintf(w, "  progress: %d%% (%s)\n", snap.Progress.Percent, snap.Band)
	allowed := make([]string, 0, len(snap.LegalTransitions))
	for _, s := range snap.LegalTransitions {
		allowed = append(allowed, string(s))
	}
	fmt.Fprintf(w, "  allowed:  %s\n", strings.Join(allowed, ", "))

	fmt.Fprintln(w)
	cyan.Fprintln(w, "Milestones")
	if len(snap.Milestones) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, m := range snap.Milestones {
		mark := "[ ]"
		if m.Status == collab.MilestoneCompleted {
			mark = "[x]"
		}
		current := ""
		if snap.Progress.Current != nil && snap.Progress.Current.ID == m.ID {
			current = "  <- current"
		}
		fmt.Fprintf(w, "  %s %s  %s (%s, %s)%s\n", mark, m.ID, m.Title, m.AssignedTo, m.Status, current)
	}

	if len(snap.Messages) == 0 {
		return
	}
	fmt.Fprintln(w)
	cyan.Fprintln(w, "Messages")
	for _, msg := range snap.Messages {
		fmt.Fprintf(w, "  %s [%s] %s\n", msg.CreatedAt.Format("2006-01-02 15:04"), msg.SenderType, msg.Content)
	}
}
