package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/karmalens/karmalens/internal/core/reddit"
	"github.com/karmalens/karmalens/internal/core/store"
	"github.com/karmalens/karmalens/internal/metrics"
	"github.com/karmalens/karmalens/internal/observability"
	"github.com/karmalens/karmalens/internal/output"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Manage tracked Reddit users",
}

var trackAddCmd = &cobra.Command{
	Use:   "add <username>...",
	Short: "Start tracking one or more users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verify, err := cmd.Flags().GetBool("verify")
		if err != nil {
			return err
		}
		return addTrackedUsers(cmd, args, verify)
	},
}

var trackRemoveCmd = &cobra.Command{
	Use:     "remove <username>...",
	Aliases: []string{"rm"},
	Short:   "Stop tracking users (snapshots are kept)",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runTrackRemove,
}

var trackListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tracked users with their latest karma",
	Args:    cobra.NoArgs,
	RunE:    runTrackList,
}

var trackImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Track users listed in a YAML file (\"-\" reads stdin)",
	Long: `Track users listed in a YAML file. Accepted shapes:

  users:
    - username: alice
    - username: bob

or a plain list:

  - alice
  - bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := readUsernames(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		verify, err := cmd.Flags().GetBool("verify")
		if err != nil {
			return err
		}
		return addTrackedUsers(cmd, names, verify)
	},
}

func init() {
	rootCmd.AddCommand(trackCmd)
	trackCmd.AddCommand(trackAddCmd, trackRemoveCmd, trackListCmd, trackImportCmd)

	trackAddCmd.Flags().Bool("verify", false, "Confirm each user exists on Reddit before tracking")
	trackImportCmd.Flags().Bool("verify", false, "Confirm each user exists on Reddit before tracking")
	addOutputFlag(trackListCmd)
}

func addTrackedUsers(cmd *cobra.Command, names []string, verify bool) error {
	usernames, err := normalizeUsernames(names)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, verify)
	if err != nil {
		return err
	}
	defer rt.Close() // nolint:errcheck // best-effort cleanup on command exit

	out := cmd.OutOrStdout()
	added := 0
	for _, username := range usernames {
		if verify {
			exists, err := rt.Client.UserExists(ctx, username)
			if err != nil {
				return fmt.Errorf("verify %s: %w", username, err)
			}
			if !exists {
				_, _ = fmt.Fprintf(out, "skipped %s: user not found on Reddit\n", username)
				continue
			}
		}
		if _, err := rt.Store.AddTrackedUser(ctx, username); err != nil {
			return err
		}
		added++
		_, _ = fmt.Fprintf(out, "tracking %s\n", username)
	}

	metrics.RecordCommand("track_add", true)
	observability.CLILogger.Debug("Tracked users added", zap.Int("count", added))
	return nil
}

func runTrackRemove(cmd *cobra.Command, args []string) error {
	usernames, err := normalizeUsernames(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close() // nolint:errcheck // best-effort cleanup on command exit

	out := cmd.OutOrStdout()
	for _, username := range usernames {
		removed, err := rt.Store.RemoveTrackedUser(ctx, username)
		if err != nil {
			return err
		}
		if removed {
			_, _ = fmt.Fprintf(out, "stopped tracking %s\n", username)
		} else {
			_, _ = fmt.Fprintf(out, "%s was not tracked\n", username)
		}
	}
	metrics.RecordCommand("track_remove", true)
	return nil
}

func runTrackList(cmd *cobra.Command, _ []string) error {
	formatter, err := formatterFor(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close() // nolint:errcheck // best-effort cleanup on command exit

	rows, err := userRows(ctx, rt.Store)
	if err != nil {
		return err
	}
	rendered, err := formatter.FormatUsers(rows)
	if err != nil {
		return err
	}
	return printRendered(cmd, rendered)
}

func userRows(ctx context.Context, db *store.Store) ([]output.UserRow, error) {
	users, err := db.ListTrackedUsers(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]output.UserRow, 0, len(users))
	for _, user := range users {
		latest, err := db.LatestSnapshot(ctx, user.Username)
		if err != nil {
			return nil, err
		}
		rows = append(rows, output.UserRow{Username: user.Username, AddedAt: user.AddedAt, Latest: latest})
	}
	return rows, nil
}

// normalizeUsernames validates names and drops duplicates, keeping order.
func normalizeUsernames(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		username := reddit.NormalizeUsername(raw)
		if username == "" {
			continue
		}
		if !reddit.ValidUsername(username) {
			return nil, fmt.Errorf("invalid username %q: must be 3-20 letters, digits, underscores or hyphens", raw)
		}
		key := strings.ToLower(username)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, username)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usernames given")
	}
	return out, nil
}

// readUsernames parses a users document or a plain YAML list.
func readUsernames(stdin io.Reader, path string) ([]string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseUsernames(data)
}

func parseUsernames(data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no usernames found")
	}

	var doc output.UsersDocument
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Users) > 0 {
		names := make([]string, 0, len(doc.Users))
		for _, row := range doc.Users {
			names = append(names, row.Username)
		}
		return names, nil
	}

	var names []string
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse usernames: expected a users document or a list of names: %w", err)
	}
	return names, nil
}
