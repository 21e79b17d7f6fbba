package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"todosync/backend"
	"todosync/internal/autosync"
	"todosync/internal/cli/prompt"
	"todosync/internal/credentials"
	"todosync/internal/notification"
	"todosync/internal/syncer"
	"todosync/internal/tree"
	"todosync/internal/tui"
	"todosync/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds application configuration
type Config struct {
	NoPrompt     bool
	Verbose      bool
	OutputFormat string
	ConfigPath   string // Path to config file (for testing)
	WorkDir      string // Workspace directory; defaults to the working directory

	Stdin      io.Reader
	Keyring    credentials.Keyring  // System keyring when nil
	Getenv     func(string) string  // os.Getenv when nil
	NewRemote  syncer.RemoteFactory // Notion client when nil
	HTTPClient *http.Client         // Base client for Notion and the license service
	Notifier   notification.CommandExecutor // Desktop notification runner when set
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	if cfg == nil {
		cfg = &Config{}
	}
	rootCmd := NewTodoSync(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) || cfg.OutputFormat == "json" {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTodoSync creates the root command with injectable IO
func NewTodoSync(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:   "todosync",
		Short: "Sync a local workspace with a Notion task database",
		Long: "todosync links a workspace directory to a Notion database and shows its tasks " +
			"as a tree grouped by category.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("workspace", "w", "", "Workspace directory (default: current directory)")

	cmd.AddCommand(
		newSyncCmd(stdout, stderr, cfg),
		newLinkCmd(stdout, stderr, cfg),
		newUnlinkCmd(stdout, stderr, cfg),
		newAddCmd(stdout, stderr, cfg),
		newDeleteCmd(stdout, stderr, cfg),
		newStatusCmd(stdout, stderr, cfg),
		newImportCmd(stdout, stderr, cfg),
		newProjectsCmd(stdout, stderr, cfg),
		newDatabasesCmd(stdout, stderr, cfg),
		newAPIKeyCmd(stdout, stderr, cfg),
		newLicenseCmd(stdout, stderr, cfg),
		newWatchCmd(stdout, stderr, cfg),
		newNotificationsCmd(stdout, stderr, cfg),
		newTUICmd(stdout, stderr, cfg),
	)

	return cmd
}

// runWithApp opens the application, runs fn under analytics tracking and
// turns known failures into errors with suggestions.
func runWithApp(cmd *cobra.Command, stdout, stderr io.Writer, cfg *Config, fn func(a *app) error) error {
	a, err := openApp(cmd, stdout, stderr, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.track(cmd, func() error { return fn(a) })
	return friendlyError(err, a.workspace)
}

// =============================================================================
// sync
// =============================================================================

func newSyncCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the workspace's tasks and show them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				if cmd.Flags().Changed("hide-completed") {
					hide, _ := cmd.Flags().GetBool("hide-completed")
					a.display.SetHideCompleted(hide)
				}
				return doSync(a)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Bool("hide-completed", false, "Hide tasks whose status is Done")
	return cmd
}

func doSync(a *app) error {
	result, err := a.service.SyncWorkspace(a.ctx(), a.workspace)
	if err != nil {
		return err
	}

	switch result.State {
	case syncer.SyncNotLinked:
		if a.json {
			return writeJSON(a.stdout, map[string]interface{}{"linked": false, "path": a.workspace})
		}
		_, _ = fmt.Fprintf(a.stdout, "Workspace %s is not linked. Run 'todosync link' to choose a Notion database.\n", a.workspace)
		a.resultCode(ResultInfoOnly)
		return nil
	case syncer.SyncNoCredential:
		return syncer.ErrNoCredential
	}

	if err := a.renderTree(a.title(result.Binding)); err != nil {
		return err
	}
	a.resultCode(ResultInfoOnly)
	return nil
}

// =============================================================================
// link / unlink
// =============================================================================

func newLinkCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link the workspace to a Notion database",
		Long: "Link the workspace to a Notion database. Without --database the accessible " +
			"databases are offered for selection. Databases with a Project property also ask for the project.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseID, _ := cmd.Flags().GetString("database")
			projectName, _ := cmd.Flags().GetString("project")
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				result, err := a.service.Link(a.ctx(), a.workspace, syncer.LinkOptions{
					DatabaseID:  databaseID,
					ProjectName: projectName,
				})
				if err != nil {
					return err
				}
				if a.json {
					return writeJSON(a.stdout, map[string]interface{}{
						"path":           result.Binding.Path,
						"database_id":    result.Binding.DatabaseID,
						"database_title": result.DatabaseTitle,
						"project_name":   result.Binding.ProjectName,
						"result":         ResultActionCompleted,
					})
				}
				_, _ = fmt.Fprintf(a.stdout, "Linked %s to %q\n", result.Binding.Path, result.DatabaseTitle)
				if err := a.reportSync(result.Sync, result.SyncErr); err != nil {
					return err
				}
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("database", "", "Database id to link without prompting")
	cmd.Flags().String("project", "", "Project name for databases with a Project property")
	return cmd
}

func newUnlinkCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink",
		Short: "Remove the workspace's database link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				return doUnlink(a, a.workspace)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doUnlink(a *app, path string) error {
	removed, err := a.service.Unlink(a.ctx(), path)
	if err != nil {
		return err
	}
	if a.json {
		return writeJSON(a.stdout, map[string]interface{}{
			"path":        removed.Path,
			"database_id": removed.DatabaseID,
			"result":      ResultActionCompleted,
		})
	}
	_, _ = fmt.Fprintf(a.stdout, "Unlinked %s\n", removed.Path)
	a.resultCode(ResultActionCompleted)
	return nil
}

// =============================================================================
// add / delete / status
// =============================================================================

func newAddCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task to the linked database",
		Long:  "Add a task to the linked database. Without a title the fields are asked interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			priority, _ := cmd.Flags().GetString("priority")
			due, _ := cmd.Flags().GetString("due")
			status, _ := cmd.Flags().GetString("status")

			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				req := syncer.AddTaskRequest{
					Title:    strings.Join(args, " "),
					Status:   status,
					Category: category,
					Priority: priority,
				}
				if strings.TrimSpace(req.Title) == "" {
					fields, err := (&prompt.InteractiveAdder{Console: a.console}).Run()
					if err != nil {
						return err
					}
					req.Title, req.Category, due = fields.Title, fields.Category, fields.Due
				}
				if due != "" {
					parsed, err := utils.ParseDueDate(due)
					if err != nil {
						return utils.ErrInvalidDate(due)
					}
					req.Due = parsed
				}

				result, err := a.service.AddTask(a.ctx(), a.workspace, req)
				if err != nil {
					return err
				}
				if a.json {
					return writeJSON(a.stdout, map[string]interface{}{
						"id":     result.TaskID,
						"title":  strings.TrimSpace(req.Title),
						"result": ResultActionCompleted,
					})
				}
				if err := a.reportSync(result.Sync, result.SyncErr); err != nil {
					return err
				}
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringP("category", "c", "", "Task category")
	cmd.Flags().StringP("priority", "p", "", "Task priority (databases with a Priority property)")
	cmd.Flags().String("due", "", "Due date: YYYY-MM-DD, today, tomorrow, +Nd, +Nw, +Nm")
	cmd.Flags().StringP("status", "s", "", "Initial status (default: first status option)")
	return cmd
}

func newDeleteCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [task]",
		Short: "Archive a task",
		Long:  "Archive a task by id, title or title prefix. Without an argument the task is selected interactively.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				item, err := pickTask(a, args, "Select task to delete:")
				if err != nil {
					return err
				}
				result, err := a.service.DeleteTask(a.ctx(), *item)
				if err != nil {
					return err
				}
				if a.json {
					return writeJSON(a.stdout, map[string]interface{}{
						"id":     result.TaskID,
						"title":  item.Task.Title,
						"result": ResultActionCompleted,
					})
				}
				if err := a.reportSync(result.Sync, result.SyncErr); err != nil {
					return err
				}
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newStatusCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status [task] [status]",
		Short: "Change the status of a task",
		Long: "Change the status of a task. Without a status the options of the linked " +
			"database are offered in their declared order.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				item, err := pickTask(a, args[:min(len(args), 1)], "Select task:")
				if err != nil {
					return err
				}

				var result *syncer.MutationResult
				if len(args) == 2 {
					options := item.Binding.StatusOptions
					if len(options) > 0 && !containsString(backend.StatusNames(options), args[1]) {
						return utils.ErrInvalidStatus(args[1], backend.StatusNames(options))
					}
					result, err = a.service.SetStatus(a.ctx(), *item, args[1])
				} else {
					result, err = a.service.ToggleStatus(a.ctx(), *item)
				}
				if err != nil {
					return err
				}

				if a.json {
					return writeJSON(a.stdout, map[string]interface{}{
						"id":      item.Task.ID,
						"title":   item.Task.Title,
						"changed": result.Changed,
						"result":  ResultActionCompleted,
					})
				}
				if !result.Changed {
					_, _ = fmt.Fprintf(a.stdout, "%q is already %s\n", item.Task.Title, item.Task.Status)
					a.resultCode(ResultInfoOnly)
					return nil
				}
				if err := a.reportSync(result.Sync, result.SyncErr); err != nil {
					return err
				}
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// pickTask syncs the workspace, then finds the task named by args[0] or lets
// the operator select one.
func pickTask(a *app, args []string, promptText string) (*tree.Item, error) {
	result, err := a.service.SyncWorkspace(a.ctx(), a.workspace)
	if err != nil {
		return nil, err
	}
	switch result.State {
	case syncer.SyncNotLinked:
		return nil, syncer.ErrNotLinked
	case syncer.SyncNoCredential:
		return nil, syncer.ErrNoCredential
	}

	if len(args) > 0 && args[0] != "" {
		item, ok := syncer.FindTask(result.Items, args[0])
		if !ok {
			return nil, utils.ErrTaskNotFound(args[0])
		}
		return &item, nil
	}

	return (&prompt.TaskSelector{
		Items:   result.Items,
		Prompt:  promptText,
		Console: a.console,
	}).Run()
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// import
// =============================================================================

func newImportCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create tasks from a markdown checklist",
		Long: "Create one task per checklist item (- [ ] / - [x]) in a markdown file. " +
			"Level-2 headings become categories; @status:, @category:, @priority: and @due:YYYY-MM-DD tags are kept " +
			"when the database has matching properties.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				file := args[0]
				result, err := a.service.ImportTasks(a.ctx(), a.workspace, file)
				if errors.Is(err, syncer.ErrNoTasksInFile) {
					return utils.ErrNoTasksInFile(file)
				}
				if err != nil {
					return err
				}

				if a.json {
					return writeJSON(a.stdout, result)
				}
				for _, f := range result.Failures {
					_, _ = fmt.Fprintf(a.stderr, "  failed: %s (%s)\n", f.Title, f.Error)
				}
				if err := a.reportSync(result.Sync, result.SyncErr); err != nil {
					return err
				}
				if result.FailCount > 0 && result.SuccessCount == 0 {
					return fmt.Errorf("all %d task(s) failed to import", result.FailCount)
				}
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// projects / databases
// =============================================================================

// notionURL opens a database in the Notion app or browser.
func notionURL(databaseID string) string {
	return "https://notion.so/" + strings.ReplaceAll(databaseID, "-", "")
}

type projectJSON struct {
	Path        string `json:"path"`
	DatabaseID  string `json:"database_id"`
	ProjectName string `json:"project_name"`
	URL         string `json:"url"`
	Current     bool   `json:"current"`
}

func newProjectsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List linked workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			unlinkPath, _ := cmd.Flags().GetString("unlink")
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				if unlinkPath != "" {
					abs, err := filepath.Abs(unlinkPath)
					if err != nil {
						return err
					}
					return doUnlink(a, abs)
				}
				return doProjects(a)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("unlink", "", "Unlink the workspace at this path")
	return cmd
}

func doProjects(a *app) error {
	projects, err := a.service.Projects(a.ctx())
	if err != nil {
		return err
	}

	if a.json {
		out := make([]projectJSON, 0, len(projects))
		for _, p := range projects {
			out = append(out, projectJSON{
				Path:        p.Path,
				DatabaseID:  p.DatabaseID,
				ProjectName: p.ProjectName,
				URL:         notionURL(p.DatabaseID),
				Current:     p.Path == a.workspace,
			})
		}
		return writeJSON(a.stdout, out)
	}

	if len(projects) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No linked workspaces. Run 'todosync link' in a workspace directory.")
		a.resultCode(ResultInfoOnly)
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROJECT\tPATH\tNOTION")
	for _, p := range projects {
		name := p.ProjectName
		if p.Path == a.workspace {
			name += " *"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", name, p.Path, notionURL(p.DatabaseID))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	a.resultCode(ResultInfoOnly)
	return nil
}

func newDatabasesCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List the Notion databases shared with the integration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				dbs, err := a.service.Databases(a.ctx())
				if err != nil {
					return err
				}
				if a.json {
					if dbs == nil {
						dbs = []backend.Database{}
					}
					return writeJSON(a.stdout, dbs)
				}
				if len(dbs) == 0 {
					return syncer.ErrNoDatabases
				}
				tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "TITLE\tID")
				for _, db := range dbs {
					_, _ = fmt.Fprintf(tw, "%s\t%s\n", db.Title, db.ID)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				a.resultCode(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// apikey
// =============================================================================

func newAPIKeyCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the Notion API key",
		Long: "Store the Notion integration token in the system keyring. The " +
			credentials.EnvToken + " environment variable is used when the keyring has no key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newAPIKeySetCmd(stdout, stderr, cfg))
	cmd.AddCommand(newAPIKeyStatusCmd(stdout, stderr, cfg))
	cmd.AddCommand(newAPIKeyDeleteCmd(stdout, stderr, cfg))
	return cmd
}

func newAPIKeySetCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set [key]",
		Short: "Store the API key in the system keyring",
		Long: "Store the API key in the system keyring. Without an argument the key is read " +
			"from the terminal without echo. A linked workspace is synced afterwards.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				key := ""
				if len(args) == 1 {
					key = args[0]
				} else {
					var err error
					if key, err = readSecret(a, "Enter Notion API key: "); err != nil {
						return err
					}
				}

				if err := a.creds.StoreAPIKey(a.ctx(), key); err != nil {
					return err
				}
				if a.json {
					return writeJSON(a.stdout, map[string]string{"result": ResultActionCompleted})
				}
				_, _ = fmt.Fprintln(a.stdout, "API key saved.")

				if binding, err := a.store.FindProject(a.ctx(), a.workspace); err == nil && binding != nil {
					result, err := a.service.SyncWorkspace(a.ctx(), a.workspace)
					if err := a.reportSync(result, err); err != nil {
						return err
					}
				}
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// readSecret reads a line without echo from a terminal, or a plain line
// from any other input.
func readSecret(a *app, promptText string) (string, error) {
	if a.cfg.NoPrompt {
		return "", prompt.ErrNoPromptMode
	}
	in := a.stdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(a.stderr, promptText)
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	_, _ = fmt.Fprint(a.stderr, promptText)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", prompt.ErrSelectionCancelled
	}
	return strings.TrimSpace(line), nil
}

func newAPIKeyStatusCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the API key comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				status, err := a.creds.Status(a.ctx())
				if err != nil {
					return err
				}
				if a.json {
					data, err := status.JSON()
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(a.stdout, string(data))
					return nil
				}
				if !status.Found {
					_, _ = fmt.Fprintln(a.stdout, "API key: not set")
				} else {
					_, _ = fmt.Fprintf(a.stdout, "API key: %s (source: %s)\n", status.Masked, status.Source)
				}
				a.resultCode(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newAPIKeyDeleteCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the API key from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				if err := a.creds.DeleteAPIKey(a.ctx()); err != nil {
					return err
				}
				if a.json {
					return writeJSON(a.stdout, map[string]string{"result": ResultActionCompleted})
				}
				_, _ = fmt.Fprintln(a.stdout, "API key removed from the keyring.")
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// license
// =============================================================================

func newLicenseCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "license",
		Short: "Show the license tier of this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				info := a.license.CheckLicense(a.ctx())
				if a.json {
					return writeJSON(a.stdout, info)
				}
				_, _ = fmt.Fprintf(a.stdout, "Tier:    %s\n", info.Tier)
				_, _ = fmt.Fprintf(a.stdout, "Active:  %t\n", info.IsActive)
				if info.ExpiresAt != nil {
					_, _ = fmt.Fprintf(a.stdout, "Expires: %s\n", info.ExpiresAt.Format("2006-01-02"))
				}
				if info.IsFree() {
					_, _ = fmt.Fprintln(a.stdout, "The free tier syncs one project. Upgrade to Pro for unlimited projects.")
				}
				a.resultCode(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// watch
// =============================================================================

func newWatchCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the workspace in sync",
		Long: "Sync on start, every refresh interval, when files in the workspace change, " +
			"and on SIGUSR1. Runs until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				interval := a.conf.GetRefreshInterval()
				if cmd.Flags().Changed("interval") {
					interval, _ = cmd.Flags().GetDuration("interval")
				}
				return doWatch(a, interval)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Duration("interval", 0, "Refresh interval (default from sync.refresh_interval)")
	return cmd
}

func doWatch(a *app, interval time.Duration) error {
	var bg *utils.BackgroundLogger
	if a.conf.IsBackgroundLoggingEnabled() {
		var err error
		bg, err = utils.NewBackgroundLogger(a.conf.GetBackgroundLogPath())
		if err != nil {
			utils.Warnf("Background log disabled: %v", err)
			bg = nil
		} else {
			a.shutdown.RegisterCleanup("watch log", func(context.Context) error {
				bg.Close()
				return nil
			})
		}
	}

	// Failures are retried by the next trigger, never by a prompt.
	service := a.newService(&prompt.Console{Writer: a.stderr, NoPrompt: true})

	var watchPaths []string
	if a.conf.IsWatchEnabled() {
		watchPaths = []string{a.workspace}
	}

	notifier := a.newNotifier()
	a.shutdown.RegisterCleanup("notifications", func(context.Context) error { return notifier.Close() })
	outcome := notification.NewOutcomeNotifier(notifier, a.workspace)

	runner := autosync.New(autosync.Config{
		Interval:   interval,
		WatchPaths: watchPaths,
		Debounce:   a.conf.GetDebounce(),
		Log:        bg,
	}, func(ctx context.Context, trigger autosync.Trigger) error {
		err := watchSync(ctx, a, service, trigger)
		if ctx.Err() == nil {
			outcome.Observe(err)
		}
		return err
	})

	stop := a.shutdown.HandleSignals()
	defer stop()

	_, _ = fmt.Fprintf(a.stderr, "Watching %s (refresh every %v). Press Ctrl+C to stop.\n", a.workspace, interval)
	if err := runner.Run(a.ctx()); err != nil {
		return err
	}

	stats := runner.Stats()
	utils.Debugf("[Watch] %d sync(s), %d error(s), %d skipped", stats.SyncCount, stats.ErrorCount, stats.SkippedCount)
	return nil
}

// watchSync runs one sync for the watch loop and prints a status line.
func watchSync(ctx context.Context, a *app, service *syncer.Service, trigger autosync.Trigger) error {
	result, err := service.SyncWorkspace(ctx, a.workspace)
	if err != nil {
		return friendlyError(err, a.workspace)
	}
	switch result.State {
	case syncer.SyncNotLinked:
		return utils.ErrNotLinked(a.workspace)
	case syncer.SyncNoCredential:
		return utils.ErrAPIKeyMissing()
	}
	if a.json {
		return writeJSON(a.stdout, map[string]interface{}{
			"trigger": trigger,
			"time":    time.Now().Format(time.RFC3339),
			"summary": a.display.Summary(),
		})
	}
	_, _ = fmt.Fprintf(a.stdout, "[%s] %s: %s\n", time.Now().Format("15:04:05"), trigger, a.display.Summary())
	return nil
}

// =============================================================================
// notifications
// =============================================================================

func newNotificationsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Test and review watch notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification through every enabled channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				notifier := a.newNotifier()
				defer func() { _ = notifier.Close() }()
				if notifier.ChannelCount() == 0 {
					return utils.WrapWithSuggestion(errors.New("no notification channel is enabled"),
						"Set notifications.desktop or notifications.log in the config file")
				}
				err := notifier.Send(notification.Notification{
					Type:      notification.TypeTest,
					Title:     "todosync",
					Message:   "Test notification",
					Workspace: a.workspace,
				})
				if err != nil {
					return fmt.Errorf("failed to send test notification: %w", err)
				}
				if a.json {
					return writeJSON(a.stdout, map[string]interface{}{
						"channels": notifier.ChannelCount(),
						"result":   ResultActionCompleted,
					})
				}
				_, _ = fmt.Fprintf(a.stdout, "Test notification sent to %d channel(s).\n", notifier.ChannelCount())
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				lines, err := notification.ReadLog(a.conf.GetNotificationLogPath())
				if err != nil {
					return fmt.Errorf("failed to read notification log: %w", err)
				}
				if a.json {
					if lines == nil {
						lines = []string{}
					}
					return writeJSON(a.stdout, map[string]interface{}{"entries": lines})
				}
				if len(lines) == 0 {
					_, _ = fmt.Fprintln(a.stdout, "No notifications.")
				}
				for _, line := range lines {
					_, _ = fmt.Fprintln(a.stdout, line)
				}
				a.resultCode(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				if err := notification.ClearLog(a.conf.GetNotificationLogPath()); err != nil {
					return fmt.Errorf("failed to clear notification log: %w", err)
				}
				if a.json {
					return writeJSON(a.stdout, map[string]string{"result": ResultActionCompleted})
				}
				_, _ = fmt.Fprintln(a.stdout, "Notification log cleared.")
				a.resultCode(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	logCmd.AddCommand(clearCmd)
	cmd.AddCommand(testCmd, logCmd)
	return cmd
}

// =============================================================================
// tui
// =============================================================================

func newTUICmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and edit the workspace's tasks interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				binding, err := a.store.FindProject(a.ctx(), a.workspace)
				if err != nil {
					return err
				}
				if binding == nil {
					return syncer.ErrNotLinked
				}

				actions := &tui.ServiceActions{Service: a.newService(tui.NewOperator()), Path: a.workspace}
				model := tui.New(a.ctx(), actions, a.display, a.title(*binding))

				p := tea.NewProgram(model,
					tea.WithAltScreen(),
					tea.WithContext(a.ctx()),
					tea.WithInput(a.stdin()),
					tea.WithOutput(a.stdout),
				)
				_, err = p.Run()
				if errors.Is(err, tea.ErrProgramKilled) {
					return nil
				}
				return err
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// JSON output
// =============================================================================

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputErrorJSON outputs an error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	}

	jsonBytes, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}
