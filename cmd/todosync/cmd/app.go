package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"todosync/backend"
	"todosync/backend/notion"
	"todosync/internal/analytics"
	"todosync/internal/cli/prompt"
	"todosync/internal/config"
	"todosync/internal/credentials"
	"todosync/internal/license"
	"todosync/internal/notification"
	"todosync/internal/ratelimit"
	"todosync/internal/shutdown"
	"todosync/internal/store"
	"todosync/internal/syncer"
	"todosync/internal/tree"
	"todosync/internal/utils"
)

const cleanupTimeout = 5 * time.Second

// app holds the collaborators of one command invocation.
type app struct {
	cfg    *Config
	conf   *config.Config
	stdout io.Writer
	stderr io.Writer

	workspace string
	json      bool

	shutdown  *shutdown.Manager
	store     *store.Store
	creds     *credentials.Manager
	license   *license.Service
	tracker   *analytics.Tracker
	rateStats *ratelimit.Stats
	display   *tree.Model
	console   *prompt.Console
	service   *syncer.Service
}

// openApp loads configuration and opens the local stores.
func openApp(cmd *cobra.Command, stdout, stderr io.Writer, cfg *Config) (*app, error) {
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if noPrompt {
		cfg.NoPrompt = true
	}

	conf, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	format := cfg.OutputFormat
	if jsonOutput {
		format = "json"
	}
	conf.ApplyFlags(cfg.NoPrompt, verbose || cfg.Verbose, format)
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	cfg.NoPrompt = conf.NoPrompt

	logger := utils.GetLogger()
	logger.SetOutput(stderr)
	logger.SetFormat(conf.GetLogFormat())
	logger.SetVerbose(conf.Logging.Debug)

	workspace, err := resolveWorkspace(cmd, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		conf:      conf,
		stdout:    stdout,
		stderr:    stderr,
		workspace: workspace,
		json:      conf.OutputFormat == "json",
		shutdown:  shutdown.NewManager(context.Background()),
		rateStats: ratelimit.NewStats(),
	}

	st, err := store.Open(conf.GetBindingsPath())
	if err != nil {
		return nil, err
	}
	a.store = st
	a.shutdown.RegisterCleanup("bindings", func(context.Context) error { return st.Close() })

	tracker, err := analytics.NewTracker(conf.GetAnalyticsPath(), analytics.IsEnabledFromEnv(conf.IsAnalyticsEnabled()))
	if err != nil {
		utils.Debugf("[Analytics] disabled: %v", err)
	} else {
		a.tracker = tracker
		a.shutdown.RegisterCleanup("analytics", func(context.Context) error { return tracker.Close() })
		if n, err := tracker.Cleanup(conf.GetAnalyticsRetentionDays()); err == nil && n > 0 {
			utils.Debugf("[Analytics] removed %d old event(s)", n)
		}
	}

	credOpts := []credentials.ManagerOption{}
	if cfg.Keyring != nil {
		credOpts = append(credOpts, credentials.WithKeyring(cfg.Keyring))
	}
	if cfg.Getenv != nil {
		credOpts = append(credOpts, credentials.WithGetenv(cfg.Getenv))
	}
	a.creds = credentials.NewManager(credOpts...)

	machineID, err := license.LoadMachineID(conf.GetMachineIDPath())
	if err != nil {
		utils.Debugf("[License] %v", err)
	}
	a.license = license.New(license.Config{
		URL:        conf.License.SupabaseURL,
		AnonKey:    conf.License.SupabaseAnonKey,
		MachineID:  machineID,
		HTTPClient: cfg.HTTPClient,
	})

	// JSON output keeps stdout for the result document.
	consoleOut := stdout
	if a.json {
		consoleOut = stderr
	}
	a.console = &prompt.Console{Reader: a.stdin(), Writer: consoleOut, NoPrompt: cfg.NoPrompt}
	a.display = tree.NewModel(conf.Sync.HideCompleted)
	a.service = a.newService(a.console)
	return a, nil
}

// Close releases the stores. Pending analytics writes are flushed first.
func (a *app) Close() {
	if err := a.shutdown.Close(cleanupTimeout); err != nil {
		utils.Debugf("[Shutdown] %v", err)
	}
	if n := a.rateStats.RateLimitCount(); n > 0 {
		utils.Debugf("[Notion] rate limited %d time(s)", n)
	}
}

func (a *app) newService(op syncer.Operator) *syncer.Service {
	return syncer.New(syncer.Deps{
		Bindings:    a.store,
		Credentials: a.creds,
		License:     a.license,
		Operator:    op,
		Display:     a.display,
		NewRemote:   a.remoteFactory(),
		Options: syncer.Options{
			PageSize:   a.conf.GetPageSize(),
			MaxRetries: a.conf.GetMaxRetries(),
		},
	})
}

// remoteFactory builds Notion clients from the configuration.
func (a *app) remoteFactory() syncer.RemoteFactory {
	if a.cfg.NewRemote != nil {
		return a.cfg.NewRemote
	}
	// notion.Config treats 0 as "use the default".
	retries := a.conf.GetRateLimitRetries()
	if retries == 0 {
		retries = -1
	}
	return func(apiKey string) (backend.RemoteStore, error) {
		b, err := notion.New(notion.Config{
			APIKey:           apiKey,
			BaseURL:          a.conf.GetBaseURL(),
			Version:          a.conf.GetNotionVersion(),
			PageSize:         a.conf.GetPageSize(),
			RequestTimeout:   a.conf.GetRequestTimeout(),
			RateLimitRetries: retries,
			HTTPClient:       a.cfg.HTTPClient,
			Stats:            a.rateStats,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// newNotifier builds the notification channels enabled in the config.
func (a *app) newNotifier() *notification.Manager {
	var opts []notification.Option
	if a.cfg.Notifier != nil {
		opts = append(opts, notification.WithCommandExecutor(a.cfg.Notifier))
	}
	return notification.NewManager(notification.Config{
		Desktop: notification.DesktopConfig{
			Enabled:    a.conf.Notifications.Desktop,
			OnFailure:  a.conf.IsNotifyOnFailure(),
			OnRecovery: a.conf.IsNotifyOnRecovery(),
		},
		Log: notification.LogConfig{
			Enabled:   a.conf.IsNotificationLogEnabled(),
			Path:      a.conf.GetNotificationLogPath(),
			MaxSizeMB: a.conf.Notifications.MaxSizeMB,
		},
	}, opts...)
}

func (a *app) ctx() context.Context {
	return a.shutdown.Context()
}

func (a *app) stdin() io.Reader {
	if a.cfg.Stdin != nil {
		return a.cfg.Stdin
	}
	return os.Stdin
}

// track records the command in the local analytics log.
func (a *app) track(cmd *cobra.Command, fn func() error) error {
	name, sub := commandNames(cmd)
	return a.tracker.TrackCommand(name, sub, filepath.Base(a.workspace), changedFlags(cmd), fn)
}

// title names the workspace in rendered output.
func (a *app) title(binding backend.TrackedProject) string {
	if binding.ProjectName != "" {
		return binding.ProjectName
	}
	return filepath.Base(a.workspace)
}

// renderTree prints the current display snapshot.
func (a *app) renderTree(title string) error {
	roots := a.display.Roots()
	if a.json {
		return tree.RenderJSON(a.stdout, a.display.Summary(), roots)
	}
	tree.NewRenderer(a.stdout).Render(title, a.display.Summary(), roots)
	return nil
}

// reportSync prints the outcome of a follow-up sync. Its failure is shown
// but does not fail the command that triggered it.
func (a *app) reportSync(result *syncer.SyncResult, err error) error {
	if err != nil {
		utils.Warnf("Sync after the change failed: %v", friendlyError(err, a.workspace))
		return nil
	}
	if result == nil || result.State != syncer.SyncDone {
		return nil
	}
	if a.json {
		return nil
	}
	return a.renderTree(a.title(result.Binding))
}

// resultCode prints a no-prompt result code in text mode.
func (a *app) resultCode(code string) {
	if a.cfg.NoPrompt && !a.json {
		_, _ = fmt.Fprintln(a.stdout, code)
	}
}

func resolveWorkspace(cmd *cobra.Command, cfg *Config) (string, error) {
	dir, _ := cmd.Flags().GetString("workspace")
	if dir == "" {
		dir = cfg.WorkDir
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// commandNames splits "apikey set" into command and subcommand.
func commandNames(cmd *cobra.Command) (string, string) {
	parent := cmd.Parent()
	if parent == nil || !parent.HasParent() {
		return cmd.Name(), ""
	}
	return parent.Name(), cmd.Name()
}

func changedFlags(cmd *cobra.Command) []string {
	var names []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		names = append(names, f.Name)
	})
	return names
}

// friendlyError attaches a suggestion to the errors a user can act on.
func friendlyError(err error, workspace string) error {
	if err == nil {
		return nil
	}
	var withSuggestion *utils.ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		return err
	}

	switch {
	case errors.Is(err, syncer.ErrNotLinked):
		return utils.ErrNotLinked(workspace)
	case errors.Is(err, syncer.ErrNoCredential):
		return utils.ErrAPIKeyMissing()
	}

	switch backend.KindOf(err) {
	case backend.KindAuth:
		return utils.ErrAuthenticationFailed(err)
	case backend.KindPermission:
		return utils.ErrNotShared(err)
	case backend.KindQuotaExceeded:
		return utils.ErrQuotaExceeded(err)
	case backend.KindNetwork, backend.KindTimeout:
		return utils.ErrBackendOffline(err.Error())
	}
	return err
}
