package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"todosync/backend"
	"todosync/internal/analytics"
	"todosync/internal/config"
	"todosync/internal/credentials"
	"todosync/internal/store"
	"todosync/internal/utils"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeRemote struct {
	mu         sync.Mutex
	databases  []backend.Database
	tasks      []backend.Task
	hasProject bool
	projects   []string
	failWith   error

	created []backend.CreateTaskRequest
	updated map[string]string
	deleted []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		databases: []backend.Database{{ID: "db-1", Title: "Tasks"}},
		tasks: []backend.Task{
			{ID: "t1", Title: "Write tests", Status: "In progress", Category: "Code"},
			{ID: "t2", Title: "Review PR", Status: "Done", Category: "Code"},
			{ID: "t3", Title: "Buy groceries", Status: "Not started"},
		},
		updated: map[string]string{},
	}
}

func (r *fakeRemote) ListDatabases(ctx context.Context) ([]backend.Database, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	return r.databases, nil
}

func (r *fakeRemote) GetDatabaseShape(ctx context.Context, databaseID string) (backend.DatabaseShape, error) {
	return &backend.SingleShape{DatabaseID: databaseID, Title: "Name"}, nil
}

func (r *fakeRemote) GetTasks(ctx context.Context, databaseID string, q backend.TaskQuery) ([]backend.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	return append([]backend.Task(nil), r.tasks...), nil
}

func (r *fakeRemote) GetStatusOptions(ctx context.Context, databaseID string) ([]backend.StatusOption, error) {
	return backend.DefaultStatusOptions(), nil
}

func (r *fakeRemote) GetProjectOptions(ctx context.Context, databaseID string) []string {
	return r.projects
}

func (r *fakeRemote) GetProjectOptionsWithIDs(ctx context.Context, databaseID string) []backend.ProjectOption {
	return nil
}

func (r *fakeRemote) HasProjectProperty(ctx context.Context, databaseID string) bool {
	return r.hasProject
}

func (r *fakeRemote) UpdateStatus(ctx context.Context, taskID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated[taskID] = status
	for i := range r.tasks {
		if r.tasks[i].ID == taskID {
			r.tasks[i].Status = status
		}
	}
	return nil
}

func (r *fakeRemote) DeleteTask(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, taskID)
	kept := r.tasks[:0]
	for _, t := range r.tasks {
		if t.ID != taskID {
			kept = append(kept, t)
		}
	}
	r.tasks = kept
	return nil
}

func (r *fakeRemote) CreateTask(ctx context.Context, databaseID string, req backend.CreateTaskRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, req)
	id := "new-" + req.Title
	r.tasks = append(r.tasks, backend.Task{ID: id, Title: req.Title, Status: req.Status, Category: req.Category})
	return id, nil
}

type testEnv struct {
	t         *testing.T
	remote    *fakeRemote
	keyring   *credentials.MockKeyring
	workspace string
	stdin     string
}

// newTestEnv isolates config and data directories and stores an API key.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("TODOSYNC_ANALYTICS_ENABLED", "")
	t.Setenv("TODOSYNC_SUPABASE_URL", "")
	t.Setenv("TODOSYNC_SUPABASE_ANON_KEY", "")

	workspace := filepath.Join(root, "api")
	if err := os.MkdirAll(workspace, 0755); err != nil {
		t.Fatal(err)
	}

	kr := credentials.NewMockKeyring()
	_ = kr.Set(credentials.ServiceName, credentials.AccountName, "secret_abcd1234")

	t.Cleanup(func() { utils.GetLogger().SetOutput(os.Stderr) })
	return &testEnv{t: t, remote: newFakeRemote(), keyring: kr, workspace: workspace}
}

func (e *testEnv) run(args ...string) (int, string, string) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	cfg := &Config{
		WorkDir: e.workspace,
		Stdin:   strings.NewReader(e.stdin),
		Keyring: e.keyring,
		Getenv:  func(string) string { return "" },
		NewRemote: func(apiKey string) (backend.RemoteStore, error) {
			return e.remote, nil
		},
	}
	code := Execute(args, &stdout, &stderr, cfg)
	return code, stdout.String(), stderr.String()
}

// link binds the workspace without prompting.
func (e *testEnv) link() {
	e.t.Helper()
	if code, _, stderr := e.run("link", "--database", "db-1", "-y"); code != 0 {
		e.t.Fatalf("link failed: %s", stderr)
	}
}

func (e *testEnv) bindings() []backend.TrackedProject {
	e.t.Helper()
	st, err := store.Open(config.DefaultConfig().GetBindingsPath())
	if err != nil {
		e.t.Fatal(err)
	}
	defer func() { _ = st.Close() }()
	projects, err := st.GetTrackedProjects(context.Background())
	if err != nil {
		e.t.Fatal(err)
	}
	return projects
}

// =============================================================================
// Core CLI Tests
// =============================================================================

func TestHelpFlagCoreCLI(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute([]string{"--help"}, &stdout, &stderr, nil)

	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", exitCode, stderr.String())
	}
	output := stdout.String()
	for _, want := range []string{"todosync", "Usage:", "link", "sync", "apikey", "watch"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output should contain %q, got: %s", want, output)
		}
	}
}

func TestVersionFlagCoreCLI(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if code := Execute([]string{"--version"}, &stdout, &stderr, nil); code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "todosync") {
		t.Errorf("version output should contain 'todosync', got: %s", stdout.String())
	}
}

func TestUnknownCommandFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Execute([]string{"frobnicate"}, &stdout, &stderr, nil); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestErrorAsJSON(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, _ := env.run("delete", "anything", "--json")
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	var resp errorResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &resp); err != nil {
		t.Fatalf("stdout is not JSON: %q", stdout)
	}
	if resp.Result != ResultError || !strings.Contains(resp.Error, "todosync link") {
		t.Errorf("response = %+v", resp)
	}
}

// =============================================================================
// sync / link / unlink
// =============================================================================

func TestSyncNotLinked(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := env.run("sync", "-y")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "is not linked") || !strings.Contains(stdout, ResultInfoOnly) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestLinkThenSyncRendersTree(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	projects := env.bindings()
	if len(projects) != 1 || projects[0].DatabaseID != "db-1" || projects[0].ProjectName != "api" {
		t.Fatalf("bindings = %+v", projects)
	}
	if !projects[0].HasStatusCache() {
		t.Error("link should cache status options")
	}

	code, stdout, stderr := env.run("sync")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	for _, want := range []string{"api", "1/3 tasks", "Code", "1/2", "Write tests", "Buy groceries", "└─"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("sync output should contain %q:\n%s", want, stdout)
		}
	}
}

func TestSyncHideCompleted(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	_, stdout, _ := env.run("sync", "--hide-completed")
	if strings.Contains(stdout, "Review PR") {
		t.Errorf("completed task should be hidden:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Write tests") {
		t.Errorf("open task missing:\n%s", stdout)
	}
}

func TestSyncJSON(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, stdout, _ := env.run("sync", "--json")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var got struct {
		Summary string `json:"summary"`
		Nodes   []struct {
			Type     string `json:"type"`
			Label    string `json:"label"`
			Children []struct {
				ID string `json:"id"`
			} `json:"children"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if got.Summary != "1/3 tasks" || len(got.Nodes) != 2 {
		t.Fatalf("tree = %+v", got)
	}
	if got.Nodes[0].Type != "category" || got.Nodes[0].Label != "Code" || len(got.Nodes[0].Children) != 2 {
		t.Errorf("first node = %+v", got.Nodes[0])
	}
}

func TestSyncWithoutAPIKey(t *testing.T) {
	env := newTestEnv(t)
	env.link()
	_ = env.keyring.Delete(credentials.ServiceName, credentials.AccountName)

	code, _, stderr := env.run("sync")
	if code != 1 || !strings.Contains(stderr, "apikey set") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestSyncAuthErrorSuggestion(t *testing.T) {
	env := newTestEnv(t)
	env.link()
	env.remote.failWith = &backend.Error{Kind: backend.KindAuth, Op: "GetTasks", Code: "unauthorized", Message: "Invalid Notion API key. Please check your API key."}

	code, _, stderr := env.run("sync", "-y")
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "Invalid Notion API key") || !strings.Contains(stderr, "Suggestion:") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestLinkWithProjectSelection(t *testing.T) {
	env := newTestEnv(t)
	env.remote.hasProject = true
	env.remote.projects = []string{"web", "mobile"}
	env.stdin = "2\n"

	code, stdout, stderr := env.run("link", "--database", "db-1")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, `project filter "mobile"`) {
		t.Errorf("stdout = %q", stdout)
	}
	if p := env.bindings(); len(p) != 1 || p[0].ProjectName != "mobile" {
		t.Errorf("bindings = %+v", p)
	}
}

func TestLinkUnknownDatabase(t *testing.T) {
	env := newTestEnv(t)

	code, _, stderr := env.run("link", "--database", "missing", "-y")
	if code != 1 || !strings.Contains(stderr, "not accessible") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestFreeTierQuota(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	other := filepath.Join(filepath.Dir(env.workspace), "web")
	if err := os.MkdirAll(other, 0755); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := env.run("link", "--database", "db-1", "-y", "--workspace", other)
	if code != 1 || !strings.Contains(stderr, "only sync 1 project") || !strings.Contains(stderr, "--unlink") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}

	// Relinking the same workspace is not a new project.
	if code, _, stderr := env.run("link", "--database", "db-1", "-y"); code != 0 {
		t.Errorf("relink failed: %s", stderr)
	}
}

func TestUnlink(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, stdout, stderr := env.run("unlink", "-y")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Unlinked") || !strings.Contains(stdout, ResultActionCompleted) {
		t.Errorf("stdout = %q", stdout)
	}
	if p := env.bindings(); len(p) != 0 {
		t.Errorf("bindings = %+v", p)
	}
}

func TestUnlinkDeclined(t *testing.T) {
	env := newTestEnv(t)
	env.link()
	env.stdin = "n\n"

	if code, _, _ := env.run("unlink"); code != 1 {
		t.Errorf("declined unlink should fail, got %d", code)
	}
	if p := env.bindings(); len(p) != 1 {
		t.Errorf("binding should remain, got %+v", p)
	}
}

// =============================================================================
// add / delete / status / import
// =============================================================================

func TestAddTask(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, stdout, stderr := env.run("add", "Ship", "release", "-c", "Ops", "--due", "2026-05-01")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if len(env.remote.created) != 1 {
		t.Fatalf("created = %+v", env.remote.created)
	}
	req := env.remote.created[0]
	if req.Title != "Ship release" || req.Category != "Ops" || req.Due != "2026-05-01" || req.Status != "Not started" {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(stdout, `Task "Ship release" added.`) || !strings.Contains(stdout, "Ops") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestAddTaskInvalidDue(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, _, stderr := env.run("add", "Ship", "--due", "someday")
	if code != 1 || !strings.Contains(stderr, "YYYY-MM-DD") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
	if len(env.remote.created) != 0 {
		t.Error("no task should be created")
	}
}

func TestAddTaskInteractive(t *testing.T) {
	env := newTestEnv(t)
	env.link()
	env.stdin = "Write docs\nDocs\n\n"

	if code, _, stderr := env.run("add"); code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if len(env.remote.created) != 1 || env.remote.created[0].Title != "Write docs" || env.remote.created[0].Category != "Docs" {
		t.Errorf("created = %+v", env.remote.created)
	}
}

func TestAddTaskNoPromptRequiresTitle(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, stdout, _ := env.run("add", "-y")
	if code != 1 || !strings.Contains(stdout, ResultError) {
		t.Errorf("code = %d, stdout = %q", code, stdout)
	}
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, stdout, stderr := env.run("delete", "Buy", "-y")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if len(env.remote.deleted) != 1 || env.remote.deleted[0] != "t3" {
		t.Errorf("deleted = %v", env.remote.deleted)
	}
	if !strings.Contains(stdout, `Deleted "Buy groceries"`) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestDeleteTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, _, stderr := env.run("delete", "nothing-like-this", "-y")
	if code != 1 || !strings.Contains(stderr, "task not found") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestDeleteTaskSelectInteractively(t *testing.T) {
	env := newTestEnv(t)
	env.link()
	// A filter with a single match selects it; the answer confirms the delete.
	env.stdin = "review\ny\n"

	if code, _, stderr := env.run("delete"); code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if len(env.remote.deleted) != 1 || env.remote.deleted[0] != "t2" {
		t.Errorf("deleted = %v", env.remote.deleted)
	}
}

func TestSetStatus(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, _, stderr := env.run("status", "t3", "Done", "-y")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if env.remote.updated["t3"] != "Done" {
		t.Errorf("updated = %v", env.remote.updated)
	}
}

func TestSetStatusInvalid(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, _, stderr := env.run("status", "t3", "Blocked", "-y")
	if code != 1 || !strings.Contains(stderr, "Valid options: Not started, In progress, Done") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestSetStatusUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, stdout, _ := env.run("status", "t2", "Done", "-y")
	if code != 0 || !strings.Contains(stdout, "already Done") {
		t.Errorf("code = %d, stdout = %q", code, stdout)
	}
	if len(env.remote.updated) != 0 {
		t.Errorf("updated = %v", env.remote.updated)
	}
}

func TestToggleStatusInteractive(t *testing.T) {
	env := newTestEnv(t)
	env.link()
	env.stdin = "2\n"

	if code, _, stderr := env.run("status", "Buy groceries"); code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if env.remote.updated["t3"] != "In progress" {
		t.Errorf("updated = %v", env.remote.updated)
	}
}

func TestImport(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	file := filepath.Join(env.workspace, "TODO.md")
	content := "## Backend\n- [ ] Add endpoint @priority:High\n- [x] Write schema\n\n## Docs\n- [ ] Update README @due:2026-05-01\n"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := env.run("import", file, "-y")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if len(env.remote.created) != 3 {
		t.Fatalf("created = %+v", env.remote.created)
	}
	if c := env.remote.created[0]; c.Title != "Add endpoint" || c.Priority != "High" || c.Category != "Backend" {
		t.Errorf("first task = %+v", c)
	}
	if c := env.remote.created[1]; c.Title != "Write schema" || c.Status != "Done" {
		t.Errorf("second task = %+v", c)
	}
	if c := env.remote.created[2]; c.Due != "2026-05-01" || c.Category != "Docs" {
		t.Errorf("third task = %+v", c)
	}
	if !strings.Contains(stdout, "Successfully imported 3 task(s).") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestImportEmptyFile(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	file := filepath.Join(env.workspace, "notes.md")
	if err := os.WriteFile(file, []byte("# Nothing to do\nJust prose.\n"), 0644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := env.run("import", file, "-y")
	if code != 1 || !strings.Contains(stderr, "- [ ] Task name") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

// =============================================================================
// projects / databases / apikey / license
// =============================================================================

func TestProjects(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, stdout, _ := env.run("projects", "--json")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var got []projectJSON
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if len(got) != 1 || got[0].URL != "https://notion.so/db1" || !got[0].Current {
		t.Errorf("projects = %+v", got)
	}

	if code, _, stderr := env.run("projects", "--unlink", env.workspace, "-y"); code != 0 {
		t.Fatalf("unlink failed: %s", stderr)
	}
	_, stdout, _ = env.run("projects")
	if !strings.Contains(stdout, "No linked workspaces") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestDatabases(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, _ := env.run("databases")
	if code != 0 || !strings.Contains(stdout, "Tasks") || !strings.Contains(stdout, "db-1") {
		t.Errorf("code = %d, stdout = %q", code, stdout)
	}

	env.remote.databases = nil
	code, _, stderr := env.run("databases")
	if code != 1 || !strings.Contains(stderr, "no Notion databases") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestDatabasesPermissionSuggestion(t *testing.T) {
	env := newTestEnv(t)
	env.remote.failWith = &backend.Error{Kind: backend.KindPermission, Message: "Database not shared with integration. Share it in Notion settings."}

	code, _, stderr := env.run("databases")
	if code != 1 || !strings.Contains(stderr, "Connections") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestAPIKeySetAndStatus(t *testing.T) {
	env := newTestEnv(t)
	env.keyring = credentials.NewMockKeyring()

	code, stdout, _ := env.run("apikey", "status")
	if code != 0 || !strings.Contains(stdout, "not set") {
		t.Errorf("code = %d, stdout = %q", code, stdout)
	}

	env.stdin = "secret_wxyz9876\n"
	if code, _, stderr := env.run("apikey", "set"); code != 0 {
		t.Fatalf("apikey set failed: %s", stderr)
	}
	if got, _ := env.keyring.Get(credentials.ServiceName, credentials.AccountName); got != "secret_wxyz9876" {
		t.Errorf("stored key = %q", got)
	}

	_, stdout, _ = env.run("apikey", "status", "--json")
	var status credentials.Status
	if err := json.Unmarshal([]byte(stdout), &status); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if status.Source != credentials.SourceKeyring || status.Masked != "****9876" {
		t.Errorf("status = %+v", status)
	}
	if strings.Contains(stdout, "secret_wxyz9876") {
		t.Error("status must not print the key")
	}
}

func TestAPIKeySetSyncsLinkedWorkspace(t *testing.T) {
	env := newTestEnv(t)
	env.link()

	code, stdout, stderr := env.run("apikey", "set", "secret_new12345")
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "API key saved.") || !strings.Contains(stdout, "Write tests") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestAPIKeyUnavailableKeyring(t *testing.T) {
	env := newTestEnv(t)
	env.keyring = credentials.NewMockKeyring()
	env.keyring.Unavailable = true

	code, _, stderr := env.run("apikey", "set", "secret_x")
	if code != 1 || !strings.Contains(stderr, credentials.EnvToken) {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestLicenseUnconfiguredIsFree(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, _ := env.run("license", "--json")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var info struct {
		Tier     string `json:"tier"`
		IsActive bool   `json:"is_active"`
	}
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info.Tier != "free" || !info.IsActive {
		t.Errorf("license = %+v", info)
	}
}

// =============================================================================
// Notifications
// =============================================================================

func TestNotificationsTestAndLog(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := env.run("notifications", "test", "-y")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Test notification sent to 1 channel(s)") || !strings.Contains(stdout, ResultActionCompleted) {
		t.Errorf("stdout = %q", stdout)
	}

	_, stdout, _ = env.run("notifications", "log", "-y")
	if !strings.Contains(stdout, "[TEST]") || !strings.Contains(stdout, env.workspace) {
		t.Errorf("log = %q", stdout)
	}
	if !strings.Contains(stdout, ResultInfoOnly) {
		t.Errorf("missing result code: %q", stdout)
	}

	_, stdout, _ = env.run("notifications", "log", "clear", "-y")
	if !strings.Contains(stdout, "cleared") {
		t.Errorf("stdout = %q", stdout)
	}
	_, stdout, _ = env.run("notifications", "log")
	if !strings.Contains(stdout, "No notifications") {
		t.Errorf("log after clear = %q", stdout)
	}
}

func TestNotificationsTestWithoutChannels(t *testing.T) {
	env := newTestEnv(t)
	configPath := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "todosync", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, []byte("notifications:\n  log: false\n"), 0644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := env.run("notifications", "test")
	if code == 0 {
		t.Fatal("expected failure without channels")
	}
	if !strings.Contains(stderr, "notifications.desktop") {
		t.Errorf("stderr = %q", stderr)
	}
}

// =============================================================================
// Analytics and error mapping
// =============================================================================

func TestCommandsAreTracked(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("TODOSYNC_ANALYTICS_ENABLED", "1")
	env.link()
	env.run("delete", "nothing-like-this", "-y")

	tracker, err := analytics.NewTracker(config.DefaultConfig().GetAnalyticsPath(), true)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tracker.Close() }()

	events, err := tracker.Events("link", 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("link events = %+v, %v", events, err)
	}
	if !events[0].Success || events[0].Workspace != "api" || !strings.Contains(events[0].Flags, "database") {
		t.Errorf("link event = %+v", events[0])
	}

	events, _ = tracker.Events("delete", 10)
	if len(events) != 1 || events[0].Success {
		t.Errorf("delete events = %+v", events)
	}
}

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"quota", backend.NewQuotaError("ToDoSync Free: You can only sync 1 project."), "upgrade to Pro"},
		{"timeout", &backend.Error{Kind: backend.KindTimeout, Message: "Request timed out. Check your internet connection."}, "Try again later"},
		{"network", &backend.Error{Kind: backend.KindNetwork, Message: "Network error. Check your internet connection."}, "internet connection"},
		{"passthrough", errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := friendlyError(tt.err, "/w")
			if tt.err == nil {
				if got != nil {
					t.Errorf("friendlyError(nil) = %v", got)
				}
				return
			}
			if !strings.Contains(got.Error(), tt.want) {
				t.Errorf("friendlyError() = %q, want it to contain %q", got.Error(), tt.want)
			}
		})
	}
}

func TestNotionURL(t *testing.T) {
	if got := notionURL("1a2b-3c4d"); got != "https://notion.so/1a2b3c4d" {
		t.Errorf("notionURL() = %q", got)
	}
}
