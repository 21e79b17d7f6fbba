package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"todosync/backend"
	"todosync/internal/utils"
)

// =============================================================================
// Database Operations
// =============================================================================

// ListDatabases enumerates accessible logical databases. Data sources of a
// multi-source database are collapsed into one entry for their parent, whose
// title is looked up separately.
func (b *Backend) ListDatabases(ctx context.Context) ([]backend.Database, error) {
	const op = "list databases"
	var databases []backend.Database
	seen := make(map[string]bool)

	body := map[string]interface{}{
		"filter":    map[string]string{"property": "object", "value": "data_source"},
		"sort":      map[string]string{"direction": "ascending", "timestamp": "last_edited_time"},
		"page_size": DefaultPageSize,
	}

	err := b.paginate(ctx, op, http.MethodPost, "/v1/search", body, func(raw json.RawMessage) error {
		var r searchResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return &backend.Error{Kind: backend.KindAPI, Op: op, Message: "failed to decode data source", Err: err}
		}

		if r.Parent.Type == parentDatabase {
			dbID := r.Parent.DatabaseID
			if seen[normalizeID(dbID)] {
				return nil
			}
			seen[normalizeID(dbID)] = true

			db, err := b.retrieveDatabase(ctx, dbID)
			if err != nil {
				utils.Debugf("[Notion] skipping database %s: %v", dbID, err)
				return nil
			}
			databases = append(databases, backend.Database{ID: dbID, Title: titleOr(db.Title)})
			return nil
		}

		databases = append(databases, backend.Database{ID: r.ID, Title: titleOr(r.Title)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return databases, nil
}

func titleOr(items []richText) string {
	if t := firstPlainText(items); t != "" {
		return t
	}
	return untitled
}

// GetDatabaseShape retrieves the database once and derives its routing shape.
func (b *Backend) GetDatabaseShape(ctx context.Context, databaseID string) (backend.DatabaseShape, error) {
	db, err := b.retrieveDatabase(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	return db.shape(databaseID), nil
}

// GetStatusOptions returns the status options in declared order, or the
// default three-value set when the database has no typed status property.
func (b *Backend) GetStatusOptions(ctx context.Context, databaseID string) ([]backend.StatusOption, error) {
	db, err := b.retrieveDatabase(ctx, databaseID)
	if err != nil {
		return nil, err
	}

	prop, ok := db.Properties[propStatus]
	if !ok || prop.Type != "status" || prop.Status == nil {
		return backend.DefaultStatusOptions(), nil
	}

	options := make([]backend.StatusOption, 0, len(prop.Status.Options))
	for _, o := range prop.Status.Options {
		color := o.Color
		if color == "" {
			color = "default"
		}
		options = append(options, backend.StatusOption{Name: o.Name, Color: color})
	}
	return options, nil
}

// =============================================================================
// Task Listing
// =============================================================================

// GetTasks lists every task of the database, optionally restricted to one
// project. Federated databases cannot be queried directly and are scanned.
func (b *Backend) GetTasks(ctx context.Context, databaseID string, query backend.TaskQuery) ([]backend.Task, error) {
	shape := query.Shape
	if shape == nil {
		var err error
		shape, err = b.GetDatabaseShape(ctx, databaseID)
		if err != nil {
			return nil, err
		}
	}

	pageSize := b.effectivePageSize(query.PageSize)

	switch s := shape.(type) {
	case *backend.FederatedShape:
		return b.scanFederatedTasks(ctx, s, pageSize, query.ProjectFilter)
	case *backend.SingleShape:
		return b.queryTasks(ctx, s, pageSize, query.ProjectFilter)
	default:
		return nil, backend.NewValidationError("query tasks", "unsupported database shape %T", shape)
	}
}

// scanFederatedTasks keeps the scanned pages whose parent partition belongs
// to the database. The partition set is fixed before the scan starts.
func (b *Backend) scanFederatedTasks(ctx context.Context, shape *backend.FederatedShape, pageSize int, projectFilter string) ([]backend.Task, error) {
	partitions := normalizedSet(shape.PartitionIDs)

	var members []*page
	err := b.searchPages(ctx, "query tasks", pageSize, func(p *page) {
		if p.Parent.Type != parentDataSource {
			return
		}
		if _, ok := partitions[normalizeID(p.Parent.DataSourceID)]; !ok {
			return
		}
		members = append(members, p)
	})
	if err != nil {
		return nil, err
	}
	utils.Debugf("[Notion] database %s: %d page(s) in %d partition(s)", shape.DatabaseID, len(members), len(partitions))

	if projectFilter != "" {
		projectID := b.resolveProjectID(ctx, members, projectFilter)
		if projectID == "" {
			utils.Debugf("[Notion] project %q not found, no tasks match", projectFilter)
			return []backend.Task{}, nil
		}
		members = filterByRelation(members, projectID)
	}

	tasks := make([]backend.Task, 0, len(members))
	for _, p := range members {
		tasks = append(tasks, p.toTask())
	}
	return tasks, nil
}

// resolveProjectID dereferences the related project pages of the given
// pages until one is titled name.
func (b *Backend) resolveProjectID(ctx context.Context, pages []*page, name string) string {
	for _, id := range uniqueRelationIDs(pages) {
		if title, ok := b.projectTitle(ctx, id); ok && title == name {
			return id
		}
	}
	return ""
}

func filterByRelation(pages []*page, projectID string) []*page {
	want := normalizeID(projectID)
	var kept []*page
	for _, p := range pages {
		ids, ok := p.projectRelation()
		if !ok {
			continue
		}
		for _, id := range ids {
			if normalizeID(id) == want {
				kept = append(kept, p)
				break
			}
		}
	}
	return kept
}

// queryTasks issues a native sorted query, filtered by project when the
// database has a project property.
func (b *Backend) queryTasks(ctx context.Context, shape *backend.SingleShape, pageSize int, projectFilter string) ([]backend.Task, error) {
	body := map[string]interface{}{
		"page_size": pageSize,
		"sorts": []map[string]string{
			{"property": propStatus, "direction": "ascending"},
			{"timestamp": "last_edited_time", "direction": "descending"},
		},
	}

	if projectFilter != "" {
		switch shape.Kind {
		case backend.ProjectFieldSelect:
			body["filter"] = map[string]interface{}{
				"property": shape.ProjectName,
				"select":   map[string]string{"equals": projectFilter},
			}
		case backend.ProjectFieldRelation:
			project := backend.FindProjectByName(b.projectOptionsWithIDs(ctx, shape), projectFilter)
			if project == nil {
				utils.Debugf("[Notion] project %q not found, no tasks match", projectFilter)
				return []backend.Task{}, nil
			}
			body["filter"] = map[string]interface{}{
				"property": shape.ProjectName,
				"relation": map[string]string{"contains": project.ID},
			}
		}
	}

	var tasks []backend.Task
	path := "/v1/databases/" + shape.DatabaseID + "/query"
	err := b.paginate(ctx, "query tasks", http.MethodPost, path, body, func(raw json.RawMessage) error {
		var p page
		if err := json.Unmarshal(raw, &p); err != nil {
			return &backend.Error{Kind: backend.KindAPI, Op: "query tasks", Message: "failed to decode page", Err: err}
		}
		tasks = append(tasks, p.toTask())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []backend.Task{}
	}
	return tasks, nil
}

// =============================================================================
// Project Lookups
// =============================================================================

// GetProjectOptions returns the project names usable as a filter. Select
// options come back in declared order, related project titles sorted.
// Errors degrade to an empty result.
func (b *Backend) GetProjectOptions(ctx context.Context, databaseID string) []string {
	db, err := b.retrieveDatabase(ctx, databaseID)
	if err != nil {
		utils.Debugf("[Notion] project options unavailable: %v", err)
		return []string{}
	}

	shape := db.shape(databaseID)
	if shape.ProjectKind() == backend.ProjectFieldSelect {
		names := []string{}
		if _, prop := db.projectProperty(); prop != nil && prop.Select != nil {
			for _, o := range prop.Select.Options {
				names = append(names, o.Name)
			}
		}
		return names
	}

	options := b.projectOptionsWithIDs(ctx, shape)
	names := make([]string, 0, len(options))
	for _, o := range options {
		names = append(names, o.Name)
	}
	sort.Strings(names)
	return names
}

// GetProjectOptionsWithIDs returns the related projects referenced by the
// database's tasks. Errors degrade to an empty result.
func (b *Backend) GetProjectOptionsWithIDs(ctx context.Context, databaseID string) []backend.ProjectOption {
	shape, err := b.GetDatabaseShape(ctx, databaseID)
	if err != nil {
		utils.Debugf("[Notion] project options unavailable: %v", err)
		return []backend.ProjectOption{}
	}
	return b.projectOptionsWithIDs(ctx, shape)
}

// projectOptionsWithIDs scans every page of the database once, collects the
// unique related project ids and dereferences each to its title. Ids that
// cannot be retrieved are skipped.
func (b *Backend) projectOptionsWithIDs(ctx context.Context, shape backend.DatabaseShape) []backend.ProjectOption {
	projects := []backend.ProjectOption{}
	if shape.ProjectKind() != backend.ProjectFieldRelation {
		return projects
	}

	belongs := membership(shape)
	var members []*page
	err := b.searchPages(ctx, "search pages", DefaultPageSize, func(p *page) {
		if belongs(p) {
			members = append(members, p)
		}
	})
	if err != nil {
		utils.Debugf("[Notion] project scan failed: %v", err)
		return projects
	}

	ids := uniqueRelationIDs(members)
	utils.Debugf("[Notion] found %d unique project id(s)", len(ids))

	for _, id := range ids {
		if title, ok := b.projectTitle(ctx, id); ok {
			projects = append(projects, backend.ProjectOption{ID: id, Name: title})
		}
	}
	return projects
}

// projectTitle returns the title of a related project page. Pages that
// cannot be retrieved or carry no title are reported as not found.
func (b *Backend) projectTitle(ctx context.Context, id string) (string, bool) {
	p, err := b.retrievePage(ctx, id)
	if err != nil {
		utils.Debugf("[Notion] skipping project %s: %v", id, err)
		return "", false
	}
	for _, name := range sortedKeys(p.Properties) {
		prop := p.Properties[name]
		if prop.Type != "title" || len(prop.Title) == 0 {
			continue
		}
		if t := prop.Title[0].PlainText; t != "" {
			return t, true
		}
		return untitled, true
	}
	return "", false
}

// membership returns a predicate selecting the pages stored in the database.
func membership(shape backend.DatabaseShape) func(*page) bool {
	switch s := shape.(type) {
	case *backend.FederatedShape:
		partitions := normalizedSet(s.PartitionIDs)
		return func(p *page) bool {
			if p.Parent.Type != parentDataSource {
				return false
			}
			_, ok := partitions[normalizeID(p.Parent.DataSourceID)]
			return ok
		}
	case *backend.SingleShape:
		want := normalizeID(s.DatabaseID)
		return func(p *page) bool {
			return p.Parent.Type == parentDatabase && normalizeID(p.Parent.DatabaseID) == want
		}
	default:
		return func(*page) bool { return false }
	}
}

func uniqueRelationIDs(pages []*page) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range pages {
		rel, ok := p.projectRelation()
		if !ok {
			continue
		}
		for _, id := range rel {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func normalizedSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[normalizeID(id)] = struct{}{}
	}
	return set
}

// HasProjectProperty reports whether the database exposes a project concept.
// For federated databases a small sample of pages is inspected. Any error,
// including not found, yields false.
func (b *Backend) HasProjectProperty(ctx context.Context, databaseID string) bool {
	db, err := b.retrieveDatabase(ctx, databaseID)
	if err != nil {
		utils.Debugf("[Notion] project property check failed: %v", err)
		return false
	}

	if _, prop := db.projectProperty(); prop != nil && (prop.Type == "select" || prop.Type == "relation") {
		return true
	}
	if !db.isFederated() {
		return false
	}

	body := map[string]interface{}{
		"filter":    map[string]string{"property": "object", "value": "page"},
		"page_size": 10,
	}
	var resp listResponse
	if err := b.call(ctx, "search pages", http.MethodPost, "/v1/search", body, &resp); err != nil {
		utils.Debugf("[Notion] project property sample failed: %v", err)
		return false
	}
	for _, raw := range resp.Results {
		var p page
		if json.Unmarshal(raw, &p) != nil {
			continue
		}
		if p.Parent.Type == parentDataSource && p.hasProjectField() {
			return true
		}
	}
	return false
}

// =============================================================================
// Mutations
// =============================================================================

// UpdateStatus sets the status of a task.
func (b *Backend) UpdateStatus(ctx context.Context, taskID, status string) error {
	if strings.TrimSpace(taskID) == "" {
		return backend.NewValidationError("update status", "task id is required")
	}
	body := map[string]interface{}{
		"properties": map[string]interface{}{
			propStatus: map[string]interface{}{"status": map[string]string{"name": status}},
		},
	}
	return b.call(ctx, "update status", http.MethodPatch, "/v1/pages/"+taskID, body, nil)
}

// DeleteTask archives the task page. Archived pages can be restored in Notion.
func (b *Backend) DeleteTask(ctx context.Context, taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return backend.NewValidationError("delete task", "task id is required")
	}
	body := map[string]interface{}{"archived": true}
	return b.call(ctx, "delete task", http.MethodPatch, "/v1/pages/"+taskID, body, nil)
}

// CreateTask creates a task page and returns its id. A pre-resolved shape
// and project id in the request spare the lookups during bulk creation; with
// a shape but no project id, a relation project is left unset.
func (b *Backend) CreateTask(ctx context.Context, databaseID string, req backend.CreateTaskRequest) (string, error) {
	const op = "create task"
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", backend.NewValidationError(op, "task title cannot be empty")
	}

	shape := req.Shape
	if shape == nil {
		var err error
		shape, err = b.GetDatabaseShape(ctx, databaseID)
		if err != nil {
			return "", err
		}
	}

	props := map[string]interface{}{
		shape.TitleField(): map[string]interface{}{
			"title": []map[string]interface{}{{"text": map[string]string{"content": title}}},
		},
	}
	if req.Status != "" {
		props[propStatus] = map[string]interface{}{"status": map[string]string{"name": req.Status}}
	}

	if req.ProjectName != "" || req.ProjectID != "" {
		switch shape.ProjectKind() {
		case backend.ProjectFieldSelect:
			if req.ProjectName != "" {
				props[shape.ProjectField()] = map[string]interface{}{"select": map[string]string{"name": req.ProjectName}}
			}
		case backend.ProjectFieldRelation:
			projectID := req.ProjectID
			// A caller that passes the shape has already resolved the project.
			if projectID == "" && req.Shape == nil {
				if p := backend.FindProjectByName(b.projectOptionsWithIDs(ctx, shape), req.ProjectName); p != nil {
					projectID = p.ID
				}
			}
			if projectID != "" {
				props[shape.ProjectField()] = map[string]interface{}{"relation": []map[string]string{{"id": projectID}}}
			}
		}
	}

	if req.Category != "" {
		props[propCategory] = map[string]interface{}{"select": map[string]string{"name": req.Category}}
	}

	var parentRef map[string]string
	switch s := shape.(type) {
	case *backend.FederatedShape:
		if ds := s.PrimaryPartition(); ds != "" {
			parentRef = map[string]string{"type": parentDataSource, parentDataSource: ds}
		} else {
			parentRef = map[string]string{parentDatabase: databaseID}
		}
	case *backend.SingleShape:
		if s.PriorityField != "" && req.Priority != "" {
			props[s.PriorityField] = map[string]interface{}{"select": map[string]string{"name": req.Priority}}
		}
		if s.DueField != "" && req.Due != "" {
			props[s.DueField] = map[string]interface{}{"date": map[string]string{"start": req.Due}}
		}
		parentRef = map[string]string{parentDatabase: databaseID}
	}

	body := map[string]interface{}{
		"parent":     parentRef,
		"properties": props,
	}

	var created page
	if err := b.call(ctx, op, http.MethodPost, "/v1/pages", body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}
