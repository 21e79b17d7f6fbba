package notion

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"todosync/backend"
)

// Property names the client reads and writes by convention.
const (
	propStatus          = "Status"
	propCategory        = "Category"
	propProject         = "Project"
	propProjectRelation = "Project (Relation)"
	propPriority        = "Priority"
	propDue             = "Due"
)

const untitled = "Untitled"

// Parent types reported on pages and data sources.
const (
	parentDatabase   = "database_id"
	parentDataSource = "data_source_id"
)

type richText struct {
	PlainText string `json:"plain_text"`
}

// firstPlainText returns the plain text of the first rich text item, or "".
func firstPlainText(items []richText) string {
	if len(items) == 0 {
		return ""
	}
	return items[0].PlainText
}

type option struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type optionList struct {
	Options []option `json:"options"`
}

type parent struct {
	Type         string `json:"type"`
	DatabaseID   string `json:"database_id,omitempty"`
	DataSourceID string `json:"data_source_id,omitempty"`
}

type dataSourceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// propertySchema is one property of a database schema.
type propertySchema struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Type   string      `json:"type"`
	Status *optionList `json:"status,omitempty"`
	Select *optionList `json:"select,omitempty"`
}

type database struct {
	Object      string                    `json:"object"`
	ID          string                    `json:"id"`
	Title       []richText                `json:"title"`
	Properties  map[string]propertySchema `json:"properties"`
	DataSources []dataSourceRef           `json:"data_sources"`
}

// projectProperty returns the name and schema of the project property.
func (d *database) projectProperty() (string, *propertySchema) {
	for _, name := range []string{propProjectRelation, propProject} {
		if p, ok := d.Properties[name]; ok {
			if p.Name != "" {
				name = p.Name
			}
			return name, &p
		}
	}
	return "", nil
}

// titleProperty returns the name of the title property, or "" when the
// schema exposes none. Keys are visited in sorted order for determinism.
func (d *database) titleProperty() string {
	for _, name := range sortedKeys(d.Properties) {
		if d.Properties[name].Type == "title" {
			return name
		}
	}
	return ""
}

func (d *database) isFederated() bool {
	return len(d.DataSources) > 0
}

func (d *database) shape(databaseID string) backend.DatabaseShape {
	projectName, projectProp := d.projectProperty()

	if d.isFederated() {
		ids := make([]string, 0, len(d.DataSources))
		for _, ds := range d.DataSources {
			ids = append(ids, ds.ID)
		}
		fs := &backend.FederatedShape{
			DatabaseID:   databaseID,
			PartitionIDs: ids,
			Title:        backend.DefaultFederatedTitleField,
			Kind:         backend.ProjectFieldRelation,
		}
		if projectProp != nil && projectProp.Type == "relation" {
			fs.ProjectName = projectName
		}
		return fs
	}

	ss := &backend.SingleShape{
		DatabaseID: databaseID,
		Title:      d.titleProperty(),
		Kind:       backend.ProjectFieldNone,
	}
	if ss.Title == "" {
		ss.Title = backend.DefaultFederatedTitleField
	}
	if projectProp != nil {
		switch projectProp.Type {
		case "select":
			ss.Kind = backend.ProjectFieldSelect
			ss.ProjectName = projectName
		case "relation":
			ss.Kind = backend.ProjectFieldRelation
			ss.ProjectName = projectName
		}
	}
	if p, ok := d.Properties[propPriority]; ok && p.Type == "select" {
		ss.PriorityField = propPriority
	}
	if p, ok := d.Properties[propDue]; ok && p.Type == "date" {
		ss.DueField = propDue
	}
	return ss
}

type relationRef struct {
	ID string `json:"id"`
}

// propertyValue is one property value of a page.
type propertyValue struct {
	Type     string        `json:"type"`
	Title    []richText    `json:"title,omitempty"`
	Status   *option       `json:"status,omitempty"`
	Select   *option       `json:"select,omitempty"`
	Relation []relationRef `json:"relation,omitempty"`
}

type page struct {
	Object         string                   `json:"object"`
	ID             string                   `json:"id"`
	Parent         parent                   `json:"parent"`
	LastEditedTime string                   `json:"last_edited_time"`
	Archived       bool                     `json:"archived"`
	Properties     map[string]propertyValue `json:"properties"`
}

// projectRelation returns the project relation ids of the page and whether a
// relation-typed project property exists at all.
func (p *page) projectRelation() ([]string, bool) {
	prop, ok := p.Properties[propProjectRelation]
	if !ok {
		prop, ok = p.Properties[propProject]
	}
	if !ok || prop.Type != "relation" {
		return nil, false
	}
	ids := make([]string, 0, len(prop.Relation))
	for _, rel := range prop.Relation {
		ids = append(ids, rel.ID)
	}
	return ids, true
}

// hasProjectField reports whether the page carries a select or relation project property.
func (p *page) hasProjectField() bool {
	prop, ok := p.Properties[propProjectRelation]
	if !ok {
		prop, ok = p.Properties[propProject]
	}
	return ok && (prop.Type == "select" || prop.Type == "relation")
}

// title returns the first text item of the title property, "" when empty.
func (p *page) title() string {
	for _, name := range sortedKeys(p.Properties) {
		if prop := p.Properties[name]; prop.Type == "title" {
			return firstPlainText(prop.Title)
		}
	}
	return ""
}

func (p *page) toTask() backend.Task {
	task := backend.Task{
		ID:     p.ID,
		Title:  p.title(),
		Status: backend.StatusNotStarted,
	}
	if task.Title == "" {
		task.Title = untitled
	}
	if s, ok := p.Properties[propStatus]; ok && s.Status != nil && s.Status.Name != "" {
		task.Status = s.Status.Name
	}
	if c, ok := p.Properties[propCategory]; ok && c.Select != nil {
		task.Category = c.Select.Name
	}
	if t, err := time.Parse(time.RFC3339, p.LastEditedTime); err == nil {
		task.LastEditedTime = &t
	}
	return task
}

// searchResult is a search hit; the object type decides how it is decoded.
type searchResult struct {
	Object string     `json:"object"`
	ID     string     `json:"id"`
	Parent parent     `json:"parent"`
	Title  []richText `json:"title"`
}

type listResponse struct {
	Object     string            `json:"object"`
	Results    []json.RawMessage `json:"results"`
	NextCursor *string           `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

// more reports whether another page should be requested.
func (r *listResponse) more() (string, bool) {
	if !r.HasMore || r.NextCursor == nil || *r.NextCursor == "" {
		return "", false
	}
	return *r.NextCursor, true
}

type apiError struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// normalizeID strips dashes and lowercases an id so dashed and undashed
// forms compare equal.
func normalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
