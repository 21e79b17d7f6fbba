package backend

// ProjectFieldKind describes how tasks are associated with projects.
type ProjectFieldKind string

const (
	ProjectFieldNone     ProjectFieldKind = "none"
	ProjectFieldSelect   ProjectFieldKind = "select"
	ProjectFieldRelation ProjectFieldKind = "relation"
)

// DefaultFederatedTitleField is used as the title property of federated
// databases, whose schema is not exposed on the database itself.
const DefaultFederatedTitleField = "Task name"

// DatabaseShape is the derived routing information for one database. It is
// either a *SingleShape or a *FederatedShape. Shapes are recomputed per sync
// cycle because the remote schema can change between syncs.
type DatabaseShape interface {
	TitleField() string
	ProjectKind() ProjectFieldKind
	ProjectField() string
	isDatabaseShape()
}

// SingleShape is a database backed by one partition that can be queried directly.
type SingleShape struct {
	DatabaseID    string
	Title         string
	ProjectName   string // Name of the project property, empty when Kind is none
	Kind          ProjectFieldKind
	PriorityField string // Select property named "Priority", if any
	DueField      string // Date property named "Due", if any
}

func (s *SingleShape) TitleField() string            { return s.Title }
func (s *SingleShape) ProjectKind() ProjectFieldKind { return s.Kind }
func (s *SingleShape) ProjectField() string          { return s.ProjectName }
func (*SingleShape) isDatabaseShape()                {}

// FederatedShape is a logical database whose records live in several
// partitions (data sources) sharing one parent id. Partitions cannot be
// queried directly, so listings scan and filter by partition membership.
type FederatedShape struct {
	DatabaseID   string
	PartitionIDs []string // Declaration order; the first one receives new records
	Title        string
	ProjectName  string
	Kind         ProjectFieldKind
}

func (f *FederatedShape) TitleField() string { return f.Title }

// ProjectKind of a federated database is always relation-based.
func (f *FederatedShape) ProjectKind() ProjectFieldKind { return ProjectFieldRelation }

func (f *FederatedShape) ProjectField() string {
	if f.ProjectName == "" {
		return "Project (Relation)"
	}
	return f.ProjectName
}

func (*FederatedShape) isDatabaseShape() {}

// PrimaryPartition returns the partition new records are created in.
func (f *FederatedShape) PrimaryPartition() string {
	if len(f.PartitionIDs) == 0 {
		return ""
	}
	return f.PartitionIDs[0]
}

// IsFederated reports whether the shape is multi-partition.
func IsFederated(shape DatabaseShape) bool {
	_, ok := shape.(*FederatedShape)
	return ok
}
