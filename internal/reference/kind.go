package reference

// Kind describes one lookup table and the rules that differ between tables.
type Kind struct {
	Name  string
	Path  string
	Table string
	// UniqueName rejects a second row with the same name.
	UniqueName bool
	// HasActive exposes the active flag and the active list filter.
	HasActive bool
	// GeneratedID assigns ids instead of requiring the caller to pick them.
	GeneratedID bool
	// RequireOldName makes renames confirm the current name.
	RequireOldName bool
	// DefaultName fills an empty name on create.
	DefaultName string
	OrderBy     string
}

var (
	KindClassification  = Kind{Name: "classification", Path: "classifications", Table: "classifications", DefaultName: "-", OrderBy: "id ASC"}
	KindDepartment      = Kind{Name: "department", Path: "departments", Table: "departments", UniqueName: true, OrderBy: "id ASC"}
	KindRetentionPeriod = Kind{Name: "retention_period", Path: "retention-periods", Table: "retention_periods", HasActive: true, OrderBy: "id ASC"}
	KindStorageLocation = Kind{Name: "storage_location", Path: "storage-locations", Table: "storage_locations", OrderBy: "id ASC"}
	KindAccess          = Kind{Name: "access", Path: "accesses", Table: "accesses", OrderBy: "id ASC"}
	KindJRADescription  = Kind{Name: "jra_description", Path: "jra-descriptions", Table: "jra_descriptions", OrderBy: "id ASC"}
	KindLevel           = Kind{Name: "level", Path: "levels", Table: "levels", OrderBy: "id ASC"}
	KindLetterType      = Kind{Name: "letter_type", Path: "letter-types", Table: "letter_types", UniqueName: true, GeneratedID: true, RequireOldName: true, OrderBy: "created_at ASC, id ASC"}
)

// Kinds lists every lookup table in routing order.
func Kinds() []Kind {
	return []Kind{
		KindClassification,
		KindDepartment,
		KindRetentionPeriod,
		KindStorageLocation,
		KindAccess,
		KindJRADescription,
		KindLevel,
		KindLetterType,
	}
}
