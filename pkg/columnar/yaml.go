package columnar

import "gopkg.in/yaml.v3"

// schemaDump is the shape DumpSchemaYAML renders; kept separate from
// types.ColumnarMeta so the debug dump can omit the row count and
// present columns in definition order without touching the persisted
// struct's JSON tags.
type schemaDump struct {
	Database string            `yaml:"database"`
	Name     string            `yaml:"name"`
	Columns  []columnSchemaDump `yaml:"columns"`
}

type columnSchemaDump struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Indexed  bool   `yaml:"indexed"`
}

// DumpSchemaYAML renders the collection's column schema for the debug/
// status surface, the one place gopkg.in/yaml.v3 is exercised by this
// package (full config-file loading is out of scope, see SPEC_FULL.md
// §2.3).
func (c *Collection) DumpSchemaYAML() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dump := schemaDump{Database: c.meta.Database, Name: c.meta.Name}
	for _, col := range c.meta.Columns {
		dump.Columns = append(dump.Columns, columnSchemaDump{
			Name:     col.Name,
			Type:     string(col.Type),
			Nullable: col.Nullable,
			Indexed:  col.Indexed,
		})
	}
	return yaml.Marshal(dump)
}
