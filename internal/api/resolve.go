package api

import (
	"fmt"

	"github.com/ytfqj/ermrest/internal/model"
)

// resolveSchema, resolveTable, resolveColumn, and resolveForeignKey walk a
// Model by name, the same lookups the original implementation's URL parser
// performs while resolving a REST path's resource segments.

func resolveSchema(m *model.Model, schemaName string) (*model.Schema, error) {
	s, err := m.Schema(schemaName)
	if err != nil {
		return nil, fmt.Errorf("no such schema %q", schemaName)
	}
	return s, nil
}

func resolveTable(m *model.Model, schemaName, tableName string) (*model.Table, error) {
	s, err := resolveSchema(m, schemaName)
	if err != nil {
		return nil, err
	}
	t, err := s.Table(tableName)
	if err != nil {
		return nil, fmt.Errorf("no such table %q in schema %q", tableName, schemaName)
	}
	return t, nil
}

func resolveColumn(m *model.Model, schemaName, tableName, columnName string) (*model.Column, error) {
	t, err := resolveTable(m, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	c, err := t.Column(columnName)
	if err != nil {
		return nil, fmt.Errorf("no such column %q in table %q", columnName, tableName)
	}
	return c, nil
}

func resolveForeignKey(m *model.Model, schemaName, tableName, constraintName string) (*model.ForeignKey, error) {
	t, err := resolveTable(m, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	for _, fk := range t.ForeignKeys() {
		if fk.ConstraintName == constraintName {
			return fk, nil
		}
	}
	return nil, fmt.Errorf("no such foreign key %q on table %q", constraintName, tableName)
}
