package persistence

import (
	"fmt"
	"strings"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

// CatalogDDL renders CREATE TABLE statements for the models of group and
// their many-to-many through tables. Models are emitted in registration
// order, which must list targets before the models pointing at them.
func CatalogDDL(reg *registry.Registry, group string) (string, error) {
	var b strings.Builder
	var through []string
	for _, m := range reg.Models(group) {
		cols := make([]string, 0, len(m.Fields))
		for _, f := range m.Forward() {
			if f.Kind == registry.KindManyToMany {
				target, ok := reg.Model(f.Target)
				if !ok {
					return "", fmt.Errorf("%s.%s: %w %q", m.Name, f.Name, registry.ErrUnknownModel, f.Target)
				}
				through = append(through, throughDDL(m, target, f.Through))
				continue
			}
			col, err := columnDDL(reg, m, f)
			if err != nil {
				return "", err
			}
			cols = append(cols, col)
		}
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n    %s\n);\n\n", ident(m.Table), strings.Join(cols, ",\n    "))
		if m.NameField != "" {
			f, _ := m.Field(m.NameField)
			fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s ON %s (lower(%s));\n\n",
				ident(m.Table+"_name_idx"), ident(m.Table), ident(f.Column))
		}
	}
	for _, t := range through {
		b.WriteString(t)
	}
	return b.String(), nil
}

func columnDDL(reg *registry.Registry, m *registry.Model, f registry.Field) (string, error) {
	name := ident(f.Column)
	if f.Kind == registry.KindAuto {
		return name + " BIGSERIAL PRIMARY KEY", nil
	}
	if f.Kind == registry.KindForeignKey || f.Kind == registry.KindOneToOne {
		target, ok := reg.Model(f.Target)
		if !ok {
			return "", fmt.Errorf("%s.%s: %w %q", m.Name, f.Name, registry.ErrUnknownModel, f.Target)
		}
		col := fmt.Sprintf("%s BIGINT %s REFERENCES %s (id)", name, nullability(f), ident(target.Table))
		if f.Kind == registry.KindOneToOne {
			col += " UNIQUE"
		}
		return col, nil
	}

	typ, def := "", ""
	switch f.Kind {
	case registry.KindBoolean:
		typ, def = "BOOLEAN", "false"
	case registry.KindInteger:
		typ, def = "BIGINT", "0"
	case registry.KindDecimal:
		typ, def = "NUMERIC(14, 2)", "0"
	case registry.KindString:
		typ, def = "VARCHAR(255)", "''"
	case registry.KindText:
		typ, def = "TEXT", "''"
	case registry.KindDate:
		typ, def = "DATE", "CURRENT_DATE"
	case registry.KindDateTime:
		typ, def = "TIMESTAMPTZ", "now()"
	case registry.KindJSON:
		typ, def = "JSONB", "'{}'"
	default:
		return "", fmt.Errorf("%s.%s: no column type for %s", m.Name, f.Name, f.Kind)
	}
	if f.Nullable {
		return fmt.Sprintf("%s %s NULL", name, typ), nil
	}
	return fmt.Sprintf("%s %s NOT NULL DEFAULT %s", name, typ, def), nil
}

func nullability(f registry.Field) string {
	if f.Nullable {
		return "NULL"
	}
	return "NOT NULL"
}

func throughDDL(source, target *registry.Model, t *registry.Through) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n    %s BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,\n    %s BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,\n    PRIMARY KEY (%s, %s)\n);\n\n",
		ident(t.Table),
		ident(t.SourceColumn), ident(source.Table),
		ident(t.TargetColumn), ident(target.Table),
		ident(t.SourceColumn), ident(t.TargetColumn),
	)
}
