// Package catalog registers the case-management models the wholesale
// importer can target.
package catalog

import (
	"sync"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

const GroupCore = "core"

func id() registry.Field { return registry.Field{Name: registry.PrimaryKey, Kind: registry.KindAuto} }

func name() registry.Field { return registry.Field{Name: "name", Kind: registry.KindString} }

func fk(field, target string, nullable bool) registry.Field {
	return registry.Field{Name: field, Kind: registry.KindForeignKey, Target: target, Nullable: nullable}
}

func m2m(field, target, table, source, dest string) registry.Field {
	return registry.Field{
		Name:   field,
		Kind:   registry.KindManyToMany,
		Target: target,
		Through: &registry.Through{
			Table:        table,
			SourceColumn: source,
			TargetColumn: dest,
		},
	}
}

func scalar(field string, kind registry.Kind, nullable bool) registry.Field {
	return registry.Field{Name: field, Kind: kind, Nullable: nullable}
}

func named(modelName, table string, extra ...registry.Field) registry.Model {
	return registry.Model{
		Name:      modelName,
		Group:     GroupCore,
		Table:     table,
		NameField: "name",
		Fields:    append([]registry.Field{id(), name()}, extra...),
	}
}

// Models returns the registration table in dependency-friendly order.
func Models() []registry.Model {
	return []registry.Model{
		named("State", "wholesale_states"),
		named("County", "wholesale_counties", fk("state", "State", true)),
		named("Location", "wholesale_locations",
			scalar("address", registry.KindText, false),
			fk("county", "County", true),
		),
		named("Trait", "wholesale_traits"),
		named("Title", "wholesale_titles"),
		named("ContentType", "wholesale_content_types"),
		named("IncidentTag", "wholesale_incident_tags"),
		named("Person", "wholesale_persons",
			scalar("for_admin_only", registry.KindBoolean, false),
			scalar("is_law_enforcement", registry.KindBoolean, false),
			scalar("birth_date", registry.KindDate, true),
			scalar("notes", registry.KindText, false),
			m2m("traits", "Trait", "wholesale_person_traits", "person_id", "trait_id"),
		),
		named("PersonAlias", "wholesale_person_aliases", fk("person", "Person", false)),
		{
			Name:  "PersonTitle",
			Group: GroupCore,
			Table: "wholesale_person_titles",
			Fields: []registry.Field{
				id(),
				fk("title", "Title", false),
				fk("person", "Person", false),
				scalar("start_year", registry.KindInteger, true),
				scalar("end_year", registry.KindInteger, true),
			},
		},
		named("Grouping", "wholesale_groupings",
			scalar("description", registry.KindText, false),
			scalar("phone", registry.KindString, false),
			scalar("email", registry.KindString, false),
			scalar("is_inactive", registry.KindBoolean, false),
			scalar("belongs_to_law_enforcement", registry.KindBoolean, false),
			m2m("counties", "County", "wholesale_grouping_counties", "grouping_id", "county_id"),
			scalar("updated_at", registry.KindDateTime, true),
		),
		{
			Name:  "PersonGrouping",
			Group: GroupCore,
			Table: "wholesale_person_groupings",
			Fields: []registry.Field{
				id(),
				fk("person", "Person", false),
				fk("grouping", "Grouping", false),
				scalar("is_inactive", registry.KindBoolean, false),
			},
		},
		{
			Name:  "Incident",
			Group: GroupCore,
			Table: "wholesale_incidents",
			Fields: []registry.Field{
				id(),
				scalar("description", registry.KindText, false),
				scalar("start_year", registry.KindInteger, true),
				scalar("start_month", registry.KindInteger, true),
				scalar("start_day", registry.KindInteger, true),
				scalar("is_approximate", registry.KindBoolean, false),
				fk("location", "Location", true),
				m2m("tags", "IncidentTag", "wholesale_incident_tag_links", "incident_id", "incident_tag_id"),
			},
		},
		{
			Name:  "PersonIncident",
			Group: GroupCore,
			Table: "wholesale_person_incidents",
			Fields: []registry.Field{
				id(),
				fk("person", "Person", false),
				fk("incident", "Incident", false),
				scalar("description", registry.KindText, false),
			},
		},
		named("Content", "wholesale_contents",
			scalar("link", registry.KindString, false),
			scalar("publication_date", registry.KindDate, true),
			fk("type", "ContentType", true),
			scalar("settlement_amount", registry.KindDecimal, true),
			scalar("extra", registry.KindJSON, true),
			m2m("incidents", "Incident", "wholesale_content_incidents", "content_id", "incident_id"),
		),
		named("Attachment", "wholesale_attachments",
			scalar("link", registry.KindString, false),
			fk("content", "Content", false),
		),
		{
			Name:  "ContentPerson",
			Group: GroupCore,
			Table: "wholesale_content_persons",
			Fields: []registry.Field{
				id(),
				fk("person", "Person", false),
				fk("content", "Content", false),
				scalar("description", registry.KindText, false),
			},
		},
	}
}

var registrySingleton = sync.OnceValues(func() (*registry.Registry, error) {
	return registry.New(Models()...)
})

// Registry returns the shared registry built from Models.
func Registry() (*registry.Registry, error) {
	return registrySingleton()
}
