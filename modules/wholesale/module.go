// Package wholesale wires the bulk CSV importer: registry, policy,
// persistence and the import service.
package wholesale

import (
	_ "embed"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/persistence"
	"github.com/iota-uz/wholesale/modules/wholesale/services"
	"github.com/iota-uz/wholesale/pkg/outbox"
)

//go:embed infrastructure/persistence/schema/wholesale-schema.sql
var engineSchema string

// Schema returns the engine tables followed by the catalog tables of group.
func Schema(reg *registry.Registry, group string) (string, error) {
	ddl, err := persistence.CatalogDDL(reg, group)
	if err != nil {
		return "", err
	}
	return engineSchema + "\n" + ddl, nil
}

type Deps struct {
	Registry     *registry.Registry
	Group        string
	Policy       services.Policy
	M2MDelimiter string
	Artifacts    services.ArtifactStore
	OutboxTable  pgx.Identifier
}

type Module struct {
	Metadata *services.Metadata
	Service  *services.ImportService
}

// New builds the import service on the Postgres repositories. Database
// access goes through the pool or transaction stored in the context.
func New(deps Deps) *Module {
	meta := services.NewMetadata(deps.Registry, deps.Group)
	classifier := services.NewClassifier(meta, deps.Policy)
	revisions := persistence.NewRevisionRepository()

	executor := services.NewExecutor(services.ExecutorDeps{
		Metadata:   meta,
		Classifier: classifier,
		Parser:     services.NewCellParser(deps.M2MDelimiter),
		Policy:     deps.Policy,
		Store:      persistence.NewRecordStore(),
		Mappings:   persistence.NewExternalIDRepository(),
		Revisions:  revisions,
	})
	svc := services.NewImportService(services.ServiceDeps{
		Jobs:      persistence.NewImportJobRepository(),
		Rows:      persistence.NewImportRowRepository(),
		Revisions: revisions,
		Artifacts: deps.Artifacts,
		Events:    persistence.NewJobEventSink(outbox.NewPublisher(), deps.OutboxTable),
		Executor:  executor,
		Converter: services.NewConverter(classifier, meta, deps.Policy),
		Templates: services.NewTemplateBuilder(meta, deps.Policy),
	})
	return &Module{Metadata: meta, Service: svc}
}
