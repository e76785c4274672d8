package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"astroguide/internal/domain"
)

// Reader is the lazy read side of guidance. It may return PENDING
// placeholders and never generates anything.
type Reader interface {
	Get(ctx context.Context, id string) (*domain.Guidance, error)
	FindByOwnerAndDate(ctx context.Context, kind domain.JobKind, ownerID, dateKey string) (*domain.Guidance, error)
}

// Options wires a Service.
type Options struct {
	Store     domain.GuidanceStore
	Writer    Writer
	Catalog   *Catalog
	Validator *DocumentValidator
	Logger    zerolog.Logger
}

// Service owns guidance documents. Reads go through the Service itself and may
// return PENDING placeholders; generation goes through the per-kind
// KindMaterializer values returned by Materializer, which only return once the
// document is READY.
type Service struct {
	store     domain.GuidanceStore
	writer    Writer
	catalog   *Catalog
	validator *DocumentValidator
	logger    zerolog.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("guidance: store is required")
	}
	if opts.Writer == nil {
		opts.Writer = NewStaticWriter()
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Validator == nil {
		v, err := NewDocumentValidator()
		if err != nil {
			return nil, err
		}
		opts.Validator = v
	}
	return &Service{
		store:     opts.Store,
		writer:    opts.Writer,
		catalog:   opts.Catalog,
		validator: opts.Validator,
		logger:    opts.Logger,
	}, nil
}

// Catalog exposes the kind catalog for entitlement checks.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Get returns a document by id in whatever state it is stored.
func (s *Service) Get(ctx context.Context, id string) (*domain.Guidance, error) {
	return s.store.GetByID(ctx, id)
}

// FindByOwnerAndDate returns the document for the natural key in whatever
// state it is stored, or domain.ErrNotFound.
func (s *Service) FindByOwnerAndDate(ctx context.Context, kind domain.JobKind, ownerID, dateKey string) (*domain.Guidance, error) {
	return s.store.FindByKey(ctx, domain.NaturalKey{OwnerID: ownerID, Kind: kind, DateKey: dateKey})
}

// Materializer returns the ensure-materialized command for kind.
func (s *Service) Materializer(kind domain.JobKind) (*KindMaterializer, error) {
	spec, err := s.catalog.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return &KindMaterializer{svc: s, spec: spec}, nil
}

// KindMaterializer generates documents of one kind.
type KindMaterializer struct {
	svc  *Service
	spec KindSpec
}

// Kind reports the job kind this materializer serves.
func (m *KindMaterializer) Kind() domain.JobKind {
	return m.spec.Kind
}

// Ensure blocks until the document for (owner, kind, date) is READY. An
// already READY document is left untouched. Concurrent callers for the same
// key share a single row: only the first MarkReady wins and later callers
// observe its result.
func (m *KindMaterializer) Ensure(ctx context.Context, ownerID, dateKey, locale string) error {
	key := domain.NaturalKey{OwnerID: ownerID, Kind: m.spec.Kind, DateKey: dateKey}
	logger := m.svc.logger.With().Str("key", key.String()).Logger()

	row, err := m.svc.store.FindOrCreate(ctx, key, locale)
	if err != nil {
		return fmt.Errorf("find or create guidance: %w", err)
	}
	if row.IsReady() {
		logger.Debug().Str("guidance_id", row.ID).Msg("guidance: already ready")
		return nil
	}

	doc, err := m.svc.writer.Write(ctx, WriteRequest{
		Spec:    m.spec,
		OwnerID: ownerID,
		DateKey: dateKey,
		Locale:  locale,
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrGenerationFailure, m.spec.Kind, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: writer returned no document", domain.ErrGenerationFailure)
	}
	if reason := doc.Metadata["fallback_reason"]; reason != "" {
		logger.Warn().Str("reason", reason).Msg("guidance: writer used fallback")
	}

	content, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", domain.ErrGenerationFailure, err)
	}
	if err := m.svc.validator.Validate(content); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGenerationFailure, err)
	}

	updated, err := m.svc.store.MarkReady(ctx, row.ID, doc.Title, doc.Provider, content)
	if err != nil {
		return fmt.Errorf("store guidance: %w", err)
	}
	if updated {
		logger.Info().Str("guidance_id", row.ID).Str("provider", doc.Provider).Msg("guidance: generated")
		return nil
	}

	// Another execution finished first; its READY row is the result.
	current, err := m.svc.store.GetByID(ctx, row.ID)
	if err != nil {
		return fmt.Errorf("reload guidance: %w", err)
	}
	if !current.IsReady() {
		return fmt.Errorf("%w: guidance %s is %s after generation", domain.ErrConsistencyFailure, row.ID, current.Status)
	}
	logger.Debug().Str("guidance_id", row.ID).Msg("guidance: concurrent generation won")
	return nil
}

var _ Reader = (*Service)(nil)
