package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/importwizard"
	"labelkit/backend/internal/logging"
	"labelkit/backend/internal/store"
	"labelkit/backend/internal/xid"
)

var ErrImportNotFound = errors.New("import session not found")

// importSessionTTL bounds how long an untouched wizard session is kept.
const importSessionTTL = 2 * time.Hour

type importSession struct {
	id        string
	owner     string
	state     importwizard.State
	updatedAt time.Time
}

func (s *importSession) response() domain.ImportSessionResponse {
	resp := domain.ImportSessionResponse{
		ID:        s.id,
		Step:      string(s.state.Step()),
		FileName:  importwizard.FileName(s.state),
		Drafts:    importwizard.Drafts(s.state),
		UpdatedAt: s.updatedAt,
	}
	switch st := s.state.(type) {
	case importwizard.Success:
		resp.Created = st.Created
	case importwizard.Failed:
		resp.Error = st.Reason
	}
	return resp
}

func (s *Service) StartImport(ctx context.Context) (domain.ImportSessionResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ImportSessionResponse{}, err
	}

	s.importsMu.Lock()
	defer s.importsMu.Unlock()
	s.pruneImportsLocked()

	session := &importSession{
		id:        xid.New("imp"),
		owner:     actorName(ctx),
		state:     importwizard.Upload{},
		updatedAt: s.now(),
	}
	s.imports[session.id] = session
	return session.response(), nil
}

func (s *Service) GetImport(ctx context.Context, id string) (domain.ImportSessionResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ImportSessionResponse{}, err
	}

	s.importsMu.Lock()
	defer s.importsMu.Unlock()

	session, err := s.importLocked(ctx, id)
	if err != nil {
		return domain.ImportSessionResponse{}, err
	}
	return session.response(), nil
}

// ApplyImportEvent moves the session one step. A "commit" event writes the
// confirmed drafts in one batch and lands in Success or Failed; any other
// rejected event leaves the session where it was and returns the error.
func (s *Service) ApplyImportEvent(ctx context.Context, id string, req domain.ImportEventRequest) (domain.ImportSessionResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ImportSessionResponse{}, err
	}

	s.importsMu.Lock()
	defer s.importsMu.Unlock()

	session, err := s.importLocked(ctx, id)
	if err != nil {
		return domain.ImportSessionResponse{}, err
	}

	if strings.EqualFold(strings.TrimSpace(req.Type), "commit") {
		return s.commitImportLocked(ctx, session)
	}

	event, err := importwizard.EventFromRequest(req)
	if err != nil {
		return domain.ImportSessionResponse{}, err
	}
	next, err := importwizard.Transition(session.state, event)
	if err != nil {
		return domain.ImportSessionResponse{}, err
	}
	session.state = next
	session.updatedAt = s.now()
	return session.response(), nil
}

func (s *Service) commitImportLocked(ctx context.Context, session *importSession) (domain.ImportSessionResponse, error) {
	confirm, ok := session.state.(importwizard.Confirm)
	if !ok {
		return domain.ImportSessionResponse{}, fmt.Errorf("%w: %q from %s", importwizard.ErrInvalidTransition, "commit", session.state.Step())
	}

	products := make([]domain.Product, 0, len(confirm.Drafts))
	for _, d := range confirm.Drafts {
		products = append(products, domain.Product{
			SKU:        d.SKU,
			Name:       d.Name,
			Barcode:    d.Barcode,
			Category:   d.Category,
			Brand:      d.Brand,
			PriceCents: d.PriceCents,
			Stock:      d.Stock,
			Active:     true,
		})
	}

	var event importwizard.Event
	created, err := s.repo.CreateProducts(ctx, products)
	if err != nil {
		reason := err.Error()
		if !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrInvalidInput) {
			reason = "products could not be saved"
		}
		event = importwizard.CommitFailed{Reason: reason}
	} else {
		event = importwizard.Committed{Created: created}
	}

	next, terr := importwizard.Transition(session.state, event)
	if terr != nil {
		return domain.ImportSessionResponse{}, terr
	}
	session.state = next
	session.updatedAt = s.now()

	logger := logging.WithFields(ctx, "import_id", session.id, "file", confirm.FileName)
	if err != nil {
		logger.Warn("import commit failed", "error", err)
	} else {
		logger.Info("import committed", "created", created)
	}
	return session.response(), nil
}

func (s *Service) importLocked(ctx context.Context, id string) (*importSession, error) {
	session, ok := s.imports[strings.TrimSpace(id)]
	if !ok || s.now().Sub(session.updatedAt) > importSessionTTL {
		return nil, ErrImportNotFound
	}
	if owner := actorName(ctx); session.owner != owner {
		return nil, ErrImportNotFound
	}
	return session, nil
}

func (s *Service) pruneImportsLocked() {
	now := s.now()
	for id, session := range s.imports {
		if now.Sub(session.updatedAt) > importSessionTTL {
			delete(s.imports, id)
		}
	}
}
