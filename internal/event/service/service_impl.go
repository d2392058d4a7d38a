package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/event/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 50

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("event.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) ListUpcoming(ctx context.Context, now time.Time) ([]domain.Event, error) {
	items, err := s.repo.ListUpcoming(ctx, s.db, now.UTC())
	if err != nil {
		return nil, err
	}
	if err := s.attachClasses(ctx, items); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		events = append(events, *item)
	}
	return events, nil
}

// Get resolves ref as a numeric ID first, then as a slug.
func (s *Service) Get(ctx context.Context, ref string) (domain.Event, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Event{}, domain.ErrNotFound
	}

	var (
		item *domain.Event
		err  error
	)
	if id, parseErr := snowflake.ParseString(ref); parseErr == nil && id > 0 {
		item, err = s.repo.FindByID(ctx, s.db, id)
	}
	if err == nil && item == nil {
		item, err = s.repo.FindBySlug(ctx, s.db, strings.ToLower(ref))
	}
	if err != nil {
		return domain.Event{}, err
	}
	if item == nil {
		return domain.Event{}, domain.ErrNotFound
	}

	if err := s.attachClasses(ctx, []*domain.Event{item}); err != nil {
		return domain.Event{}, err
	}
	return *item, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateEventRequest) (domain.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Event{}, domain.ErrInvalidName
	}
	if req.StartAt.IsZero() || req.EndAt.IsZero() || !req.StartAt.Before(req.EndAt) {
		return domain.Event{}, domain.ErrInvalidSchedule
	}
	if len(req.TicketClasses) == 0 {
		return domain.Event{}, domain.ErrNoTicketClasses
	}
	for _, class := range req.TicketClasses {
		if err := validateClass(class); err != nil {
			return domain.Event{}, err
		}
	}

	now := s.clock.Now()
	event := domain.Event{
		ID:          s.genID.Generate(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		StartAt:     req.StartAt.UTC(),
		EndAt:       req.EndAt.UTC(),
		Location:    strings.TrimSpace(req.Location),
		City:        strings.TrimSpace(req.City),
		State:       strings.TrimSpace(req.State),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		eventSlug, err := s.uniqueSlug(ctx, tx, name)
		if err != nil {
			return err
		}
		event.Slug = eventSlug

		if err := s.repo.Insert(ctx, tx, &event); err != nil {
			return err
		}
		for _, item := range req.TicketClasses {
			class := domain.TicketClass{
				ID:          s.genID.Generate(),
				EventID:     event.ID,
				Name:        strings.TrimSpace(item.Name),
				Description: strings.TrimSpace(item.Description),
				Price:       item.Price.Round(2),
				Type:        item.Type,
				CreatedAt:   now,
			}
			if err := s.repo.InsertTicketClass(ctx, tx, &class); err != nil {
				return err
			}
			event.TicketClasses = append(event.TicketClasses, class)
		}
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}

	s.log.Info("event created",
		zap.String("event_id", event.ID.String()),
		zap.String("slug", event.Slug),
		zap.Int("ticket_classes", len(event.TicketClasses)),
	)
	return event, nil
}

func validateClass(class domain.CreateTicketClassRequest) error {
	if strings.TrimSpace(class.Name) == "" {
		return domain.ErrInvalidClassName
	}
	if !class.Type.Valid() {
		return domain.ErrInvalidClassType
	}
	if class.Price.IsNegative() {
		return domain.ErrNegativePrice
	}
	if class.Type == domain.TicketClassComplimentary && !class.Price.IsZero() {
		return domain.ErrComplimentaryPricing
	}
	return nil
}

func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "event"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts; i++ {
		exists, err := s.repo.SlugExists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.genID.Generate().Base36()), nil
}

func (s *Service) attachClasses(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(events))
	byID := make(map[snowflake.ID]*domain.Event, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
		byID[event.ID] = event
	}

	classes, err := s.repo.ListTicketClasses(ctx, s.db, ids)
	if err != nil {
		return err
	}
	for _, class := range classes {
		if event, ok := byID[class.EventID]; ok {
			event.TicketClasses = append(event.TicketClasses, *class)
		}
	}
	return nil
}
