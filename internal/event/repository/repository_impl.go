package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/event/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const eventColumns = `id, name, slug, description, start_at, end_at, location, city, state, is_active, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Name,
		event.Slug,
		event.Description,
		event.StartAt,
		event.EndAt,
		event.Location,
		event.City,
		event.State,
		event.IsActive,
		event.CreatedAt,
		event.UpdatedAt,
	).Error
}

func (r *repo) InsertTicketClass(ctx context.Context, db *gorm.DB, class *domain.TicketClass) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ticket_classes (id, event_id, name, description, price, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		class.ID,
		class.EventID,
		class.Name,
		class.Description,
		class.Price,
		class.Type,
		class.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Event, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Event, error) {
	return r.findOne(ctx, db, `slug = ?`, slug)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Event, error) {
	var event domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM events WHERE `+where,
		arg,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM events WHERE slug = ?`,
		slug,
	).Scan(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListUpcoming(ctx context.Context, db *gorm.DB, now time.Time) ([]*domain.Event, error) {
	var events []*domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM events
		 WHERE is_active = ? AND start_at > ?
		 ORDER BY start_at ASC, id ASC`,
		true,
		now,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) ListTicketClasses(ctx context.Context, db *gorm.DB, eventIDs []snowflake.ID) ([]*domain.TicketClass, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var classes []*domain.TicketClass
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_id, name, description, price, type, created_at
		 FROM ticket_classes WHERE event_id IN ?
		 ORDER BY price ASC, id ASC`,
		eventIDs,
	).Scan(&classes).Error
	if err != nil {
		return nil, err
	}
	return classes, nil
}

func (r *repo) FindTicketClasses(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.TicketClass, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var classes []*domain.TicketClass
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_id, name, description, price, type, created_at
		 FROM ticket_classes WHERE id IN ?`,
		ids,
	).Scan(&classes).Error
	if err != nil {
		return nil, err
	}
	return classes, nil
}
