package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fiscalflow/internal/amqp"
	"fiscalflow/internal/core"
	"fiscalflow/internal/entity"
	"fiscalflow/internal/log"
)

// DefaultPageLimit is the page size used when a caller does not ask for one.
const DefaultPageLimit = 1000

// ErrInvalidInput wraps validation failures of records assembled by the service.
var ErrInvalidInput = errors.New("invalid input")

// EventPublisher announces committed entity changes.
type EventPublisher interface {
	PublishEntityChange(ctx context.Context, msg *amqp.EntityChangeMessage) error
}

// Options configures an ExpenseService.
type Options struct {
	// Publisher receives a change event after every successful mutation. Optional.
	Publisher EventPublisher
	// Seeds populate the expense collection the first time it is touched.
	Seeds []core.Expense
	// Now stamps expenses stored without a date. Defaults to time.Now.
	Now func() time.Time
	// PageLimit is the default and maximum list page size.
	PageLimit int
	// Logger records completed mutations. Defaults to the slog default.
	Logger *log.Logger
}

// ExpenseService exposes the expense tracker operations on top of the entity
// layer: the singleton settings record and the expense collection.
type ExpenseService struct {
	expenses     *entity.Collection[core.Expense]
	settings     *entity.Entity[core.UserSettings]
	settingsKind *entity.Kind[core.UserSettings]
	publisher    EventPublisher
	pageLimit    int
	log          *log.StructuredLogger
}

// New wires the domain kinds onto h. It is called once by the composition
// root of each binary.
func New(h *entity.Handle, opts Options) *ExpenseService {
	settingsKind := core.SettingsKind()
	limit := opts.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Config{Handler: slog.Default().Handler()})
	}
	return &ExpenseService{
		expenses:     entity.NewCollection(h, core.ExpenseKind(opts.Now, opts.Seeds)),
		settings:     entity.New(h, settingsKind, core.SettingsID),
		settingsKind: settingsKind,
		publisher:    opts.Publisher,
		pageLimit:    limit,
		log:          log.NewStructuredLogger(logger.WithComponent(log.ComponentExpense)),
	}
}

// Expenses returns the expense collection.
func (s *ExpenseService) Expenses() *entity.Collection[core.Expense] {
	return s.expenses
}

// GetSettings returns the user settings, creating the defaults on first use.
func (s *ExpenseService) GetSettings(ctx context.Context) (core.UserSettings, error) {
	st, err := s.settings.GetState(ctx)
	if err != nil {
		return st, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

// UpdateSettings merges partial (as produced by core.DecodeSettingsPatch)
// into the settings and returns the result.
func (s *ExpenseService) UpdateSettings(ctx context.Context, partial map[string]any) (core.UserSettings, error) {
	if err := s.settings.Patch(ctx, partial); err != nil {
		return core.UserSettings{}, fmt.Errorf("update settings: %w", err)
	}
	st, err := s.GetSettings(ctx)
	if err != nil {
		return st, err
	}
	s.log.LogEntityOp(ctx, log.OpUpdate, s.settingsKind.Name, core.SettingsID, nil)
	s.publish(ctx, s.settingsKind.Name, "", core.SettingsID, amqp.OpUpdate)
	return st, nil
}

// ListExpenses returns one page of expenses, oldest first. A non-positive
// limit or one above the configured page limit is replaced by the page limit.
func (s *ExpenseService) ListExpenses(ctx context.Context, cursor string, limit int) (entity.Page[core.Expense], error) {
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}
	page, err := s.expenses.List(ctx, cursor, limit)
	if err != nil {
		return page, fmt.Errorf("list expenses: %w", err)
	}
	if page.Items == nil {
		page.Items = []core.Expense{}
	}
	return page, nil
}

// CreateExpense stores e under a fresh id. An empty currency is taken from
// the settings.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = ""
	if e.Currency == "" {
		st, err := s.GetSettings(ctx)
		if err != nil {
			return core.Expense{}, err
		}
		e.Currency = st.Currency
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	created, err := s.expenses.Create(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	s.log.LogEntityOp(ctx, log.OpCreate, s.kindName(), created.ID, nil)
	s.publish(ctx, s.kindName(), s.indexName(), created.ID, amqp.OpCreate)
	return created, nil
}

// UpdateExpense merges partial (as produced by core.DecodeExpensePatch) into
// an existing expense. It returns entity.ErrNotFound for unknown ids.
func (s *ExpenseService) UpdateExpense(ctx context.Context, id string, partial map[string]any) (core.Expense, error) {
	e := s.expenses.Entity(id)
	if err := e.PatchExisting(ctx, partial); err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	updated, err := e.GetState(ctx)
	if err != nil {
		return updated, fmt.Errorf("update expense %s: %w", id, err)
	}
	s.log.LogEntityOp(ctx, log.OpUpdate, s.kindName(), id, nil)
	s.publish(ctx, s.kindName(), s.indexName(), id, amqp.OpUpdate)
	return updated, nil
}

// DeleteExpense removes one expense and reports whether it existed.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) (bool, error) {
	deleted, err := s.expenses.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete expense %s: %w", id, err)
	}
	if deleted {
		s.log.LogEntityOp(ctx, log.OpDelete, s.kindName(), id, nil)
		s.publish(ctx, s.kindName(), s.indexName(), id, amqp.OpDelete)
	}
	return deleted, nil
}

// DeleteAllExpenses deletes every indexed expense, dangling index ids
// included. It returns the number of expenses actually removed.
func (s *ExpenseService) DeleteAllExpenses(ctx context.Context) (int, error) {
	ids, err := s.expenses.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all expenses: %w", err)
	}

	n, err := s.expenses.DeleteMany(ctx, ids)
	if err != nil {
		return n, fmt.Errorf("delete all expenses: %w", err)
	}
	s.log.LogEntityOp(ctx, log.OpDeleteMany, s.kindName(), "", log.NewFields().WithCount(n))
	s.publish(ctx, s.kindName(), s.indexName(), "", amqp.OpDeleteMany)
	return n, nil
}

func (s *ExpenseService) kindName() string { return s.expenses.Kind().Name }

func (s *ExpenseService) indexName() string { return s.expenses.Kind().Index }

// publish sends a change event. Failures are logged; the mutation already
// succeeded.
func (s *ExpenseService) publish(ctx context.Context, kind, index, id, op string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewEntityChangeMessage(kind, index, id, op)
	if err := s.publisher.PublishEntityChange(ctx, msg); err != nil {
		s.log.LogError(ctx, "Failed to publish entity change", err, log.ComponentAMQP, op,
			log.NewFields().WithEntity(kind, id))
	}
}
