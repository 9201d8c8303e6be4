package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/access"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/locking"
	"github.com/spec-kit/support-desk/internal/repository"
	util "github.com/spec-kit/support-desk/pkg/util"
)

type memTicketRepo struct {
	mu       sync.Mutex
	seq      int64
	tickets  map[int64]*domain.Ticket
	failures int
	calls    int
	afterGet func()
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[int64]*domain.Ticket)}
}

func (r *memTicketRepo) maybeFail() error {
	r.calls++
	if r.failures > 0 {
		r.failures--
		return errors.New("db down")
	}
	return nil
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return err
	}
	r.seq++
	ticket.ID = r.seq
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket, fromStatus domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return err
	}
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Status != fromStatus {
		return repository.ErrStaleTicket
	}
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	r.mu.Lock()
	if err := r.maybeFail(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	ticket, ok := r.tickets[id]
	if !ok {
		r.mu.Unlock()
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	hook := r.afterGet
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return &clone, nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFail(); err != nil {
		return nil, err
	}
	var result []domain.Ticket
	for id := int64(1); id <= r.seq; id++ {
		ticket, ok := r.tickets[id]
		if !ok || !matchesFilter(ticket, filter) {
			continue
		}
		result = append(result, *ticket)
	}
	return result, nil
}

func (r *memTicketRepo) CountWithFilter(ctx context.Context, filter repository.TicketFilter) (int64, error) {
	listed, err := r.ListWithFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(listed)), nil
}

func matchesFilter(t *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
		return false
	}
	if filter.AssignedDeveloperID != nil && !t.AssignedTo(*filter.AssignedDeveloperID) {
		return false
	}
	if filter.Unassigned && t.Assigned() {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if t.Status == status {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if filter.CompletedFrom != nil {
		if t.CompletedAt == nil || t.CompletedAt.Before(*filter.CompletedFrom) {
			return false
		}
	}
	return true
}

type memEscalationRepo struct {
	mu      sync.Mutex
	seq     int64
	entries []domain.EscalationEntry
}

func (r *memEscalationRepo) Append(_ context.Context, entry *domain.EscalationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry.ID = r.seq
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memEscalationRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.EscalationEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.EscalationEntry
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	seq   int64
	users map[int64]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*domain.User)}
}

func (r *memUserRepo) add(role domain.Role, active bool) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	user := &domain.User{ID: r.seq, Username: string(role), Role: role, Active: active}
	r.users[user.ID] = user
	return user
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	user.ID = r.seq
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) ListByRole(_ context.Context, role domain.Role, activeOnly bool) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for id := int64(1); id <= r.seq; id++ {
		user, ok := r.users[id]
		if !ok || user.Role != role {
			continue
		}
		if activeOnly && !user.Active {
			continue
		}
		result = append(result, *user)
	}
	return result, nil
}

type fixture struct {
	service    *TicketService
	tickets    *memTicketRepo
	escalation *memEscalationRepo
	users      *memUserRepo
	locks      locking.Manager
	published  *[]events.Event

	admin     domain.Actor
	pm        domain.Actor
	developer domain.Actor
	client    domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tickets := newMemTicketRepo()
	escalation := &memEscalationRepo{}
	users := newMemUserRepo()
	locks := locking.NewMemoryManager(time.Minute)

	dispatcher := events.NewInMemoryDispatcher()
	published := &[]events.Event{}
	capture := func(_ context.Context, event events.Event) error {
		*published = append(*published, event)
		return nil
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAssigned,
		events.EventTicketSelfAssigned,
		events.EventTicketPassed,
		events.EventTicketCanceled,
		events.EventTicketCompleted,
		events.EventTicketStatusChanged,
	} {
		dispatcher.Subscribe(eventType, capture)
	}

	svc := NewTicketService(
		config.RetryConfig{MaxAttempts: 3, InitialBackoffMS: 1, MaxElapsedSeconds: 2},
		TicketDependencies{
			TicketRepo:     tickets,
			EscalationRepo: escalation,
			UserRepo:       users,
			LockManager:    locks,
			Dispatcher:     dispatcher,
		})

	f := &fixture{
		service:    svc,
		tickets:    tickets,
		escalation: escalation,
		users:      users,
		locks:      locks,
		published:  published,
	}
	f.admin = domain.ActorFromUser(users.add(domain.RoleAdmin, true))
	f.pm = domain.ActorFromUser(users.add(domain.RoleProjectManager, true))
	f.developer = domain.ActorFromUser(users.add(domain.RoleDeveloper, true))
	f.client = domain.ActorFromUser(users.add(domain.RoleClient, true))
	return f
}

func (f *fixture) newTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := f.service.CreateTicket(context.Background(), f.client, "printer is on fire", domain.TicketPriorityHigh)
	require.NoError(t, err)
	return ticket
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *util.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

func lastEvent(f *fixture) events.Event {
	return (*f.published)[len(*f.published)-1]
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.service.CreateTicket(ctx, f.client, "  vpn keeps dropping  ", domain.TicketPriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "vpn keeps dropping", ticket.Query)
	assert.Equal(t, f.client.ID, ticket.RequesterID)
	assert.Regexp(t, `^TCK-[0-9A-F]{8}$`, ticket.ExternalKey)
	assert.False(t, ticket.Assigned())

	require.Len(t, *f.published, 1)
	assert.Equal(t, events.EventTicketCreated, lastEvent(f).Type)

	_, err = f.service.CreateTicket(ctx, f.developer, "nope", domain.TicketPriorityLow)
	assertCode(t, err, util.CodeForbidden)

	_, err = f.service.CreateTicket(ctx, f.client, "   ", domain.TicketPriorityLow)
	assertCode(t, err, util.CodeValidationFailed)

	// Unknown priority falls back to MEDIUM rather than failing.
	ticket, err = f.service.CreateTicket(ctx, f.client, "keyboard sticky", domain.TicketPriority("URGENT"))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
}

func TestAssignTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	assigned, err := f.service.AssignTicket(ctx, f.pm, ticket.ID, f.developer.ID, "take this one")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, assigned.Status)
	assert.True(t, assigned.AssignedTo(f.developer.ID))
	require.NotNil(t, assigned.AssignedByID)
	assert.Equal(t, f.pm.ID, *assigned.AssignedByID)
	assert.Equal(t, events.EventTicketAssigned, lastEvent(f).Type)

	// Reassignment while IN_PROGRESS is allowed for staff.
	otherDev := f.users.add(domain.RoleDeveloper, true)
	assigned, err = f.service.AssignTicket(ctx, f.admin, ticket.ID, otherDev.ID, "")
	require.NoError(t, err)
	assert.True(t, assigned.AssignedTo(otherDev.ID))

	_, err = f.service.AssignTicket(ctx, f.developer, ticket.ID, f.developer.ID, "")
	assertCode(t, err, util.CodeForbidden)

	_, err = f.service.AssignTicket(ctx, f.pm, ticket.ID, f.client.ID, "")
	assertCode(t, err, util.CodeValidationFailed)

	inactiveDev := f.users.add(domain.RoleDeveloper, false)
	_, err = f.service.AssignTicket(ctx, f.pm, ticket.ID, inactiveDev.ID, "")
	assertCode(t, err, util.CodeValidationFailed)

	_, err = f.service.AssignTicket(ctx, f.pm, 9999, f.developer.ID, "")
	assertCode(t, err, util.CodeNotFound)
}

func TestAssignTicket_LockConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	// Another staff member holds the assignment lock.
	_, err := f.locks.Acquire(ctx, ticket.ID, f.admin.ID, f.admin.Role)
	require.NoError(t, err)

	_, err = f.service.AssignTicket(ctx, f.pm, ticket.ID, f.developer.ID, "")
	assertCode(t, err, util.CodeLockConflict)

	var domainErr *util.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, f.admin.ID, domainErr.Details["holder_id"])

	// Admin override clears the way.
	require.NoError(t, f.service.OverrideLock(ctx, f.admin, ticket.ID))
	_, err = f.service.AssignTicket(ctx, f.pm, ticket.ID, f.developer.ID, "")
	require.NoError(t, err)

	// Override is admin-only.
	err = f.service.OverrideLock(ctx, f.pm, ticket.ID)
	assertCode(t, err, util.CodeForbidden)
}

func TestSelfAssignTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	claimed, err := f.service.SelfAssignTicket(ctx, f.developer, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, claimed.Status)
	assert.True(t, claimed.AssignedTo(f.developer.ID))
	assert.Nil(t, claimed.AssignedByID)
	assert.Equal(t, events.EventTicketSelfAssigned, lastEvent(f).Type)

	// Second developer loses the race on the already-claimed ticket.
	otherDev := domain.ActorFromUser(f.users.add(domain.RoleDeveloper, true))
	_, err = f.service.SelfAssignTicket(ctx, otherDev, ticket.ID)
	assertCode(t, err, util.CodeInvalidTransition)

	_, err = f.service.SelfAssignTicket(ctx, f.admin, ticket.ID)
	assertCode(t, err, util.CodeForbidden)
}

func TestPassTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	_, err := f.service.SelfAssignTicket(ctx, f.developer, ticket.ID)
	require.NoError(t, err)

	_, err = f.service.PassTicket(ctx, f.developer, ticket.ID, "   ")
	assertCode(t, err, util.CodeMissingReason)

	otherDev := domain.ActorFromUser(f.users.add(domain.RoleDeveloper, true))
	_, err = f.service.PassTicket(ctx, otherDev, ticket.ID, "not mine")
	assertCode(t, err, util.CodeForbidden)

	passed, err := f.service.PassTicket(ctx, f.developer, ticket.ID, "needs database access I lack")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, passed.Status)
	assert.False(t, passed.Assigned())
	assert.Equal(t, events.EventTicketPassed, lastEvent(f).Type)

	entries, err := f.service.ListEscalations(ctx, f.admin, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EscalationPassed, entries[0].Action)
	assert.Equal(t, "needs database access I lack", entries[0].Reason)
	require.NotNil(t, entries[0].PreviousAssignee)
	assert.Equal(t, f.developer.ID, *entries[0].PreviousAssignee)

	// The passed ticket is claimable again.
	_, err = f.service.SelfAssignTicket(ctx, otherDev, ticket.ID)
	require.NoError(t, err)
}

func TestCancelTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	_, err := f.service.SelfAssignTicket(ctx, f.developer, ticket.ID)
	require.NoError(t, err)

	_, err = f.service.CancelTicket(ctx, f.developer, ticket.ID, "")
	assertCode(t, err, util.CodeMissingReason)

	canceled, err := f.service.CancelTicket(ctx, f.developer, ticket.ID, "duplicate of an existing request")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, canceled.Status)
	require.NotNil(t, canceled.CompletedAt)
	assert.True(t, canceled.AssignedTo(f.developer.ID))
	assert.Equal(t, events.EventTicketCanceled, lastEvent(f).Type)

	entries, err := f.service.ListEscalations(ctx, f.admin, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EscalationCanceled, entries[0].Action)

	// Closed is terminal.
	_, err = f.service.CancelTicket(ctx, f.developer, ticket.ID, "again")
	assertCode(t, err, util.CodeInvalidTransition)
}

func TestCompleteTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	_, err := f.service.SelfAssignTicket(ctx, f.developer, ticket.ID)
	require.NoError(t, err)

	_, err = f.service.CompleteTicket(ctx, f.developer, ticket.ID, "")
	assertCode(t, err, util.CodeMissingReason)

	done, err := f.service.CompleteTicket(ctx, f.developer, ticket.ID, "replaced the toner cartridge")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.CompletionNotes)
	assert.Equal(t, "replaced the toner cartridge", *done.CompletionNotes)
	assert.Equal(t, events.EventTicketCompleted, lastEvent(f).Type)

	_, err = f.service.CompleteTicket(ctx, f.developer, ticket.ID, "again")
	assertCode(t, err, util.CodeInvalidTransition)
}

func TestUpdateTicketStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	_, err := f.service.SelfAssignTicket(ctx, f.developer, ticket.ID)
	require.NoError(t, err)

	// Setting the current status again is a no-op.
	same, err := f.service.UpdateTicketStatus(ctx, f.developer, ticket.ID, domain.TicketStatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, same.Status)

	// OPEN cannot be set directly; passing is the way back to the pool.
	_, err = f.service.UpdateTicketStatus(ctx, f.developer, ticket.ID, domain.TicketStatusOpen, "")
	assertCode(t, err, util.CodeInvalidTransition)

	// Closing through the status endpoint shares the complete guards.
	_, err = f.service.UpdateTicketStatus(ctx, f.developer, ticket.ID, domain.TicketStatusClosed, "")
	assertCode(t, err, util.CodeMissingReason)

	done, err := f.service.UpdateTicketStatus(ctx, f.developer, ticket.ID, domain.TicketStatusClosed, "patched the server")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, done.Status)
}

func TestConcurrentTerminalWriters_OneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	_, err := f.service.SelfAssignTicket(ctx, f.developer, ticket.ID)
	require.NoError(t, err)

	// Both writers read the same IN_PROGRESS snapshot before either
	// commits; the status compare-and-set must fail exactly one of them.
	var barrier sync.WaitGroup
	barrier.Add(2)
	f.tickets.afterGet = func() {
		barrier.Done()
		barrier.Wait()
	}

	var cancelErr, completeErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = f.service.CancelTicket(ctx, f.developer, ticket.ID, "client withdrew the request")
	}()
	go func() {
		defer wg.Done()
		_, completeErr = f.service.CompleteTicket(ctx, f.developer, ticket.ID, "rotated the credentials")
	}()
	wg.Wait()
	f.tickets.afterGet = nil

	require.True(t, (cancelErr == nil) != (completeErr == nil),
		"exactly one terminal writer must win: cancelErr=%v completeErr=%v", cancelErr, completeErr)

	final, err := f.service.GetTicket(ctx, f.admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, final.Status)
	require.NotNil(t, final.CompletionNotes)

	entries, err := f.service.ListEscalations(ctx, f.admin, ticket.ID)
	require.NoError(t, err)

	if cancelErr == nil {
		assertCode(t, completeErr, util.CodeInvalidTransition)
		assert.Equal(t, "Cancelled: client withdrew the request", *final.CompletionNotes)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.EscalationCanceled, entries[0].Action)
	} else {
		assertCode(t, cancelErr, util.CodeInvalidTransition)
		assert.Equal(t, "rotated the credentials", *final.CompletionNotes)
		// The losing cancel writes neither its terminal record nor an
		// escalation entry.
		assert.Empty(t, entries)
	}
}

func TestStaleWriteFailsWithoutRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	_, err := f.service.SelfAssignTicket(ctx, f.developer, ticket.ID)
	require.NoError(t, err)

	// Close the ticket behind the service's back between read and write.
	f.tickets.afterGet = func() {
		f.tickets.afterGet = nil
		_, err := f.service.CompleteTicket(ctx, f.developer, ticket.ID, "hotfixed in place")
		require.NoError(t, err)
	}

	f.tickets.calls = 0
	_, err = f.service.CancelTicket(ctx, f.developer, ticket.ID, "no longer needed")
	assertCode(t, err, util.CodeInvalidTransition)
	// One read for each operation plus one write each; the stale write is
	// terminal, not retried.
	assert.Equal(t, 4, f.tickets.calls)
}

func TestDeactivatedActorRejectedEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	ghost := domain.Actor{ID: f.developer.ID, Role: domain.RoleDeveloper, Active: false}

	_, err := f.service.SelfAssignTicket(ctx, ghost, ticket.ID)
	assertCode(t, err, util.CodeForbidden)
	_, err = f.service.ListTickets(ctx, ghost, TicketListFilter{})
	assertCode(t, err, util.CodeForbidden)
	_, err = f.service.GetTicket(ctx, ghost, ticket.ID)
	assertCode(t, err, util.CodeForbidden)
}

func TestGetTicket_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	_, err := f.service.GetTicket(ctx, f.client, ticket.ID)
	require.NoError(t, err)

	stranger := domain.ActorFromUser(f.users.add(domain.RoleClient, true))
	_, err = f.service.GetTicket(ctx, stranger, ticket.ID)
	assertCode(t, err, util.CodeForbidden)

	_, err = f.service.GetTicket(ctx, f.pm, 9999)
	assertCode(t, err, util.CodeNotFound)
}

func TestListTickets_RoleViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.newTicket(t)
	second := f.newTicket(t)
	otherClient := domain.ActorFromUser(f.users.add(domain.RoleClient, true))
	third, err := f.service.CreateTicket(ctx, otherClient, "laptop won't boot", domain.TicketPriorityHigh)
	require.NoError(t, err)

	_, err = f.service.SelfAssignTicket(ctx, f.developer, first.ID)
	require.NoError(t, err)
	_, err = f.service.CompleteTicket(ctx, f.developer, first.ID, "reseated the RAM")
	require.NoError(t, err)

	all, err := f.service.ListTickets(ctx, f.admin, TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := f.service.ListTickets(ctx, f.client, TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, ticket := range mine {
		assert.Equal(t, f.client.ID, ticket.RequesterID)
	}

	available, err := f.service.ListTickets(ctx, f.developer, TicketListFilter{View: access.ViewAvailable})
	require.NoError(t, err)
	ids := make([]int64, 0, len(available))
	for _, ticket := range available {
		ids = append(ids, ticket.ID)
	}
	assert.ElementsMatch(t, []int64{second.ID, third.ID}, ids)

	completed, err := f.service.ListTickets(ctx, f.developer, TicketListFilter{View: access.ViewCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, first.ID, completed[0].ID)

	// The default developer view lists open work, so the completed first
	// ticket does not appear there.
	assigned, err := f.service.ListTickets(ctx, f.developer, TicketListFilter{})
	require.NoError(t, err)
	assert.Empty(t, assigned)

	_, err = f.service.SelfAssignTicket(ctx, f.developer, second.ID)
	require.NoError(t, err)
	assigned, err = f.service.ListTickets(ctx, f.developer, TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, second.ID, assigned[0].ID)
}

func TestRetry_TransientStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	f.tickets.calls = 0
	f.tickets.failures = 2
	fetched, err := f.service.GetTicket(ctx, f.admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, fetched.ID)
	assert.Equal(t, 3, f.tickets.calls)
}

func TestRetry_BusinessErrorNotRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tickets.calls = 0
	_, err := f.service.GetTicket(ctx, f.admin, 404)
	assertCode(t, err, util.CodeNotFound)
	assert.Equal(t, 1, f.tickets.calls)
}

func TestRetry_ExhaustionSurfacesUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.newTicket(t)

	f.tickets.failures = 10
	_, err := f.service.GetTicket(ctx, f.admin, ticket.ID)
	assertCode(t, err, util.CodeUnavailable)
}

func TestOneEventPerMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket := f.newTicket(t)
	_, err := f.service.SelfAssignTicket(ctx, f.developer, ticket.ID)
	require.NoError(t, err)
	_, err = f.service.PassTicket(ctx, f.developer, ticket.ID, "wrong skill set")
	require.NoError(t, err)
	_, err = f.service.AssignTicket(ctx, f.pm, ticket.ID, f.developer.ID, "back to you")
	require.NoError(t, err)
	_, err = f.service.CompleteTicket(ctx, f.developer, ticket.ID, "fixed")
	require.NoError(t, err)

	types := make([]events.EventType, 0, len(*f.published))
	for _, event := range *f.published {
		types = append(types, event.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketSelfAssigned,
		events.EventTicketPassed,
		events.EventTicketAssigned,
		events.EventTicketCompleted,
	}, types)

	// Failed mutations publish nothing.
	before := len(*f.published)
	_, err = f.service.CompleteTicket(ctx, f.developer, ticket.ID, "again")
	require.Error(t, err)
	assert.Len(t, *f.published, before)
}
