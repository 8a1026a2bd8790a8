// Package memory provides an in-process implementation of the repository
// interfaces. It backs local runs without Postgres and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

type txKey struct{}

// Store keeps every aggregate in maps. Transactions are serialized by txMu and
// roll back by restoring a snapshot taken when they began. Writes issued
// outside a transaction take txMu for their own duration so that a rollback
// never discards them. Reads outside a transaction share txMu, so they never
// observe the uncommitted state of a running transaction.
type Store struct {
	txMu sync.RWMutex
	mu   sync.RWMutex

	users        map[string]domain.User
	tickets      map[int64]domain.Ticket
	nextTicketID int64
	chats        map[string]domain.Chat
	messages     map[string][]domain.Message
	files        map[string]domain.MessageFile
	attachments  map[int64][]domain.Attachment
	lastStamp    time.Time

	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		tickets:     make(map[int64]domain.Ticket),
		chats:       make(map[string]domain.Chat),
		messages:    make(map[string][]domain.Message),
		files:       make(map[string]domain.MessageFile),
		attachments: make(map[int64][]domain.Attachment),
		now:         time.Now,
	}
}

// SetClock overrides the time source. Timestamps stay strictly increasing
// even if the clock repeats a value.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutUser inserts or replaces a user record together with its profiles.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.stamp()
		user.UpdatedAt = user.CreatedAt
	}
	if user.AdminProfile != nil {
		profile := *user.AdminProfile
		profile.UserID = user.ID
		if profile.ID == "" {
			profile.ID = uuid.NewString()
		}
		user.AdminProfile = &profile
	}
	if user.ClientProfile != nil {
		profile := *user.ClientProfile
		profile.UserID = user.ID
		if profile.ID == "" {
			profile.ID = uuid.NewString()
		}
		user.ClientProfile = &profile
	}
	s.users[user.ID] = user
}

// WithinTx implements repository.TxManager.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// Chats returns the chat repository view.
func (s *Store) Chats() repository.ChatRepository { return chatRepo{s} }

// Messages returns the message repository view.
func (s *Store) Messages() repository.MessageRepository { return messageRepo{s} }

// Attachments returns the attachment repository view.
func (s *Store) Attachments() repository.AttachmentRepository { return attachmentRepo{s} }

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write runs fn under the data lock, joining the caller's transaction or
// acting as a single statement transaction.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// read runs fn under the shared data lock. Outside a transaction it also
// waits for any running transaction to finish.
func (s *Store) read(ctx context.Context, fn func()) {
	if !inTx(ctx) {
		s.txMu.RLock()
		defer s.txMu.RUnlock()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// stamp must be called with mu held for writing.
func (s *Store) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

type snapshot struct {
	users        map[string]domain.User
	tickets      map[int64]domain.Ticket
	nextTicketID int64
	chats        map[string]domain.Chat
	messages     map[string][]domain.Message
	files        map[string]domain.MessageFile
	attachments  map[int64][]domain.Attachment
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		users:        make(map[string]domain.User, len(s.users)),
		tickets:      make(map[int64]domain.Ticket, len(s.tickets)),
		nextTicketID: s.nextTicketID,
		chats:        make(map[string]domain.Chat, len(s.chats)),
		messages:     make(map[string][]domain.Message, len(s.messages)),
		files:        make(map[string]domain.MessageFile, len(s.files)),
		attachments:  make(map[int64][]domain.Attachment, len(s.attachments)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.tickets {
		snap.tickets[k] = v
	}
	for k, v := range s.chats {
		v.Members = append([]string(nil), v.Members...)
		snap.chats[k] = v
	}
	for k, v := range s.messages {
		snap.messages[k] = append([]domain.Message(nil), v...)
	}
	for k, v := range s.files {
		snap.files[k] = v
	}
	for k, v := range s.attachments {
		snap.attachments[k] = append([]domain.Attachment(nil), v...)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.tickets = snap.tickets
	s.nextTicketID = snap.nextTicketID
	s.chats = snap.chats
	s.messages = snap.messages
	s.files = snap.files
	s.attachments = snap.attachments
}

func cloneUser(u domain.User) *domain.User {
	if u.AdminProfile != nil {
		profile := *u.AdminProfile
		if profile.WorkingHours != nil {
			hours := *profile.WorkingHours
			profile.WorkingHours = &hours
		}
		u.AdminProfile = &profile
	}
	if u.ClientProfile != nil {
		profile := *u.ClientProfile
		u.ClientProfile = &profile
	}
	return &u
}

func cloneChat(c domain.Chat) *domain.Chat {
	c.Members = append([]string(nil), c.Members...)
	if c.TicketID != nil {
		id := *c.TicketID
		c.TicketID = &id
	}
	return &c
}

// ticketWithChat must be called with mu held.
func (s *Store) ticketWithChat(t domain.Ticket) *domain.Ticket {
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		t.AssigneeID = &id
	}
	t.Chat = nil
	for _, chat := range s.chats {
		if chat.TicketID != nil && *chat.TicketID == t.ID {
			t.Chat = cloneChat(chat)
			break
		}
	}
	return &t
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)
	r.s.read(ctx, func() {
		u, ok := r.s.users[id]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		user = cloneUser(u)
	})
	return user, err
}

// GetForUpdate relies on transaction serialization for the row lock.
func (r userRepo) GetForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

func (r userRepo) ListByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	result := []domain.User{}
	r.s.read(ctx, func() {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if u, ok := r.s.users[id]; ok {
				result = append(result, *cloneUser(u))
			}
		}
	})
	sortUsers(result)
	return result, nil
}

func (r userRepo) ListByChat(ctx context.Context, chatID string) ([]domain.User, error) {
	result := []domain.User{}
	r.s.read(ctx, func() {
		chat, ok := r.s.chats[chatID]
		if !ok {
			return
		}
		for _, id := range chat.Members {
			if u, ok := r.s.users[id]; ok {
				result = append(result, *cloneUser(u))
			}
		}
	})
	sortUsers(result)
	return result, nil
}

func sortUsers(users []domain.User) {
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.s.write(ctx, func() error {
		r.s.nextTicketID++
		ticket.ID = r.s.nextTicketID
		ticket.CreatedAt = r.s.stamp()
		ticket.UpdatedAt = ticket.CreatedAt
		stored := *ticket
		stored.Chat = nil
		r.s.tickets[ticket.ID] = stored
		return nil
	})
}

func (r ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.tickets[ticket.ID]; !ok {
			return repository.ErrNotFound
		}
		ticket.UpdatedAt = r.s.stamp()
		stored := *ticket
		stored.Chat = nil
		r.s.tickets[ticket.ID] = stored
		return nil
	})
}

func (r ticketRepo) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		err    error
	)
	r.s.read(ctx, func() {
		t, ok := r.s.tickets[id]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		ticket = r.s.ticketWithChat(t)
	})
	return ticket, err
}

// GetForUpdate needs no row lock here; transactions are already serialized.
func (r ticketRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r ticketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	matches := []domain.Ticket{}
	r.s.read(ctx, func() {
		for _, t := range r.s.tickets {
			if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
				continue
			}
			if filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID) {
				continue
			}
			if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
				continue
			}
			if containsStatus(filter.ExcludeStatuses, t.Status) {
				continue
			}
			matches = append(matches, *r.s.ticketWithChat(t))
		}
	})
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matches) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end], nil
}

func (r ticketRepo) CountUnclosedByAssignee(ctx context.Context, userID string) (int, error) {
	count := 0
	r.s.read(ctx, func() {
		for _, t := range r.s.tickets {
			if t.IsAssignedTo(userID) && t.Status != domain.TicketStatusClosed {
				count++
			}
		}
	})
	return count, nil
}

func (r ticketRepo) OldestOpen(ctx context.Context) (*domain.Ticket, error) {
	var oldest *domain.Ticket
	r.s.read(ctx, func() {
		for _, t := range r.s.tickets {
			if t.Status != domain.TicketStatusOpen || t.AssigneeID != nil {
				continue
			}
			if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) ||
				(t.CreatedAt.Equal(oldest.CreatedAt) && t.ID < oldest.ID) {
				oldest = r.s.ticketWithChat(t)
			}
		}
	})
	if oldest == nil {
		return nil, repository.ErrNotFound
	}
	return oldest, nil
}

func (r ticketRepo) ClaimOpen(ctx context.Context, ticketID int64, assigneeID string) error {
	return r.s.write(ctx, func() error {
		t, ok := r.s.tickets[ticketID]
		if !ok || t.Status != domain.TicketStatusOpen || t.AssigneeID != nil {
			return repository.ErrConflict
		}
		assignee := assigneeID
		t.AssigneeID = &assignee
		t.Status = domain.TicketStatusInProgress
		t.UpdatedAt = r.s.stamp()
		r.s.tickets[ticketID] = t
		return nil
	})
}

func containsStatus(list []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

type chatRepo struct{ s *Store }

func (r chatRepo) Create(ctx context.Context, chat *domain.Chat) error {
	return r.s.write(ctx, func() error {
		if chat.TicketID != nil {
			for _, existing := range r.s.chats {
				if existing.TicketID != nil && *existing.TicketID == *chat.TicketID {
					return repository.ErrConflict
				}
			}
		}
		chat.ID = uuid.NewString()
		chat.StartedAt = r.s.stamp()
		chat.UpdatedAt = chat.StartedAt
		members := make([]string, 0, len(chat.Members))
		seen := make(map[string]bool, len(chat.Members))
		for _, id := range chat.Members {
			if !seen[id] {
				seen[id] = true
				members = append(members, id)
			}
		}
		chat.Members = members
		r.s.chats[chat.ID] = *cloneChat(*chat)
		return nil
	})
}

func (r chatRepo) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	var (
		chat *domain.Chat
		err  error
	)
	r.s.read(ctx, func() {
		c, ok := r.s.chats[id]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		chat = cloneChat(c)
	})
	return chat, err
}

func (r chatRepo) GetByTicketID(ctx context.Context, ticketID int64) (*domain.Chat, error) {
	var chat *domain.Chat
	r.s.read(ctx, func() {
		for _, c := range r.s.chats {
			if c.TicketID != nil && *c.TicketID == ticketID {
				chat = cloneChat(c)
				return
			}
		}
	})
	if chat == nil {
		return nil, repository.ErrNotFound
	}
	return chat, nil
}

func (r chatRepo) UpdateStatus(ctx context.Context, id string, status domain.ChatStatus) error {
	return r.s.write(ctx, func() error {
		c, ok := r.s.chats[id]
		if !ok {
			return repository.ErrNotFound
		}
		c.Status = status
		c.UpdatedAt = r.s.stamp()
		r.s.chats[id] = c
		return nil
	})
}

func (r chatRepo) ListByMember(ctx context.Context, userID string) ([]domain.Chat, error) {
	result := []domain.Chat{}
	r.s.read(ctx, func() {
		for _, c := range r.s.chats {
			if c.HasMember(userID) {
				result = append(result, *cloneChat(c))
			}
		}
	})
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(ctx context.Context, msg *domain.Message) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.chats[msg.ChatID]; !ok {
			return repository.ErrNotFound
		}
		msg.ID = uuid.NewString()
		msg.CreatedAt = r.s.stamp()
		stored := *msg
		stored.File = nil
		r.s.messages[msg.ChatID] = append(r.s.messages[msg.ChatID], stored)
		return nil
	})
}

func (r messageRepo) CreateFile(ctx context.Context, file *domain.MessageFile) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.findMessage(file.MessageID); !ok {
			return repository.ErrNotFound
		}
		if _, ok := r.s.files[file.MessageID]; ok {
			return repository.ErrConflict
		}
		for _, existing := range r.s.files {
			if existing.Path == file.Path {
				return repository.ErrConflict
			}
		}
		file.ID = uuid.NewString()
		file.UploadedAt = r.s.stamp()
		stored := *file
		if file.Meta != nil {
			meta := *file.Meta
			stored.Meta = &meta
		}
		r.s.files[file.MessageID] = stored
		return nil
	})
}

func (r messageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var (
		msg domain.Message
		ok  bool
	)
	r.s.read(ctx, func() {
		msg, ok = r.s.findMessage(id)
		if ok {
			msg = r.s.withFile(msg)
		}
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &msg, nil
}

// ListBefore relies on messages being appended in creation order.
func (r messageRepo) ListBefore(ctx context.Context, chatID string, before *time.Time, limit int) ([]domain.Message, error) {
	result := []domain.Message{}
	r.s.read(ctx, func() {
		all := r.s.messages[chatID]
		for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
			if before != nil && !all[i].CreatedAt.Before(*before) {
				continue
			}
			result = append(result, r.s.withFile(all[i]))
		}
	})
	return result, nil
}

func (r messageRepo) Latest(ctx context.Context, chatID string) (*domain.Message, error) {
	var msg *domain.Message
	r.s.read(ctx, func() {
		all := r.s.messages[chatID]
		if len(all) > 0 {
			last := r.s.withFile(all[len(all)-1])
			msg = &last
		}
	})
	if msg == nil {
		return nil, repository.ErrNotFound
	}
	return msg, nil
}

func (r messageRepo) CountUnread(ctx context.Context, chatID, readerID string) (int, error) {
	count := 0
	r.s.read(ctx, func() {
		for _, m := range r.s.messages[chatID] {
			if m.Sender.ID != readerID && m.Status == domain.MessageStatusDelivered {
				count++
			}
		}
	})
	return count, nil
}

func (r messageRepo) MarkSeen(ctx context.Context, chatID, readerID string) (int64, error) {
	var updated int64
	err := r.s.write(ctx, func() error {
		all := r.s.messages[chatID]
		for i := range all {
			if all[i].Sender.ID != readerID && all[i].Status == domain.MessageStatusDelivered {
				all[i].Status = domain.MessageStatusSeen
				updated++
			}
		}
		return nil
	})
	return updated, err
}

// findMessage must be called with mu held.
func (s *Store) findMessage(id string) (domain.Message, bool) {
	for _, all := range s.messages {
		for _, m := range all {
			if m.ID == id {
				return m, true
			}
		}
	}
	return domain.Message{}, false
}

// withFile must be called with mu held.
func (s *Store) withFile(m domain.Message) domain.Message {
	if file, ok := s.files[m.ID]; ok {
		if file.Meta != nil {
			meta := *file.Meta
			file.Meta = &meta
		}
		m.File = &file
	}
	return m
}

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) Create(ctx context.Context, attachment *domain.Attachment) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.tickets[attachment.TicketID]; !ok {
			return repository.ErrNotFound
		}
		attachment.ID = uuid.NewString()
		attachment.CreatedAt = r.s.stamp()
		r.s.attachments[attachment.TicketID] = append(r.s.attachments[attachment.TicketID], *attachment)
		return nil
	})
}

func (r attachmentRepo) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Attachment, error) {
	result := []domain.Attachment{}
	r.s.read(ctx, func() {
		result = append(result, r.s.attachments[ticketID]...)
	})
	return result, nil
}
