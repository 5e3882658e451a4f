package journals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// AuditPort records journal lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort observes journal outcomes.
type MetricsPort interface {
	ObserveJournal(action string, err error)
}

// Config tunes the journal engine.
type Config struct {
	// NumberRetries bounds entry number allocation attempts.
	NumberRetries int
	// MaintainBalances keeps the cached account balance in step with postings.
	MaintainBalances bool
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{NumberRetries: 5, MaintainBalances: true}
}

// Service is the authoritative writer to the ledger.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics MetricsPort
	cfg     Config
	now     func() time.Time
}

// NewService constructs the journal engine.
func NewService(repo Repository, audit AuditPort, cfg Config) *Service {
	if cfg.NumberRetries <= 0 {
		cfg.NumberRetries = DefaultConfig().NumberRetries
	}
	return &Service{repo: repo, audit: audit, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches an outcome observer.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// Create validates and persists a draft entry with a freshly allocated number.
func (s *Service) Create(ctx context.Context, tenantID int64, input CreateInput) (entry Entry, err error) {
	defer s.observe("create", &err)
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	input.EntryDate = shared.DateOnly(input.EntryDate)
	err = s.withNumberRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, total, err := s.resolveLines(ctx, tx, tenantID, input.Lines)
		if err != nil {
			return err
		}
		if err := s.ensureSourceFree(ctx, tx, tenantID, input.SourceModule, input.SourceID); err != nil {
			return err
		}
		created, err := s.insert(ctx, tx, Entry{
			TenantID:     tenantID,
			EntryDate:    input.EntryDate,
			Description:  input.Description,
			Reference:    input.Reference,
			SourceModule: input.SourceModule,
			SourceID:     input.SourceID,
			Status:       StatusDraft,
			TotalAmount:  total,
			CreatedBy:    input.ActorID,
			Lines:        lines,
		})
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, entry, input.ActorID, "journal.create", map[string]any{"number": entry.Number, "total": entry.TotalAmount.String()})
	return entry, nil
}

// Update patches a draft entry. Replacing lines re-runs full validation, and
// moving the entry to another day renumbers it under that day's prefix.
func (s *Service) Update(ctx context.Context, tenantID, id int64, input UpdateInput) (entry Entry, err error) {
	defer s.observe("update", &err)
	if input.Lines != nil {
		if _, err := ValidateLines(input.Lines); err != nil {
			return Entry{}, err
		}
	}
	err = s.withNumberRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("entry %s is %s: %w", current.Number, current.Status, shared.ErrInvalidStateTransition)
		}
		if input.EntryDate != nil {
			current.EntryDate = shared.DateOnly(*input.EntryDate)
			if prefix := NumberPrefix(current.EntryDate); !strings.HasPrefix(current.Number, prefix) {
				seq, err := tx.NextSequence(ctx, tenantID, prefix)
				if err != nil {
					return err
				}
				current.Number = FormatNumber(prefix, seq)
			}
		}
		if input.Description != nil {
			current.Description = *input.Description
		}
		if input.Reference != nil {
			current.Reference = *input.Reference
		}
		if input.Lines != nil {
			lines, total, err := s.resolveLines(ctx, tx, tenantID, input.Lines)
			if err != nil {
				return err
			}
			if err := tx.ReplaceLines(ctx, tenantID, current.ID, lines); err != nil {
				return err
			}
			current.Lines = lines
			current.TotalAmount = total
		}
		actor := input.ActorID
		current.UpdatedBy = &actor
		current.UpdatedAt = s.now()
		if err := tx.UpdateEntry(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, entry, input.ActorID, "journal.update", map[string]any{"number": entry.Number})
	return entry, nil
}

// Post commits a draft to the ledger. The period gate, account checks, balance
// updates and the status change share one transaction.
func (s *Service) Post(ctx context.Context, tenantID, id, actorID int64) (entry Entry, err error) {
	defer s.observe("post", &err)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("entry %s is %s: %w", current.Number, current.Status, shared.ErrInvalidStateTransition)
		}
		if err := ensurePeriodOpen(ctx, tx, tenantID, current.EntryDate); err != nil {
			return err
		}
		ids, deltas := balanceDeltas(current.Lines)
		locked, err := tx.LockAccounts(ctx, tenantID, ids)
		if err != nil {
			return err
		}
		if len(locked) != len(ids) {
			return shared.ErrAccountNotFound
		}
		for _, account := range locked {
			if !account.IsActive {
				return fmt.Errorf("account %s: %w", account.Code, shared.ErrAccountInactive)
			}
		}
		if s.cfg.MaintainBalances {
			for _, account := range locked {
				delta := account.NormalBalance.Signed(deltas[account.ID].debit, deltas[account.ID].credit)
				if delta.IsZero() {
					continue
				}
				if err := tx.ApplyBalance(ctx, tenantID, account.ID, delta); err != nil {
					return err
				}
			}
		}
		now := s.now()
		current.Status = StatusPosted
		current.PostingDate = &now
		current.PostedBy = &actorID
		current.UpdatedAt = now
		if err := tx.UpdateEntry(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, entry, actorID, "journal.post", map[string]any{
		"number":        entry.Number,
		"total":         entry.TotalAmount.String(),
		"source_module": entry.SourceModule,
		"source_id":     entry.SourceID,
	})
	return entry, nil
}

type sides struct {
	debit, credit decimal.Decimal
}

// balanceDeltas sums lines per account and returns the distinct account ids.
func balanceDeltas(lines []Line) ([]int64, map[int64]sides) {
	deltas := make(map[int64]sides, len(lines))
	var ids []int64
	for _, l := range lines {
		d, seen := deltas[l.AccountID]
		if !seen {
			ids = append(ids, l.AccountID)
			d = sides{debit: decimal.Zero, credit: decimal.Zero}
		}
		d.debit = d.debit.Add(l.Debit)
		d.credit = d.credit.Add(l.Credit)
		deltas[l.AccountID] = d
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, deltas
}

func ensurePeriodOpen(ctx context.Context, tx TxRepository, tenantID int64, date time.Time) error {
	period, err := tx.PeriodForDate(ctx, tenantID, date)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("date %s: %w", date.Format(shared.DateLayout), shared.ErrNoOpenPeriod)
		}
		return err
	}
	if period.Status != periods.PeriodStatusOpen {
		return fmt.Errorf("period %s: %w", period.Name, shared.ErrPeriodClosed)
	}
	return nil
}

// Delete discards a draft by moving it to Void.
func (s *Service) Delete(ctx context.Context, tenantID, id, actorID int64) (entry Entry, err error) {
	defer s.observe("delete", &err)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("entry %s is %s: %w", current.Number, current.Status, shared.ErrInvalidStateTransition)
		}
		if err := s.ensureNotPendingReversal(ctx, tx, current); err != nil {
			return err
		}
		now := s.now()
		current.Status = StatusVoid
		current.VoidedBy = &actorID
		current.VoidedAt = &now
		current.UpdatedAt = now
		if err := tx.UpdateEntry(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, entry, actorID, "journal.delete", map[string]any{"number": entry.Number})
	return entry, nil
}

// Void marks a posted entry Void and prepares a draft reversal. The original
// keeps its ledger effect until the reversal is posted. An existing open
// reversal is returned instead of creating a second one.
func (s *Service) Void(ctx context.Context, tenantID, id int64, input VoidInput) (original, reversal Entry, err error) {
	defer s.observe("void", &err)
	err = s.withNumberRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPosted {
			return fmt.Errorf("entry %s is %s: %w", current.Number, current.Status, shared.ErrInvalidStateTransition)
		}
		now := s.now()
		current.Status = StatusVoid
		current.VoidedBy = &input.ActorID
		current.VoidedAt = &now
		current.UpdatedAt = now
		if err := tx.UpdateEntry(ctx, current); err != nil {
			return err
		}
		existing, err := tx.FindBySource(ctx, tenantID, current.SourceModule+ReversalSuffix, strconv.FormatInt(current.ID, 10))
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			reversal, err = tx.GetForUpdate(ctx, tenantID, existing[0].ID)
			if err != nil {
				return err
			}
		} else {
			date := current.EntryDate
			if input.ReversalDate != nil {
				date = shared.DateOnly(*input.ReversalDate)
			}
			reversal, err = s.insert(ctx, tx, reversalOf(current, date, input.ActorID, input.Reason))
			if err != nil {
				return err
			}
		}
		original = current
		return nil
	})
	if err != nil {
		return Entry{}, Entry{}, err
	}
	s.record(ctx, original, input.ActorID, "journal.void", map[string]any{"number": original.Number, "reason": input.Reason, "reversal": reversal.Number})
	return original, reversal, nil
}

// Reverse creates a draft reversal of a posted entry dated date. It is not
// posted automatically.
func (s *Service) Reverse(ctx context.Context, tenantID, id int64, date time.Time, actorID int64) (reversal Entry, err error) {
	defer s.observe("reverse", &err)
	if date.IsZero() {
		return Entry{}, shared.Invalid("reversal date required")
	}
	date = shared.DateOnly(date)
	var original Entry
	err = s.withNumberRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPosted {
			return fmt.Errorf("entry %s is %s: %w", current.Number, current.Status, shared.ErrInvalidStateTransition)
		}
		draft := reversalOf(current, date, actorID, "")
		if err := s.ensureSourceFree(ctx, tx, tenantID, draft.SourceModule, draft.SourceID); err != nil {
			return err
		}
		reversal, err = s.insert(ctx, tx, draft)
		if err != nil {
			return err
		}
		original = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, reversal, actorID, "journal.reverse", map[string]any{"number": reversal.Number, "original": original.Number})
	return reversal, nil
}

// ensureNotPendingReversal refuses to discard the draft reversal of a voided
// entry. That draft is the only way left to neutralise the original.
func (s *Service) ensureNotPendingReversal(ctx context.Context, tx TxRepository, e Entry) error {
	if !strings.HasSuffix(e.SourceModule, ReversalSuffix) {
		return nil
	}
	originalID, err := strconv.ParseInt(e.SourceID, 10, 64)
	if err != nil {
		return nil
	}
	original, err := tx.GetForUpdate(ctx, e.TenantID, originalID)
	if errors.Is(err, shared.ErrJournalNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if original.Status == StatusVoid {
		return fmt.Errorf("entry %s reverses voided %s; post it instead: %w", e.Number, original.Number, shared.ErrInvalidStateTransition)
	}
	return nil
}

func reversalOf(original Entry, date time.Time, actorID int64, reason string) Entry {
	description := "Reversal of " + original.Number
	if reason != "" {
		description += ": " + reason
	}
	return Entry{
		TenantID:     original.TenantID,
		EntryDate:    date,
		Description:  description,
		Reference:    original.Number,
		SourceModule: original.SourceModule + ReversalSuffix,
		SourceID:     strconv.FormatInt(original.ID, 10),
		Status:       StatusDraft,
		TotalAmount:  original.TotalAmount,
		CreatedBy:    actorID,
		Lines:        reversed(original.Lines),
	}
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Entry, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns a page of entry headers, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, filter ListFilter) ([]Entry, internalShared.Pagination, error) {
	filter.Page, filter.PerPage = internalShared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return items, internalShared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// VerifyBalances compares each account's cached balance with the sum of its
// ledger-effective lines.
func (s *Service) VerifyBalances(ctx context.Context, tenantID int64) ([]BalanceDrift, error) {
	totals, err := s.repo.LedgerTotals(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var drift []BalanceDrift
	for _, t := range totals {
		expected := accounts.NormalBalance(t.NormalBalance).Signed(t.Debits, t.Credits)
		if !shared.AmountsEqual(t.Cached, expected) {
			drift = append(drift, BalanceDrift{AccountID: t.AccountID, Code: t.Code, Cached: t.Cached, Expected: expected})
		}
	}
	return drift, nil
}

// withNumberRetry reruns fn in a fresh transaction while entry number
// allocation collides, then fails with ErrNumberAllocation.
func (s *Service) withNumberRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < s.cfg.NumberRetries; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if !errors.Is(err, shared.ErrDuplicateEntryNumber) {
			return err
		}
	}
	return fmt.Errorf("%d attempts: %v: %w", s.cfg.NumberRetries, err, shared.ErrNumberAllocation)
}

// insert allocates the next number under the entry date prefix and stores
// the header with its lines.
func (s *Service) insert(ctx context.Context, tx TxRepository, e Entry) (Entry, error) {
	prefix := NumberPrefix(e.EntryDate)
	seq, err := tx.NextSequence(ctx, e.TenantID, prefix)
	if err != nil {
		return Entry{}, err
	}
	e.Number = FormatNumber(prefix, seq)
	inserted, err := tx.InsertEntry(ctx, e)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.ReplaceLines(ctx, e.TenantID, inserted.ID, e.Lines); err != nil {
		return Entry{}, err
	}
	inserted.Lines = make([]Line, len(e.Lines))
	for i, l := range e.Lines {
		l.EntryID = inserted.ID
		inserted.Lines[i] = l
	}
	return inserted, nil
}

// resolveLines maps account references onto tenant accounts, requiring each
// to exist and be active.
func (s *Service) resolveLines(ctx context.Context, tx TxRepository, tenantID int64, inputs []LineInput) ([]Line, decimal.Decimal, error) {
	total, err := ValidateLines(inputs)
	if err != nil {
		return nil, decimal.Zero, err
	}
	lines := toLines(inputs)
	var ids []int64
	for i := range lines {
		if lines[i].AccountID == 0 {
			account, err := tx.AccountByCode(ctx, tenantID, accounts.NormalizeCode(lines[i].AccountCode))
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("line %d: %w", i+1, err)
			}
			lines[i].AccountID = account.ID
		}
		ids = append(ids, lines[i].AccountID)
	}
	found, err := tx.AccountsByID(ctx, tenantID, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	for i := range lines {
		account, ok := found[lines[i].AccountID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("line %d account %d: %w", i+1, lines[i].AccountID, shared.ErrAccountNotFound)
		}
		if !account.IsActive {
			return nil, decimal.Zero, fmt.Errorf("line %d account %s: %w", i+1, account.Code, shared.ErrAccountInactive)
		}
		lines[i].AccountCode = account.Code
	}
	return lines, shared.RoundAmount(total), nil
}

// ensureSourceFree enforces one live entry per source record. Recurring
// schedules spawn many entries and are exempt.
func (s *Service) ensureSourceFree(ctx context.Context, tx TxRepository, tenantID int64, module, sourceID string) error {
	if sourceID == "" || module == SourceRecurring {
		return nil
	}
	existing, err := tx.FindBySource(ctx, tenantID, module, sourceID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("source %s/%s linked to %s: %w", module, sourceID, existing[0].Number, shared.ErrDuplicateSource)
	}
	return nil
}

func (s *Service) observe(action string, err *error) {
	if s.metrics != nil {
		s.metrics.ObserveJournal(action, *err)
	}
}

func (s *Service) record(ctx context.Context, entry Entry, actorID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		TenantID:   entry.TenantID,
		ActorID:    actorID,
		Action:     action,
		EntityType: "journal_entry",
		EntityID:   strconv.FormatInt(entry.ID, 10),
		Meta:       meta,
		At:         s.now(),
	})
}
