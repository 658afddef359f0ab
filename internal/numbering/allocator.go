// Package numbering assigns document sequence numbers and governs the
// reservation lifecycle of numbered slots.
//
// Every sequence lives in its own row of sequence_counters. Allocation advances
// that row with a single UPDATE inside the caller's transaction, so the row
// lock taken by the UPDATE serializes concurrent allocators until commit and a
// rolled back transaction returns its numbers to the pool.
package numbering

import (
	"errors"
	"fmt"
	"strings"

	"github.com/suratdinas/backend/internal/serviceerror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opAllocate = "numbering.allocate"
	opPeek     = "numbering.peek"
	opObserve  = "numbering.observe"
	opReset    = "numbering.reset"

	columnScopeKey     = "scope_key"
	columnCurrentValue = "current_value"
	queryScopeKey      = columnScopeKey + " = ?"
)

var (
	errInvalidScope = errors.New("scope key, table and column are required")
	errCounterLost  = errors.New("counter row disappeared during allocation")
)

// Counter is the high-water mark of one sequence.
type Counter struct {
	ScopeKey     string `gorm:"column:scope_key;primaryKey;size:64;not null"`
	CurrentValue int64  `gorm:"column:current_value;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Counter) TableName() string {
	return "sequence_counters"
}

// Scope names a sequence and the numbered rows it covers. Table, Column and
// Filter seed a fresh counter from data that predates it.
type Scope struct {
	Key    string
	Table  string
	Column string
	Filter string
	Args   []any
}

func (s Scope) validate() error {
	if strings.TrimSpace(s.Key) == "" || strings.TrimSpace(s.Table) == "" || strings.TrimSpace(s.Column) == "" {
		return errInvalidScope
	}
	return nil
}

// Block is a run of consecutive sequence values.
type Block struct {
	First int64
	Count int
}

// Last returns the highest value in the block.
func (b Block) Last() int64 {
	return b.First + int64(b.Count) - 1
}

// Values lists the block in ascending order.
func (b Block) Values() []int64 {
	values := make([]int64, 0, b.Count)
	for offset := 0; offset < b.Count; offset++ {
		values = append(values, b.First+int64(offset))
	}
	return values
}

// Allocator hands out sequence values. The zero value is ready to use.
type Allocator struct{}

// NewAllocator returns an Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate reserves count consecutive values of scope. tx must be an open
// transaction; the values are only durable once it commits.
func (a *Allocator) Allocate(tx *gorm.DB, scope Scope, count int) (Block, error) {
	if err := scope.validate(); err != nil {
		return Block{}, serviceerror.Internal(opAllocate, "invalid_scope", err)
	}
	if count < 1 {
		return Block{}, serviceerror.Validation(opAllocate, "invalid_count", fmt.Errorf("count must be at least 1, got %d", count))
	}
	if err := ensureCounter(tx, scope); err != nil {
		return Block{}, serviceerror.Internal(opAllocate, "counter_init_failed", err)
	}

	result := tx.Model(&Counter{}).
		Where(queryScopeKey, scope.Key).
		Update(columnCurrentValue, gorm.Expr(columnCurrentValue+" + ?", count))
	if result.Error != nil {
		return Block{}, serviceerror.Internal(opAllocate, "counter_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Block{}, serviceerror.Internal(opAllocate, "counter_update_failed", errCounterLost)
	}

	var counter Counter
	if err := tx.Where(queryScopeKey, scope.Key).Take(&counter).Error; err != nil {
		return Block{}, serviceerror.Internal(opAllocate, "counter_read_failed", err)
	}

	return Block{First: counter.CurrentValue - int64(count) + 1, Count: count}, nil
}

// Peek returns the value the next Allocate would hand out, without side effects.
func (a *Allocator) Peek(db *gorm.DB, scope Scope) (int64, error) {
	if err := scope.validate(); err != nil {
		return 0, serviceerror.Internal(opPeek, "invalid_scope", err)
	}
	var counter Counter
	err := db.Where(queryScopeKey, scope.Key).Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		highest, maxErr := currentMax(db, scope)
		if maxErr != nil {
			return 0, serviceerror.Internal(opPeek, "max_query_failed", maxErr)
		}
		return highest + 1, nil
	}
	if err != nil {
		return 0, serviceerror.Internal(opPeek, "counter_read_failed", err)
	}
	return counter.CurrentValue + 1, nil
}

// Observe raises the counter of scope to at least value, so an explicitly
// chosen number is never handed out again.
func (a *Allocator) Observe(tx *gorm.DB, scope Scope, value int64) error {
	if err := scope.validate(); err != nil {
		return serviceerror.Internal(opObserve, "invalid_scope", err)
	}
	if err := ensureCounter(tx, scope); err != nil {
		return serviceerror.Internal(opObserve, "counter_init_failed", err)
	}
	err := tx.Model(&Counter{}).
		Where(queryScopeKey+" AND "+columnCurrentValue+" < ?", scope.Key, value).
		Update(columnCurrentValue, value).Error
	if err != nil {
		return serviceerror.Internal(opObserve, "counter_update_failed", err)
	}
	return nil
}

// Sync raises the counter of scope to the highest value stored in the
// numbered table and returns that value.
func (a *Allocator) Sync(tx *gorm.DB, scope Scope) (int64, error) {
	if err := scope.validate(); err != nil {
		return 0, serviceerror.Internal(opObserve, "invalid_scope", err)
	}
	highest, err := currentMax(tx, scope)
	if err != nil {
		return 0, serviceerror.Internal(opObserve, "max_query_failed", err)
	}
	if err := a.Observe(tx, scope, highest); err != nil {
		return 0, err
	}
	return highest, nil
}

// Reset forgets the counter of scope; the next allocation reseeds it from the
// numbered table.
func (a *Allocator) Reset(tx *gorm.DB, scopeKey string) error {
	if err := tx.Where(queryScopeKey, scopeKey).Delete(&Counter{}).Error; err != nil {
		return serviceerror.Internal(opReset, "counter_delete_failed", err)
	}
	return nil
}

// ResetPrefix forgets every counter whose key starts with prefix.
func (a *Allocator) ResetPrefix(tx *gorm.DB, prefix string) error {
	if strings.TrimSpace(prefix) == "" {
		return serviceerror.Internal(opReset, "invalid_scope", errInvalidScope)
	}
	if err := tx.Where(columnScopeKey+" LIKE ?", prefix+"%").Delete(&Counter{}).Error; err != nil {
		return serviceerror.Internal(opReset, "counter_delete_failed", err)
	}
	return nil
}

func ensureCounter(tx *gorm.DB, scope Scope) error {
	var existing Counter
	err := tx.Where(queryScopeKey, scope.Key).Take(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	seed, err := currentMax(tx, scope)
	if err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Counter{ScopeKey: scope.Key, CurrentValue: seed}).Error
}

func currentMax(db *gorm.DB, scope Scope) (int64, error) {
	var highest int64
	query := db.Table(scope.Table).Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", scope.Column))
	if scope.Filter != "" {
		query = query.Where(scope.Filter, scope.Args...)
	}
	if err := query.Scan(&highest).Error; err != nil {
		return 0, err
	}
	return highest, nil
}
