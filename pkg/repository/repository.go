package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// DBX: Database Error
	ErrGeneric error = errors.New("DBX: Internal server error")

	// DBXO: Bad operation
	// DBXQ: Bad query
	ErrDuplicate        error = errors.New("DBXO: Duplicate")
	ErrNotFound         error = errors.New("DBXQ: Not found")
	ErrRelationNotExist error = errors.New("DBXO: Relation not exists")
)

var (
	// Class 23: integrity constraint violation
	// https://github.com/jackc/pgerrcode/blob/master/errcode.go
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
)

type Repository[T any] interface {
	Find(ctx context.Context, options FindOptions) ([]*T, error)
	Count(ctx context.Context, options FindOptions) (int64, error)
	// CreateIgnoreConflicts inserts rows in batches, skipping rows that violate a unique index.
	CreateIgnoreConflicts(ctx context.Context, rows []*T, batchSize int) (int64, error)
	AutoMigrate() error
	HealthCheck(ctx context.Context) error
}

// gorm generic repository
type repository[T any] struct {
	db    *gorm.DB
	table string
}

func NewRepository[T any](db *gorm.DB) Repository[T] {
	return &repository[T]{db: db}
}

// NewTableRepository binds the repository to an explicit table name.
func NewTableRepository[T any](db *gorm.DB, table string) Repository[T] {
	return &repository[T]{db: db, table: table}
}

func (r *repository[T]) session(ctx context.Context) *gorm.DB {
	db := r.db.WithContext(ctx)
	if r.table != "" {
		db = db.Table(r.table)
	}
	return db
}

func (r *repository[T]) handleDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case UniqueViolation:
			return ErrDuplicate
		case ForeignKeyViolation:
			return ErrRelationNotExist
		}
	}
	return nil
}

func (r *repository[T]) WrapError(err error) error {
	if err == nil {
		return nil
	}
	if handled := r.handleDBError(err); handled != nil {
		return handled
	}
	// unidentified internal error
	return fmt.Errorf("%w: %v", ErrGeneric, err)
}

func (r *repository[T]) HealthCheck(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return errors.New("DB is not healthy")
	}
	return nil
}

func (r *repository[T]) AutoMigrate() error {
	if r.table != "" {
		return r.db.Table(r.table).AutoMigrate(new(T))
	}
	return r.db.AutoMigrate(new(T))
}

func (r *repository[T]) applyFindOptionsToDB(db *gorm.DB, options FindOptions) *gorm.DB {
	isSelectAll := len(options.Select) == 1 && options.Select[0] == "*"
	if options.Select != nil && !isSelectAll {
		db = db.Select(strings.Join(options.Select, ","))
	}

	if options.Where != nil {
		db = db.Where(map[string]any(options.Where))
	}

	for _, o := range options.Order {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Direction == OrderTypeDesc})
	}

	if options.Limit != 0 {
		db = db.Limit(int(options.Limit))
	}

	if options.Offset != 0 {
		db = db.Offset(int(options.Offset))
	}

	return db
}

func (r *repository[T]) Find(ctx context.Context, options FindOptions) ([]*T, error) {
	var results []*T
	db := r.applyFindOptionsToDB(r.session(ctx).Model(new(T)), options)
	if err := db.Find(&results).Error; err != nil {
		return results, r.WrapError(err)
	}
	return results, nil
}

func (r *repository[T]) Count(ctx context.Context, options FindOptions) (int64, error) {
	var count int64
	db := r.session(ctx).Model(new(T))
	if options.Where != nil {
		db = db.Where(map[string]any(options.Where))
	}
	if err := db.Count(&count).Error; err != nil {
		return 0, r.WrapError(err)
	}
	return count, nil
}

func (r *repository[T]) CreateIgnoreConflicts(ctx context.Context, rows []*T, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	res := r.session(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, batchSize)
	if res.Error != nil {
		return res.RowsAffected, r.WrapError(res.Error)
	}
	return res.RowsAffected, nil
}
