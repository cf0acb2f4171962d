package orm

import (
	"context"
	"database/sql"

	"github.com/streamDream/mysql-stream/orm/model"
)

// Selector 基于 select-all 模板，追加 WHERE、ORDER BY 和 LIMIT
type Selector struct {
	builder
	sess Session

	where     string
	whereArgs []any
	orderBy   string
	limit     []int
	hasLimit  bool

	// 按主键查询的时候直接使用 select-by-key 模板
	byKey bool
	key   any
}

// NewSelector creates a new instance of Selector.
func NewSelector(sess Session, m *model.Model) *Selector {
	return &Selector{
		builder: builder{
			core:  sess.getCore(),
			model: m,
		},
		sess: sess,
	}
}

// SelectOption 用于 QueryAll
type SelectOption func(s *Selector)

// Where 条件原样拼接在 WHERE 后面
func Where(clause string, args ...any) SelectOption {
	return func(s *Selector) {
		s.Where(clause, args...)
	}
}

func OrderBy(clause string) SelectOption {
	return func(s *Selector) {
		s.OrderBy(clause)
	}
}

// Limit 接受 (count) 或者 (offset, count)
func Limit(v ...int) SelectOption {
	return func(s *Selector) {
		s.Limit(v...)
	}
}

func (s *Selector) Where(clause string, args ...any) *Selector {
	s.where = clause
	s.whereArgs = args
	return s
}

func (s *Selector) OrderBy(clause string) *Selector {
	s.orderBy = clause
	return s
}

func (s *Selector) Limit(v ...int) *Selector {
	s.limit = v
	s.hasLimit = true
	return s
}

func (s *Selector) ByKey(pk any) *Selector {
	s.byKey = true
	s.key = pk
	return s
}

func (s *Selector) Build() (*Query, error) {
	s.reset()
	if s.byKey {
		s.sb.WriteString(s.model.SelectByKey)
		s.addArgs(s.key)
		return s.query(), nil
	}

	s.sb.WriteString(s.model.SelectAll)
	if err := s.buildWhere(s.where, s.whereArgs); err != nil {
		return nil, err
	}
	if s.orderBy != "" {
		s.sb.WriteString(" ORDER BY ")
		s.sb.WriteString(s.orderBy)
	}
	if s.hasLimit {
		if err := s.buildLimit(); err != nil {
			return nil, err
		}
	}
	return s.query(), nil
}

// buildLimit LIMIT 的参数和其它参数一样使用 ? 占位
func (s *Selector) buildLimit() error {
	for _, v := range s.limit {
		if v < 0 {
			return ErrInvalidLimit
		}
	}
	switch len(s.limit) {
	case 1:
		s.sb.WriteString(" LIMIT ?")
	case 2:
		s.sb.WriteString(" LIMIT ?,?")
	default:
		return ErrInvalidLimit
	}
	for _, v := range s.limit {
		s.addArgs(v)
	}
	return nil
}

// Get 返回第一行，没有数据的时候返回 ErrNoRows
func (s *Selector) Get(ctx context.Context) (*Record, error) {
	res, err := query(ctx, s.sess, &QueryContext{
		Type:    "SELECT",
		Builder: s,
		Model:   s.model,
	}, scanOneRow)
	if err != nil {
		return nil, err
	}
	row, _ := res.(Row)
	return newRecordFromRow(s.model, row)
}

func (s *Selector) GetMulti(ctx context.Context) ([]*Record, error) {
	res, err := query(ctx, s.sess, &QueryContext{
		Type:    "SELECT",
		Builder: s,
		Model:   s.model,
	}, scanAllRows)
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]Row)
	recs := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := newRecordFromRow(s.model, row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Get 按照主键查询，没有数据的时候返回 ErrNoRows
func Get(ctx context.Context, sess Session, m *model.Model, pk any) (*Record, error) {
	return NewSelector(sess, m).ByKey(pk).Get(ctx)
}

// QueryAll 一次性读出全部符合条件的行
func QueryAll(ctx context.Context, sess Session, m *model.Model, opts ...SelectOption) ([]*Record, error) {
	s := NewSelector(sess, m)
	for _, opt := range opts {
		opt(s)
	}
	return s.GetMulti(ctx)
}

// Find 按照主键查询，结果写入结构体
func Find[T any](ctx context.Context, sess Session, pk any) (*T, error) {
	m, err := sess.getCore().r.Get(new(T))
	if err != nil {
		return nil, err
	}
	return RawQuery[T](sess, m.SelectByKey, pk).Get(ctx)
}

func scanCount(rows *sql.Rows) (any, error) {
	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return nil, err
		}
	}
	return total, rows.Err()
}
