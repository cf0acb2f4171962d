package orm

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/streamDream/mysql-stream/orm/internal/errs"
	"github.com/streamDream/mysql-stream/orm/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userDDL = "CREATE TABLE t_user (id INTEGER PRIMARY KEY, name VARCHAR(32), age INT, urls TEXT, create_ts DATETIME)"

func userModel(t *testing.T, sess Session) *model.Model {
	m, err := sess.getCore().r.Define("User", []model.Attribute{
		model.Attr("id", model.Integer(model.PrimaryKey())),
		model.Attr("name", model.String(model.Default(""))),
		model.Attr("age", model.Integer()),
		model.Attr("urls", model.Text()),
		model.Attr("create_ts", model.Datetime()),
	}, model.WithTableName("t_user"))
	require.NoError(t, err)
	return m
}

// userDB 建好 t_user 表的内存数据库
func userDB(t *testing.T, opts ...DBOption) (*DB, *model.Model) {
	db := memoryDB(t, opts...)
	require.NoError(t, db.Execute(context.Background(), userDDL).Err())
	return db, userModel(t, db)
}

func TestRecord_Build(t *testing.T) {
	db, err := NewDB(nil)
	require.NoError(t, err)
	m := userModel(t, db)

	n := 0
	seq, err := model.Compile("Seq", []model.Attribute{
		model.Attr("id", model.Integer(model.PrimaryKey(), model.DefaultFunc(func() any {
			n++
			return n
		}))),
		model.Attr("tag", model.String()),
	})
	require.NoError(t, err)
	keyOnly, err := model.Compile("KeyOnly", []model.Attribute{
		model.Attr("id", model.Integer(model.PrimaryKey())),
	})
	require.NoError(t, err)

	testCases := []struct {
		name    string
		q       QueryBuilder
		want    *Query
		wantErr error
	}{
		{
			name: "insert",
			q: NewInserter(db, NewRecord(m, map[string]any{
				"id":        1,
				"name":      "chong",
				"age":       10,
				"urls":      map[string]any{"home": "https://example.com/流"},
				"create_ts": "2023-05-01 08:30:00",
			})),
			want: &Query{
				SQL:  "INSERT INTO t_user (id,name,age,urls,create_ts) VALUES (?,?,?,?,?)",
				Args: []any{1, "chong", 10, `{"home":"https://example.com/流"}`, "2023-05-01 08:30:00"},
			},
		},
		{
			name: "insert defaults",
			q: NewInserter(db, NewRecord(m, map[string]any{
				"id":  2,
				"age": 20,
				// nil 不是缺失，不使用默认值也不编码
				"urls": nil,
			})),
			want: &Query{
				SQL:  "INSERT INTO t_user (id,name,age,urls,create_ts) VALUES (?,?,?,?,?)",
				Args: []any{2, "", 20, nil, "0000-00-00 00:00:00"},
			},
		},
		{
			name:    "insert missing value",
			q:       NewInserter(db, NewRecord(m, map[string]any{"id": 3})),
			wantErr: errs.NewErrMissingValue("age"),
		},
		{
			name: "insert default func",
			q:    NewInserter(db, NewRecord(seq, map[string]any{"tag": "x"})),
			want: &Query{
				SQL:  "INSERT INTO seq (id,tag) VALUES (?,?)",
				Args: []any{1, "x"},
			},
		},
		{
			name: "update",
			q: NewUpdater(db, NewRecord(m, map[string]any{
				"id":        1,
				"name":      "chong",
				"age":       11,
				"urls":      []any{"a"},
				"create_ts": "2023-05-01 08:30:00",
			})),
			want: &Query{
				SQL:  "UPDATE t_user SET name=?,age=?,urls=?,create_ts=? WHERE id=?",
				Args: []any{"chong", 11, `["a"]`, "2023-05-01 08:30:00", 1},
			},
		},
		{
			name:    "update no columns",
			q:       NewUpdater(db, NewRecord(keyOnly, map[string]any{"id": 1})),
			wantErr: ErrNoUpdatedColumns,
		},
		{
			name: "delete",
			q:    NewDeleter(db, NewRecord(m, map[string]any{"id": 1, "age": 10})),
			want: &Query{
				SQL:  "DELETE FROM t_user WHERE id=?",
				Args: []any{1},
			},
		},
		{
			name:    "delete without key",
			q:       NewDeleter(db, NewRecord(m, map[string]any{"age": 10})),
			wantErr: errs.NewErrMissingValue("id"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := tc.q.Build()
			assert.Equal(t, tc.wantErr, err)
			if err != nil {
				return
			}
			assert.Equal(t, tc.want, q)
		})
	}
}

func TestRecord_Accessors(t *testing.T) {
	db, err := NewDB(nil)
	require.NoError(t, err)
	m := userModel(t, db)

	values := map[string]any{"age": 10, "id": 1}
	rec := NewRecord(m, values)
	values["name"] = "changed"
	_, ok := rec.Get("name")
	assert.False(t, ok)

	rec.Set("name", nil)
	val, ok := rec.Get("name")
	assert.True(t, ok)
	assert.Nil(t, val)
	rec.Unset("name")
	_, ok = rec.Get("name")
	assert.False(t, ok)

	rec.Set("name", "a")
	assert.Equal(t, "id:1,name:a,age:10", rec.String())
	assert.Same(t, m, rec.Model())

	vals := rec.Values()
	vals["id"] = 100
	id, _ := rec.Get("id")
	assert.Equal(t, 1, id)
}

func Test_newRecordFromRow(t *testing.T) {
	db, err := NewDB(nil)
	require.NoError(t, err)
	m := userModel(t, db)

	rec, err := newRecordFromRow(m, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = newRecordFromRow(m, Row{
		"id":   int64(1),
		"urls": `{"a":["b"]}`,
		"age":  nil,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":   int64(1),
		"urls": map[string]any{"a": []any{"b"}},
		"age":  nil,
	}, rec.Values())

	_, err = newRecordFromRow(m, Row{"urls": "{"})
	assert.Error(t, err)
}

type recordUser struct {
	Id   int64 `orm:"primary_key"`
	Name string
	Nick sql.NullString
}

func TestRecordOf(t *testing.T) {
	db, err := NewDB(nil)
	require.NoError(t, err)

	rec, err := RecordOf(db, &recordUser{Id: 3, Name: "chong"})
	require.NoError(t, err)
	assert.Equal(t, "record_user", rec.Model().TableName)
	assert.Equal(t, map[string]any{
		"Id":   int64(3),
		"Name": "chong",
		"Nick": sql.NullString{},
	}, rec.Values())

	_, err = RecordOf(db, recordUser{})
	assert.Equal(t, ErrPointerOnly, err)
}

// 保存之后按主键读出来，每个字段都和保存的值相同
func TestRecord_SaveAndGet(t *testing.T) {
	db, m := userDB(t)
	ctx := context.Background()

	values := map[string]any{
		"id":        int64(1),
		"name":      "流",
		"age":       int64(10),
		"urls": map[string]any{
			"home": "https://example.com/?a=<b>&c",
			"名字":   "流",
			"ids":  []any{int64(9007199254740993), int64(2)},
			"rate": 0.5,
		},
		"create_ts": "2023-05-01 08:30:00",
	}
	res := NewRecord(m, values).Save(ctx, db)
	require.NoError(t, res.Err())
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	got, err := Get(ctx, db, m, 1)
	require.NoError(t, err)
	assert.Equal(t, values, got.Values())
	assert.Equal(t, 0, db.Pool().Outstanding())
}

func TestRecord_UpdateIsolation(t *testing.T) {
	db, m := userDB(t)
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		require.NoError(t, NewRecord(m, map[string]any{
			"id":        int64(i),
			"name":      "a",
			"age":       int64(10),
			"urls":      []any{},
			"create_ts": "2023-05-01 08:30:00",
		}).Save(ctx, db).Err())
	}

	rec, err := Get(ctx, db, m, 1)
	require.NoError(t, err)
	rec.Set("name", "b")
	rec.Set("age", int64(11))
	res := rec.Update(ctx, db)
	require.NoError(t, res.Err())
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rec, err = Get(ctx, db, m, 1)
	require.NoError(t, err)
	assert.Equal(t, "id:1,name:b,age:11,urls:[],create_ts:2023-05-01 08:30:00", rec.String())

	other, err := Get(ctx, db, m, 2)
	require.NoError(t, err)
	name, _ := other.Get("name")
	age, _ := other.Get("age")
	assert.Equal(t, "a", name)
	assert.Equal(t, int64(10), age)
}

func TestRecord_Delete(t *testing.T) {
	db, m := userDB(t)
	ctx := context.Background()
	rec := NewRecord(m, map[string]any{"id": int64(1), "age": int64(1), "urls": nil})
	require.NoError(t, rec.Save(ctx, db).Err())

	res := rec.Delete(ctx, db)
	require.NoError(t, res.Err())
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	got, err := Get(ctx, db, m, 1)
	assert.Equal(t, ErrNoRows, err)
	assert.Nil(t, got)

	res = rec.Delete(ctx, db)
	require.NoError(t, res.Err())
	affected, err = res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

// 插入 id=1 之后计数为 1，删除之后为 0
func TestRecord_CountScenario(t *testing.T) {
	db, m := userDB(t)
	ctx := context.Background()

	require.NoError(t, NewRecord(m, map[string]any{
		"id":        int64(1),
		"name":      "a",
		"age":       int64(10),
		"urls":      nil,
		"create_ts": "2023-05-01 08:30:00",
	}).Save(ctx, db).Err())

	cnt, err := CountOfRows(ctx, db, m, "id", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)

	rec, err := Get(ctx, db, m, 1)
	require.NoError(t, err)
	name, _ := rec.Get("name")
	age, _ := rec.Get("age")
	assert.Equal(t, "a", name)
	assert.Equal(t, int64(10), age)

	require.NoError(t, rec.Delete(ctx, db).Err())
	cnt, err = CountOfRows(ctx, db, m, "id", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cnt)
}

// 中间件调用 Build 不会让默认值重新生成，记录的参数就是写入的参数
func TestRecord_SaveDefaultFuncOnce(t *testing.T) {
	var logged [][]any
	peek := func(next Handler) Handler {
		return func(ctx context.Context, qc *QueryContext) *QueryResult {
			q, err := qc.Builder.Build()
			if err != nil {
				return &QueryResult{Err: err}
			}
			logged = append(logged, q.Args)
			return next(ctx, qc)
		}
	}
	db, mock := mockDB(t, DBWithMiddlewares(peek, peek))

	calls := 0
	seq, err := model.Compile("Seq", []model.Attribute{
		model.Attr("id", model.Integer(model.PrimaryKey(), model.DefaultFunc(func() any {
			calls++
			return calls
		}))),
		model.Attr("tag", model.String()),
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO seq (id,tag) VALUES (?,?)").
		WithArgs(1, "x").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO seq (id,tag) VALUES (?,?)").
		WithArgs(2, "x").
		WillReturnResult(sqlmock.NewResult(2, 1))

	rec := NewRecord(seq, map[string]any{"tag": "x"})
	require.NoError(t, rec.Save(context.Background(), db).Err())
	assert.Equal(t, 1, calls)
	assert.Equal(t, [][]any{{1, "x"}, {1, "x"}}, logged)

	// 每次 Save 都重新取默认值
	require.NoError(t, rec.Save(context.Background(), db).Err())
	assert.Equal(t, 2, calls)
	assert.Equal(t, []any{2, "x"}, logged[3])
	require.NoError(t, mock.ExpectationsWereMet())
}
