package orm

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru"
	"github.com/streamDream/mysql-stream/orm/internal/valuer"
	"github.com/streamDream/mysql-stream/orm/model"
)

// core 是 DB、Conn 和 Tx 共享的部分
type core struct {
	dialect    Dialect
	r          model.Registry // 存储数据库表和 struct 映射关系的实例
	valCreator valuer.Creator // 与DB交互映射的实现
	mdls       []Middleware
	logger     *slog.Logger
	// 命名参数语句的解析结果，key 是原始语句
	named *lru.Cache
}

// chain 把中间件套在 root 外面，第一个中间件在最外层
func (c core) chain(root Handler) Handler {
	for i := len(c.mdls) - 1; i >= 0; i-- {
		root = c.mdls[i](root)
	}
	return root
}
