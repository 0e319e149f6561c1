package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"guard-watch/backend/config"
)

// Client Redis 客户端封装
// 承担四类职责：Token 黑名单、worker 分布式互斥锁、告警/看板事件发布、每日任务标记
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// ── Token 黑名单 ──

const blacklistPrefix = "token:blacklist:"

// BlacklistToken 将 JWT ID 加入黑名单，TTL 与 Token 剩余有效期一致
func (c *Client) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // Token 已过期，无需加入黑名单
	}
	return c.rdb.Set(ctx, blacklistPrefix+jti, "1", ttl).Err()
}

// IsBlacklisted 检查 JWT ID 是否在黑名单中
func (c *Client) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ── 分布式互斥锁 ──
// SET key token EX ttl NX：多副本 worker 间每个 tick 只允许一个持锁者。
// token 为本进程随机值，释放/续期前先比对，避免误删他人持有的锁。

// 释放锁：仅当值仍是自己的 token 时删除
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 续期锁：仅当值仍是自己的 token 时刷新 TTL
var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// TryLock 尝试获取锁。成功返回锁 token；锁已被其他副本持有时返回 ("", nil)。
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("获取锁失败: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// RefreshLock 为自己持有的锁续期。锁已丢失时返回 false。
func (c *Client) RefreshLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, c.rdb, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Unlock 释放自己持有的锁
func (c *Client) Unlock(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, c.rdb, []string{key}, token).Result()
	return err
}

// ── 事件发布 ──

// Publish 将 payload 序列化为 JSON 并发布到指定频道。
// 自动补充协议版本号与时间戳字段。发布失败只记日志，由调用方决定是否忽略。
func (c *Client) Publish(ctx context.Context, channel string, payload map[string]interface{}) error {
	payload["version"] = 1
	payload["_timestamp"] = time.Now().UnixMilli()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// ── 每日任务标记 ──
// 维护任务按日期串打标，保证每天只执行一次；48h TTL 自动清理

// MarkDailyDone 标记 task 在 date（YYYY-MM-DD）已执行。
// 返回 false 表示当日已被其他副本标记过。
func (c *Client) MarkDailyDone(ctx context.Context, task, date string) (bool, error) {
	key := fmt.Sprintf("daily:%s:%s", task, date)
	return c.rdb.SetNX(ctx, key, "1", 48*time.Hour).Result()
}

// ── 速率限制 ──

// CheckRateLimit 固定窗口计数速率限制。窗口内第一次计数时设置过期。
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(limit), nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
