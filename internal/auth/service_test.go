package auth

import (
	"context"
	"database/sql"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"ollamaweb/internal/config"
	"ollamaweb/internal/redis"
	"ollamaweb/internal/storage"
)

func TestAuthIssueValidateRevoke(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	svc := NewService(db, nil, time.Hour)
	token, err := svc.IssueToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	userID, err := svc.ValidateToken(context.Background(), token)
	if err != nil || userID != 1 {
		t.Fatalf("ValidateToken failed: id=%d err=%v", userID, err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected error after revoke")
	}

	token2, err := svc.IssueToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if err := svc.RevokeUserTokens(context.Background(), 1); err != nil {
		t.Fatalf("RevokeUserTokens error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token2); err == nil {
		t.Fatalf("expected error after revoke all")
	}
}

func TestAuthValidateExpiredToken(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 2)

	svc := NewService(db, nil, 10*time.Millisecond)
	token, err := svc.IssueToken(context.Background(), 2)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected expiration error")
	}
	// ensure token removed
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token not purged")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func insertUser(t *testing.T, db *sql.DB, id int64) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO users (id, username, password_hash, salt, created_at, updated_at) VALUES (?, ?, '', '', ?, ?)`,
		id, "user_"+strconv.FormatInt(id, 10), now, now)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func TestAuthTokenCacheUsesRedis(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 10)

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(db, cacheClient, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, 10)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	key := redisTokenPrefix + token
	got, err := cacheClient.Get(ctx, key)
	if err != nil {
		t.Fatalf("get redis token: %v", err)
	}
	if got != "10" {
		t.Fatalf("expected user 10 in rdb, got %s", got)
	}

	_, _ = db.Exec(`DELETE FROM user_tokens WHERE token = ?`, token)
	userID, err := svc.ValidateToken(ctx, token)
	if err != nil || userID != 10 {
		t.Fatalf("ValidateToken via rdb failed: id=%d err=%v", userID, err)
	}

	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := cacheClient.Get(ctx, key); err == nil {
		t.Fatalf("expected redis key deleted")
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected error after revoke and rdb delete")
	}
}

func TestAuthCacheDoesNotOutliveExpiry(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 11)

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(db, cacheClient, 500*time.Millisecond)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, 11)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	// Force the next validation down the SQL path partway through the
	// token's life; the re-cached entry must carry only the remaining
	// lifetime, not a fresh full TTL.
	time.Sleep(250 * time.Millisecond)
	if err := cacheClient.Del(ctx, redisTokenPrefix+token); err != nil {
		t.Fatalf("del cached token: %v", err)
	}
	if userID, err := svc.ValidateToken(ctx, token); err != nil || userID != 11 {
		t.Fatalf("ValidateToken before expiry: id=%d err=%v", userID, err)
	}

	time.Sleep(400 * time.Millisecond)
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed auth tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
			DB:   db,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup
}
