package policy

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/hashpool/hashpool/internal/util"
)

const (
	banKeyPrefix    = "hashpool:policy:"
	keyBlacklist    = banKeyPrefix + "blacklist"
	keyWhitelist    = banKeyPrefix + "whitelist"
)

// BanStore persists the IP blacklist/whitelist across restarts. It is the
// one piece of teacher's storage package this domain still needs: ban
// state is security bookkeeping, not share or payment accounting.
type BanStore struct {
	client *redis.Client
	ctx    context.Context
}

// NewBanStore connects to redis and verifies it is reachable.
func NewBanStore(addr, password string, db int) (*BanStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("banstore: redis connection failed: %w", err)
	}

	util.Infof("banstore: connected to redis at %s", addr)
	return &BanStore{client: client, ctx: ctx}, nil
}

// Close closes the underlying redis connection.
func (s *BanStore) Close() error {
	return s.client.Close()
}

// IsBlacklisted reports whether ip is currently banned.
func (s *BanStore) IsBlacklisted(ip string) (bool, error) {
	return s.client.SIsMember(s.ctx, keyBlacklist, ip).Result()
}

// IsWhitelisted reports whether ip is exempt from banning.
func (s *BanStore) IsWhitelisted(ip string) (bool, error) {
	return s.client.SIsMember(s.ctx, keyWhitelist, ip).Result()
}

// AddToBlacklist bans ip.
func (s *BanStore) AddToBlacklist(ip string) error {
	return s.client.SAdd(s.ctx, keyBlacklist, ip).Err()
}

// RemoveFromBlacklist lifts a ban on ip.
func (s *BanStore) RemoveFromBlacklist(ip string) error {
	return s.client.SRem(s.ctx, keyBlacklist, ip).Err()
}

// GetBlacklist returns every currently-banned IP.
func (s *BanStore) GetBlacklist() ([]string, error) {
	return s.client.SMembers(s.ctx, keyBlacklist).Result()
}

// GetWhitelist returns every exempt IP.
func (s *BanStore) GetWhitelist() ([]string, error) {
	return s.client.SMembers(s.ctx, keyWhitelist).Result()
}

// AddToWhitelist exempts ip from banning.
func (s *BanStore) AddToWhitelist(ip string) error {
	return s.client.SAdd(s.ctx, keyWhitelist, ip).Err()
}

// RemoveFromWhitelist removes ip's exemption.
func (s *BanStore) RemoveFromWhitelist(ip string) error {
	return s.client.SRem(s.ctx, keyWhitelist, ip).Err()
}
