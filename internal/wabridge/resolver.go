package wabridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chatmux/chatmux/internal/store"
)

const lidSuffix = "@lid"

// IsLid reports whether an identifier belongs to the alternate namespace.
func IsLid(jid string) bool {
	return strings.HasSuffix(jid, lidSuffix)
}

// Resolver maps alternate-namespace identifiers back to phone-derived ones,
// using stored contact mappings with a short-lived cache in front.
type Resolver struct {
	contacts store.ContactRepository
	cache    *gocache.Cache
}

func NewResolver(contacts store.ContactRepository) *Resolver {
	return &Resolver{
		contacts: contacts,
		cache:    gocache.New(10*time.Minute, 30*time.Minute),
	}
}

func cacheKey(tenantId int64, lid string) string {
	return fmt.Sprintf("%d:%s", tenantId, lid)
}

// Resolve returns the canonical identifier for a sender. When the event
// carries a companion phone-derived identifier the mapping is learned as a
// side effect. An unresolvable alternate identifier is returned as-is; the
// message is still ingested under it.
func (r *Resolver) Resolve(ctx context.Context, tenantId, sessionId int64, sender, senderAlt string) string {
	if !IsLid(sender) {
		return sender
	}
	if senderAlt != "" && !IsLid(senderAlt) {
		r.Learn(ctx, tenantId, sessionId, senderAlt, sender)
		return senderAlt
	}
	if jid, ok := r.cache.Get(cacheKey(tenantId, sender)); ok {
		return jid.(string)
	}
	contact, err := r.contacts.FindByLid(ctx, tenantId, sender)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Warn("identity lookup failed", zap.String("lid", sender), zap.Error(err))
		}
		return sender
	}
	r.cache.SetDefault(cacheKey(tenantId, sender), contact.Jid)
	return contact.Jid
}

// Learn records a lid to phone-derived mapping and primes the cache.
func (r *Resolver) Learn(ctx context.Context, tenantId, sessionId int64, jid, lid string) {
	if jid == "" || lid == "" {
		return
	}
	r.cache.SetDefault(cacheKey(tenantId, lid), jid)
	if err := r.contacts.SaveMapping(ctx, tenantId, sessionId, jid, lid); err != nil {
		zap.L().Error("identity mapping persist failed",
			zap.String("jid", jid), zap.String("lid", lid), zap.Error(err))
	}
}
