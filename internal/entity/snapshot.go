package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountBalance struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	SyncedAt time.Time       `json:"synced_at"`
}

type CardUsage struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Brand    string          `json:"brand,omitempty"`
	Limit    decimal.Decimal `json:"limit"`
	Used     decimal.Decimal `json:"used"`
	SyncedAt time.Time       `json:"synced_at"`
}

func (c CardUsage) Available() decimal.Decimal {
	return c.Limit.Sub(c.Used)
}

// Snapshot is the last known subset of server truth the local resolver answers from.
type Snapshot struct {
	Accounts map[string]AccountBalance `json:"accounts"`
	Cards    map[string]CardUsage      `json:"cards"`
}

func NewSnapshot() Snapshot {
	return Snapshot{
		Accounts: make(map[string]AccountBalance),
		Cards:    make(map[string]CardUsage),
	}
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Accounts) == 0 && len(s.Cards) == 0
}

// Clone returns a copy whose maps can be mutated without touching s.
func (s Snapshot) Clone() Snapshot {
	out := NewSnapshot()
	for id, a := range s.Accounts {
		out.Accounts[id] = a
	}
	for id, c := range s.Cards {
		out.Cards[id] = c
	}
	return out
}

// Merge applies fresh entities over s, one entity at a time. An incoming entity
// older than the one already cached is dropped.
func (s Snapshot) Merge(fresh Snapshot) Snapshot {
	out := s.Clone()
	for id, a := range fresh.Accounts {
		if cur, ok := out.Accounts[id]; ok && a.SyncedAt.Before(cur.SyncedAt) {
			continue
		}
		out.Accounts[id] = a
	}
	for id, c := range fresh.Cards {
		if cur, ok := out.Cards[id]; ok && c.SyncedAt.Before(cur.SyncedAt) {
			continue
		}
		out.Cards[id] = c
	}
	return out
}

// SnapshotFromPayload extracts the cacheable entities carried by a server reply.
func SnapshotFromPayload(p RichPayload) (Snapshot, bool) {
	out := NewSnapshot()
	switch v := p.(type) {
	case BalancePayload:
		for _, a := range v.Accounts {
			if a.SyncedAt.IsZero() {
				a.SyncedAt = v.SyncedAt
			}
			out.Accounts[a.ID] = a
		}
	case CardsListPayload:
		for _, c := range v.Cards {
			out.Cards[c.ID] = c
		}
	default:
		return out, false
	}
	return out, !out.IsEmpty()
}
