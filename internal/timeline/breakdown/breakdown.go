// Package breakdown partitions transactions by owner or account.
package breakdown

import (
	"fmt"
	"sort"
	"strings"

	"finscope/internal/core"
)

const (
	All       Mode = "ALL"
	ByOwner   Mode = "BY_OWNER"
	ByAccount Mode = "BY_ACCOUNT"
)

// AllKey is the single synthetic key produced in All mode.
const AllKey = "all"

type (
	Mode string

	// Selection holds the active mode and the selected keys of both keyed
	// modes, so switching modes back and forth keeps each selection.
	Selection struct {
		Mode     Mode     `json:"mode"`
		Owners   []string `json:"owners"`
		Accounts []string `json:"accounts"`
	}
)

// ParseMode accepts the canonical names, case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case All, ByOwner, ByAccount:
		return m, nil
	}
	return All, fmt.Errorf("invalid breakdown mode %q", s)
}

// Keys returns the selected keys of the active mode. All mode always
// yields exactly the synthetic "all" key.
func (s Selection) Keys() []string {
	switch s.Mode {
	case ByOwner:
		return s.Owners
	case ByAccount:
		return s.Accounts
	default:
		return []string{AllKey}
	}
}

// AccountKey is the composite key used in account mode.
func AccountKey(owner, accountType string) string {
	return owner + "_" + accountType
}

// KeyOf returns the key of tx under mode. ok is false when the transaction
// lacks the owner or account type the mode needs.
func KeyOf(tx core.Transaction, mode Mode) (key string, ok bool) {
	switch mode {
	case ByOwner:
		if tx.Owner == "" {
			return "", false
		}
		return tx.Owner, true
	case ByAccount:
		if tx.Owner == "" || tx.AccountType == "" {
			return "", false
		}
		return AccountKey(tx.Owner, tx.AccountType), true
	default:
		return AllKey, true
	}
}

// Filter keeps the transactions matching the selection. All mode is a
// no-op. In keyed modes an empty selection passes every keyable transaction
// through instead of returning nothing, so the first render is never empty;
// transactions without an owner (or account type) are always dropped there.
func Filter(txs []core.Transaction, sel Selection) []core.Transaction {
	if sel.Mode != ByOwner && sel.Mode != ByAccount {
		return txs
	}
	selected := toSet(sel.Keys())
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		key, ok := KeyOf(tx, sel.Mode)
		if !ok {
			continue
		}
		if len(selected) > 0 {
			if _, in := selected[key]; !in {
				continue
			}
		}
		out = append(out, tx)
	}
	return out
}

// EffectiveKeys returns the keys series are emitted for, in order: the
// selected keys, or every key present in txs (sorted) when the selection is
// empty.
func EffectiveKeys(txs []core.Transaction, sel Selection) []string {
	if sel.Mode != ByOwner && sel.Mode != ByAccount {
		return []string{AllKey}
	}
	if keys := sel.Keys(); len(keys) > 0 {
		return dedupe(keys)
	}
	return available(txs, sel.Mode)
}

// AvailableOwners lists the distinct owners present in txs, sorted.
func AvailableOwners(txs []core.Transaction) []string {
	return available(txs, ByOwner)
}

// AvailableAccounts lists the distinct owner/account keys present in txs, sorted.
func AvailableAccounts(txs []core.Transaction) []string {
	return available(txs, ByAccount)
}

// DefaultSelection selects exactly one key per keyed mode: the
// lexicographically first owner and the first account. The mode is kept.
func DefaultSelection(txs []core.Transaction, mode Mode) Selection {
	sel := Selection{Mode: mode, Owners: []string{}, Accounts: []string{}}
	if owners := AvailableOwners(txs); len(owners) > 0 {
		sel.Owners = owners[:1]
	}
	if accounts := AvailableAccounts(txs); len(accounts) > 0 {
		sel.Accounts = accounts[:1]
	}
	return sel
}

func available(txs []core.Transaction, mode Mode) []string {
	seen := map[string]struct{}{}
	for _, tx := range txs {
		if key, ok := KeyOf(tx, mode); ok {
			seen[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toSet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

// dedupe preserves the order of first appearance.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
