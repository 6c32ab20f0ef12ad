package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is one link in the mutation audit chain. Each entry commits to its
// predecessor's hash, so rewriting history invalidates everything after the
// edit.
type Entry struct {
	Seq          uint64 `json:"seq"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger records ledger mutations as a hash chain. Safe for concurrent
// use.
type ChainLogger struct {
	mu       sync.Mutex
	seq      uint64
	prevHash string
	entries  []*Entry
}

// NewChainLogger starts an empty chain anchored at a zero hash.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{prevHash: strings.Repeat("0", 64)}
}

// Append records payload as the next link and returns the finished entry.
func (c *ChainLogger) Append(payload string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &Entry{
		Seq:          c.seq,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.prevHash,
		Payload:      payload,
	}
	entry.Hash = hashEntry(entry)

	c.seq++
	c.prevHash = entry.Hash
	c.entries = append(c.entries, entry)
	return entry
}

// Entries returns a snapshot of the chain so far.
func (c *ChainLogger) Entries() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func hashEntry(e *Entry) string {
	input := fmt.Sprintf("%d|%s|%s|%s", e.Seq, e.PreviousHash, e.Timestamp, e.Payload)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// VerifyChain reports whether entries form an unbroken, untampered chain.
func VerifyChain(entries []*Entry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if hashEntry(entry) != entry.Hash {
			return false
		}
	}
	return true
}
