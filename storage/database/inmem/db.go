// Package inmemdb stores identities, profiles and scopes in memory, for tests and local runs.
package inmemdb

import (
	"sync"

	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/profile"
)

type (
	DB struct {
		mu         sync.RWMutex
		identities map[string]*auth.Identity
		profiles   map[string]*profile.Record
		halaqoh    []halaqoh
		santri     []santri
		activity   []audit.Event
	}

	halaqoh struct {
		id, musyrifID string
	}

	santri struct {
		id, waliID, otaID string
	}
)

func NewDB() *DB {
	return &DB{
		identities: make(map[string]*auth.Identity),
		profiles:   make(map[string]*profile.Record),
	}
}

// AddHalaqoh adds a halaqoh supervised by musyrifID.
func (db *DB) AddHalaqoh(id, musyrifID string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.halaqoh = append(db.halaqoh, halaqoh{id: id, musyrifID: musyrifID})
}

// AddSantri adds a santri in the care of waliID, sponsored by otaID (either may be empty).
func (db *DB) AddSantri(id, waliID, otaID string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.santri = append(db.santri, santri{id: id, waliID: waliID, otaID: otaID})
}

// Activity returns the activity entries written so far.
func (db *DB) Activity() []audit.Event {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]audit.Event(nil), db.activity...)
}
