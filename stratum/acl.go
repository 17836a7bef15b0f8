// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stratum

import (
	"bufio"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// acl is the stratum server's API-key allow list. An empty path disables
// it entirely: check always succeeds. Otherwise the key file is polled on
// a fixed interval and reloaded only when its mtime has advanced; the
// loaded key set is replaced by atomic swap so a concurrent check never
// observes a half-updated set.
type acl struct {
	path     string
	lastMod  time.Time
	keys     atomic.Pointer[[]string]
}

// minKeyLen matches the original access list's silent floor on key
// length; anything shorter is dropped while parsing the file.
const minKeyLen = 8

func newACL(path string) *acl {
	a := &acl{path: path}
	empty := []string{}
	a.keys.Store(&empty)
	if path != "" {
		a.refresh()
	}
	return a
}

// refresh re-reads the key file if its mtime has advanced since the last
// successful read. A missing or unreadable file is logged and leaves the
// previously loaded key set in place.
func (a *acl) refresh() {
	if a.path == "" {
		return
	}
	info, err := os.Stat(a.path)
	if err != nil {
		log.Warnf("stratum: acl: stat %s: %v", a.path, err)
		return
	}
	if !info.ModTime().After(a.lastMod) {
		return
	}
	f, err := os.Open(a.path)
	if err != nil {
		log.Warnf("stratum: acl: open %s: %v", a.path, err)
		return
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if len(key) < minKeyLen {
			continue
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("stratum: acl: read %s: %v", a.path, err)
		return
	}

	sort.Strings(keys)
	a.keys.Store(&keys)
	a.lastMod = info.ModTime()
	log.Debugf("stratum: acl: loaded %d keys from %s", len(keys), a.path)
}

// check reports whether key is present in the most recently loaded set,
// or unconditionally true if ACL is disabled. The set is sorted once on
// load so this is a binary search, O(log n).
func (a *acl) check(key string) bool {
	if a.path == "" {
		return true
	}
	keys := *a.keys.Load()
	i := sort.SearchStrings(keys, key)
	return i < len(keys) && keys[i] == key
}

// startRefreshLoop polls the key file every interval until stop is
// closed.
func (a *acl) startRefreshLoop(stop <-chan struct{}, interval time.Duration) {
	if a.path == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.refresh()
		case <-stop:
			return
		}
	}
}
