// Package outputcache caches rendered responses under sanitized keys.
//
// The central operation is Add: insert-if-absent, otherwise return what is
// already stored. Concurrent Adds on one key converge on a single value
// because the insert is atomic at the store. If the entry that made the
// insert fail is gone by the time it is read back (evicted or expired in
// between), Add overwrites once with the caller's entry so the key is never
// left empty. That fallback is a single branch and never loops.
//
// Raw keys are never sent to the store: every call uses
// Prefix + hex(sha256(rawKey))[:32].
package outputcache
