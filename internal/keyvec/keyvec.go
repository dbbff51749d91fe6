// Package keyvec provides a grow-only vector addressed by small integer
// keys. Used for function caches where a name is resolved once and the key
// reused on every subsequent call.
package keyvec

// Key indexes a KeyVec. Keys stay valid until Clear.
type Key uint32

// Invalid is returned for failed lookups.
const Invalid Key = ^Key(0)

// KeyVec is a grow-only keyed vector.
type KeyVec[V any] struct {
	values []V
}

// Push appends a value and returns its key.
func (kv *KeyVec[V]) Push(v V) Key {
	k := Key(len(kv.values))
	kv.values = append(kv.values, v)
	return k
}

// Get returns the value for k.
func (kv *KeyVec[V]) Get(k Key) (V, bool) {
	if int(k) >= len(kv.values) {
		var zero V
		return zero, false
	}
	return kv.values[k], true
}

// KeyOf returns the key of the first value matching f.
func (kv *KeyVec[V]) KeyOf(f func(V) bool) (Key, bool) {
	for i, v := range kv.values {
		if f(v) {
			return Key(i), true
		}
	}
	return Invalid, false
}

// Each iterates values in key order.
func (kv *KeyVec[V]) Each(f func(Key, V) bool) {
	for i, v := range kv.values {
		if !f(Key(i), v) {
			return
		}
	}
}

// Len returns the number of stored values.
func (kv *KeyVec[V]) Len() int { return len(kv.values) }

// Clear drops all values and invalidates every key.
func (kv *KeyVec[V]) Clear() { kv.values = kv.values[:0] }
