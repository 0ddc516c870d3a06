package kvstore

import "strings"

// Sentinel marks a raw key as belonging to the direct namespace.
const Sentinel = "#"

// Key is a tagged store key. The zero value is the empty cached key.
type Key struct {
	name   string
	direct bool
}

// Cached addresses the bulk mapping.
func Cached(name string) Key { return Key{name: name} }

// Direct addresses the host's own persistent namespace.
func Direct(name string) Key { return Key{name: name, direct: true} }

// ParseKey routes a raw key: a key containing the sentinel is direct, with
// the first sentinel removed ("#token" -> Direct("token")); anything else
// is cached.
func ParseKey(raw string) Key {
	if strings.Contains(raw, Sentinel) {
		return Direct(strings.Replace(raw, Sentinel, "", 1))
	}
	return Cached(raw)
}

func (k Key) Name() string    { return k.name }
func (k Key) IsDirect() bool { return k.direct }

// String is the raw form ParseKey accepts.
func (k Key) String() string {
	if k.direct {
		return Sentinel + k.name
	}
	return k.name
}
