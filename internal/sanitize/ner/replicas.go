package ner

import (
	"strings"
	"sync/atomic"
)

// replicas rotates requests across recognizer instances using atomic
// round-robin selection.
type replicas struct {
	urls    []string
	counter atomic.Uint64
}

func newReplicas(raw string) *replicas {
	r := &replicas{}
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u != "" {
			r.urls = append(r.urls, u+"/process")
		}
	}
	return r
}

// order returns every replica once, starting with the next one in rotation.
// This is safe for concurrent use.
func (r *replicas) order() []string {
	n := len(r.urls)
	if n == 0 {
		return nil
	}
	start := int((r.counter.Add(1) - 1) % uint64(n))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.urls[(start+i)%n])
	}
	return out
}
