package mqtt

import (
	"strings"
	"sync"
)

// Handler is the callback when a message is received. The topic has the
// broker prefix removed.
type Handler func(topic string, payload []byte)

// MatchTopic matches topic with a filter which may contain + and a
// trailing #.
func MatchTopic(topic, filter string) bool {
	levels, patterns := strings.Split(topic, "/"), strings.Split(filter, "/")
	for n, pattern := range patterns {
		if pattern == "#" && n+1 == len(patterns) {
			return true
		}
		if n >= len(levels) {
			return false
		}
		if pattern != "+" && pattern != levels[n] {
			return false
		}
	}
	return len(levels) == len(patterns)
}

func isWildcard(filter string) bool {
	return strings.Contains(filter, "+") || strings.HasSuffix(filter, "#")
}

// topicTable tracks local handlers per topic filter. A filter is
// subscribed on the broker while it has at least one handler.
type topicTable struct {
	lock    sync.RWMutex
	filters map[string][]*Subscription
}

// add returns true if sub is the first handler of its filter.
func (t *topicTable) add(sub *Subscription) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.filters == nil {
		t.filters = make(map[string][]*Subscription)
	}
	subs := t.filters[sub.filter]
	t.filters[sub.filter] = append(subs, sub)
	return len(subs) == 0
}

// remove returns true if sub was the last handler of its filter.
func (t *topicTable) remove(sub *Subscription) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	subs := t.filters[sub.filter]
	for n, s := range subs {
		if s != sub {
			continue
		}
		subs = append(subs[:n:n], subs[n+1:]...)
		if len(subs) == 0 {
			delete(t.filters, sub.filter)
			return true
		}
		t.filters[sub.filter] = subs
		return false
	}
	return false
}

func (t *topicTable) list() []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	filters := make([]string, 0, len(t.filters))
	for filter := range t.filters {
		filters = append(filters, filter)
	}
	return filters
}

func (t *topicTable) handlers(topic string) (handlers []Handler) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	for _, sub := range t.filters[topic] {
		handlers = append(handlers, sub.handler)
	}
	for filter, subs := range t.filters {
		if !isWildcard(filter) || !MatchTopic(topic, filter) {
			continue
		}
		for _, sub := range subs {
			handlers = append(handlers, sub.handler)
		}
	}
	return
}
