package native

import "sync"

// Table maps handles to engine objects. Engines keep one Table per handle
// kind; Len is the number of live handles of that kind.
type Table[T any] struct {
	mu   sync.Mutex
	next Handle
	objs map[Handle]T
}

// Put stores v under a new non-zero handle.
func (t *Table[T]) Put(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.objs == nil {
		t.objs = make(map[Handle]T)
	}
	t.next++
	t.objs[t.next] = v
	return t.next
}

func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.objs[h]
	return v, ok
}

// Delete removes h and returns the object it referenced, if any.
func (t *Table[T]) Delete(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.objs[h]
	if ok {
		delete(t.objs, h)
	}
	return v, ok
}

func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objs)
}
