package native

import "sync"

// NativeHashMap represents a java.util.HashMap. Boxed integers and strings
// are keyed by value, as their equals methods would.
type NativeHashMap struct {
	mu   sync.Mutex
	Data map[interface{}]interface{}
}

// NewNativeHashMap creates a new NativeHashMap.
func NewNativeHashMap() *NativeHashMap {
	return &NativeHashMap{Data: make(map[interface{}]interface{})}
}

func (m *NativeHashMap) ClassName() string { return "java/util/HashMap" }

func mapKey(key interface{}) interface{} {
	switch k := key.(type) {
	case *NativeInteger:
		return k.Value
	case *JString:
		return k.Value
	}
	return key
}

// Get returns the value for the given key.
func (m *NativeHashMap) Get(key interface{}) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Data[mapKey(key)]
}

// Put stores a key-value pair and returns the previous value.
func (m *NativeHashMap) Put(key, value interface{}) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mapKey(key)
	old := m.Data[k]
	m.Data[k] = value
	return old
}

// Size returns the number of entries.
func (m *NativeHashMap) Size() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int32(len(m.Data))
}
