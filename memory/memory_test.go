package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	m := NewManager(&Config{Limit: 5})
	if m == nil {
		t.Fatal("NewManager() returned nil")
	}
	if m.Limit() != 5 {
		t.Errorf("Limit() = %d, want 5", m.Limit())
	}
}

func TestNewManager_DefaultLimit(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"zero limit", &Config{}},
		{"negative limit", &Config{Limit: -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.cfg)
			if m.Limit() != DefaultLimit {
				t.Errorf("Limit() = %d, want %d", m.Limit(), DefaultLimit)
			}
		})
	}
}

func TestManager_MarkAndSeen(t *testing.T) {
	m := NewManager(nil)

	if m.Seen("a") {
		t.Error("Seen(a) = true before Mark")
	}
	m.Mark("a", "b", "")
	if !m.Seen("a") || !m.Seen("b") {
		t.Error("Seen() = false after Mark")
	}
	if m.Seen("") {
		t.Error("empty key should never be remembered")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestManager_Eviction(t *testing.T) {
	m := NewManager(&Config{Limit: 3})
	for i := 0; i < 5; i++ {
		m.Mark(fmt.Sprintf("k%d", i))
	}

	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
	if m.Seen("k0") || m.Seen("k1") {
		t.Error("oldest keys should have been evicted")
	}
	if !m.Seen("k4") {
		t.Error("newest key should be remembered")
	}
}

func TestManager_StartRun(t *testing.T) {
	m := NewManager(nil)
	m.Mark("a")
	before := m.Started()

	time.Sleep(time.Millisecond)
	m.StartRun()

	if m.Seen("a") {
		t.Error("StartRun should forget previous keys")
	}
	if !m.Started().After(before) {
		t.Error("StartRun should reset the start time")
	}
}

func TestManager_Concurrent(t *testing.T) {
	m := NewManager(&Config{Limit: 10000})

	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				m.Mark(key)
				_ = m.Seen(key)
			}
		}(g)
	}
	wg.Wait()

	if m.Len() != 2000 {
		t.Errorf("Len() = %d, want 2000", m.Len())
	}
}

func BenchmarkManager_Seen(b *testing.B) {
	m := NewManager(nil)
	for i := 0; i < DefaultLimit; i++ {
		m.Mark(fmt.Sprintf("k%d", i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Seen("k100")
	}
}
