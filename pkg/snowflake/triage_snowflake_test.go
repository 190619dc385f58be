package snowflake

import (
	"sync"
	"testing"
)

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name    string
		nodeID  int64
		wantErr bool
	}{
		{"valid node 0", 0, false},
		{"valid node max", 1023, false},
		{"invalid node -1", -1, true},
		{"invalid node 1024", 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.nodeID)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGenerator(%d) error = %v, wantErr %v", tt.nodeID, err, tt.wantErr)
			}
		})
	}
}

func TestNextID_Concurrent(t *testing.T) {
	gen, err := NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}

	const workers, perWorker = 8, 500
	var (
		mu  sync.Mutex
		ids = make(map[int64]bool, workers*perWorker)
		wg  sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := gen.NextID()
				mu.Lock()
				if ids[id] {
					t.Errorf("duplicate ID generated: %d", id)
				}
				ids[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(ids) != workers*perWorker {
		t.Errorf("got %d ids, want %d", len(ids), workers*perWorker)
	}
}

func TestNextID_Ordered(t *testing.T) {
	gen, err := NewGenerator(2)
	if err != nil {
		t.Fatal(err)
	}
	prev := gen.NextID()
	for i := 0; i < 1000; i++ {
		id := gen.NextID()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}
