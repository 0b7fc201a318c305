package mqtt

import (
	"sync"
	"testing"
)

func TestRunTokens_Record(t *testing.T) {
	var rt RunTokens
	rt.OnTokens(100, 200)
	rt.OnTokens(50, 75)

	input, output, requests := rt.Snapshot()
	if input != 150 {
		t.Errorf("input = %d, want 150", input)
	}
	if output != 275 {
		t.Errorf("output = %d, want 275", output)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
}

func TestRunTokens_Concurrent(t *testing.T) {
	var rt RunTokens
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.OnTokens(10, 20)
		}()
	}
	wg.Wait()

	input, output, requests := rt.Snapshot()
	if input != 1000 || output != 2000 || requests != 100 {
		t.Errorf("got (%d, %d, %d), want (1000, 2000, 100)", input, output, requests)
	}
}
