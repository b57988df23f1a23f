package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/demandcast/pkg/reporting"
)

func testReport(region string, generatedAt time.Time, avg float64) reporting.Report {
	return reporting.Report{
		ID:          uuid.New(),
		Type:        "comprehensive",
		Region:      region,
		GeneratedAt: generatedAt,
		Forecast: reporting.ForecastSummary{
			Target:      "usage_cpu",
			Days:        1,
			Predictions: []float64{avg},
			Avg:         avg,
		},
	}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.Len() != 0 {
		t.Errorf("New store should be empty, got %d reports", store.Len())
	}
	if store.history != DefaultHistory {
		t.Errorf("history = %d, want %d", store.history, DefaultHistory)
	}
}

func TestMemoryStore_Put_Get(t *testing.T) {
	tests := []struct {
		name    string
		report  reporting.Report
		wantErr bool
	}{
		{
			name:   "valid report",
			report: testReport("East US", time.Now(), 42),
		},
		{
			name:    "empty region",
			report:  testReport("", time.Now(), 42),
			wantErr: true,
		},
		{
			name:    "invalid region",
			report:  testReport("east/../us", time.Now(), 42),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore(10)
			ctx := context.Background()

			err := store.Put(ctx, tt.report)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			got, found, err := store.GetLatest(ctx, tt.report.Region)
			if err != nil {
				t.Fatalf("GetLatest() error = %v", err)
			}
			if !found {
				t.Fatal("GetLatest() should find the report")
			}
			if got.ID != tt.report.ID {
				t.Errorf("GetLatest() ID = %v, want %v", got.ID, tt.report.ID)
			}
		})
	}
}

func TestMemoryStore_GetLatest_NotFound(t *testing.T) {
	store := NewMemoryStore(10)

	_, found, err := store.GetLatest(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if found {
		t.Error("GetLatest() should not find a report")
	}
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		if err := store.Put(ctx, testReport("West", base.Add(time.Duration(i)*time.Minute), float64(i))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	all, err := store.List(ctx, "West", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d reports, want 3 (history cap)", len(all))
	}
	for i, want := range []float64{4, 3, 2} {
		if all[i].Forecast.Avg != want {
			t.Errorf("List()[%d].Avg = %v, want %v", i, all[i].Forecast.Avg, want)
		}
	}

	two, err := store.List(ctx, "West", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(two) != 2 || two[0].Forecast.Avg != 4 {
		t.Errorf("List(limit=2) = %v", two)
	}

	none, err := store.List(ctx, "East", 5)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("List() for unknown region returned %d reports", len(none))
	}

	latest, _, _ := store.GetLatest(ctx, "West")
	if latest.Forecast.Avg != 4 {
		t.Errorf("GetLatest().Avg = %v, want 4", latest.Forecast.Avg)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, testReport("East", time.Now(), 1)); err == nil {
		t.Error("Put() with canceled context should fail")
	}
	if _, _, err := store.GetLatest(ctx, "East"); err == nil {
		t.Error("GetLatest() with canceled context should fail")
	}
	if _, err := store.List(ctx, "East", 0); err == nil {
		t.Error("List() with canceled context should fail")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore(1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			region := fmt.Sprintf("region-%d", g%3)
			for i := 0; i < 50; i++ {
				if err := store.Put(ctx, testReport(region, time.Now(), float64(i))); err != nil {
					t.Errorf("Put() error = %v", err)
				}
				if _, _, err := store.GetLatest(ctx, region); err != nil {
					t.Errorf("GetLatest() error = %v", err)
				}
				if _, err := store.List(ctx, region, 5); err != nil {
					t.Errorf("List() error = %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	if store.Len() != 500 {
		t.Errorf("Len() = %d, want 500", store.Len())
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	if err := store.Put(ctx, testReport("East", time.Now(), 1)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if !store.Delete("East") {
		t.Error("Delete() should report an existing region")
	}
	if store.Delete("East") {
		t.Error("second Delete() should report nothing deleted")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after Delete, want 0", store.Len())
	}
}

func TestMemoryStoreWithTTL_Expiration(t *testing.T) {
	ttl := 100 * time.Millisecond
	cleanupInterval := 50 * time.Millisecond
	store := NewMemoryStoreWithTTL(10, ttl, cleanupInterval)
	defer store.Stop()

	if err := store.Put(context.Background(), testReport("ttl-test", time.Now(), 1)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	_, found, _ := store.GetLatest(context.Background(), "ttl-test")
	if !found {
		t.Fatal("Report should exist immediately after Put")
	}

	time.Sleep(ttl + cleanupInterval + 50*time.Millisecond)

	_, found, _ = store.GetLatest(context.Background(), "ttl-test")
	if found {
		t.Error("Report should be removed after TTL expiration")
	}
	if store.Len() != 0 {
		t.Errorf("Store should be empty after cleanup, got %d reports", store.Len())
	}
}

func TestMemoryStoreWithTTL_KeepsFresh(t *testing.T) {
	ttl := 200 * time.Millisecond
	cleanupInterval := 50 * time.Millisecond
	store := NewMemoryStoreWithTTL(10, ttl, cleanupInterval)
	defer store.Stop()

	ctx := context.Background()
	if err := store.Put(ctx, testReport("mixed", time.Now().Add(-time.Hour), 1)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, testReport("mixed", time.Now(), 2)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	time.Sleep(cleanupInterval + 50*time.Millisecond)

	reports, _ := store.List(ctx, "mixed", 0)
	if len(reports) != 1 {
		t.Fatalf("List() returned %d reports, want 1", len(reports))
	}
	if reports[0].Forecast.Avg != 2 {
		t.Errorf("fresh report should survive cleanup, got avg %v", reports[0].Forecast.Avg)
	}
}

func TestMemoryStoreWithTTL_Stop(t *testing.T) {
	store := NewMemoryStoreWithTTL(10, time.Second, 10*time.Millisecond)
	store.Stop()
	store.Stop()
}

func TestMemoryStore_StopWithoutTTL(t *testing.T) {
	store := NewMemoryStore(10)
	store.Stop()
}

func TestMemoryStoreWithTTL_PanicOnInvalidTTL(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewMemoryStoreWithTTL should panic on non-positive TTL")
		}
	}()
	NewMemoryStoreWithTTL(10, 0, time.Second)
}

func TestValidateRegion(t *testing.T) {
	tests := []struct {
		region  string
		wantErr bool
	}{
		{"East", false},
		{"Central India", false},
		{"eu-west_1", false},
		{"", true},
		{"a:b", true},
		{"a/b", true},
	}
	for _, tt := range tests {
		if err := ValidateRegion(tt.region); (err != nil) != tt.wantErr {
			t.Errorf("ValidateRegion(%q) error = %v, wantErr %v", tt.region, err, tt.wantErr)
		}
	}
}

func BenchmarkMemoryStore_ConcurrentAccess(b *testing.B) {
	store := NewMemoryStore(100)
	ctx := context.Background()
	report := testReport("bench", time.Now(), 1)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = store.Put(ctx, report)
			_, _, _ = store.GetLatest(ctx, "bench")
		}
	})
}
