package alerts

import (
	"fmt"
	"testing"
	"time"

	"vigil/internal/model"
)

func alertAt(i int, stream string) model.Alert {
	return model.Alert{
		ID:         fmt.Sprintf("a%d", i),
		Timestamp:  time.Unix(int64(i), 0),
		StreamName: stream,
		EventType:  "smoking",
	}
}

func TestStoreEvictsOldestAtLimit(t *testing.T) {
	s := NewStore(3)
	for i := 1; i <= 5; i++ {
		s.Add(alertAt(i, "Cam1"))
	}
	list := s.List(0)
	if len(list) != 3 {
		t.Fatalf("expected limit-sized buffer, got %d", len(list))
	}
	if list[0].ID != "a3" || list[2].ID != "a5" {
		t.Fatalf("expected oldest evicted: %v", list)
	}
}

func TestListLimitReturnsNewest(t *testing.T) {
	s := NewStore(10)
	for i := 1; i <= 5; i++ {
		s.Add(alertAt(i, "Cam1"))
	}
	list := s.List(2)
	if len(list) != 2 || list[0].ID != "a4" || list[1].ID != "a5" {
		t.Fatalf("newest two expected: %v", list)
	}
}

func TestSinceIsInclusive(t *testing.T) {
	s := NewStore(10)
	for i := 1; i <= 4; i++ {
		s.Add(alertAt(i, "Cam1"))
	}
	list := s.Since(time.Unix(3, 0))
	if len(list) != 2 || list[0].ID != "a3" {
		t.Fatalf("since cutoff: %v", list)
	}
}

func TestForStreamFilters(t *testing.T) {
	s := NewStore(10)
	s.Add(alertAt(1, "Cam1"))
	s.Add(alertAt(2, "Cam2"))
	s.Add(alertAt(3, "Cam1"))
	list := s.ForStream("Cam1", 0)
	if len(list) != 2 || list[1].ID != "a3" {
		t.Fatalf("stream filter: %v", list)
	}
	if got := s.ForStream("Cam1", 1); len(got) != 1 || got[0].ID != "a3" {
		t.Fatalf("stream filter with limit: %v", got)
	}
}
