package state

import (
	"testing"
	"time"

	"vigil/internal/model"
)

func testStreams() []model.StreamDescriptor {
	return []model.StreamDescriptor{
		{Name: "Cam1", Source: "rtsp://a", Enabled: true, SamplingRate: 1},
		{Name: "Cam2", Source: "rtsp://b", Enabled: true, SamplingRate: 2},
		{Name: "Disabled", Source: "rtsp://c", Enabled: false, SamplingRate: 1},
	}
}

func TestNewStoreTracksOnlyEnabledStreams(t *testing.T) {
	s := NewStore(testStreams(), time.Unix(0, 0))
	if s.Count() != 2 {
		t.Fatalf("expected 2 tracked streams, got %d", s.Count())
	}
	if _, ok := s.Get("Disabled"); ok {
		t.Fatal("disabled stream must not be tracked")
	}
	st, ok := s.Get("Cam1")
	if !ok {
		t.Fatal("Cam1 missing")
	}
	if !st.LastStatFlush.Equal(time.Unix(0, 0)) {
		t.Fatalf("initial flush time: %v", st.LastStatFlush)
	}
}

func TestSetPersonsReplacesList(t *testing.T) {
	s := NewStore(testStreams(), time.Unix(0, 0))
	s.SetPersons("Cam1", []model.PersonObservation{{Gender: "Man"}, {Gender: "Woman"}})
	s.SetPersons("Cam1", []model.PersonObservation{{Gender: "Man"}})
	st, _ := s.Get("Cam1")
	if len(st.Persons) != 1 {
		t.Fatalf("expected replacement, got %d observations", len(st.Persons))
	}
	// unknown streams are ignored, not created
	s.SetPersons("Nope", []model.PersonObservation{{}})
	if s.Count() != 2 {
		t.Fatalf("count changed: %d", s.Count())
	}
}

func TestMarkFlushedRecordsLastStat(t *testing.T) {
	s := NewStore(testStreams(), time.Unix(0, 0))
	at := time.Unix(100, 0).UTC()
	s.MarkFlushed("Cam1", at, model.StreamStat{ID: "a", StreamName: "Cam1", PersonCount: 3})

	st, _ := s.Get("Cam1")
	if !st.LastStatFlush.Equal(at) {
		t.Fatalf("flush time: %v", st.LastStatFlush)
	}
	stat, ok := s.LastStat("Cam1")
	if !ok || stat.PersonCount != 3 {
		t.Fatalf("last stat: %+v ok=%v", stat, ok)
	}
	if _, ok := s.LastStat("Cam2"); ok {
		t.Fatal("Cam2 has no stat yet")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := NewStore(testStreams(), time.Unix(0, 0))
	s.SetPersons("Cam1", []model.PersonObservation{{Gender: "Man"}})
	s.MarkAlert("Cam1", "smoking", time.Unix(50, 0))
	s.MarkFlushed("Cam1", time.Unix(60, 0), model.StreamStat{ID: "a", StreamName: "Cam1"})

	snaps := s.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("snapshots: %d", len(snaps))
	}
	var cam1 *Snapshot
	for i := range snaps {
		if snaps[i].Stream.Name == "Cam1" {
			cam1 = &snaps[i]
		}
	}
	if cam1 == nil {
		t.Fatal("Cam1 snapshot missing")
	}
	if cam1.PersonCount != 1 || cam1.LastStat == nil || cam1.LastStat.ID != "a" {
		t.Fatalf("snapshot content: %+v", cam1)
	}
	// mutating the snapshot must not touch the store
	cam1.ActiveAlerts["fainting"] = time.Now()
	st, _ := s.Get("Cam1")
	if _, leaked := st.ActiveAlerts["fainting"]; leaked {
		t.Fatal("snapshot alert map aliases store state")
	}
}
