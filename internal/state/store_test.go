package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/ping"
)

var (
	reachable   = ping.Result{Success: true, RTT: 12300 * time.Microsecond}
	unreachable = ping.Result{Error: fmt.Errorf("%w: test", ping.ErrTimeout)}
	errored     = ping.Result{Error: errSentinel{}}
)

func at(sec int) time.Time {
	return time.Date(2024, 5, 1, 10, 0, sec, 0, time.Local)
}

func TestNextTransitionTable(t *testing.T) {
	onlinePrev := Record{Online: true, ResponseTime: time.Millisecond, LastCheckedAt: at(0)}
	offlinePrev := Record{Online: false, LastCheckedAt: at(5), LastOnlineAt: at(0)}
	offlineNoLastOnline := Record{Online: false, LastCheckedAt: at(5)}
	now := at(10)

	cases := []struct {
		name           string
		prev           Record
		known          bool
		result         ping.Result
		wantOnline     bool
		wantLastOnline time.Time
	}{
		{name: "unknown reachable", result: reachable, wantOnline: true},
		{name: "unknown unreachable", result: unreachable, wantLastOnline: now},
		{name: "unknown errored", result: errored, wantLastOnline: now},
		{name: "online reachable", prev: onlinePrev, known: true, result: reachable, wantOnline: true},
		{name: "online unreachable", prev: onlinePrev, known: true, result: unreachable, wantLastOnline: at(0)},
		{name: "online errored", prev: onlinePrev, known: true, result: errored, wantLastOnline: at(0)},
		{name: "offline reachable", prev: offlinePrev, known: true, result: reachable, wantOnline: true},
		{name: "offline unreachable", prev: offlinePrev, known: true, result: unreachable, wantLastOnline: at(0)},
		{name: "offline without last online", prev: offlineNoLastOnline, known: true, result: errored, wantLastOnline: at(5)},
	}

	for _, tc := range cases {
		got := Next(tc.prev, tc.known, tc.result, now)
		if got.Online != tc.wantOnline {
			t.Fatalf("%s: online = %v, want %v", tc.name, got.Online, tc.wantOnline)
		}
		if !got.LastOnlineAt.Equal(tc.wantLastOnline) {
			t.Fatalf("%s: last online = %v, want %v", tc.name, got.LastOnlineAt, tc.wantLastOnline)
		}
		if !got.LastCheckedAt.Equal(now) {
			t.Fatalf("%s: last checked = %v, want %v", tc.name, got.LastCheckedAt, now)
		}
		if !got.Online && got.ResponseTime != 0 {
			t.Fatalf("%s: expected no response time while offline, got %v", tc.name, got.ResponseTime)
		}
	}
}

func TestNextTreatsZeroRTTAsUnreachable(t *testing.T) {
	got := Next(Record{}, false, ping.Result{Success: true}, at(0))
	if got.Online {
		t.Fatalf("expected zero RTT to be offline")
	}
}

func TestNextTruncatesToSeconds(t *testing.T) {
	now := at(3).Add(750 * time.Millisecond)
	got := Next(Record{}, false, reachable, now)
	if !got.LastCheckedAt.Equal(at(3)) {
		t.Fatalf("expected second precision, got %v", got.LastCheckedAt)
	}
}

func TestStoreEndToEndScenario(t *testing.T) {
	store := NewStore()
	t1 := at(0)
	t2 := at(5)

	first := store.Record("203.0.113.5", reachable, t1)
	if !first.Online || first.ResponseTimeLabel() != "12.30" || first.HasLastOnline() {
		t.Fatalf("unexpected first record: %+v (%s)", first, first.ResponseTimeLabel())
	}

	second := store.Record("203.0.113.5", unreachable, t2)
	if second.Online {
		t.Fatalf("expected offline after unreachable probe")
	}
	if !second.LastOnlineAt.Equal(t1) {
		t.Fatalf("expected last online %v, got %v", t1, second.LastOnlineAt)
	}
	if second.ResponseTimeLabel() != NotApplicable {
		t.Fatalf("expected N/A response time, got %q", second.ResponseTimeLabel())
	}

	third := store.Record("203.0.113.5", unreachable, at(10))
	if !third.LastOnlineAt.Equal(t1) {
		t.Fatalf("expected last online preserved, got %v", third.LastOnlineAt)
	}

	fourth := store.Record("203.0.113.5", reachable, at(15))
	if !fourth.Online || fourth.HasLastOnline() {
		t.Fatalf("expected recovery to clear last online, got %+v", fourth)
	}

	stored, ok := store.Get("203.0.113.5")
	if !ok || !reflect.DeepEqual(stored, fourth) {
		t.Fatalf("expected stored record %+v, got %+v (ok=%v)", fourth, stored, ok)
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	store := NewStore()
	store.Record("192.0.2.1", reachable, at(0))

	snapshot := store.Snapshot()
	delete(snapshot, "192.0.2.1")
	snapshot["192.0.2.2"] = Record{Online: true}

	if _, ok := store.Get("192.0.2.1"); !ok {
		t.Fatalf("expected snapshot mutation not to affect store")
	}
	if _, ok := store.Get("192.0.2.2"); ok {
		t.Fatalf("expected snapshot insert not to affect store")
	}
	if !reflect.DeepEqual(store.Snapshot(), store.Snapshot()) {
		t.Fatalf("expected repeated snapshots to be equal")
	}
}

func TestStoreRemove(t *testing.T) {
	store := NewStore()
	store.Record("192.0.2.1", reachable, at(0))
	store.Remove("192.0.2.1")
	store.Remove("192.0.2.99")

	if _, ok := store.Get("192.0.2.1"); ok {
		t.Fatalf("expected record removed")
	}
	if len(store.Snapshot()) != 0 {
		t.Fatalf("expected empty snapshot")
	}
}

func TestStoreConcurrentReadersSeeWholeRecords(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, record := range store.Snapshot() {
					if record.Online == record.HasLastOnline() {
						t.Errorf("torn record observed: %+v", record)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		result := reachable
		if i%3 == 0 {
			result = unreachable
		}
		store.Record("192.0.2.1", result, at(i%60))
	}
	close(stop)
	wg.Wait()
}

func TestTransitioned(t *testing.T) {
	online := Record{Online: true, LastCheckedAt: at(0)}
	offline := Record{LastCheckedAt: at(5), LastOnlineAt: at(0)}

	if Transitioned(Record{}, false, online) {
		t.Fatalf("first online probe is not a transition")
	}
	if !Transitioned(Record{}, false, offline) {
		t.Fatalf("first offline probe is a transition from assumed online")
	}
	if !Transitioned(online, true, offline) || !Transitioned(offline, true, online) {
		t.Fatalf("expected online/offline flips to be transitions")
	}
	if Transitioned(offline, true, offline) {
		t.Fatalf("expected repeated offline not to be a transition")
	}
}

func TestRecordMarshalJSON(t *testing.T) {
	online := Record{Online: true, ResponseTime: 12300 * time.Microsecond, LastCheckedAt: at(1)}
	data, err := json.Marshal(online)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"online":true,"response_time":"12.30","last_check":"2024-05-01 10:00:01","last_online":null}`
	if string(data) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", data, want)
	}

	offline := Record{LastCheckedAt: at(6), LastOnlineAt: at(1)}
	data, err = json.Marshal(offline)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"online":false,"response_time":"N/A","last_check":"2024-05-01 10:00:06","last_online":"2024-05-01 10:00:01"}`
	if string(data) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", data, want)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string {
	return "sentinel"
}
