package monitor

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/log"
	"github.com/doridoridoriand/ipwatch/internal/ping"
	"github.com/doridoridoriand/ipwatch/internal/registry"
	"github.com/doridoridoriand/ipwatch/internal/state"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type allowAll struct{}

func (allowAll) Verify(string) error { return nil }

type step struct {
	Remove bool
	Octet  int
	Online bool
}

func genStep() gopter.Gen {
	return gopter.CombineGens(gen.Bool(), gen.IntRange(1, 8), gen.Bool()).Map(func(values []interface{}) step {
		return step{Remove: values[0].(bool), Octet: values[1].(int), Online: values[2].(bool)}
	})
}

// TestPropertyStatusTracksRegistry replays random add/remove/probe sequences
// and checks the view never reports an unregistered address.
func TestPropertyStatusTracksRegistry(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("status keys are registered and offline is sorted", prop.ForAll(
		func(steps []step) bool {
			store := state.NewStore()
			reg := registry.New(nil, nil, store, log.Nop())
			m := New(reg, store, allowAll{})
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			for i, st := range steps {
				address := fmt.Sprintf("198.51.100.%d", st.Octet)
				if st.Remove {
					_ = m.Remove(address, "")
				} else {
					_ = m.Add(address, "", "")
				}
				if _, ok := reg.Name(address); ok {
					result := ping.Result{Error: ping.ErrTimeout}
					if st.Online {
						result = ping.Result{Success: true, RTT: time.Millisecond}
					}
					store.Record(address, result, now.Add(time.Duration(i)*time.Second))
				}

				view := m.Status()
				for addr := range view.Status {
					if _, ok := view.Names[addr]; !ok {
						return false
					}
				}
				if !sort.StringsAreSorted(view.Offline) {
					return false
				}
				for _, addr := range view.Offline {
					if view.Status[addr].Online {
						return false
					}
				}
				if len(store.Snapshot()) != len(view.Status) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genStep()),
	))

	props.TestingRun(t)
}
