package trace

import (
	"fmt"

	"github.com/sarchlab/cachemodel/cache"
	"github.com/sarchlab/cachemodel/recording"
)

// The tables a Runner records into.
const (
	AccessTable  = "accesses"
	SummaryTable = "run_summary"
)

// An AccessEntry is one replayed access as recorded in the database.
type AccessEntry struct {
	Seq                uint64
	Op                 string
	Address            uint64
	SetIndex           uint64
	Tag                uint64
	Hit                bool
	Evicted            bool
	WriteBackTriggered bool
}

// A SummaryEntry is the per-run aggregate as recorded in the database.
type SummaryEntry struct {
	CacheName  string
	Accesses   uint64
	Hits       uint64
	Misses     uint64
	WriteBacks uint64
	HitRate    float64
}

// A Runner replays traces against one cache.
type Runner struct {
	cache    *cache.Comp
	recorder recording.DataRecorder
}

// NewRunner creates a Runner for the given cache.
func NewRunner(c *cache.Comp) *Runner {
	return &Runner{cache: c}
}

// WithRecorder makes the runner record every access and a run summary. The
// runner creates its tables at attach time.
func (r *Runner) WithRecorder(recorder recording.DataRecorder) *Runner {
	r.recorder = recorder
	recorder.CreateTable(AccessTable, AccessEntry{})
	recorder.CreateTable(SummaryTable, SummaryEntry{})

	return r
}

// Run replays the accesses in order. Stores write a one-byte marker derived
// from the address; the model's behavior does not depend on the value. Run
// stops at the first failing access.
func (r *Runner) Run(accesses []Access) (cache.Statistics, error) {
	for i, access := range accesses {
		result, err := r.replay(access)
		if err != nil {
			return cache.Statistics{}, fmt.Errorf(
				"access %d (%s 0x%x): %w",
				i, access.Op, access.Address, err)
		}

		if r.recorder != nil {
			r.record(uint64(i), access, result)
		}
	}

	stats := r.cache.StatisticsSnapshot()

	if r.recorder != nil {
		r.recorder.InsertData(SummaryTable, SummaryEntry{
			CacheName:  r.cache.Name(),
			Accesses:   stats.Accesses,
			Hits:       stats.Hits,
			Misses:     stats.Misses,
			WriteBacks: stats.WriteBacks,
			HitRate:    stats.HitRate(),
		})
		r.recorder.Flush()
	}

	return stats, nil
}

func (r *Runner) replay(access Access) (cache.AccessResult, error) {
	if access.Op == OpWrite {
		return r.cache.Store(access.Address, []byte{byte(access.Address)})
	}

	_, result, err := r.cache.Load(access.Address)

	return result, err
}

func (r *Runner) record(
	seq uint64,
	access Access,
	result cache.AccessResult,
) {
	fields, err := r.cache.Layout().Decode(access.Address)
	if err != nil {
		// Replay already decoded this address successfully.
		panic(err)
	}

	r.recorder.InsertData(AccessTable, AccessEntry{
		Seq:                seq,
		Op:                 string(access.Op),
		Address:            access.Address,
		SetIndex:           fields.Index,
		Tag:                fields.Tag,
		Hit:                result.Hit,
		Evicted:            result.Evicted,
		WriteBackTriggered: result.WriteBackTriggered,
	})
}
