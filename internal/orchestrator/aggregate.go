package orchestrator

import (
	"fmt"
	"time"

	"vigil/internal/model"
	"vigil/internal/state"
)

// Accepted gender tokens. Matching is exact: analyzers in the wild report
// either "Man"/"Woman" or "Male"/"Female" and nothing else is counted.
var (
	maleTokens   = map[string]bool{"Man": true, "Male": true}
	femaleTokens = map[string]bool{"Woman": true, "Female": true}
)

// Aggregate summarizes a stream's current observations into one stat
// record. Pure function of the state: calling it twice on unchanged state
// yields identical records. The record ID is assigned at flush time.
func Aggregate(st *state.StreamState, now time.Time) model.StreamStat {
	stat := model.StreamStat{
		StreamName:  st.Stream.Name,
		CapturedAt:  now,
		PersonCount: len(st.Persons),
	}
	ageDist := make(map[string]int)
	emotionDist := make(map[string]int)
	for _, obs := range st.Persons {
		if maleTokens[obs.Gender] {
			stat.MaleCount++
		}
		if femaleTokens[obs.Gender] {
			stat.FemaleCount++
		}
		if obs.Age != nil {
			bucket := fmt.Sprintf("%ds", (*obs.Age/10)*10)
			ageDist[bucket]++
		}
		if obs.Emotion != "" {
			emotionDist[obs.Emotion]++
		}
	}
	if len(ageDist) > 0 {
		stat.AgeDistribution = ageDist
	}
	if len(emotionDist) > 0 {
		stat.EmotionDistribution = emotionDist
	}
	return stat
}
