package app

import (
	"sort"

	"phonoroom-service/internal/domain"
)

// studentStats pairs the running aggregate with the order the student was
// first seen, which is the final ranking tie-break.
type studentStats struct {
	seq int
	agg domain.StudentAggregate
}

// fold applies one answer event. Aggregates only ever grow; the event itself
// is never stored or mutated.
func (st *studentStats) fold(ev domain.AnswerEvent) {
	if ev.StudentName != "" {
		st.agg.StudentName = ev.StudentName
	}
	st.agg.Answered++
	if ev.Correct {
		st.agg.Correct++
	}
	st.agg.TotalElapsedMillis += ev.ElapsedMillis
}

func (s *RoomSession) snapshotLocked() domain.Snapshot {
	ordered := make([]*studentStats, 0, len(s.stats))
	for _, st := range s.stats {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	students := make([]domain.StudentAggregate, 0, len(ordered))
	global := domain.GlobalStats{}
	for _, st := range ordered {
		students = append(students, st.agg)
		global.TotalAnswered += st.agg.Answered
		global.TotalCorrect += st.agg.Correct
	}
	if global.TotalAnswered > 0 {
		global.AccuracyPct = float64(global.TotalCorrect) / float64(global.TotalAnswered) * 100
	}
	for _, m := range s.members {
		if m.participant.Role == domain.RoleStudent {
			global.ActiveStudentCount++
		}
	}

	return domain.Snapshot{
		RoomID:    s.roomID,
		Students:  students,
		Global:    global,
		Ranking:   rankStudents(ordered),
		UpdatedAt: s.now(),
	}
}

// rankStudents orders by accuracy descending, then average response time
// ascending, then first-seen order. The input is already in first-seen order,
// so a stable sort on the first two keys yields a deterministic ranking no
// matter what order the underlying events were folded in.
func rankStudents(ordered []*studentStats) []domain.RankingEntry {
	ranked := make([]*studentStats, len(ordered))
	copy(ranked, ordered)
	sort.SliceStable(ranked, func(i, j int) bool {
		ai, aj := ranked[i].agg.AccuracyPct(), ranked[j].agg.AccuracyPct()
		if ai != aj {
			return ai > aj
		}
		si, sj := ranked[i].agg.AverageSeconds(), ranked[j].agg.AverageSeconds()
		if si != sj {
			return si < sj
		}
		return false
	})

	entries := make([]domain.RankingEntry, 0, len(ranked))
	for _, st := range ranked {
		entries = append(entries, domain.RankingEntry{
			StudentID:      st.agg.StudentID,
			StudentName:    st.agg.StudentName,
			Score:          st.agg.AccuracyPct(),
			AverageSeconds: st.agg.AverageSeconds(),
		})
	}
	return entries
}
