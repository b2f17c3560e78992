package results

import (
	"sort"

	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
)

// Result is the last attempt of one completed task.
type Result struct {
	TaskID   int64   `json:"task_id"`
	Worker   string  `json:"worker"`
	Duration float64 `json:"duration"`
}

type Report struct {
	Policy  string   `json:"policy"`
	Results []Result `json:"results"`
}

// Export lists completed tasks with the duration of their last attempt, in
// seconds, attributed to their current worker. Unfinished tasks are omitted.
func Export(policy string, ts []tasks.Task) Report {
	out := Report{Policy: policy, Results: []Result{}}
	for _, t := range ts {
		if t.FinishedAt == nil {
			continue
		}
		d := t.FinishedAt.Sub(t.StartedAt).Seconds()
		if d < 0 {
			d = 0
		}
		out.Results = append(out.Results, Result{TaskID: t.ID, Worker: t.WorkerID, Duration: d})
	}
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].TaskID < out.Results[j].TaskID })
	return out
}

type WorkerSummary struct {
	Tasks       int     `json:"tasks"`
	BusySeconds float64 `json:"busy_seconds"`
}

// Summary aggregates a report the way experiment comparisons read it.
type Summary struct {
	Policy       string                   `json:"policy"`
	Completed    int                      `json:"completed"`
	MeanDuration float64                  `json:"mean_duration"`
	Makespan     float64                  `json:"makespan"`
	Workers      map[string]WorkerSummary `json:"workers"`
}

// Summarize computes per-worker totals and the makespan, the busy time of
// the most loaded worker.
func Summarize(r Report) Summary {
	s := Summary{Policy: r.Policy, Completed: len(r.Results), Workers: map[string]WorkerSummary{}}
	var total float64
	for _, res := range r.Results {
		ws := s.Workers[res.Worker]
		ws.Tasks++
		ws.BusySeconds += res.Duration
		s.Workers[res.Worker] = ws
		total += res.Duration
	}
	if s.Completed > 0 {
		s.MeanDuration = total / float64(s.Completed)
	}
	for _, ws := range s.Workers {
		if ws.BusySeconds > s.Makespan {
			s.Makespan = ws.BusySeconds
		}
	}
	return s
}
