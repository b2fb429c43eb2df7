package model

import (
	"strconv"
	"strings"
)

// RosterRow is one line of the worker table shown after a run.
type RosterRow struct {
	WorkerID  string  `json:"workerId" yaml:"workerId"`
	Number    int     `json:"number" yaml:"number"`
	Skills    []int   `json:"skills" yaml:"skills"`
	HourlyPay float64 `json:"hourlyPay" yaml:"hourlyPay"`
	Jobs      []int   `json:"jobs" yaml:"jobs"` // job numbers in travel order
	Minutes   int     `json:"minutes" yaml:"minutes"`
}

// BuildRoster lays an assignment out in worker order. Workers missing from
// the assignment get an empty row.
func BuildRoster(workers []Worker, jobs []Job, a Assignment) []RosterRow {
	byID := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	rows := make([]RosterRow, 0, len(workers))
	for _, w := range workers {
		row := RosterRow{WorkerID: w.ID, Number: w.Number, Skills: w.Skills, HourlyPay: w.HourlyPay, Jobs: []int{}}
		for _, id := range a[w.ID] {
			j, ok := byID[id]
			if !ok {
				continue
			}
			row.Jobs = append(row.Jobs, j.Number)
			row.Minutes += j.Duration
		}
		rows = append(rows, row)
	}
	return rows
}

// JoinInts renders a list of ints the way the roster table prints them.
func JoinInts(v []int) string {
	var sb strings.Builder
	for i, n := range v {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}
