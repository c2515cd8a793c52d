package ecs

// tableSlice is a range of rows of one active matched table, after filters,
// offset and limit were applied.
type tableSlice struct {
	mt    *matchedTable
	first int
	count int
}

// job is a contiguous run of rows, possibly spanning several tables, handed
// to one executor. table indexes the slice list, row is relative to it.
type job struct {
	table       int
	row         int
	count       int
	frameOffset int
}

// jobKey identifies the inputs a cached partition was computed from.
type jobKey struct {
	topology uint64
	version  uint64
	threads  int
	offset   int
	limit    int
	filter   Family
}

type jobCache struct {
	valid  bool
	key    jobKey
	slices []tableSlice
	jobs   []job
}

// partition splits the rows described by counts into at most threads jobs of
// nearly equal size. Rounding residue is carried from job to job and a job
// takes an extra row once it exceeds one, so the sizes differ by at most one
// and always add up to the total.
func partition(counts []int, threads int) []job {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 || threads < 1 {
		return nil
	}

	n := min(threads, total)
	perJob := float64(total) / float64(n)
	jobs := make([]job, 0, n)

	var residual float64
	table, row, remaining := 0, 0, total

	for j := 0; j < n && remaining > 0; j++ {
		want := int(perJob)
		residual += perJob - float64(want)
		if residual >= 1.0-1e-9 {
			want++
			residual -= 1.0
		}
		if j == n-1 || want > remaining {
			want = remaining
		}

		for table < len(counts) && row >= counts[table] {
			table++
			row = 0
		}
		jobs = append(jobs, job{table: table, row: row, count: want, frameOffset: total - remaining})

		for left := want; left > 0; {
			avail := counts[table] - row
			if left < avail {
				row += left
				left = 0
			} else {
				left -= avail
				table++
				row = 0
			}
		}
		remaining -= want
	}
	return jobs
}
