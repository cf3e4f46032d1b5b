package corpus

import (
	"math/rand"

	"github.com/haasonsaas/routergen/internal/record"
)

// DefaultTrainRatio and DefaultSeed match the published corpus.
const (
	DefaultTrainRatio = 0.9
	DefaultSeed       = 42
)

// Split partitions examples into train and test, stratified by status. Each
// class is cut at floor(n*ratio), so the split is reproducible for a given
// input order and seed. The input slice is not modified.
func Split(examples []record.TrainingExample, ratio float64, seed int64) (train, test []record.TrainingExample) {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- reproducible shuffle, not security

	var complete, running []record.TrainingExample
	for _, ex := range examples {
		switch ex.Status() {
		case record.StatusComplete:
			complete = append(complete, ex)
		case record.StatusRunning:
			running = append(running, ex)
		}
	}

	shuffle(rng, complete)
	shuffle(rng, running)

	cc := cut(len(complete), ratio)
	rc := cut(len(running), ratio)

	train = make([]record.TrainingExample, 0, cc+rc)
	train = append(train, complete[:cc]...)
	train = append(train, running[:rc]...)

	test = make([]record.TrainingExample, 0, len(complete)-cc+len(running)-rc)
	test = append(test, complete[cc:]...)
	test = append(test, running[rc:]...)

	shuffle(rng, train)
	shuffle(rng, test)
	return train, test
}

func cut(n int, ratio float64) int {
	switch {
	case ratio <= 0:
		return 0
	case ratio >= 1:
		return n
	}
	return int(float64(n) * ratio)
}

func shuffle(rng *rand.Rand, items []record.TrainingExample) {
	rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
}

// CountByStatus tallies examples per status.
func CountByStatus(examples []record.TrainingExample) map[record.Status]int {
	out := make(map[record.Status]int, len(record.Statuses))
	for _, ex := range examples {
		out[ex.Status()]++
	}
	return out
}
