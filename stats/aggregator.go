package stats

import (
	"fmt"
	"os"
)

// Aggregator owns the training and test tables of a run.
type Aggregator struct {
	Train *Table
	Test  *Table
}

// NewAggregator returns empty tables of the standard widths.
func NewAggregator() *Aggregator {
	return &Aggregator{
		Train: NewTable(TrainColumns),
		Test:  NewTable(TestColumns),
	}
}

// RecordTrain appends a training row.
func (a *Aggregator) RecordTrain(r Row) error {
	return a.Train.Append(r.Values(TrainColumns))
}

// RecordTest appends a test row; the gradient field is not stored.
func (a *Aggregator) RecordTest(r Row) error {
	return a.Test.Append(r.Values(TestColumns))
}

// Save writes both tables to the given files. Empty paths are skipped.
func (a *Aggregator) Save(trainFile, testFile string) error {
	for _, f := range []struct {
		path  string
		table *Table
	}{{trainFile, a.Train}, {testFile, a.Test}} {
		if f.path == "" {
			continue
		}
		if err := writeFile(f.path, f.table); err != nil {
			return err
		}
	}
	return nil
}

// Load restores both tables from the given files.
func (a *Aggregator) Load(trainFile, testFile string) error {
	train, err := readFile(trainFile, TrainColumns)
	if err != nil {
		return err
	}
	test, err := readFile(testFile, TestColumns)
	if err != nil {
		return err
	}
	a.Train, a.Test = train, test
	return nil
}

func writeFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stats: create %s: %w", path, err)
	}
	if _, err := t.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("stats: write %s: %w", path, err)
	}
	return f.Close()
}

func readFile(path string, width int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stats: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadTable(f, width)
}
