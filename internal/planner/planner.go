// Package planner decides how many augmented copies an image gets.
package planner

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/model-collapse/aug-balance/internal/census"
)

// InvalidCountError means a label frequency that cannot be used as a divisor reached the
// planner. The frequency table and the image disagree, so the run should stop.
type InvalidCountError struct {
	Label string
	Count int
	Max   int
}

func (e *InvalidCountError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("invalid label count %d (max %d)", e.Count, e.Max)
	}
	return fmt.Sprintf("invalid count %d for label %q (max %d)", e.Count, e.Label, e.Max)
}

// Plan returns the number of augmented copies for an image carrying a label seen labelCount
// times, when the most frequent label of the split was seen maxCount times.
//
// The majority label still gets one copy: (max-max+max)/max == 1.
func Plan(labelCount, maxCount int) (int, error) {
	if labelCount <= 0 || maxCount < labelCount {
		return 0, &InvalidCountError{Count: labelCount, Max: maxCount}
	}
	deficit := maxCount - labelCount
	return (deficit + labelCount) / labelCount, nil
}

// LabelPlan is the copy count derived from one label of an image.
type LabelPlan struct {
	Label  string
	Count  int
	Copies int
}

// PlanImage plans one augmentation pass per distinct label of an image, in first-seen order.
// Copies from different labels are not merged: an image with two rare labels is augmented
// twice over.
func PlanImage(table census.Table, labels []string) ([]LabelPlan, error) {
	_, maxCount := table.Max()
	plans := make([]LabelPlan, 0, len(labels))
	for _, label := range lo.Uniq(labels) {
		count := table[label]
		copies, err := Plan(count, maxCount)
		if err != nil {
			return nil, &InvalidCountError{Label: label, Count: count, Max: maxCount}
		}
		plans = append(plans, LabelPlan{Label: label, Count: count, Copies: copies})
	}
	return plans, nil
}

// Total sums the copies of a set of plans.
func Total(plans []LabelPlan) int {
	return lo.SumBy(plans, func(p LabelPlan) int { return p.Copies })
}
