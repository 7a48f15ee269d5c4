// Package health turns an aggregated anomaly table into a weighted health
// score with a letter grade.
package health

import (
	"math"

	"fabriclens/internal/aggregate"
	"fabriclens/internal/domain"
)

// MaxScore is the score of a fabric with no findings
const MaxScore = 100.0

// categoryWeights sum to MaxScore
var categoryWeights = map[domain.Category]float64{
	domain.CategoryBER:        25,
	domain.CategoryErrors:     15,
	domain.CategoryCongestion: 15,
	domain.CategoryTopology:   15,
	domain.CategoryConfig:     10,
	domain.CategoryOther:      10,
	domain.CategoryLatency:    5,
	domain.CategoryBalance:    5,
}

var severityMultipliers = map[domain.Severity]float64{
	domain.SeverityCritical: 3.0,
	domain.SeverityWarning:  1.5,
	domain.SeverityInfo:     0.5,
}

// CategoryWeight returns the fixed weight of a category
func CategoryWeight(c domain.Category) float64 {
	return categoryWeights[c]
}

// SeverityMultiplier returns the deduction multiplier of a severity.
// Unknown severities deduct nothing.
func SeverityMultiplier(s domain.Severity) float64 {
	return severityMultipliers[s]
}

// Grade is the letter grade of a score
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFor maps a score to its grade
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// Status returns the status text of the grade
func (g Grade) Status() string {
	switch g {
	case GradeA:
		return "healthy"
	case GradeB:
		return "good"
	case GradeC:
		return "fair"
	case GradeD:
		return "degraded"
	default:
		return "critical"
	}
}

// EntityCounts are the fabric totals the score is reported against
type EntityCounts struct {
	Nodes int `json:"nodes"`
	Ports int `json:"ports"`
	Links int `json:"links"`
}

// Subscore is the score of one category. Deduction is the part of the
// weight actually lost, so it never exceeds Weight.
type Subscore struct {
	Category  domain.Category `json:"category"`
	Weight    float64         `json:"weight"`
	Deduction float64         `json:"deduction"`
	Score     float64         `json:"score"`
	Records   int             `json:"records"`
}

// Score is the overall health assessment
type Score struct {
	Score      float64         `json:"score"`
	Grade      Grade           `json:"grade"`
	Status     string          `json:"status"`
	Categories []Subscore      `json:"categories"`
	Entities   EntityCounts    `json:"entities"`
	Records    aggregate.Table `json:"records"`
}

// Compute scores an aggregated table.
//
// Each category deducts Σ(weight × severity multiplier) over its records
// from its fixed weight, never going below zero. The overall score is the
// sum of the subscores. Deductions are never negative, so adding a record
// can never raise the score.
func Compute(table aggregate.Table, counts EntityCounts) *Score {
	deductions := make(map[domain.Category]float64, len(categoryWeights))
	records := make(map[domain.Category]int, len(categoryWeights))
	for _, r := range table {
		c := r.Category
		if _, ok := categoryWeights[c]; !ok {
			c = domain.CategoryOther
		}
		deductions[c] += deduction(r)
		records[c]++
	}

	s := &Score{
		Entities: counts,
		Records:  table.Clone(),
	}
	if s.Records == nil {
		s.Records = aggregate.Table{}
	}

	var total float64
	for _, c := range domain.Categories() {
		w := categoryWeights[c]
		d := deductions[c]
		sub := math.Max(0, w-d)
		total += sub
		s.Categories = append(s.Categories, Subscore{
			Category:  c,
			Weight:    w,
			Deduction: round(w - sub),
			Score:     round(sub),
			Records:   records[c],
		})
	}

	s.Score = clamp(round(total))
	s.Grade = GradeFor(s.Score)
	s.Status = s.Grade.Status()
	return s
}

// Subscore returns the subscore of a category
func (s *Score) Subscore(c domain.Category) (Subscore, bool) {
	for _, sub := range s.Categories {
		if sub.Category == c {
			return sub, true
		}
	}
	return Subscore{}, false
}

func deduction(r aggregate.Record) float64 {
	w := r.Weight
	if math.IsNaN(w) || w < 0 {
		return 0
	}
	return w * SeverityMultiplier(r.Severity)
}

func round(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > MaxScore:
		return MaxScore
	}
	return v
}
