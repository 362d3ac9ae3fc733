package achievement

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Metric names a stat a rule compares against its threshold.
type Metric string

const (
	MetricTotalApproved     Metric = "total_approved"
	MetricTotalPointsEarned Metric = "total_points_earned"
	MetricCurrentStreak     Metric = "current_streak"
	MetricApprovedLast7Days Metric = "approved_last_7_days"
)

func (m Metric) valid() bool {
	switch m {
	case MetricTotalApproved, MetricTotalPointsEarned, MetricCurrentStreak, MetricApprovedLast7Days:
		return true
	}
	return false
}

// Achievement is one badge definition: awarded once metric >= threshold.
type Achievement struct {
	Key         string `yaml:"key" json:"key"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Metric      Metric `yaml:"metric" json:"metric"`
	Threshold   int64  `yaml:"threshold" json:"threshold"`
	BonusPoints int64  `yaml:"bonus_points" json:"bonus_points"`
}

// Catalog is the ordered rule set.
type Catalog []Achievement

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultCatalog parses the built-in catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var doc struct {
		Achievements Catalog `yaml:"achievements"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse achievement catalog: %w", err)
	}

	seen := make(map[string]bool, len(doc.Achievements))
	for i, a := range doc.Achievements {
		switch {
		case a.Key == "":
			return nil, fmt.Errorf("achievement %d: missing key", i)
		case seen[a.Key]:
			return nil, fmt.Errorf("achievement %q: duplicate key", a.Key)
		case !a.Metric.valid():
			return nil, fmt.Errorf("achievement %q: unknown metric %q", a.Key, a.Metric)
		case a.Threshold <= 0:
			return nil, fmt.Errorf("achievement %q: threshold must be > 0", a.Key)
		case a.BonusPoints < 0:
			return nil, fmt.Errorf("achievement %q: bonus_points must be >= 0", a.Key)
		}
		seen[a.Key] = true
	}
	return doc.Achievements, nil
}

func (c Catalog) Lookup(key string) (Achievement, bool) {
	for _, a := range c {
		if a.Key == key {
			return a, true
		}
	}
	return Achievement{}, false
}

// Metrics is the snapshot a catalog is evaluated against.
type Metrics map[Metric]int64

// Candidates returns the achievements whose threshold m meets, in catalog order.
func (c Catalog) Candidates(m Metrics) []Achievement {
	var out []Achievement
	for _, a := range c {
		if m[a.Metric] >= a.Threshold {
			out = append(out, a)
		}
	}
	return out
}
