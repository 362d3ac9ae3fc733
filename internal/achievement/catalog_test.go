package achievement

import (
	"testing"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	a, ok := c.Lookup("five_chores_week")
	if !ok {
		t.Fatal("five_chores_week missing from catalog")
	}
	if a.Metric != MetricApprovedLast7Days || a.Threshold != 5 {
		t.Errorf("five_chores_week = %+v", a)
	}
	if c[0].Key != "first_chore" {
		t.Errorf("first rule = %q, want first_chore", c[0].Key)
	}
}

func TestParseCatalogRejectsBadRules(t *testing.T) {
	tests := map[string]string{
		"missing key": `achievements: [{metric: total_approved, threshold: 1}]`,
		"duplicate":   `achievements: [{key: a, metric: total_approved, threshold: 1}, {key: a, metric: total_approved, threshold: 2}]`,
		"bad metric":  `achievements: [{key: a, metric: karma, threshold: 1}]`,
		"zero":        `achievements: [{key: a, metric: total_approved, threshold: 0}]`,
		"neg bonus":   `achievements: [{key: a, metric: total_approved, threshold: 1, bonus_points: -1}]`,
		"not yaml":    `achievements: [`,
	}
	for name, doc := range tests {
		if _, err := ParseCatalog([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCandidatesKeepCatalogOrder(t *testing.T) {
	c := Catalog{
		{Key: "b", Metric: MetricTotalApproved, Threshold: 2},
		{Key: "a", Metric: MetricTotalApproved, Threshold: 1},
		{Key: "s", Metric: MetricCurrentStreak, Threshold: 3},
	}
	got := c.Candidates(Metrics{MetricTotalApproved: 2, MetricCurrentStreak: 1})
	if len(got) != 2 || got[0].Key != "b" || got[1].Key != "a" {
		t.Errorf("Candidates = %+v", got)
	}
}
