package features

import (
	"github.com/HatiCode/demandcast/pkg/history"
	"gonum.org/v1/gonum/stat"
)

// Rule declares how one feature is produced.
type Rule struct {
	// Name is the feature name the rule writes.
	Name string

	// Stage is the pipeline stage the rule runs in.
	Stage Stage

	// Deps are the feature or column names the formula reads.
	Deps []string

	// MinHistory is the number of records the rule needs at the end of the
	// history (0 for rules that only read the draft row).
	MinHistory int

	eval  func(hist history.Series, draft history.Record) (float64, bool)
	ratio *ratio
}

// Eval computes the rule against hist and the current draft row.
// It reports false when an input is unavailable.
func (r Rule) Eval(hist history.Series, draft history.Record) (float64, bool) {
	if r.MinHistory > 0 && (hist == nil || hist.Len() < r.MinHistory) {
		return 0, false
	}
	return r.eval(hist, draft)
}

// ratio describes a derived feature: sum(num) / den.
// den is either a feature (guarded by Epsilon) or a constant divisor.
type ratio struct {
	num     []string
	den     string
	divisor float64
}

func (q ratio) deps() []string {
	deps := append([]string{}, q.num...)
	if q.den != "" {
		deps = append(deps, q.den)
	}
	return deps
}

// strict requires every operand to be present.
func (q ratio) strict(get func(string) (float64, bool)) (float64, bool) {
	var sum float64
	for _, n := range q.num {
		v, ok := get(n)
		if !ok {
			return 0, false
		}
		sum += v
	}
	return q.divide(sum, get, false)
}

// permissive substitutes 0 for missing numerator operands and 1 for a
// missing denominator.
func (q ratio) permissive(get func(string) (float64, bool)) float64 {
	var sum float64
	for _, n := range q.num {
		if v, ok := get(n); ok {
			sum += v
		}
	}
	v, _ := q.divide(sum, get, true)
	return v
}

func (q ratio) divide(sum float64, get func(string) (float64, bool), permissive bool) (float64, bool) {
	switch {
	case q.den != "":
		d, ok := get(q.den)
		if !ok {
			if !permissive {
				return 0, false
			}
			d = 1
		}
		return sum / (d + Epsilon), true
	case q.divisor != 0:
		return sum / q.divisor, true
	default:
		return sum, true
	}
}

// Registry is the ordered table of every feature the engine knows how to build.
type Registry struct {
	rules  []Rule
	byName map[string]int
}

// NewRegistry builds a registry over rules, keeping their order.
func NewRegistry(rules ...Rule) *Registry {
	r := &Registry{byName: make(map[string]int, len(rules))}
	for _, rule := range rules {
		if i, ok := r.byName[rule.Name]; ok {
			r.rules[i] = rule
			continue
		}
		r.byName[rule.Name] = len(r.rules)
		r.rules = append(r.rules, rule)
	}
	return r
}

// Lookup returns the rule producing name.
func (r *Registry) Lookup(name string) (Rule, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Rule{}, false
	}
	return r.rules[i], true
}

// Rules returns the rules in registration order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Stage returns the rules of stage s in registration order.
func (r *Registry) Stage(s Stage) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.Stage == s {
			out = append(out, rule)
		}
	}
	return out
}

// Names returns every feature name in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.Name
	}
	return out
}

// DefaultRegistry returns the feature set the demand models are trained on.
func DefaultRegistry() *Registry {
	var rules []Rule
	rules = append(rules, calendarRules()...)
	rules = append(rules, lagRules()...)
	rules = append(rules, rollingRules()...)
	rules = append(rules, derivedRules()...)
	return NewRegistry(rules...)
}

// Calendar rules read the template (last history record), never the draft,
// so the year rollover sees the unadvanced month.
func calendarRules() []Rule {
	template := func(hist history.Series, col string) (float64, bool) {
		last, ok := hist.Back(1)
		if !ok {
			return 0, false
		}
		return last.Get(col)
	}
	nextMonth := func(m float64) float64 {
		return float64(int(m)%12 + 1)
	}

	return []Rule{
		{
			Name:       history.ColMonth,
			Stage:      StageCalendar,
			Deps:       []string{history.ColMonth},
			MinHistory: 1,
			eval: func(hist history.Series, _ history.Record) (float64, bool) {
				m, ok := template(hist, history.ColMonth)
				if !ok {
					return 0, false
				}
				return nextMonth(m), true
			},
		},
		{
			Name:       history.ColYear,
			Stage:      StageCalendar,
			Deps:       []string{history.ColYear, history.ColMonth},
			MinHistory: 1,
			eval: func(hist history.Series, _ history.Record) (float64, bool) {
				y, ok := template(hist, history.ColYear)
				if !ok {
					return 0, false
				}
				m, ok := template(hist, history.ColMonth)
				if !ok {
					return 0, false
				}
				if nextMonth(m) == 1 {
					y++
				}
				return y, true
			},
		},
		{
			// Toggling is an approximation of the real weekday sequence.
			Name:       history.ColIsWeekend,
			Stage:      StageCalendar,
			Deps:       []string{history.ColIsWeekend},
			MinHistory: 1,
			eval: func(hist history.Series, _ history.Record) (float64, bool) {
				w, ok := template(hist, history.ColIsWeekend)
				if !ok {
					return 0, false
				}
				return 1 - w, true
			},
		},
	}
}

func lagRules() []Rule {
	var rules []Rule
	for _, k := range LagOffsets {
		for _, metric := range LaggedMetrics {
			rules = append(rules, Rule{
				Name:       LagName(metric, k),
				Stage:      StageLag,
				Deps:       []string{metric},
				MinHistory: k,
				eval: func(hist history.Series, _ history.Record) (float64, bool) {
					rec, ok := hist.Back(k)
					if !ok {
						return 0, false
					}
					return rec.Get(metric)
				},
			})
		}
	}
	return rules
}

func rollingRules() []Rule {
	var rules []Rule
	for _, metric := range LaggedMetrics {
		for _, w := range RollingWindows {
			rules = append(rules,
				Rule{
					Name:       RollingMeanName(metric, w),
					Stage:      StageRolling,
					Deps:       []string{metric},
					MinHistory: w,
					eval: func(hist history.Series, _ history.Record) (float64, bool) {
						vals, ok := hist.Window(metric, w)
						if !ok {
							return 0, false
						}
						return stat.Mean(vals, nil), true
					},
				},
				Rule{
					Name:       RollingStdName(metric, w),
					Stage:      StageRolling,
					Deps:       []string{metric},
					MinHistory: w,
					eval: func(hist history.Series, _ history.Record) (float64, bool) {
						vals, ok := hist.Window(metric, w)
						if !ok {
							return 0, false
						}
						_, std := stat.PopMeanStdDev(vals, nil)
						return std, true
					},
				},
			)
		}
	}
	return rules
}

func derivedRules() []Rule {
	cpuLag := LagName(history.ColUsageCPU, 1)
	storageLag := LagName(history.ColUsageStorage, 1)
	usersLag := LagName(history.ColUsersActive, 1)

	defs := []struct {
		name string
		q    ratio
	}{
		{CPUPerUser, ratio{num: []string{cpuLag}, den: usersLag}},
		{StoragePerUser, ratio{num: []string{storageLag}, den: usersLag}},
		{CPUStorageRatio, ratio{num: []string{cpuLag}, den: storageLag}},
		{EconDemandRatio, ratio{num: []string{history.ColEconomicIndex}, den: history.ColCloudMarketDemand}},
		{SystemStress, ratio{num: []string{cpuLag, storageLag, usersLag}}},
		{CPUUtilizationRatio, ratio{num: []string{cpuLag}, divisor: 100}},
		{StorageEfficiency, ratio{num: []string{storageLag}, den: usersLag}},
	}

	rules := make([]Rule, 0, len(defs))
	for _, d := range defs {
		q := d.q
		rules = append(rules, Rule{
			Name:  d.name,
			Stage: StageDerived,
			Deps:  q.deps(),
			eval: func(_ history.Series, draft history.Record) (float64, bool) {
				return q.strict(draft.Get)
			},
			ratio: &q,
		})
	}
	return rules
}
