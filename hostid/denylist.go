package hostid

// Verdict is the outcome of checking an identity against a denylist.
type Verdict struct {
	Rule   string
	Vetoed bool
}

// Denylist is an ordered set of rules. The first matching rule wins.
// A Denylist is immutable once built and safe for concurrent use.
type Denylist struct {
	rules []Rule
}

// NewDenylist creates a denylist from rules.
func NewDenylist(rules ...Rule) *Denylist {
	return &Denylist{rules: append([]Rule(nil), rules...)}
}

// DefaultDenylist contains the hosts known to break the compiled adapter.
// The ios rule is a precaution: a native process there does not run on the
// affected WebKit engine, but the port is untested with the adapter.
func DefaultDenylist() *Denylist {
	return NewDenylist(MobileWebKit(), GOOSRule("ios"))
}

// With returns a new denylist with extra rules appended.
func (d *Denylist) With(rules ...Rule) *Denylist {
	out := make([]Rule, 0, d.Len()+len(rules))
	if d != nil {
		out = append(out, d.rules...)
	}
	return &Denylist{rules: append(out, rules...)}
}

// Len returns the number of rules.
func (d *Denylist) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rules)
}

// Names returns the rule names in evaluation order.
func (d *Denylist) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.Name()
	}
	return names
}

// Check evaluates id. A nil denylist vetoes nothing.
func (d *Denylist) Check(id Identity) Verdict {
	if d == nil {
		return Verdict{}
	}
	for _, r := range d.rules {
		if r.Matches(id) {
			return Verdict{Vetoed: true, Rule: r.Name()}
		}
	}
	return Verdict{}
}
