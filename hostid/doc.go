// Package hostid decides whether the compiled call adapter is safe on the
// current host.
//
// Detection is a pure function of an Identity: the same identity always
// yields the same Verdict. Rules are predicates kept apart from dispatch, so
// new defective-host rules are added to a Denylist without touching the call
// path:
//
//	deny := hostid.DefaultDenylist().With(myRule)
//	if v := deny.Check(hostid.Current()); v.Vetoed {
//	    // use the fallback strategy
//	}
//
// Detection errs toward vetoing. The built-in MobileWebKit rule is a
// heuristic over user agent and platform strings; it can be spoofed and is
// bound to one engine generation, so it is a workaround for a known defect
// and not a capability probe.
//
// Rule files are YAML, validated on load:
//
//	replace_defaults: false
//	rules:
//	  - name: old-webview
//	    user_agent: "Android 9; .*wv"
//	  - name: touch-mac
//	    platform: MacIntel
//	    min_touch_points: 2
package hostid
