package hub

import "regexp"

// OriginMatcher accepts a string, a *regexp.Regexp, a slice of either, or "*" (allow
// all) -- "Origin matcher type accepts string, RegExp, or array thereof".
type OriginMatcher any

// OriginValidator is the unifying predicate names: "(origin, data, context)
// => bool with exception-as-deny semantics". data/context are passed as `any` since
// their concrete types (frame.Frame, msgctx.Context) live in packages that would import
// hub, creating a cycle; callers type-assert as needed.
type OriginValidator func(origin string, data any, ctx any) bool

// MatchOrigin implements matchOrigin(origin, matcher) predicate.
func MatchOrigin(origin string, matcher OriginMatcher) bool {
	switch m := matcher.(type) {
	case nil:
		return true
	case string:
		return m == "*" || m == origin
	case *regexp.Regexp:
		return m.MatchString(origin)
	case []string:
		for _, s := range m {
			if MatchOrigin(origin, s) {
				return true
			}
		}
		return false
	case []*regexp.Regexp:
		for _, r := range m {
			if MatchOrigin(origin, r) {
				return true
			}
		}
		return false
	case []OriginMatcher:
		for _, sub := range m {
			if MatchOrigin(origin, sub) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// IsOriginAllowedBy resolves precedence: an explicit validator wins
// (exceptions treated as disallow); else an expectedOrigin string (unless "*") must
// match exactly; else allow.
func IsOriginAllowedBy(origin string, data any, ctx any, expectedOrigin string, validator OriginValidator) (allowed bool) {
	if validator != nil {
		defer func() {
			if r := recover(); r != nil {
				allowed = false
			}
		}()
		return validator(origin, data, ctx)
	}
	if expectedOrigin != "" && expectedOrigin != "*" {
		return expectedOrigin == origin
	}
	return true
}
