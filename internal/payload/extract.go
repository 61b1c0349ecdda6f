// Package payload normalizes billing-provider webhook payloads of arbitrary
// shape into the canonical subscription record fields. Providers do not share
// a payload schema, so every extractor is a recursive search over the decoded
// JSON tree rather than a struct decode.
package payload

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/creatorhub/creatorhub/internal/model"
)

// maxDepth bounds the recursive tree walks. JSON decoding already bounds
// nesting, this is a second guard against pathological payloads.
const maxDepth = 32

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

var eventNameKeys = []string{"event", "type", "evento", "event_name", "action"}

var statusKeys = []string{"status", "subscription_status", "payment_status"}

var planKeys = []string{"plan", "offer", "product", "product_name"}

var periodEndKeys = []string{
	"next_charge_date",
	"current_period_end",
	"expires_at",
	"expiration_date",
	"due_date",
	"renew_at",
}

// statusGroups maps keyword substrings to the closed status taxonomy.
// Order matters: the first group with a match wins.
var statusGroups = []struct {
	status   string
	keywords []string
}{
	{model.StatusActive, []string{"aprov", "approved", "paid", "renew", "renov"}},
	{model.StatusPastDue, []string{"atras", "past_due", "overdue"}},
	{model.StatusCanceled, []string{"cancel", "refund", "reembolso", "chargeback"}},
}

// ExtractEmail finds the first email address anywhere in the payload.
// Keys whose name contains "email" are searched before any other values,
// so `{"customer_email": "a@b.com", "note": "c@d.com"}` yields a@b.com.
// Returns "" when no email is present.
func ExtractEmail(v any) string {
	return extractEmail(v, 0)
}

func extractEmail(v any, depth int) string {
	if depth > maxDepth {
		return ""
	}
	switch val := v.(type) {
	case string:
		return emailPattern.FindString(val)
	case []any:
		for _, item := range val {
			if found := extractEmail(item, depth+1); found != "" {
				return found
			}
		}
	case map[string]any:
		keys := sortedKeys(val)
		for _, k := range keys {
			if strings.Contains(strings.ToLower(k), "email") {
				if found := extractEmail(val[k], depth+1); found != "" {
					return found
				}
			}
		}
		for _, k := range keys {
			if found := extractEmail(val[k], depth+1); found != "" {
				return found
			}
		}
	}
	return ""
}

// ExtractEventName returns the provider's event/type name. Top-level fields
// are checked first in priority order; if none holds a plain string the
// search falls back to the same recursive key scan used elsewhere.
func ExtractEventName(v any) string {
	if obj, ok := v.(map[string]any); ok {
		for _, k := range eventNameKeys {
			if s, ok := obj[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return firstString(v, eventNameKeys, 0)
}

// DeriveStatus classifies the event name plus any status-like field into the
// closed taxonomy. Unrecognized input maps to inactive (fail closed).
func DeriveStatus(eventName string, v any) string {
	fallback := firstString(v, statusKeys, 0)
	combined := strings.ToLower(eventName) + " " + strings.ToLower(fallback)

	for _, group := range statusGroups {
		for _, kw := range group.keywords {
			if strings.Contains(combined, kw) {
				return group.status
			}
		}
	}
	return model.StatusInactive
}

// ExtractPlan returns the provider's plan/offer/product label, or "".
func ExtractPlan(v any) string {
	return firstString(v, planKeys, 0)
}

// ExtractPeriodEnd returns the subscription period end as a UTC instant, or
// nil when no date-like field is present or the value doesn't parse.
func ExtractPeriodEnd(v any) *time.Time {
	raw := firstString(v, periodEndKeys, 0)
	if raw == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// firstString finds the first string value under any of the given key names.
// Key matching is case-insensitive because providers disagree on casing
// ("Product" vs "product"). A matched value that is an object with a string
// "name" field yields that name instead (providers nest products as
// {"product": {"name": "Pro"}}). Priority keys are checked at each level
// before recursing into children.
func firstString(v any, keys []string, depth int) string {
	if depth > maxDepth {
		return ""
	}
	switch val := v.(type) {
	case map[string]any:
		lowered := make(map[string]any, len(val))
		for _, k := range sortedKeys(val) {
			lk := strings.ToLower(k)
			if _, exists := lowered[lk]; !exists {
				lowered[lk] = val[k]
			}
		}
		for _, k := range keys {
			candidate, ok := lowered[k]
			if !ok {
				continue
			}
			if s, ok := candidate.(string); ok {
				return s
			}
			if obj, ok := candidate.(map[string]any); ok {
				if name, ok := obj["name"].(string); ok {
					return name
				}
			}
		}
		for _, k := range sortedKeys(val) {
			if found := firstString(val[k], keys, depth+1); found != "" {
				return found
			}
		}
	case []any:
		for _, item := range val {
			if found := firstString(item, keys, depth+1); found != "" {
				return found
			}
		}
	}
	return ""
}

// sortedKeys keeps the tree walks deterministic; Go map iteration order
// would otherwise make extraction results vary between runs.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
