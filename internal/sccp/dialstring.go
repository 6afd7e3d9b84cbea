package sccp

import (
	"strings"
)

// DialRequest is a parsed dial string of the form
//
//	line[@subNumber[:subName]][/option[/option...]]
//
// Options may also be separated by commas.
type DialRequest struct {
	Line            string
	Subscription    SubscriptionID
	AutoAnswer      AutoAnswer
	AutoAnswerCause Cause
	Ringer          Ringer
	// Ignored lists option tokens that were not understood.
	Ignored []string
}

// ParseDialString never fails: malformed subscription syntax yields an
// empty subscription id and unknown options end up in Ignored.
func ParseDialString(dial string) DialRequest {
	var req DialRequest

	head, opts, _ := strings.Cut(strings.TrimSpace(dial), "/")
	line, sub, hasSub := strings.Cut(head, "@")
	req.Line = strings.TrimSpace(line)
	if hasSub {
		num, name, _ := strings.Cut(sub, ":")
		num = strings.TrimSpace(num)
		if num != "" {
			req.Subscription = SubscriptionID{Number: num, Name: strings.TrimSpace(name)}
		}
	}

	tokens := strings.FieldsFunc(opts, func(r rune) bool { return r == '/' || r == ',' })
	for i := 0; i < len(tokens); i++ {
		tok := strings.ToLower(strings.TrimSpace(tokens[i]))
		switch {
		case tok == "":
		case strings.HasPrefix(tok, "aa"):
			mode, cause, ok := parseAutoAnswer(tok)
			if !ok {
				req.Ignored = append(req.Ignored, tokens[i])
				continue
			}
			req.AutoAnswer, req.AutoAnswerCause = mode, cause
			if cause == CauseNone && i+1 < len(tokens) {
				if c, ok := parseCause(strings.ToLower(strings.TrimSpace(tokens[i+1]))); ok {
					req.AutoAnswerCause = c
					i++
				}
			}
		case strings.HasPrefix(tok, "ringer="):
			req.Ringer = parseRinger(strings.TrimPrefix(tok, "ringer="))
		default:
			req.Ignored = append(req.Ignored, tokens[i])
		}
	}
	return req
}

// parseAutoAnswer accepts aa1w, aa2w, aa=1w, aa=2w with an optional
// trailing cause letter.
func parseAutoAnswer(tok string) (AutoAnswer, Cause, bool) {
	rest := strings.TrimPrefix(strings.TrimPrefix(tok, "aa"), "=")
	var mode AutoAnswer
	switch {
	case strings.HasPrefix(rest, "1w"):
		mode = AutoAnswerOneWay
	case strings.HasPrefix(rest, "2w"):
		mode = AutoAnswerTwoWay
	default:
		return AutoAnswerNone, CauseNone, false
	}
	rest = rest[2:]
	if rest == "" {
		return mode, CauseNone, true
	}
	cause, ok := parseCause(rest)
	if !ok {
		return AutoAnswerNone, CauseNone, false
	}
	return mode, cause, true
}

func parseCause(s string) (Cause, bool) {
	switch s {
	case "b":
		return CauseBusy, true
	case "u":
		return CauseUnavailable, true
	case "c":
		return CauseCongestion, true
	}
	return CauseNone, false
}

func parseRinger(s string) Ringer {
	switch s {
	case "inside":
		return RingerInside
	case "feature":
		return RingerFeature
	case "silent":
		return RingerSilent
	case "urgent":
		return RingerUrgent
	default:
		return RingerOutside
	}
}

// lineName strips options and subscription from a dial string.
func lineName(dial string) string {
	head, _, _ := strings.Cut(dial, "/")
	name, _, _ := strings.Cut(head, "@")
	return strings.TrimSpace(name)
}
