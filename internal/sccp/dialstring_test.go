package sccp

import (
	"reflect"
	"testing"
)

func TestParseDialString(t *testing.T) {
	tests := []struct {
		dial string
		want DialRequest
	}{
		{"100", DialRequest{Line: "100"}},
		{" 100 ", DialRequest{Line: "100"}},
		{"100@42", DialRequest{Line: "100", Subscription: SubscriptionID{Number: "42"}}},
		{"100@42:Front Desk", DialRequest{Line: "100", Subscription: SubscriptionID{Number: "42", Name: "Front Desk"}}},
		{"100@", DialRequest{Line: "100"}},
		{"100@:name", DialRequest{Line: "100"}},
		{"100@42/aa=2w,b", DialRequest{
			Line:            "100",
			Subscription:    SubscriptionID{Number: "42"},
			AutoAnswer:      AutoAnswerTwoWay,
			AutoAnswerCause: CauseBusy,
		}},
		{"100/aa1w", DialRequest{Line: "100", AutoAnswer: AutoAnswerOneWay}},
		{"100/aa2wu", DialRequest{Line: "100", AutoAnswer: AutoAnswerTwoWay, AutoAnswerCause: CauseUnavailable}},
		{"100/AA=1W/c", DialRequest{Line: "100", AutoAnswer: AutoAnswerOneWay, AutoAnswerCause: CauseCongestion}},
		{"100/ringer=urgent", DialRequest{Line: "100", Ringer: RingerUrgent}},
		{"100/ringer=loud", DialRequest{Line: "100", Ringer: RingerOutside}},
		{"100/aa=3w/x", DialRequest{Line: "100", Ignored: []string{"aa=3w", "x"}}},
		{"100//,", DialRequest{Line: "100"}},
		{"", DialRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.dial, func(t *testing.T) {
			got := ParseDialString(tt.dial)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDialString(%q) = %+v, want %+v", tt.dial, got, tt.want)
			}
		})
	}
}

func TestLineName(t *testing.T) {
	for dial, want := range map[string]string{
		"100":             "100",
		"100@42":          "100",
		"100@42:x/aa=1w":  "100",
		"200/ringer=soft": "200",
	} {
		if got := lineName(dial); got != want {
			t.Errorf("lineName(%q) = %q, want %q", dial, got, want)
		}
	}
}
