package digest

import (
	"errors"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"complaintdesk/internal/domain"
)

type fakeStats struct {
	st  domain.Statistics
	err error
}

func (f fakeStats) Statistics() (domain.Statistics, error) { return f.st, f.err }

type fakePoster struct {
	channels []string
	err      error
}

func (p *fakePoster) PostMessage(channelID string, _ ...slack.MsgOption) (string, string, error) {
	p.channels = append(p.channels, channelID)
	return channelID, "1700000000.000100", p.err
}

func sampleStats() domain.Statistics {
	return domain.Statistics{
		TotalCount:       3,
		CountsByCategory: map[string]int{"bug": 2, "ux_ui": 1},
		CountsBySeverity: map[string]int{"medium": 2, "critical": 1},
		CountsByStatus:   map[string]int{"routed": 3},
	}
}

func TestFormatStatistics(t *testing.T) {
	got := FormatStatistics(sampleStats())
	want := strings.Join([]string{
		"*Complaint Statistics*",
		"Total: 3",
		"",
		"*By category*",
		"- bug: 2",
		"- ux_ui: 1",
		"",
		"*By severity*",
		"- medium: 2",
		"- critical: 1",
		"",
		"*By status*",
		"- routed: 3",
	}, "\n")
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatStatisticsEmpty(t *testing.T) {
	got := FormatStatistics(domain.Statistics{})
	if got != "*Complaint Statistics*\nTotal: 0" {
		t.Fatalf("unexpected empty digest: %q", got)
	}
}

func TestRunPostsToChannel(t *testing.T) {
	p := &fakePoster{}
	text, err := Run(fakeStats{st: sampleStats()}, p, "CDIGEST")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(text, "Total: 3") {
		t.Fatalf("unexpected digest text: %q", text)
	}
	if len(p.channels) != 1 || p.channels[0] != "CDIGEST" {
		t.Fatalf("expected one post to CDIGEST, got %v", p.channels)
	}
}

func TestRunWithoutChannelOnlyBuilds(t *testing.T) {
	p := &fakePoster{}
	if _, err := Run(fakeStats{st: sampleStats()}, p, ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(p.channels) != 0 {
		t.Fatalf("expected no posts without a channel, got %v", p.channels)
	}
	if _, err := Run(fakeStats{st: sampleStats()}, nil, "CDIGEST"); err != nil {
		t.Fatalf("Run without poster failed: %v", err)
	}
}

func TestRunPropagatesErrors(t *testing.T) {
	if _, err := Run(fakeStats{err: errors.New("db closed")}, &fakePoster{}, "C1"); err == nil {
		t.Fatal("expected statistics error")
	}
	if _, err := Run(fakeStats{st: sampleStats()}, &fakePoster{err: errors.New("rate limited")}, "C1"); err == nil {
		t.Fatal("expected post error")
	}
}
