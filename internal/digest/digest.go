// Package digest posts complaint statistics on a cron schedule.
package digest

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"

	"complaintdesk/internal/config"
	"complaintdesk/internal/domain"
)

type StatsSource interface {
	Statistics() (domain.Statistics, error)
}

type Poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// StartDigestScheduler runs the digest on cfg.DigestSchedule, a standard
// 5-field cron expression. With no Slack poster or channel the digest is
// only logged.
func StartDigestScheduler(cfg config.Config, src StatsSource, api Poster) {
	schedule := strings.TrimSpace(cfg.DigestSchedule)
	if schedule == "" {
		log.Println("Digest disabled (digest_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid digest_schedule '%s': %v, digest disabled", schedule, err)
		return
	}
	log.Printf("Digest scheduled (cron: %s) channel=%s", schedule, cfg.DigestChannelID)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			if _, err := Run(src, api, cfg.DigestChannelID); err != nil {
				log.Printf("Digest error: %v", err)
			}
		}
	}()
}

// Run builds one digest and posts it when a poster and channel are set.
func Run(src StatsSource, api Poster, channelID string) (string, error) {
	st, err := src.Statistics()
	if err != nil {
		return "", fmt.Errorf("load statistics: %w", err)
	}
	text := FormatStatistics(st)
	log.Printf("digest built total=%d", st.TotalCount)

	if api == nil || channelID == "" {
		return text, nil
	}
	if _, _, err := api.PostMessage(channelID, slack.MsgOptionText(text, false)); err != nil {
		return text, fmt.Errorf("post digest to %s: %w", channelID, err)
	}
	log.Printf("digest posted channel=%s", channelID)
	return text, nil
}

// FormatStatistics renders counts in enumeration order, skipping zeros.
func FormatStatistics(st domain.Statistics) string {
	var sb strings.Builder
	sb.WriteString("*Complaint Statistics*\n")
	sb.WriteString(fmt.Sprintf("Total: %d\n", st.TotalCount))
	if st.TotalCount == 0 {
		return strings.TrimRight(sb.String(), "\n")
	}

	section := func(title string, keys []string, counts map[string]int) {
		var lines []string
		for _, k := range keys {
			if n := counts[k]; n > 0 {
				lines = append(lines, fmt.Sprintf("- %s: %d", k, n))
			}
		}
		if len(lines) == 0 {
			return
		}
		sb.WriteString(fmt.Sprintf("\n*%s*\n", title))
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n")
	}

	section("By category", toStrings(domain.Categories), st.CountsByCategory)
	section("By severity", toStrings(domain.Severities), st.CountsBySeverity)
	section("By status", toStrings(domain.Statuses), st.CountsByStatus)
	return strings.TrimRight(sb.String(), "\n")
}

func toStrings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}
