package app

import (
	"log"
	"time"

	"github.com/slack-go/slack"

	"complaintdesk/internal/complaint"
	"complaintdesk/internal/config"
	"complaintdesk/internal/digest"
	"complaintdesk/internal/httpx"
	"complaintdesk/internal/intake"
	slackbot "complaintdesk/internal/integrations/slack"
	"complaintdesk/internal/rules"
	"complaintdesk/internal/storage/sqlite"
)

func Main() {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Operators=%d RoutingChannels=%d Timezone=%s SimilarityThreshold=%.2f SecondaryMargin=%.2f ClarificationRounds=%d DigestSchedule=%q ExternalHTTPTimeout=%s",
		len(cfg.OperatorSlackIDs),
		len(cfg.RoutingChannels),
		cfg.Timezone,
		cfg.SimilarityThreshold,
		cfg.SecondaryMargin,
		cfg.MaxClarificationRounds,
		cfg.DigestSchedule,
		appliedHTTPTimeout,
	)

	r, err := rules.Load(cfg.RulesPath)
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}
	cfg.ApplyRuleOverrides(r)
	log.Printf("Rules loaded. Categories=%d RootCausePatterns=%d Triggers=%d SimilarityThreshold=%.2f SecondaryMargin=%.2f",
		len(r.CategoryPriority), len(r.RootCauses), len(r.Triggers), r.Similarity.Threshold, r.SecondaryMargin)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer db.Close()

	store := sqlite.NewStore(db)
	clock := func() time.Time { return time.Now().In(cfg.Location) }
	store.SetClock(clock)

	if !cfg.SlackEnabled() {
		svc := complaint.NewService(store, r, r.Similarity.Threshold, complaint.WithClock(clock))
		if cfg.DigestSchedule == "" {
			log.Println("Slack disabled and no digest_schedule set; nothing to run")
			return
		}
		digest.StartDigestScheduler(cfg, svc, nil)
		log.Println("Slack disabled; running statistics digest only")
		select {}
	}

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
		slack.OptionHTTPClient(httpx.Client()),
	)

	operators := slackbot.NewOperators(api, cfg.OperatorSlackIDs)
	unresolved, err := operators.Resolve()
	if err != nil {
		log.Printf("WARNING: could not resolve operator names: %v", err)
	}
	if len(unresolved) > 0 {
		log.Printf("WARNING: unresolved operators (retried on later commands): %v", unresolved)
	}

	svc := complaint.NewService(store, r, r.Similarity.Threshold,
		complaint.WithClock(clock),
		complaint.WithNotifier(slackbot.NewRoutingNotifier(api, cfg.RoutingChannel)),
	)
	digest.StartDigestScheduler(cfg, svc, api)

	commands := slackbot.NewCommands(svc, r.Intake.Questions, cfg.MaxClarificationRounds, intake.RandomPicker, operators.IsOperator)

	log.Println("Starting Complaint Desk Bot...")
	if err := slackbot.StartSlackBot(commands, api); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
