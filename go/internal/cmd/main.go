package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/go/internal/race/engine"
	"github.com/mcdev12/typerace/go/internal/race/scores"
	"github.com/mcdev12/typerace/go/internal/race/texts"
	"github.com/mcdev12/typerace/go/internal/race/transport"
)

const topicPrefix = "typing-game"

func main() {
	hostFlag := flag.Bool("host", false, "create a match and print its code")
	joinFlag := flag.String("join", "", "join a match by code")
	nameFlag := flag.String("name", "", "display name (max 15 chars)")
	configFlag := flag.String("config", "typerace.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg.applyEnv()
	if *nameFlag != "" {
		cfg.Race.Name = *nameFlag
	}
	if len(cfg.Race.Name) > 15 {
		cfg.Race.Name = cfg.Race.Name[:15]
	}

	setupLogger(cfg.LogPath)

	if *hostFlag == (*joinFlag != "") {
		fmt.Fprintln(os.Stderr, "pick one of -host or -join <code>")
		os.Exit(2)
	}

	engCfg := engine.Config{
		Name:             cfg.Race.Name,
		JoinTimeout:      cfg.joinTimeout(),
		ProgressInterval: cfg.progressInterval(),
	}
	if *hostFlag {
		engCfg.Role = engine.RoleHost
		engCfg.Topic = fmt.Sprintf("%s/%s", topicPrefix, strings.Split(uuid.New().String(), "-")[0])
		engCfg.RaceText = texts.Random()
	} else {
		engCfg.Role = engine.RoleGuest
		engCfg.Topic = strings.TrimSpace(*joinFlag)
	}

	tr, err := connectBroker(cfg)
	if err != nil {
		log.Error().Err(err).Msg("broker connection failed")
		fmt.Fprintf(os.Stderr, "could not reach the broker: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(tr, engCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("engine setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Run(ctx) }()

	if *hostFlag {
		fmt.Println("Game created! Share this code with your friend:")
		fmt.Printf("\n    %s\n\n", engCfg.Topic)
		fmt.Println("Waiting for them to join...")
	} else {
		fmt.Printf("Joining game %s...\n", engCfg.Topic)
	}

	select {
	case <-eng.Ready():
	case err := <-errCh:
		exitOnRunError(err)
		return
	}

	ui := newUI(eng, cancel)
	if err := ui.race(ctx, errCh); err != nil {
		log.Error().Err(err).Msg("race aborted")
		fmt.Fprintf(os.Stderr, "race aborted: %v\n", err)
		os.Exit(1)
	}

	res, ok := eng.Result()
	if !ok {
		fmt.Println("Race abandoned.")
		return
	}
	finishMatch(cfg, res)
}

// finishMatch announces the outcome, persists the winner's score and prints
// the leaderboard.
func finishMatch(cfg Config, res engine.Result) {
	if res.Won {
		fmt.Println("\nYou are the winner!")
	} else {
		fmt.Println("\nYou lose! Better luck next time.")
	}
	fmt.Printf("%s (You)  -> WPM: %.0f | Accuracy: %.1f%%\n", res.Local.Name, res.Local.WPM, res.Local.Accuracy)
	fmt.Printf("%s -> WPM: %.0f | Accuracy: %.1f%%\n", res.Remote.Name, res.Remote.WPM, res.Remote.Accuracy)

	repo, err := scores.Open(cfg.Leaderboard.Path)
	if err != nil {
		log.Error().Err(err).Msg("could not open leaderboard")
		return
	}
	defer repo.Close()

	if res.Won {
		entry := scores.Entry{
			Name:       res.Local.Name,
			WPM:        res.Local.WPM,
			Accuracy:   res.Local.Accuracy,
			RecordedAt: time.Now(),
		}
		if err := repo.Add(entry); err != nil {
			log.Error().Err(err).Msg("could not save score")
		}
	}

	printLeaderboard(repo)
}

func printLeaderboard(repo *scores.Repository) {
	top, err := repo.Top(scores.Keep)
	if err != nil {
		log.Error().Err(err).Msg("could not read leaderboard")
		return
	}

	fmt.Printf("\n--- Leaderboard (Top %d) ---\n", scores.Keep)
	if len(top) == 0 {
		fmt.Println("No scores yet!")
		return
	}
	fmt.Printf("%-5s %-15s %5s %10s %18s\n", "Rank", "Name", "WPM", "Accuracy", "Date")
	for i, e := range top {
		fmt.Printf("%-5d %-15s %5.0f %9.1f%% %18s\n",
			i+1, e.Name, e.WPM, e.Accuracy, e.RecordedAt.Format("2006-01-02 15:04"))
	}
}

func connectBroker(cfg Config) (transport.Transport, error) {
	switch cfg.Broker.Kind {
	case "nats":
		return transport.ConnectNATS(cfg.Broker.URL)
	case "relay":
		return transport.ConnectRelay(cfg.Broker.URL)
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}
}

func exitOnRunError(err error) {
	switch {
	case errors.Is(err, engine.ErrOpponentTimeout):
		fmt.Fprintln(os.Stderr, "Game did not start: opponent not found.")
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		fmt.Println("Cancelled.")
	case err != nil:
		log.Error().Err(err).Msg("match failed")
		fmt.Fprintf(os.Stderr, "match failed: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger sends structured logs to a file; stdout belongs to the
// terminal UI.
func setupLogger(path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Logger = zerolog.Nop()
		return
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
}
