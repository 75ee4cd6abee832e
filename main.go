package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carson-networks/fints-sync/internal/banking/bridge"
	"github.com/carson-networks/fints-sync/internal/bot"
	"github.com/carson-networks/fints-sync/internal/config"
	"github.com/carson-networks/fints-sync/internal/engine"
	"github.com/carson-networks/fints-sync/internal/forward"
	"github.com/carson-networks/fints-sync/internal/logging"
	"github.com/carson-networks/fints-sync/internal/session"
	"github.com/carson-networks/fints-sync/internal/storage"
)

// Exit codes: 0 success, 1 runtime failure, 2 configuration or usage error.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

type cliFlags struct {
	updateAPI    bool
	updateBot    bool
	testBot      bool
	account      string
	since        string
	days         int
	forceTan     bool
	resetSession bool
	verbose      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var flags cliFlags
	flag.BoolVar(&flags.updateAPI, "update-api", false, "fetch and post to the forecast API")
	flag.BoolVar(&flags.updateBot, "update-bot", false, "fetch and notify over the bot transport")
	flag.BoolVar(&flags.testBot, "test-bot", false, "only check bot connectivity")
	flag.StringVar(&flags.account, "account", "", "account profile name (from .env.<name>)")
	flag.StringVar(&flags.since, "since", "", "fetch window start, YYYY-MM-DD (interactive mode)")
	flag.IntVar(&flags.days, "days", 0, "look-back window in days")
	flag.BoolVar(&flags.forceTan, "tan", false, "re-select the TAN mechanism even when one is saved")
	flag.BoolVar(&flags.resetSession, "reset-session", false, "discard saved dialog state before connecting")
	flag.BoolVar(&flags.verbose, "verbose", false, "debug logging")
	flag.Parse()

	logger := logging.SetupLogging()
	logrus.SetFormatter(logger.Formatter)
	if flags.verbose {
		logger.SetLevel(logrus.DebugLevel)
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.Info("fints-sync starting")

	mode, err := selectMode(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	env, err := config.ProcessEnvironmentVariables()
	if err != nil {
		logrus.WithError(err).Error("config.ProcessEnvironmentVariables")
		return exitConfig
	}

	account, err := selectAccount(env, flags, mode)
	if err != nil {
		logrus.WithError(err).Error("account selection")
		return exitConfig
	}

	settings, err := config.LoadSettings(account)
	if err != nil {
		logrus.WithError(err).Error("account settings")
		return exitConfig
	}

	sessions := session.NewStore(env.StateDir)
	if flags.resetSession {
		if err := sessions.Clear(account); err != nil {
			logrus.WithError(err).Warn("could not discard saved session state")
		}
	}

	return logging.RunWrapper(mode.String(), logger, func(logData *logging.LogData) (int, error) {
		switch mode {
		case engine.ModeBotTest:
			return runTestBot(account)
		case engine.ModeAPISync:
			return runAPISync(env, account, settings, sessions, flags, logData)
		case engine.ModeBotUpdate:
			return runBotUpdate(env, account, settings, sessions, flags, logData)
		default:
			return runInteractive(env, account, settings, sessions, flags, logData)
		}
	})
}

func selectMode(flags cliFlags) (engine.Mode, error) {
	selected := 0
	mode := engine.ModeInteractive
	if flags.updateAPI {
		selected++
		mode = engine.ModeAPISync
	}
	if flags.updateBot {
		selected++
		mode = engine.ModeBotUpdate
	}
	if flags.testBot {
		selected++
		mode = engine.ModeBotTest
	}
	if selected > 1 {
		return 0, errors.New("at most one of -update-api, -update-bot, -test-bot may be given")
	}
	return mode, nil
}

// selectAccount resolves the profile this run works on. Only interactive
// runs may ask; unattended modes must be told or have exactly one choice.
func selectAccount(env *config.Config, flags cliFlags, mode engine.Mode) (config.AccountProfile, error) {
	profiles, err := config.DiscoverAccounts(env.StateDir)
	if err != nil {
		return config.AccountProfile{}, err
	}

	var chooser config.Chooser
	if mode == engine.ModeInteractive {
		console := bot.NewConsoleMessenger()
		chooser = func(prompt string, profiles []config.AccountProfile) (string, error) {
			ctx := context.Background()
			console.Send(ctx, "", "Multiple accounts configured:")
			for i, p := range profiles {
				console.Send(ctx, "", fmt.Sprintf("%d %s", i, p.Name))
			}
			return console.Prompt(ctx, "", prompt)
		}
	}

	return config.SelectAccount(profiles, flags.account, chooser)
}

func runInteractive(env *config.Config, account config.AccountProfile, settings config.Settings, sessions *session.Store, flags cliFlags, logData *logging.LogData) (int, error) {
	profile := engine.Profile{
		Mode:         engine.ModeInteractive,
		LookbackDays: engine.InteractiveLookbackDays,
	}
	if flags.days > 0 {
		profile.LookbackDays = flags.days
	}
	if flags.since != "" {
		start, err := time.Parse("2006-01-02", flags.since)
		if err != nil {
			return exitConfig, fmt.Errorf("-since must be YYYY-MM-DD, got %q", flags.since)
		}
		profile.StartDate = start
	}

	dialer, err := bridge.NewDialer(env.BankingHelper)
	if err != nil {
		return exitConfig, err
	}

	e := &engine.Engine{
		Dialer:            dialer,
		Sessions:          sessions,
		Ledger:            storage.NewStorage(env),
		Handler:           bot.NewConsoleHandler(bot.NewConsoleMessenger()),
		Profile:           profile,
		ForceTanSelection: flags.forceTan,
	}

	result, err := e.Run(context.Background(), account, settings, logData)
	if err != nil {
		return exitFailure, err
	}

	fmt.Printf("\nAccount: %s\n", account.Name)
	fmt.Printf("Balance: %s€ (as of %s)\n", result.Balance.StringFixed(2), result.BalanceAsOf.Format("2006-01-02"))
	fmt.Printf("Transactions (%d):\n", len(result.Fetched))
	for _, tx := range result.Fetched {
		fmt.Println(forward.FormatTransactionLine(tx))
	}
	return exitOK, nil
}

func runAPISync(env *config.Config, account config.AccountProfile, settings config.Settings, sessions *session.Store, flags cliFlags, logData *logging.LogData) (int, error) {
	apiSettings, err := config.LoadAPISettings(account)
	if err != nil {
		return exitConfig, err
	}

	client := forward.NewForecastClient(apiSettings)
	// Fail before opening a banking dialog when the sink is down; dialogs
	// cost TAN interactions.
	if err := client.Ping(context.Background()); err != nil {
		return exitFailure, err
	}

	dialer, err := bridge.NewDialer(env.BankingHelper)
	if err != nil {
		return exitConfig, err
	}

	console := bot.NewConsoleMessenger()
	e := &engine.Engine{
		Dialer:     dialer,
		Sessions:   sessions,
		Ledger:     storage.NewStorage(env),
		Handler:    bot.NewConsoleHandler(console),
		Forwarders: []forward.Forwarder{client},
		Messenger:  console,
		Profile: engine.Profile{
			Mode:                 engine.ModeAPISync,
			StartDate:            apiSettings.StartDate,
			ForwardBalanceAlways: true,
			NotifyDetails:        true,
		},
		ForceTanSelection: flags.forceTan,
	}

	result, err := e.Run(context.Background(), account, settings, logData)
	if err != nil {
		return exitFailure, err
	}

	logrus.Info(result.Summary())
	if result.Failed > 0 {
		return exitFailure, fmt.Errorf("%d transaction(s) failed to forward", result.Failed)
	}
	return exitOK, nil
}

func runBotUpdate(env *config.Config, account config.AccountProfile, settings config.Settings, sessions *session.Store, flags cliFlags, logData *logging.LogData) (int, error) {
	botSettings, err := config.LoadBotSettings(account)
	if err != nil {
		return exitConfig, err
	}

	dialer, err := bridge.NewDialer(env.BankingHelper)
	if err != nil {
		return exitConfig, err
	}

	messenger := bot.NewConsoleMessenger()
	profile := engine.Profile{
		Mode:         engine.ModeBotUpdate,
		LookbackDays: botSettings.TransactionDays,
	}
	if flags.days > 0 {
		profile.LookbackDays = flags.days
	}

	e := &engine.Engine{
		Dialer:            dialer,
		Sessions:          sessions,
		Ledger:            storage.NewStorage(env),
		Handler:           bot.NewMessengerHandler(messenger, botSettings.Target, botSettings.TanTimeout),
		Forwarders:        []forward.Forwarder{forward.NewBotNotifier(messenger, botSettings.Target)},
		Messenger:         messenger,
		NotifyTarget:      botSettings.Target,
		Profile:           profile,
		ForceTanSelection: flags.forceTan,
	}

	result, err := e.Run(context.Background(), account, settings, logData)
	if err != nil {
		return exitFailure, err
	}

	logrus.Info(result.Summary())
	if result.Failed > 0 {
		return exitFailure, fmt.Errorf("%d notification(s) failed to deliver", result.Failed)
	}
	return exitOK, nil
}

func runTestBot(account config.AccountProfile) (int, error) {
	botSettings, err := config.LoadBotSettings(account)
	if err != nil {
		return exitConfig, err
	}

	messenger := bot.NewConsoleMessenger()
	if err := messenger.Send(context.Background(), botSettings.Target, "fints-sync bot connectivity test"); err != nil {
		return exitFailure, err
	}
	logrus.WithField("target", botSettings.Target).Info("bot test message delivered")
	return exitOK, nil
}
