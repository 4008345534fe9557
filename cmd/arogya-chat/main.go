// Command arogya-chat runs a consultation in the terminal. Keys come from the
// environment and, when AROGYA_RELAY_URL is set, from a running arogya relay.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/MikeSquared-Agency/arogya/internal/config"
	"github.com/MikeSquared-Agency/arogya/internal/consult"
	"github.com/MikeSquared-Agency/arogya/internal/intake"
	"github.com/MikeSquared-Agency/arogya/internal/keys"
	"github.com/MikeSquared-Agency/arogya/internal/llm"
	"github.com/MikeSquared-Agency/arogya/internal/report"
)

const help = `Commands:
  /report                 print the report
  /report pdf|txt|html    save the report to the current directory
  /lang <language>        switch language (english, hindi, marathi, kannada)
  /quit                   leave`

func main() {
	lang := flag.String("lang", "english", "conversation language")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Parse()

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, *lang, os.Stdin, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, lang string, in io.Reader, out io.Writer, logger *slog.Logger) error {
	apiKeys := keys.Keys{Groq: cfg.GroqAPIKey, Perplexity: cfg.PerplexityAPIKey, Gemini: cfg.GeminiAPIKey}
	if cfg.RelayURL != "" {
		fetched, err := keys.NewFetcher(cfg.RelayURL, cfg.RelayToken).Fetch(ctx)
		if err != nil {
			fmt.Fprintf(out, "(key relay unavailable: %v)\n", err)
		} else {
			apiKeys = apiKeys.Merge(fetched)
		}
	}
	if apiKeys.Empty() {
		fmt.Fprintln(out, "(no API keys configured; replies will be apologies)")
	}

	chain, err := llm.New(ctx, llm.Config{
		GroqKey:         apiKeys.Groq,
		GroqModel:       cfg.GroqModel,
		PerplexityKey:   apiKeys.Perplexity,
		PerplexityModel: cfg.PerplexityModel,
		GeminiKey:       apiKeys.Gemini,
		GeminiModel:     cfg.GeminiModel,
		Timeout:         cfg.LLMTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("build llm providers: %w", err)
	}

	svc := consult.New(chain, report.NewAssembler(), report.NewExporter(cfg.UnidocLicenseKey, logger),
		consult.Options{Policy: intake.Policy{RecollectPatient: cfg.RecollectPatient}}, logger)

	snap, err := svc.Start(ctx, lang)
	if err != nil {
		return err
	}
	id := snap.SessionID
	fmt.Fprintf(out, "%s\n\n%s\n\n", snap.Greeting, help)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/quit", "/exit":
			return svc.End(ctx, id)
		case "/help":
			fmt.Fprintln(out, help)
		case "/lang":
			snap, err := svc.SetLanguage(ctx, id, arg)
			if err != nil {
				fmt.Fprintln(out, "!", err)
				continue
			}
			fmt.Fprintf(out, "language: %s\n", snap.Language)
			if len(snap.Transcript) <= 1 {
				fmt.Fprintln(out, snap.Greeting)
			}
		case "/report":
			saveReport(ctx, svc, id, arg, out)
		default:
			turn, err := svc.Send(ctx, id, line)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				fmt.Fprintln(out, "!", err)
				continue
			}
			printTurn(out, turn)
		}
	}
}

func printTurn(out io.Writer, turn *consult.Turn) {
	if turn.EmergencyAlert != "" {
		fmt.Fprintf(out, "\n%s\n", turn.EmergencyAlert)
	}
	fmt.Fprintf(out, "\n%s\n", turn.Reply)
	if turn.InfoRequest != "" && turn.InfoRequest != turn.Reply {
		fmt.Fprintf(out, "\n%s\n", turn.InfoRequest)
	}
	if turn.ReportReady {
		fmt.Fprintln(out, "\n(report ready: type /report to save it)")
	}
	fmt.Fprintln(out)
}

func saveReport(ctx context.Context, svc *consult.Service, id, format string, out io.Writer) {
	if format == "" {
		r, err := svc.Report(ctx, id)
		if err != nil {
			printReportError(out, err)
			return
		}
		fmt.Fprintf(out, "\n%s\n", report.RenderText(r))
		return
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		fmt.Fprintln(out, "!", err)
		return
	}
	doc, err := svc.Export(ctx, id, f)
	if err != nil {
		printReportError(out, err)
		return
	}
	if err := os.WriteFile(doc.Name, doc.Data, 0o644); err != nil {
		fmt.Fprintln(out, "!", fmt.Errorf("write report: %w", err))
		return
	}
	if doc.Degraded {
		fmt.Fprintf(out, "(%s was unavailable, saved as %s)\n", f, doc.Format)
	}
	fmt.Fprintf(out, "saved %s\n", doc.Name)
}

func printReportError(out io.Writer, err error) {
	var nre *consult.NotReadyError
	if errors.As(err, &nre) {
		fmt.Fprintln(out, nre.Message)
		return
	}
	fmt.Fprintln(out, "!", err)
}
