package main

import (
	"flag"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"docsearch/internal/analysis"
	"docsearch/internal/client"
	"docsearch/internal/config"
	"docsearch/internal/conversation"
	"docsearch/internal/logger"
	"docsearch/internal/reader"
	"docsearch/internal/research"
	"docsearch/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docsearch/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.Log.Path, cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	api := client.New(client.Config{
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
		SearchCacheTTL: time.Duration(cfg.Backend.SearchCacheSecs) * time.Second,
	}, lg)

	// The program is created after the conversations; redraws sent before
	// that are dropped. Send runs on its own goroutine because OnChange may
	// fire from inside Update.
	var prog *tea.Program
	redraw := func() {
		if prog != nil {
			go prog.Send(tui.RedrawMsg{})
		}
	}

	// Each surface owns its own conversation and session.
	researchConv := conversation.New(api, lg, conversation.Options{Name: "research", Stateless: cfg.Chat.Stateless, OnChange: redraw})
	readerConv := conversation.New(api, lg, conversation.Options{Name: "reader", Stateless: cfg.Chat.Stateless, OnChange: redraw})

	res := research.New(api, researchConv, analysis.NewTrigger(cfg.Analysis.TopN, cfg.Analysis.SnippetChars),
		research.Options{TopK: cfg.Search.TopK, Mode: cfg.Search.Mode}, lg)
	rd := reader.New(api, readerConv, lg)
	rd.SetZoom(cfg.Reader.DefaultZoom)

	lg.Info("starting", zap.String("module", "main"), zap.String("backend", cfg.Backend.BaseURL))
	m := tui.New(res, rd, tui.Options{
		Timeout:      time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
		AutoAnalyze:  cfg.Analysis.Enabled,
		PageWidth:    cfg.Reader.PageWidth,
		PageHeight:   cfg.Reader.PageHeight,
		InitialQuery: strings.Join(flag.Args(), " "),
	})
	prog = tea.NewProgram(m, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		log.Fatal(err)
	}
}
