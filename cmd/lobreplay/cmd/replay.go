package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"cosmossdk.io/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/ladder"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
	"github.com/openalpha/lobcore/internal/session"
	"github.com/openalpha/lobcore/metrics"
)

// tickEnvelope is this CLI's own JSONL wire format — one line per message,
// tagged by kind. Wire decoding of the real SZSE/SSE feeds is an external
// collaborator's concern (§1 Non-goals); this is just a convenient
// internal replay format, not the exchange's own encoding.
type tickEnvelope struct {
	Kind        string               `json:"kind"`
	AddOrder    *message.AddOrder    `json:"add_order,omitempty"`
	Execution   *message.Execution   `json:"execution,omitempty"`
	RefSnapshot *message.RefSnapshot `json:"ref_snapshot,omitempty"`
	Signal      *message.Signal      `json:"signal,omitempty"`
}

func (e tickEnvelope) toMessage() message.Message {
	switch e.Kind {
	case "add_order":
		if e.AddOrder == nil {
			return nil
		}
		return *e.AddOrder
	case "execution":
		if e.Execution == nil {
			return nil
		}
		return *e.Execution
	case "ref_snapshot":
		if e.RefSnapshot == nil {
			return nil
		}
		return *e.RefSnapshot
	case "signal":
		if e.Signal == nil {
			return nil
		}
		return *e.Signal
	default:
		return nil
	}
}

func newReplayCmd() *cobra.Command {
	var (
		ticksFile   string
		metricsAddr string
		wsAddr      string
		exchange    string
		instrument  string
		securityID  string
		isGEM       bool
		backend     string
		runID       string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL tick file through the core and print the reconciliation verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := initViper()
			if ticksFile == "" {
				ticksFile = v.GetString("ticks_file")
			}
			if securityID == "" {
				securityID = v.GetString("security_id")
			}
			if runID == "" {
				runID = uuid.NewString()
			}

			ex := parseExchange(exchange)
			inst := parseInstrument(instrument)
			spec, err := precision.Lookup(ex, inst)
			if err != nil {
				return err
			}

			cfg := book.Config{
				Exchange:   ex,
				Instrument: inst,
				SecurityID: securityID,
				Spec:       spec,
				IsGEM:      isGEM,
				Backend:    parseBackend(backend),
			}
			b := book.New(cfg, log.NewLogger(os.Stderr).With("run_id", runID))
			ctrl := session.New(b)
			collector := metrics.GetCollector()

			var hub *wsHub
			mux := http.NewServeMux()
			if wsAddr != "" {
				hub = newWSHub()
				go hub.run()
				mux.HandleFunc("/ws", hub.serveHTTP)
			}
			serveAddr := metricsAddr
			if serveAddr == "" {
				serveAddr = wsAddr
			}
			if serveAddr != "" {
				mux.Handle("/metrics", promhttp.Handler())
				go func() {
					if err := http.ListenAndServe(serveAddr, mux); err != nil {
						b.Logger.Error("metrics/websocket server stopped", "err", err)
					}
				}()
			}

			b.Logger.Info("starting replay", "ticks", ticksFile, "security_id", securityID)
			if err := replayFile(ticksFile, ctrl, collector, securityID, hub); err != nil {
				return err
			}

			ok := ctrl.Reconciler.AreYouOK()
			collector.ReconcileUnmatched.WithLabelValues(securityID).Set(float64(ctrl.Reconciler.UnmatchedCount()))
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "AreYouOK: true")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "AreYouOK: false (%d unmatched exchange snapshots)\n", ctrl.Reconciler.UnmatchedCount())
			return nil
		},
	}

	cmd.Flags().StringVar(&ticksFile, "ticks", "", "path to a JSONL tick file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on, e.g. :9090")
	cmd.Flags().StringVar(&wsAddr, "ws-addr", "", "address to serve a live snapshot websocket on, e.g. :9091")
	cmd.Flags().StringVar(&exchange, "exchange", "SZSE", "SZSE or SSE")
	cmd.Flags().StringVar(&instrument, "instrument", "STOCK", "STOCK, FUND, KZZ or BOND")
	cmd.Flags().StringVar(&securityID, "security-id", "", "security identifier, for labeling metrics/logs")
	cmd.Flags().BoolVar(&isGEM, "gem", false, "treat the instrument as SZSE ChiNext/GEM (enables the cage controller)")
	cmd.Flags().StringVar(&backend, "backend", "btree", "ladder backend: btree or skiplist")
	cmd.Flags().StringVar(&runID, "run-id", "", "correlation id for this run's log lines (default: a generated uuid)")

	return cmd
}

func replayFile(path string, ctrl *session.Controller, collector *metrics.Collector, securityID string, hub *wsHub) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("replay: open ticks file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lastPhase := ctrl.Book.Phase
	lastMatched := ctrl.Reconciler.MatchedCount()
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env tickEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return fmt.Errorf("replay: decode tick: %w", err)
		}
		m := env.toMessage()
		if m == nil {
			continue
		}
		snaps, err := ctrl.OnMessage(m)
		if err != nil {
			collector.TicksRejected.WithLabelValues(securityID, env.Kind).Inc()
			ctrl.Book.Logger.Error("tick rejected", "kind", env.Kind, "err", err)
			continue
		}
		collector.TicksProcessed.WithLabelValues(securityID, env.Kind).Inc()
		if phase := ctrl.Book.Phase; phase != lastPhase {
			collector.PhaseTransitions.WithLabelValues(securityID, phase.String()).Inc()
			lastPhase = phase
		}
		if matched := ctrl.Reconciler.MatchedCount(); matched != lastMatched {
			collector.ReconcileMatched.WithLabelValues(securityID).Add(float64(matched - lastMatched))
			lastMatched = matched
		}
		for _, s := range snaps {
			collector.SnapshotsEmitted.WithLabelValues(securityID, s.Phase.String()).Inc()
			if hub != nil {
				hub.broadcast(s)
			}
		}
	}
	return scanner.Err()
}

func parseExchange(s string) precision.Exchange {
	if s == "SSE" {
		return precision.SSE
	}
	return precision.SZSE
}

func parseInstrument(s string) precision.Instrument {
	switch s {
	case "FUND":
		return precision.Fund
	case "KZZ":
		return precision.KZZ
	case "BOND":
		return precision.Bond
	default:
		return precision.Stock
	}
}

func parseBackend(s string) ladder.Backend {
	if s == "skiplist" {
		return ladder.SkipList
	}
	return ladder.BTree
}
