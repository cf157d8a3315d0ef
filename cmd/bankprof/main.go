// Command bankprof soaks the media engine: it builds a theme bank
// (optionally over a synthesized theme tree), then runs a frame loop
// exercising image selection, video streaming, and theme rotation at a
// configurable tick rate, with the usual profiling hooks.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftglass/mediabank"
	"github.com/driftglass/mediabank/videostream"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:           "bankprof",
		Short:         "soak and profile the media supply engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(v, configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.String("root", "", "theme root directory (synthesized into a temp dir when empty)")
	flags.String("theme-file", "", "theme definition JSON instead of scanning root")
	flags.Int("cache-size", 64, "total cached images across themes")
	flags.Float64("fps", 60, "tick rate of the soak loop")
	flags.Duration("duration", 10*time.Second, "how long to run")
	flags.Bool("aggressive", false, "preload caches at construction")
	flags.String("pprof-addr", "", "listen address for net/http/pprof")
	flags.String("cpu-profile", "", "write CPU profile to file")
	flags.String("mem-profile", "", "write heap profile to file")
	flags.Bool("verbose", false, "log at debug level")
	// Config keys use underscores; flag names use dashes.
	for key, flag := range map[string]string{
		"root":        "root",
		"theme_file":  "theme-file",
		"cache_size":  "cache-size",
		"fps":         "fps",
		"duration":    "duration",
		"aggressive":  "aggressive",
		"pprof_addr":  "pprof-addr",
		"cpu_profile": "cpu-profile",
		"mem_profile": "mem-profile",
		"verbose":     "verbose",
	} {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(flag)))
	}
	return cmd
}

func run(cfg Config) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cfg.PprofAddr != "" {
		go func() {
			log.Info("pprof listening", "addr", cfg.PprofAddr)
			if err := http.ListenAndServe(cfg.PprofAddr, nil); err != nil {
				log.Error("pprof server failed", "error", err)
			}
		}()
	}

	root := cfg.Root
	if root == "" && cfg.ThemeFile == "" {
		tmp, err := os.MkdirTemp("", "bankprof-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		if err := synthesizeThemes(tmp, cfg.SynthThemes, cfg.SynthImages, cfg.SynthFrames); err != nil {
			return fmt.Errorf("synthesize themes: %w", err)
		}
		log.Info("synthesized theme tree", "root", tmp,
			"themes", cfg.SynthThemes, "images", cfg.SynthImages)
		root = tmp
	}

	var set mediabank.ThemeSet
	var err error
	if cfg.ThemeFile != "" {
		set, err = mediabank.LoadThemeSet(cfg.ThemeFile)
	} else {
		set, err = mediabank.ScanThemeSet(root)
	}
	if err != nil {
		return err
	}

	bank, err := mediabank.New(set,
		mediabank.WithLogger(log),
		mediabank.WithCacheSize(cfg.CacheSize),
		mediabank.WithCooldown(cfg.Cooldown),
		mediabank.WithSpillSize(cfg.SpillSize),
		mediabank.WithThrottle(mediabank.ThrottleConfig{
			PreloadAggressively: cfg.Aggressive,
			LookaheadCount:      cfg.Lookahead,
			LookaheadBatchSize:  cfg.LookaheadBatch,
			LookaheadSleep:      cfg.LookaheadSleep,
			MaxPreload:          cfg.MaxPreload,
		}),
	)
	if err != nil {
		return err
	}
	defer bank.Close()

	alternate := 0
	if bank.ThemeCount() >= 2 {
		alternate = 2
	}
	if err := bank.SetActiveThemes(1, alternate); err != nil {
		return err
	}

	status, err := bank.EnsureReady(false, 5*time.Second)
	if err != nil {
		return err
	}
	log.Info("bank ready", "images", status.TotalImages, "videos", status.TotalVideos,
		"cached", status.CachedImages)

	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	stats := soak(cfg, log, bank, status.TotalVideos > 0)
	log.Info("soak finished",
		"ticks", stats.ticks, "images", stats.images, "videos", stats.videos,
		"frames", stats.frames, "switches", stats.switches)

	if cfg.MemProfile != "" {
		f, err := os.Create(cfg.MemProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return err
		}
	}
	return nil
}

type soakStats struct {
	ticks    int
	images   int
	videos   int
	frames   int
	switches int
}

func soak(cfg Config, log *slog.Logger, bank *mediabank.ThemeBank, haveVideos bool) soakStats {
	var streamer *videostream.Streamer
	if haveVideos {
		streamer = videostream.New(cfg.BufferSize,
			videostream.WithPool(cfg.PoolSize),
			videostream.WithLogger(log))
		defer streamer.Stop()
	}

	var stats soakStats
	interval := time.Duration(float64(time.Second) / cfg.FPS)
	deadline := time.Now().Add(cfg.Duration)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for now := range ticker.C {
		if now.After(deadline) {
			break
		}
		stats.ticks++
		bank.AsyncUpdate()

		// A fresh image every quarter of a second of ticks.
		if stats.ticks%max(1, int(cfg.FPS/4)) == 0 {
			if _, ok := bank.GetImage(stats.ticks%2 == 0); ok {
				stats.images++
			}
		}

		if streamer != nil {
			if stats.ticks%(int(cfg.FPS)*4+1) == 1 {
				if path, ok := bank.GetVideo(false); ok {
					preload := stats.videos > 0
					if streamer.LoadVideo(path, preload, cfg.BufferSize/4) {
						stats.videos++
					}
				}
			}
			streamer.AdvanceFrame(cfg.FPS, true, false)
			if streamer.GetCurrentFrame() != nil {
				stats.frames++
			}
		}

		if bank.CanSwitchThemes() && bank.SwitchThemes() {
			stats.switches++
		}
	}
	return stats
}
