//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/pomo_mon/test/fixtures"
)

var _ = Describe("Daemon runner", func() {
	var (
		tmpDir    string
		clock     *usecase.PhaseClock
		intervals *infra.CSVIntervalLog
		registry  *infra.FileRegistry
		queue     *infra.ControlQueue
		sampler   *fixtures.ScriptedSampler
		stop      func() error
	)

	countRows := func(match func(domain.IntervalRecord) bool) (int, error) {
		n := 0
		err := intervals.ForEach(func(rec domain.IntervalRecord) error {
			if match(rec) {
				n++
			}
			return nil
		})
		return n, err
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "pomomon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		p := infra.NewPaths(tmpDir)
		Expect(p.Ensure()).To(Succeed())

		logger := zap.NewNop()
		clock = usecase.NewPhaseClock(usecase.ClockConfig{
			WorkDuration:  25 * time.Minute,
			BreakDuration: 5 * time.Minute,
		}, nil, logger)
		intervals = infra.NewCSVIntervalLog(infra.IntervalLogConfig{
			Path:            filepath.Join(tmpDir, "usage_log.csv"),
			Retention:       30 * 24 * time.Hour,
			CompactCooldown: time.Hour,
		}, logger)
		sampler = fixtures.NewScriptedSampler("code", "main.go")
		tracker := usecase.NewTracker(sampler, clock, intervals, logger)
		registry = infra.NewFileRegistry(p.RunDir, infra.NewProcessManager())
		queue = infra.NewControlQueue(p.ControlDir, logger)

		cfg := daemon.DefaultRunnerConfig()
		cfg.FlushInterval = 200 * time.Millisecond
		cfg.HeartbeatInterval = 50 * time.Millisecond
		cfg.ControlPoll = 50 * time.Millisecond
		cfg.ControlDir = p.ControlDir

		runner := daemon.NewRunner(cfg, clock, tracker, intervals, nil, registry, nil, queue, nil, logger)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- runner.Run(ctx) }()

		var (
			once    sync.Once
			stopErr error
		)
		stop = func() error {
			once.Do(func() {
				cancel()
				select {
				case stopErr = <-done:
				case <-time.After(5 * time.Second):
					Fail("runner did not stop")
				}
			})
			return stopErr
		}

		Eventually(registry.IsAlive).WithTimeout(3 * time.Second).Should(BeTrue())
	})

	AfterEach(func() {
		Expect(stop()).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	Describe("foreground tracking", func() {
		It("should log intervals that the summarizer reads back", func() {
			Eventually(func() (int, error) {
				return countRows(func(domain.IntervalRecord) bool { return true })
			}).WithTimeout(6 * time.Second).WithPolling(100 * time.Millisecond).
				Should(BeNumerically(">=", 2))

			Expect(stop()).To(Succeed())

			s := usecase.NewSummarizer(intervals, func() time.Duration { return 25 * time.Minute })
			summary, err := s.Summarize(domain.PeriodToday, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Work).To(BeNumerically(">=", 2))
			Expect(summary.Unscheduled).To(BeZero())

			usage, err := s.AppUsage(domain.PeriodToday, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(usage.TopApps).NotTo(BeEmpty())
			Expect(usage.TopApps[0].AppName).To(Equal("code"))
		})
	})

	Describe("control commands", func() {
		Context("when the timer is paused", func() {
			It("should publish the pause and label new intervals unscheduled", func() {
				Expect(queue.Send(domain.ControlCommand{Op: domain.OpTogglePause})).To(Succeed())

				Eventually(func() bool {
					entry, err := registry.Get()
					return err == nil && entry != nil && entry.Clock != nil && entry.Clock.Paused
				}).WithTimeout(3 * time.Second).Should(BeTrue())

				Eventually(func() (int, error) {
					return countRows(func(rec domain.IntervalRecord) bool {
						return rec.Phase == domain.LabelUnscheduled
					})
				}).WithTimeout(6 * time.Second).WithPolling(100 * time.Millisecond).
					Should(BeNumerically(">=", 1))
			})
		})

		Context("when a phase is set", func() {
			It("should switch phase and consume the command file", func() {
				Expect(queue.Send(domain.ControlCommand{Op: domain.OpSetPhase, Phase: domain.PhaseBreak})).To(Succeed())

				Eventually(clock.Phase).WithTimeout(3 * time.Second).Should(Equal(domain.PhaseBreak))
				Eventually(func() ([]os.DirEntry, error) {
					return os.ReadDir(queue.Dir())
				}).Should(BeEmpty())
			})
		})
	})

	Describe("shutdown", func() {
		It("should flush the buffer and clear the registry", func() {
			sampler.Switch("firefox", "docs")
			time.Sleep(2500 * time.Millisecond)

			Expect(stop()).To(Succeed())

			Expect(intervals.Pending()).To(BeZero())
			entry, err := registry.Get()
			Expect(err).NotTo(HaveOccurred())
			Expect(entry).To(BeNil())

			n, err := countRows(func(rec domain.IntervalRecord) bool { return rec.AppName == "firefox" })
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeNumerically(">=", 1))
		})
	})
})
