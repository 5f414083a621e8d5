//go:build integration

package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/policy"
	"github.com/eliteGoblin/focusd/pomo_mon/test/fixtures"
)

var _ = Describe("Interval log", func() {
	var (
		tmpDir  string
		logPath string
		now     time.Time
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "pomomon-integration-*")
		Expect(err).NotTo(HaveOccurred())
		logPath = filepath.Join(tmpDir, "usage_log.csv")
		now = time.Now().Truncate(time.Second)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	newLog := func(mode domain.FlushMode) *infra.CSVIntervalLog {
		l := infra.NewCSVIntervalLog(infra.IntervalLogConfig{
			Path:            logPath,
			Mode:            mode,
			Retention:       30 * 24 * time.Hour,
			CompactCooldown: time.Hour,
		}, zap.NewNop())
		Expect(l.Init()).To(Succeed())
		return l
	}

	Describe("Compact", func() {
		Context("while appends keep arriving", func() {
			It("should drop only expired rows and lose no new ones", func() {
				old := now.AddDate(0, 0, -40)
				recent := now.Add(-2 * time.Hour)
				Expect(fixtures.WriteUsageLog(logPath, []fixtures.Row{
					{Start: old, End: old.Add(time.Minute), App: "expired", Phase: "work"},
					{Start: recent, End: recent.Add(time.Minute), App: "recent", Phase: "break"},
				}, []string{"garbage"})).To(Succeed())

				l := newLog(domain.FlushAppend)

				const appends = 50
				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					for i := 0; i < appends; i++ {
						start := now.Add(time.Duration(i) * time.Second)
						l.LogEvent(start, start.Add(time.Second), "live", fmt.Sprint(i), domain.LabelWork, false)
						Expect(l.Flush()).To(Succeed())
					}
				}()
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					for i := 0; i < 10; i++ {
						Expect(l.Compact(now)).To(Succeed())
					}
				}()
				wg.Wait()

				rows, err := fixtures.ReadUsageLog(logPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(rows[0]).To(Equal(infra.LogHeader))

				counts := map[string]int{}
				for _, row := range rows[1:] {
					Expect(row).NotTo(Equal(infra.LogHeader), "header appears once")
					if len(row) > 3 {
						counts[row[3]]++
					} else {
						counts[row[0]]++
					}
				}
				Expect(counts["expired"]).To(BeZero())
				Expect(counts["recent"]).To(Equal(1))
				Expect(counts["garbage"]).To(Equal(1))
				Expect(counts["live"]).To(Equal(appends))
			})
		})
	})

	Describe("Flush", func() {
		Context("in merge mode", func() {
			It("should coalesce one app's intervals within an hour", func() {
				l := newLog(domain.FlushMerge)
				hour := now.Truncate(time.Hour)

				for i := 0; i < 3; i++ {
					start := hour.Add(time.Duration(i) * time.Minute)
					l.LogEvent(start, start.Add(10*time.Second), "code", "main.go", domain.LabelWork, false)
				}
				Expect(l.Flush()).To(Succeed())
				l.LogEvent(hour.Add(5*time.Minute), hour.Add(5*time.Minute+5*time.Second), "code", "main.go", domain.LabelWork, false)
				Expect(l.Flush()).To(Succeed())

				rows, err := fixtures.ReadUsageLog(logPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(rows).To(HaveLen(2))
				Expect(rows[1][2]).To(Equal("35"))
				Expect(rows[1][1]).To(Equal(hour.Add(5*time.Minute + 5*time.Second).Format(infra.TimeLayout)))
			})
		})
	})
})

var _ = Describe("Encrypted blocklist", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "pomomon-integration-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("should persist entries across reopen with the stored key", func() {
		store, err := infra.OpenBlocklist(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Add("Steam")).To(Succeed())
		Expect(store.RecordKill("steam", 4242, time.Now())).To(Succeed())
		Expect(store.Close()).To(Succeed())

		store, err = infra.OpenBlocklist(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		apps, err := store.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(apps).To(HaveLen(1))
		Expect(apps[0].Name).To(Equal("steam"))
		Expect(apps[0].KillCount).To(Equal(1))
	})

	It("should refuse protected system processes", func() {
		store, err := infra.OpenBlocklist(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store.Add("WindowServer")).To(MatchError(policy.ErrProtected))
	})

	It("should not open with a different key", func() {
		store, err := infra.OpenBlocklist(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Add("discord")).To(Succeed())
		Expect(store.Close()).To(Succeed())

		wrongKey, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		_, err = infra.NewEncryptedBlocklist(tmpDir, wrongKey)
		Expect(err).To(HaveOccurred())
	})
})
