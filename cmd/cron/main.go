package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"
	"order-payment-service/internal/constants"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

const (
	defaultJobSpec    = "0 */1 * * * *" // 每分钟
	defaultJobTimeout = 50 * time.Second
)

var (
	flagconf string
)

// CronApp Cron 应用结构
type CronApp struct {
	sweep *biz.SweepUseCase
}

func newCronApp(sweep *biz.SweepUseCase) *CronApp {
	return &CronApp{sweep: sweep}
}

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	bc, err := conf.Load(flagconf)
	if err != nil {
		panic(err)
	}
	if err := bc.Validate(); err != nil {
		panic(err)
	}

	loggerInstance := log.With(logger.NewLogger(bc.Log.LoggerConfig("logs/order-payment-cron.log")),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "order-payment-cron",
	)

	logHelper := log.NewHelper(loggerInstance)

	// 初始化应用
	app, cleanup, err := wireApp(bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	var cronConf conf.Cron
	if bc.Cron != nil {
		cronConf = *bc.Cron
	}
	timeout := cronConf.JobTimeout.AsDuration()
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}

	// 秒级调度；上一轮未结束时跳过本轮
	cronScheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) (int, error)
	}{
		{constants.JobCheckProductOrderPayment, cronConf.ProductOrderSpec, app.sweep.CheckProductOrderPayment},
		{constants.JobCheckBookingFieldPartyRequest, cronConf.BookingSpec, app.sweep.CheckBookingFieldPartyRequest},
		{constants.JobCheckTicketonOrderTime, cronConf.TicketonSpec, app.sweep.CheckTicketonOrderTime},
	}
	for _, job := range jobs {
		job := job
		spec := job.spec
		if spec == "" {
			spec = defaultJobSpec
		}
		_, err = cronScheduler.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			start := time.Now()
			count, err := job.run(ctx)
			if err != nil {
				logHelper.Errorf("[CRON] %s failed: cancelled=%d, error=%v", job.name, count, err)
				return
			}
			if count > 0 {
				logHelper.Infof("[CRON] %s finished: cancelled=%d, cost=%s", job.name, count, time.Since(start))
			}
		})
		if err != nil {
			logHelper.Errorf("Failed to add %s job: %v", job.name, err)
			continue
		}
		logHelper.Infof("  - %s: %s", job.name, spec)
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("Cron jobs started successfully")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
