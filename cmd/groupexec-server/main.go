// groupexec-server — сервер исполнения групп заданий.
//
// Сервер:
//   - Держит контроллеры (панели) и выполняет на них планы
//   - Отправляет задания во внешнюю очередь и ждёт её опустошения
//   - Принимает планы через HTTP API и из RabbitMQ
//   - Запускает планы по расписанию
//   - Рассылает прерывания другим процессам через RabbitMQ
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/groupexec/internal/api"
	"github.com/shaiso/groupexec/internal/config"
	"github.com/shaiso/groupexec/internal/mq"
	"github.com/shaiso/groupexec/internal/orchestrator"
	"github.com/shaiso/groupexec/internal/queue"
	"github.com/shaiso/groupexec/internal/repo"
	"github.com/shaiso/groupexec/internal/scheduler"
	"github.com/shaiso/groupexec/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting groupexec-server")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// История runs (необязательно)
	var runRepo *repo.RunRepo
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		runRepo = repo.NewRunRepo(pool)
		logger.Info("database connected")
	} else {
		logger.Info("DB_URL not set, run history disabled")
	}

	// Внешняя очередь заданий
	queueClient := queue.NewClient(queue.Config{
		BaseURL: cfg.Queue.URL,
		Timeout: cfg.Queue.Timeout,
		Logger:  logger,
	})
	resolver := queue.NewStaticResolver(cfg.Groups)

	board := orchestrator.NewStatusBoard()
	clk := clockwork.NewRealClock()

	template := orchestrator.Config{
		Queue:        queueClient,
		Resolver:     resolver,
		Sink:         orchestrator.MultiSink{board, orchestrator.NewLogSink(logger)},
		Clock:        clk,
		PollInterval: cfg.Drain.PollInterval,
		DrainGrace:   cfg.Drain.Grace,
		ResetDelay:   cfg.StatusResetDelay,
		Logger:       logger,
	}
	if cfg.Queue.BulkSubmit {
		template.Batch = queueClient
	}
	if runRepo != nil {
		template.Recorder = runRepo
	}

	host := orchestrator.NewHost(template)
	controllerIDs := cfg.ControllerIDs()
	for _, id := range controllerIDs {
		if _, err := host.Controller(id); err != nil {
			logger.Error("failed to create controller", "controller_id", id, "error", err)
			os.Exit(1)
		}
	}
	if len(controllerIDs) > 0 {
		host.Seal()
	} else {
		logger.Warn("no controllers configured, any controller id will be accepted")
	}
	logger.Info("controllers ready", "count", len(host.List()), "queue_url", cfg.Queue.URL)

	// RabbitMQ (необязательно)
	var publisher *mq.Publisher
	var bridge *mq.InterruptBridge
	var mqConn *mq.Connection
	var consumers []*mq.Consumer

	if cfg.RabbitMQURL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without message bus", "error", err)
		} else {
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}

			publisher = mq.NewPublisher(mqConn, logger)

			bridge = mq.NewInterruptBridge(host.Bus(), publisher, cfg.InstanceID, logger)
			bridge.Attach()

			planConsumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
				Queue:   string(mq.QueuePlansPending),
				Handler: mq.NewPlanHandler(host, logger).Handle,
			})
			interruptConsumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
				Declare:  mq.DeclareInterruptQueue,
				Handler:  bridge.Handle,
				Prefetch: 16,
			})
			consumers = append(consumers, planConsumer, interruptConsumer)

			for _, c := range consumers {
				go func(c *mq.Consumer) {
					if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("consumer stopped", "error", err)
					}
				}(c)
			}
		}
	} else {
		logger.Info("RABBITMQ_URL not set, message bus disabled")
	}

	// Расписания
	sched, err := scheduler.New(scheduler.Config{
		Schedules: cfg.Schedules,
		Starter:   host,
		Clock:     clk,
		Interval:  cfg.SchedulerInterval,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("invalid schedules", "error", err)
		os.Exit(1)
	}
	go sched.Run(ctx)

	// HTTP API
	apiCfg := api.Config{
		Host:      host,
		Board:     board,
		Schedules: sched,
		Groups:    resolver,
		Logger:    logger,
	}
	if runRepo != nil {
		apiCfg.Runs = runRepo
	}
	if publisher != nil {
		apiCfg.Publisher = publisher
	}
	handler := api.NewHandler(apiCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.APIPort
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Отменяем выполняющиеся планы: контроллеры прерывают очередь
	host.Close()

	for _, c := range consumers {
		c.Stop()
	}
	if bridge != nil {
		bridge.Wait()
	}
	if mqConn != nil {
		mqConn.Close()
	}

	logger.Info("groupexec-server stopped")
}
