// Package main — точка входа бота.
// Загружает конфигурацию, инициализирует приложение и запускает.
// Поддерживает graceful shutdown по SIGINT/SIGTERM и перечитывание
// конфигурации по SIGHUP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/cinema-bot/internal/app"
	"serotonyl.ru/cinema-bot/internal/config"
)

func main() {
	// Настраиваем логирование
	setupLogging()

	log.Info("=== Бот запускается ===")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	// Контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализируем приложение (БД, сервисы, диспетчер).
	// Транспорт канала подключается снаружи через application.Bot.Submit;
	// до его подключения уведомления уходят в лог.
	application, err := app.New(ctx, cfg, logNotifier{})
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.DB.Close()

	// Запускаем планировщик задач (cron + уборка)
	application.Scheduler.Start(ctx)
	defer application.Scheduler.Stop()

	// Обрабатываем сигналы
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

	// Запускаем диспетчер в отдельной горутине
	go application.Bot.Run(ctx)

	log.Info("=== Бот готов к работе ===")

	for {
		select {
		case <-reload:
			newCfg, err := config.Load()
			if err != nil {
				log.WithError(err).Error("Перечитывание конфигурации не удалось, работаем по старой")
				continue
			}
			application.UpdateConfig(newCfg)

		case sig := <-quit:
			log.Infof("Получен сигнал %s, останавливаемся...", sig)
			cancel()
			log.Info("=== Бот остановлен ===")
			return
		}
	}
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}

// logNotifier пишет исходящие уведомления в лог. Реальный транспорт
// канала реализует events.Notifier и подставляется вместо него.
type logNotifier struct{}

func (logNotifier) SendChannel(channel, text string) {
	log.WithField("channel", channel).Info(text)
}

func (logNotifier) SendPrivate(username, text string) {
	log.WithField("username", username).Info(text)
}
