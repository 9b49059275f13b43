// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Admin ---
	AdminUsersRaw     string   `envconfig:"ADMIN_USERS" required:"true"`
	AdminUsers        []string `envconfig:"-"` // заполним вручную
	AdminPasswordHash string   `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"cinema_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	// Сколько событий обрабатываем параллельно. Иначе "go на каждое событие" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Игнорируемые пользователи (другие боты), через запятую
	IgnoredUsersRaw string   `envconfig:"IGNORED_USERS" default:""`
	IgnoredUsers    []string `envconfig:"-"`

	// --- Flood limiter (in-memory, до пайплайна триггеров) ---
	FloodLimitRequests int           `envconfig:"FLOOD_LIMIT_REQUESTS" default:"10"`
	FloodLimitWindow   time.Duration `envconfig:"FLOOD_LIMIT_WINDOW" default:"1m"`

	// --- Triggers ---
	TriggerMessageReward        float64 `envconfig:"TRIGGER_MESSAGE_REWARD" default:"0.5"`
	TriggerMessageHourlyCap     int     `envconfig:"TRIGGER_MESSAGE_HOURLY_CAP" default:"60"`
	TriggerLongMessageMinLen    int     `envconfig:"TRIGGER_LONG_MESSAGE_MIN_LEN" default:"30"`
	TriggerLongMessageReward    float64 `envconfig:"TRIGGER_LONG_MESSAGE_REWARD" default:"2"`
	TriggerLongMessageHourlyCap int     `envconfig:"TRIGGER_LONG_MESSAGE_HOURLY_CAP" default:"30"`
	TriggerLaughReward          float64 `envconfig:"TRIGGER_LAUGH_REWARD" default:"1"`
	TriggerKudosReward          float64 `envconfig:"TRIGGER_KUDOS_REWARD" default:"5"`
	TriggerMentionReward        float64 `envconfig:"TRIGGER_MENTION_REWARD" default:"1"`
	TriggerMediaCommentReward   float64 `envconfig:"TRIGGER_MEDIA_COMMENT_REWARD" default:"2"`
	TriggerMediaCommentCap      int     `envconfig:"TRIGGER_MEDIA_COMMENT_CAP" default:"3"`

	// --- Gambling ---
	GamblingEnabled         bool          `envconfig:"GAMBLING_ENABLED" default:"true"`
	GamblingMinWager        int64         `envconfig:"GAMBLING_MIN_WAGER" default:"10"`
	GamblingMaxWager        int64         `envconfig:"GAMBLING_MAX_WAGER" default:"10000"`
	GamblingMinAccountAge   time.Duration `envconfig:"GAMBLING_MIN_ACCOUNT_AGE" default:"24h"`
	GamblingCooldown        time.Duration `envconfig:"GAMBLING_COOLDOWN" default:"30s"`
	GamblingDailyLimit      int           `envconfig:"GAMBLING_DAILY_LIMIT" default:"50"`
	FlipWinProbability      float64       `envconfig:"FLIP_WIN_PROBABILITY" default:"0.45"`
	DuelRakePercent         int64         `envconfig:"DUEL_RAKE_PERCENT" default:"5"`
	DuelExpiry              time.Duration `envconfig:"DUEL_EXPIRY" default:"5m"`
	HeistJoinWindow         time.Duration `envconfig:"HEIST_JOIN_WINDOW" default:"90s"`
	HeistMinParticipants    int           `envconfig:"HEIST_MIN_PARTICIPANTS" default:"3"`
	HeistSuccessProbability float64       `envconfig:"HEIST_SUCCESS_PROBABILITY" default:"0.4"`
	HeistPayoutMultiplier   int64         `envconfig:"HEIST_PAYOUT_MULTIPLIER" default:"2"`

	// --- Multipliers ---
	HappyHourStart  int      `envconfig:"HAPPY_HOUR_START" default:"20"`
	HappyHourEnd    int      `envconfig:"HAPPY_HOUR_END" default:"23"`
	HappyHourFactor float64  `envconfig:"HAPPY_HOUR_FACTOR" default:"1.5"`
	CrowdThreshold  int      `envconfig:"CROWD_THRESHOLD" default:"20"`
	CrowdFactor     float64  `envconfig:"CROWD_FACTOR" default:"1.25"`
	HolidaysRaw     string   `envconfig:"HOLIDAYS" default:"01-01,01-07,05-09"`
	Holidays        []string `envconfig:"-"`
	HolidayFactor   float64  `envconfig:"HOLIDAY_FACTOR" default:"2"`

	// --- Jobs ---
	AmbientRewardAmount   int64         `envconfig:"AMBIENT_REWARD_AMOUNT" default:"2"`
	AmbientRewardInterval time.Duration `envconfig:"AMBIENT_REWARD_INTERVAL" default:"10m"`
	SweepInterval         time.Duration `envconfig:"SWEEP_INTERVAL" default:"15s"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.GamblingMinWager <= 0 || c.GamblingMaxWager < c.GamblingMinWager {
		return fmt.Errorf("некорректные GAMBLING_MIN_WAGER/GAMBLING_MAX_WAGER")
	}
	if c.FlipWinProbability <= 0 || c.FlipWinProbability >= 1 {
		return fmt.Errorf("FLIP_WIN_PROBABILITY должна быть в (0, 1)")
	}
	if c.DuelRakePercent < 0 || c.DuelRakePercent > 100 {
		return fmt.Errorf("DUEL_RAKE_PERCENT должен быть в [0, 100]")
	}
	if c.HeistSuccessProbability <= 0 || c.HeistSuccessProbability >= 1 {
		return fmt.Errorf("HEIST_SUCCESS_PROBABILITY должна быть в (0, 1)")
	}
	if c.HeistMinParticipants < 2 {
		return fmt.Errorf("HEIST_MIN_PARTICIPANTS должен быть >= 2")
	}
	if c.HappyHourStart < 0 || c.HappyHourStart > 23 || c.HappyHourEnd < 0 || c.HappyHourEnd > 23 {
		return fmt.Errorf("некорректные HAPPY_HOUR_START/HAPPY_HOUR_END")
	}
	for _, h := range c.Holidays {
		if _, err := time.Parse("01-02", h); err != nil {
			return fmt.Errorf("некорректная дата праздника %q (формат MM-DD)", h)
		}
	}
	return nil
}

// Location возвращает часовой пояс приложения.
// Если пояс не загрузился — UTC+3 вручную, как резерв.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	cfg.AdminUsers = parseCSV(cfg.AdminUsersRaw)
	cfg.IgnoredUsers = parseCSV(cfg.IgnoredUsersRaw)
	cfg.Holidays = parseCSV(cfg.HolidaysRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
