// Package logger предоставляет структурированное логирование на базе zerolog.
// В production пишет JSON, в development — цветной консольный вывод.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log — глобальный логгер процесса.
var log zerolog.Logger

// Config — параметры инициализации логгера.
type Config struct {
	// Level: "trace", "debug", "info", "warn", "error". По умолчанию "info".
	Level string

	// Pretty включает человекочитаемый вывод вместо JSON.
	Pretty bool

	// Service добавляется в каждую запись поля "service".
	Service string

	// Output по умолчанию os.Stdout.
	Output io.Writer
}

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	Init(Config{
		Level:  level,
		Pretty: strings.EqualFold(os.Getenv("LOG_PRETTY"), "true"),
	})
}

// Init пересоздает глобальный логгер.
// Вызывается из main после загрузки конфигурации.
func Init(cfg Config) {
	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level := ParseLevel(cfg.Level)

	lctx := zerolog.New(out).Level(level).With().Timestamp().Caller()
	if cfg.Service != "" {
		lctx = lctx.Str("service", cfg.Service)
	}
	log = lctx.Logger()

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// ParseLevel переводит строку в zerolog.Level. Неизвестное значение — InfoLevel.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug — отладочные подробности (ответы провайдеров, ключи идемпотентности).
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info — штатные события жизненного цикла платежа.
func Info() *zerolog.Event {
	return log.Info()
}

// Warn — отказ провайдера, конфликт версий и прочие восстанавливаемые ситуации.
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error — ошибки, требующие внимания, но не останавливающие процесс.
func Error() *zerolog.Event {
	return log.Error()
}

// Fatal пишет запись и завершает процесс с кодом 1.
func Fatal() *zerolog.Event {
	return log.Fatal()
}

// With возвращает контекст для построения дочернего логгера.
//
//	gwLog := logger.With().Str("provider", "STRIPE").Logger()
func With() zerolog.Context {
	return log.With()
}

// Logger возвращает копию глобального логгера.
func Logger() zerolog.Logger {
	return log
}

// SetGlobalLogger подменяет глобальный логгер (используется в тестах).
func SetGlobalLogger(l zerolog.Logger) {
	log = l
}
