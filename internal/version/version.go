package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Значения подставляются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/retailpos/internal/version.version=v1.2.0"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// ServiceName — имя сервиса в логах, health-ответах и метках.
const ServiceName = "retail-service"

// Build описывает собранный бинарник.
type Build struct {
	Service string
	Version string
	Commit  string
	Date    string
}

// Current возвращает данные текущей сборки.
func Current() Build {
	return Build{Service: ServiceName, Version: version, Commit: commit, Date: date}
}

func (b Build) String() string {
	return fmt.Sprintf("%s %s (commit=%s date=%s)", b.Service, b.Version, b.Commit, b.Date)
}

// Fields возвращает поля для стартовой записи в лог.
func (b Build) Fields() log.Fields {
	return log.Fields{
		"service": b.Service,
		"version": b.Version,
		"commit":  b.Commit,
		"built":   b.Date,
	}
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }
